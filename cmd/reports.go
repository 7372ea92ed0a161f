package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/regintel/internal/export"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect analysis reports",
	Long:  "Commands for listing, viewing, exporting, retrying and deleting analysis reports.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		statuses, _ := cmd.Flags().GetStringSlice("status")
		profile, _ := cmd.Flags().GetString("profile")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ReportFilter{ProfileID: profile, Limit: limit}
		for _, s := range statuses {
			filter.Statuses = append(filter.Statuses, model.ReportStatus(s))
		}

		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a report and its regulatory changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports show")
		}
		changes, err := st.ListChanges(ctx, report.ID)
		if err != nil {
			return eris.Wrap(err, "reports show")
		}
		return export.WriteJSON(os.Stdout, *report, changes)
	},
}

// -- reports export --

var reportsExportCmd = &cobra.Command{
	Use:   "export <report-id>",
	Short: "Export a report's changes as JSON or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		formatFlag, _ := cmd.Flags().GetString("format")
		if formatFlag == "" {
			formatFlag = filepath.Ext(out)
		}
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports export")
		}
		changes, err := st.ListChanges(ctx, report.ID)
		if err != nil {
			return eris.Wrap(err, "reports export")
		}

		if out == "" {
			return export.Write(os.Stdout, format, *report, changes)
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		if err := export.Write(f, format, *report, changes); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "close %s", out)
		}
		fmt.Fprintf(os.Stderr, "Exported %d changes to %s.\n", len(changes), out)
		return nil
	},
}

// -- reports retry --

var reportsRetryCmd = &cobra.Command{
	Use:   "retry <report-id>",
	Short: "Re-run a failed report as a new report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		prev, err := env.Store.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports retry")
		}
		next, ok := prev.Retry()
		if !ok {
			return eris.Wrapf(store.ErrInvalidTransition, "report %s is %s, only failed reports can be retried", prev.ID, prev.Status)
		}
		if err := env.Store.CreateReport(ctx, next); err != nil {
			return eris.Wrap(err, "reports retry")
		}
		fmt.Fprintf(os.Stderr, "Retrying %s as %s.\n", prev.ID, next.ID)
		return runAndPrint(ctx, env, model.RequestFor(next))
	},
}

// -- reports delete --

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete a report and its changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteReport(ctx, args[0]); err != nil {
			return eris.Wrap(err, "reports delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted report %s.\n", args[0])
		return nil
	},
}

func formatReportsList(w io.Writer, reports []model.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTYPE\tPROGRESS\tCREATED\tTITLE")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			r.ID, r.Status, r.AnalysisType, r.ProgressPercentage,
			r.CreatedAt.Format("2006-01-02 15:04"), truncate(r.Title, 60))
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	reportsListCmd.Flags().StringSlice("status", nil, "filter by status (repeatable)")
	reportsListCmd.Flags().String("profile", "", "filter by company profile ID")
	reportsListCmd.Flags().Int("limit", 50, "maximum reports to list")

	reportsExportCmd.Flags().String("out", "", "output file (default stdout)")
	reportsExportCmd.Flags().String("format", "", "json or xlsx (default from --out extension, else json)")

	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsExportCmd, reportsRetryCmd, reportsDeleteCmd)
	rootCmd.AddCommand(reportsCmd)
}
