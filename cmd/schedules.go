package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/regintel/internal/model"
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Manage recurring analyses",
}

var schedulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a recurring analysis for a company profile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		profileID, _ := cmd.Flags().GetString("profile")
		name, _ := cmd.Flags().GetString("name")
		freqFlag, _ := cmd.Flags().GetString("frequency")
		typeFlag, _ := cmd.Flags().GetString("type")

		freq, err := parseFrequency(freqFlag)
		if err != nil {
			return err
		}
		at := model.AnalysisType(strings.ToLower(typeFlag))
		if !at.Valid() {
			return eris.Errorf("unknown analysis type %q", typeFlag)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profile, err := st.GetProfile(ctx, profileID)
		if err != nil {
			return eris.Wrap(err, "schedules add")
		}
		if name == "" {
			name = fmt.Sprintf("%s %s %s", profile.CompanyName, freq, at)
		}
		sched := &model.Schedule{
			CompanyProfileID: profile.ID,
			Name:             name,
			Frequency:        freq,
			AnalysisType:     at,
			Active:           true,
		}
		if err := st.CreateSchedule(ctx, sched); err != nil {
			return eris.Wrap(err, "schedules add")
		}
		fmt.Fprintf(os.Stderr, "Created schedule %s, next run %s.\n", sched.ID, sched.NextRun.Format("2006-01-02 15:04"))
		return nil
	},
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		activeOnly, _ := cmd.Flags().GetBool("active")
		schedules, err := st.ListSchedules(ctx, activeOnly)
		if err != nil {
			return eris.Wrap(err, "schedules list")
		}
		if len(schedules) == 0 {
			fmt.Fprintln(os.Stderr, "No schedules found.")
			return nil
		}
		formatSchedulesList(os.Stdout, schedules)
		return nil
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <schedule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if err := st.SetScheduleActive(ctx, args[0], active); err != nil {
				return eris.Wrapf(err, "schedules %s", use)
			}
			return nil
		},
	}
}

func parseFrequency(s string) (model.Frequency, error) {
	switch f := model.Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly, model.FrequencyQuarterly:
		return f, nil
	default:
		return "", eris.Errorf("unknown frequency %q (daily, weekly, monthly or quarterly)", s)
	}
}

func formatSchedulesList(w io.Writer, schedules []model.Schedule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVE\tFREQUENCY\tTYPE\tNEXT RUN\tNAME")
	for _, s := range schedules {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n",
			s.ID, s.Active, s.Frequency, s.AnalysisType, s.NextRun.Format("2006-01-02 15:04"), s.Name)
	}
	_ = tw.Flush()
}

func init() {
	schedulesAddCmd.Flags().String("profile", "", "company profile ID (required)")
	schedulesAddCmd.Flags().String("name", "", "schedule name")
	schedulesAddCmd.Flags().String("frequency", string(model.FrequencyWeekly), "daily, weekly, monthly or quarterly")
	schedulesAddCmd.Flags().String("type", string(model.AnalysisMonitoring), "analysis type")
	_ = schedulesAddCmd.MarkFlagRequired("profile")
	schedulesListCmd.Flags().Bool("active", false, "only active schedules")

	schedulesCmd.AddCommand(
		schedulesAddCmd,
		schedulesListCmd,
		setActiveCmd("pause", "Stop a schedule from running", false),
		setActiveCmd("resume", "Resume a paused schedule", true),
	)
	rootCmd.AddCommand(schedulesCmd)
}
