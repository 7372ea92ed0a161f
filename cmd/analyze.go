package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
)

var (
	analyzeProfileID string
	analyzeType      string
	analyzeScope     string
	analyzeKeywords  []string
	analyzeTitle     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run an analysis for a company profile and wait for the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		at := model.AnalysisType(strings.ToLower(analyzeType))
		if !at.Valid() {
			return eris.Errorf("unknown analysis type %q", analyzeType)
		}

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		profile, err := env.Store.GetProfile(ctx, analyzeProfileID)
		if err != nil {
			return eris.Wrap(err, "analyze: load profile")
		}

		report := &model.Report{
			CompanyProfileID: profile.ID,
			Title:            analyzeTitle,
			AnalysisType:     at,
			Scope:            analyzeScope,
			Keywords:         analyzeKeywords,
		}
		if report.Title == "" {
			report.Title = fmt.Sprintf("%s %s analysis", profile.CompanyName, at)
		}
		if err := env.Store.CreateReport(ctx, report); err != nil {
			return eris.Wrap(err, "analyze: create report")
		}
		zap.L().Info("analysis started", zap.String("report_id", report.ID), zap.String("company", profile.CompanyName))

		return runAndPrint(ctx, env, model.RequestFor(report))
	},
}

var runCmd = &cobra.Command{
	Use:   "run <report-id>",
	Short: "Run a pending report in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Store.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "run: load report")
		}
		return runAndPrint(ctx, env, model.RequestFor(report))
	},
}

func runAndPrint(ctx context.Context, env *pipelineEnv, req model.AnalysisRequest) error {
	if err := env.Orchestrator.RunAnalysis(ctx, req); err != nil {
		return eris.Wrapf(err, "analysis %s failed", req.ReportID)
	}
	changes, err := env.Store.ListChanges(ctx, req.ReportID)
	if err != nil {
		return eris.Wrap(err, "list changes")
	}
	fmt.Fprintf(os.Stderr, "Report %s completed with %d changes.\n", req.ReportID, len(changes))
	formatChangesList(os.Stdout, changes)
	return nil
}

// formatChangesList writes one line per change, most confident first.
func formatChangesList(w io.Writer, changes []model.RegulatoryChange) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RISK\tCONF\tSOURCE\tTITLE")
	for _, c := range changes {
		src := string(c.SourceType)
		if c.Fallback {
			src += "*"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n", c.RiskLevel, c.ConfidenceScore, src, truncate(c.Title, 80))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProfileID, "profile", "", "company profile ID (required)")
	analyzeCmd.Flags().StringVar(&analyzeType, "type", string(model.AnalysisComprehensive), "analysis type: comprehensive, targeted or monitoring")
	analyzeCmd.Flags().StringVar(&analyzeScope, "scope", "", "free-text scope for targeted analyses")
	analyzeCmd.Flags().StringSliceVar(&analyzeKeywords, "keyword", nil, "extra search keyword (repeatable)")
	analyzeCmd.Flags().StringVar(&analyzeTitle, "title", "", "report title")
	_ = analyzeCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(analyzeCmd, runCmd)
}
