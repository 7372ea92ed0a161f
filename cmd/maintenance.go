package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/model"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		zap.L().Info("migration complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed and failed reports past the retention period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = cfg.Scheduler.RetentionDays
		}
		if days <= 0 {
			return eris.New("retention days must be positive")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cutoff := retentionCutoff(time.Now(), days)
		n, err := st.DeleteReportsBefore(ctx, cutoff, []model.ReportStatus{model.ReportCompleted, model.ReportFailed})
		if err != nil {
			return eris.Wrap(err, "cleanup")
		}
		fmt.Fprintf(os.Stderr, "Deleted %d reports created before %s.\n", n, cutoff.Format("2006-01-02"))
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration for a run mode",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		if err := cfg.Validate(mode); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Configuration valid for %s.\n", mode)
		return printJSON(os.Stdout, redacted(*cfg))
	},
}

func retentionCutoff(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -days)
}

// redacted returns c with API keys and passwords masked.
func redacted(c config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "****"
		}
	}
	mask(&c.Anthropic.Key)
	mask(&c.Gemini.Key)
	mask(&c.Perplexity.Key)
	mask(&c.Jina.Key)
	mask(&c.Redis.Password)
	mask(&c.Store.DatabaseURL)
	return c
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "retention in days (default from config)")
	configCheckCmd.Flags().String("mode", "cli", "serve, worker or cli")
	rootCmd.AddCommand(migrateCmd, cleanupCmd, configCheckCmd)
}
