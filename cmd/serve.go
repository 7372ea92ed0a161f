package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/api"
	"github.com/sells-group/regintel/internal/monitoring"
	"github.com/sells-group/regintel/internal/resilience"
	"github.com/sells-group/regintel/internal/runner"
	"github.com/sells-group/regintel/internal/scheduler"
)

var servePort int

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, scheduler and monitoring loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := runner.New(cfg, env.Orchestrator)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := run.Close(closeCtx); err != nil {
				zap.L().Warn("runner close", zap.Error(err))
			}
		}()

		var bg sync.WaitGroup
		if cfg.Scheduler.Enabled {
			sched := scheduler.New(env.Store, run, cfg.Scheduler)
			bg.Add(1)
			go func() {
				defer bg.Done()
				sched.Run(ctx)
			}()
		}
		if cfg.Monitoring.Enabled {
			var failer monitoring.ReportFailer
			if cfg.Monitoring.FailStuckReports {
				failer = env.Store
			}
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store, time.Duration(cfg.Monitoring.StuckAfterMins)*time.Minute),
				monitoring.NewAlerter(cfg.Monitoring, resilience.PolicyFromConfig(cfg.Resilience, "monitoring", "alert")),
				failer,
				cfg.Monitoring,
			)
			bg.Add(1)
			go func() {
				defer bg.Done()
				checker.Run(ctx)
			}()
		}
		defer bg.Wait()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		handler := api.NewServer(env.Store, run, api.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			LookbackHours:  cfg.Monitoring.LookbackWindowHours,
			StuckAfter:     time.Duration(cfg.Monitoring.StuckAfterMins) * time.Minute,
		}).Handler()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("runner", cfg.Runner.Mode),
			zap.Bool("scheduler", cfg.Scheduler.Enabled),
			zap.Bool("monitoring", cfg.Monitoring.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stop()
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
