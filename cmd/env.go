package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/llm"
	"github.com/sells-group/regintel/internal/notify"
	"github.com/sells-group/regintel/internal/pipeline"
	"github.com/sells-group/regintel/internal/resilience"
	"github.com/sells-group/regintel/internal/source"
	"github.com/sells-group/regintel/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "regintel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store. Callers close it.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// pipelineEnv holds the store and the orchestrator needed by the serve,
// worker and analyze commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator

	closeNotify func() error
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.closeNotify != nil {
		if err := pe.closeNotify(); err != nil {
			zap.L().Warn("close notifier", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, opens the store and builds
// the orchestrator with its sources, analyzer and notifiers. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	analyzer, err := llm.New(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init text analyzer")
	}

	router := source.FromConfig(cfg, resilience.NewBreakers(cfg.Resilience))
	notifier, closeNotify := notify.FromConfig(cfg)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("analyst", cfg.Analyst.Provider),
		zap.Bool("analyzer_enabled", analyzer != nil),
	)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: pipeline.New(cfg, st, router, analyzer, notifier),
		closeNotify:  closeNotify,
	}, nil
}
