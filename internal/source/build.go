package source

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/fetcher"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/resilience"
	"github.com/sells-group/regintel/pkg/fedreg"
	"github.com/sells-group/regintel/pkg/jina"
)

// FromConfig builds the router for every source the configuration enables,
// each behind its own circuit breaker. Jina sources need an API key.
func FromConfig(cfg *config.Config, breakers *resilience.Breakers) *Router {
	timeout := cfg.Pipeline.AcquireTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var sources []Source
	if cfg.FedReg.Enabled {
		client := fedreg.NewClient(
			fedreg.WithBaseURL(cfg.FedReg.BaseURL),
			fedreg.WithHTTPClient(&http.Client{Timeout: timeout}),
		)
		sources = append(sources, NewFederalRegister(client, cfg.FedReg.PerPage))
	}

	if len(cfg.Portals.URLs) > 0 {
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Portals.UserAgent,
			Timeout:     timeout,
			MaxAttempts: 1,
			RatePerHost: cfg.Portals.RatePerHost,
		})
		sources = append(sources, NewPortal(f, cfg.Portals.URLs))
	}

	if cfg.Jina.Key != "" {
		client := jina.NewClient(cfg.Jina.Key,
			jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
			jina.WithMaxAttempts(1),
		)
		sources = append(sources,
			NewJina("jina_news", model.SourceNews, client, cfg.Jina.NewsSites),
			NewJina("jina_legal", model.SourceLegal, client, cfg.Jina.LegalSites),
			NewJina("jina_industry", model.SourceIndustry, client, cfg.Jina.IndustrySites),
		)
	} else {
		zap.L().Info("source: jina key not set, news, legal and industry search disabled")
	}

	for i, s := range sources {
		sources[i] = WithBreaker(s, breakers)
	}
	return NewRouter(sources...)
}
