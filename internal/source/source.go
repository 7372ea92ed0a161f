// Package source adapts external regulatory data providers to a common
// search interface and routes queries to the providers that serve them.
package source

import (
	"context"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/resilience"
)

// Source searches one external provider.
type Source interface {
	// Name identifies the provider in item provenance and logs.
	Name() string
	// Class is the source type stamped on items that do not set their own.
	Class() model.SourceType
	// Accepts reports whether the source serves queries of type qt.
	Accepts(qt model.QueryType) bool
	// Search runs one query. Transport failures are returned as errors.
	Search(ctx context.Context, q model.Query) ([]model.RawItem, error)
}

// classQueryTypes decides which query families each source class serves.
var classQueryTypes = map[model.SourceType][]model.QueryType{
	model.SourceGovernment: {
		model.QueryKeyword, model.QueryIndustry, model.QueryJurisdiction,
		model.QueryComprehensive, model.QueryTargeted, model.QueryMonitoring,
	},
	model.SourceRegulatoryBody: {
		model.QueryKeyword, model.QueryIndustry, model.QueryComprehensive,
		model.QueryTargeted, model.QueryMonitoring,
	},
	model.SourceNews: {
		model.QueryKeyword, model.QueryComprehensive, model.QueryMonitoring, model.QueryWebSearch,
	},
	model.SourceLegal: {
		model.QueryKeyword, model.QueryJurisdiction, model.QueryComprehensive, model.QueryTargeted,
	},
	model.SourceIndustry: {
		model.QueryKeyword, model.QueryIndustry, model.QueryComprehensive, model.QueryWebSearch,
	},
}

// ClassAccepts reports whether sources of class c serve query type qt.
func ClassAccepts(c model.SourceType, qt model.QueryType) bool {
	for _, t := range classQueryTypes[c] {
		if t == qt {
			return true
		}
	}
	return false
}

// Router holds the configured sources in registration order.
type Router struct {
	sources []Source
}

// NewRouter creates a router over the given sources.
func NewRouter(sources ...Source) *Router {
	return &Router{sources: sources}
}

// For returns the sources that accept query type qt, in registration order.
func (r *Router) For(qt model.QueryType) []Source {
	if r == nil {
		return nil
	}
	var out []Source
	for _, s := range r.sources {
		if s.Accepts(qt) {
			out = append(out, s)
		}
	}
	return out
}

// Sources returns every registered source.
func (r *Router) Sources() []Source {
	if r == nil {
		return nil
	}
	return r.sources
}

// guarded routes a source's searches through a circuit breaker so a
// provider that keeps failing is skipped until it recovers.
type guarded struct {
	Source
	breaker *resilience.Breaker
}

// WithBreaker wraps src with the breaker registered under its name.
func WithBreaker(src Source, breakers *resilience.Breakers) Source {
	if breakers == nil {
		return src
	}
	return &guarded{Source: src, breaker: breakers.Get(src.Name())}
}

func (g *guarded) Search(ctx context.Context, q model.Query) ([]model.RawItem, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) ([]model.RawItem, error) {
		return g.Source.Search(ctx, q)
	})
}
