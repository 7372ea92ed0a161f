package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/pkg/jina"
)

// jinaServer answers searches per site filter and records the sites asked.
type jinaServer struct {
	mu      sync.Mutex
	sites   []string
	results map[string][]jina.SearchResult
	fail    map[string]bool
}

func (s *jinaServer) start(t *testing.T) jina.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site := r.URL.Query().Get("site")
		s.mu.Lock()
		s.sites = append(s.sites, site)
		s.mu.Unlock()
		if s.fail[site] {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(jina.SearchResponse{Code: 200, Data: s.results[site]})
	}))
	t.Cleanup(srv.Close)
	return jina.NewClient("k", jina.WithSearchBaseURL(srv.URL), jina.WithMaxAttempts(1))
}

func TestJina_SearchAcrossSites(t *testing.T) {
	fake := &jinaServer{
		results: map[string][]jina.SearchResult{
			"reuters.com": {
				{Title: "EU AI Act enters into force", URL: "https://reuters.com/a", Content: "The AI Act applies from...", PublishedTime: "2024-08-01T00:00:00Z"},
				{Title: "Second", URL: "https://reuters.com/b", Description: "fallback description"},
			},
		},
		fail: map[string]bool{"law360.com": true},
	}
	src := NewJina("jina_news", model.SourceNews, fake.start(t), []string{"reuters.com", "law360.com"})

	items, err := src.Search(context.Background(), model.Query{Text: "AI act"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"reuters.com", "law360.com"}, fake.sites)

	assert.Equal(t, "jina_news", items[0].Source)
	assert.Equal(t, model.SourceNews, items[0].SourceType)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, "fallback description", items[1].Content)
	assert.Greater(t, items[0].RelevanceHint, items[1].RelevanceHint)
}

func TestJina_AllSitesFail(t *testing.T) {
	fake := &jinaServer{fail: map[string]bool{"a.com": true, "b.com": true}}
	src := NewJina("jina_legal", model.SourceLegal, fake.start(t), []string{"a.com", "b.com"})

	_, err := src.Search(context.Background(), model.Query{Text: "x"})
	require.Error(t, err)
	assert.True(t, src.Accepts(model.QueryJurisdiction))
	assert.False(t, src.Accepts(model.QueryWebSearch))
}

func TestJina_NoSitesSearchesOpenWeb(t *testing.T) {
	fake := &jinaServer{results: map[string][]jina.SearchResult{"": {{Title: "x", Content: "y"}}}}
	items, err := NewJina("jina_industry", model.SourceIndustry, fake.start(t), nil).
		Search(context.Background(), model.Query{Text: "q"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, []string{""}, fake.sites)
}
