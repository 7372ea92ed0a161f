package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/pkg/fedreg"
)

type fakeFedReg struct {
	got  fedreg.SearchQuery
	resp *fedreg.SearchResponse
	err  error
}

func (f *fakeFedReg) Search(_ context.Context, q fedreg.SearchQuery) (*fedreg.SearchResponse, error) {
	f.got = q
	return f.resp, f.err
}

func TestFederalRegister_Search(t *testing.T) {
	client := &fakeFedReg{resp: &fedreg.SearchResponse{Results: []fedreg.Document{
		{
			Title:           "Safeguards Rule",
			Abstract:        "Amends the Safeguards Rule to require breach reporting.",
			Type:            "Rule",
			HTMLURL:         "https://www.federalregister.gov/d/2023-24412",
			PublicationDate: "2023-11-13",
			Agencies:        []fedreg.Agency{{Name: "Federal Trade Commission"}},
		},
		{Title: "Meeting notice", Type: "Notice"},
	}}}
	src := NewFederalRegister(client, 10)

	items, err := src.Search(context.Background(), model.Query{Text: "data security", Type: model.QueryTargeted})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, []string{fedreg.TypeRule, fedreg.TypeProposedRule}, client.got.Types)
	assert.Equal(t, 10, client.got.PerPage)
	assert.True(t, client.got.Since.IsZero())

	first := items[0]
	assert.Equal(t, "federal_register", first.Source)
	assert.Equal(t, model.SourceGovernment, first.SourceType)
	assert.Contains(t, first.Content, "Issued by: Federal Trade Commission")
	assert.InDelta(t, 0.8, first.RelevanceHint, 1e-9)
	require.NotNil(t, first.PublishedAt)
	assert.InDelta(t, 0.5, items[1].RelevanceHint, 1e-9)
}

func TestFederalRegister_MonitoringLookback(t *testing.T) {
	client := &fakeFedReg{resp: &fedreg.SearchResponse{}}
	src := NewFederalRegister(client, 5)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.Search(context.Background(), model.Query{Text: "recent", Type: model.QueryMonitoring})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-monitoringLookback), client.got.Since)
	assert.Empty(t, client.got.Types)
}

func TestFederalRegister_Error(t *testing.T) {
	src := NewFederalRegister(&fakeFedReg{err: errors.New("timeout")}, 5)
	_, err := src.Search(context.Background(), model.Query{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "federal register search")
	assert.False(t, src.Accepts(model.QueryWebSearch))
}
