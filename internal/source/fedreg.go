package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/pkg/fedreg"
)

// monitoringLookback bounds monitoring searches to recent publications.
const monitoringLookback = 90 * 24 * time.Hour

// FederalRegister searches rules, proposed rules and notices published in
// the US Federal Register.
type FederalRegister struct {
	client  fedreg.Client
	perPage int
	now     func() time.Time
}

// NewFederalRegister creates the Federal Register source.
func NewFederalRegister(client fedreg.Client, perPage int) *FederalRegister {
	return &FederalRegister{client: client, perPage: perPage, now: time.Now}
}

func (f *FederalRegister) Name() string            { return "federal_register" }
func (f *FederalRegister) Class() model.SourceType { return model.SourceGovernment }
func (f *FederalRegister) Accepts(qt model.QueryType) bool {
	return ClassAccepts(model.SourceGovernment, qt)
}

// Search maps query families onto document filters: targeted queries look
// at final and proposed rules only, monitoring queries at the last 90 days.
func (f *FederalRegister) Search(ctx context.Context, q model.Query) ([]model.RawItem, error) {
	sq := fedreg.SearchQuery{Term: q.Text, PerPage: f.perPage}
	switch q.Type {
	case model.QueryTargeted:
		sq.Types = []string{fedreg.TypeRule, fedreg.TypeProposedRule}
	case model.QueryMonitoring:
		sq.Since = f.now().Add(-monitoringLookback)
	}

	resp, err := f.client.Search(ctx, sq)
	if err != nil {
		return nil, eris.Wrapf(err, "source: federal register search %q", q.Text)
	}

	items := make([]model.RawItem, 0, len(resp.Results))
	for _, doc := range resp.Results {
		content := doc.Abstract
		if agencies := doc.AgencyNames(); len(agencies) > 0 {
			content = strings.TrimSpace(content + "\n\nIssued by: " + strings.Join(agencies, ", "))
		}
		items = append(items, model.RawItem{
			Source:        f.Name(),
			SourceType:    model.SourceGovernment,
			Title:         doc.Title,
			Content:       content,
			URL:           doc.HTMLURL,
			PublishedAt:   doc.Published(),
			RelevanceHint: documentHint(doc.Type),
		})
	}
	return items, nil
}

// documentHint ranks binding rules above proposals above notices.
func documentHint(docType string) float64 {
	switch strings.ToLower(docType) {
	case "rule":
		return 0.8
	case "proposed rule":
		return 0.7
	case "notice":
		return 0.5
	default:
		return 0.4
	}
}
