package source

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/pkg/jina"
)

// Jina searches the web through Jina, optionally restricted to a set of
// sites. One instance serves one source class (news, legal or industry).
type Jina struct {
	name   string
	class  model.SourceType
	client jina.Client
	sites  []string
}

// NewJina creates a Jina-backed source of the given class.
func NewJina(name string, class model.SourceType, client jina.Client, sites []string) *Jina {
	return &Jina{name: name, class: class, client: client, sites: sites}
}

func (j *Jina) Name() string                    { return j.name }
func (j *Jina) Class() model.SourceType         { return j.class }
func (j *Jina) Accepts(qt model.QueryType) bool { return ClassAccepts(j.class, qt) }

// Search queries every configured site. A failing site is skipped as long
// as another one answered; the source fails only when every site failed.
func (j *Jina) Search(ctx context.Context, q model.Query) ([]model.RawItem, error) {
	filters := j.sites
	if len(filters) == 0 {
		filters = []string{""}
	}

	var (
		items   []model.RawItem
		lastErr error
		failed  int
	)
	for _, site := range filters {
		var opts []jina.SearchOption
		if site != "" {
			opts = append(opts, jina.WithSiteFilter(site))
		}
		resp, err := j.client.Search(ctx, q.Text, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "source: jina search")
			}
			zap.L().Debug("source: jina site search failed",
				zap.String("source", j.name),
				zap.String("site", site),
				zap.Error(err),
			)
			lastErr = err
			failed++
			continue
		}
		for i, r := range resp.Data {
			content := r.Content
			if content == "" {
				content = r.Description
			}
			items = append(items, model.RawItem{
				Source:        j.name,
				SourceType:    j.class,
				Title:         r.Title,
				Content:       content,
				URL:           r.URL,
				PublishedAt:   r.Published(),
				RelevanceHint: rankHint(i),
			})
		}
	}
	if failed == len(filters) {
		return nil, eris.Wrapf(lastErr, "source: %s search %q", j.name, q.Text)
	}
	return items, nil
}

// rankHint decays with the provider's result rank.
func rankHint(rank int) float64 {
	h := 0.7 - 0.05*float64(rank)
	if h < 0.3 {
		return 0.3
	}
	return h
}
