package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/fetcher"
	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/textutil"
)

const (
	listingTTL      = 10 * time.Minute
	minHeadlineLen  = 20
	maxListingItems = 200
)

// entry is one announcement scraped from a portal listing.
type entry struct {
	title     string
	summary   string
	url       string
	published *time.Time
	tokens    map[string]struct{}
}

type listing struct {
	entries   []entry
	fetchedAt time.Time
}

// Portal scrapes regulator newsroom pages and feeds and matches their
// announcements against query text. Listings are cached briefly so one run
// does not download the same page once per query.
type Portal struct {
	fetcher fetcher.Fetcher
	urls    []string
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]listing
}

// NewPortal creates a portal source over the given listing URLs.
func NewPortal(f fetcher.Fetcher, urls []string) *Portal {
	return &Portal{fetcher: f, urls: urls, now: time.Now, cache: make(map[string]listing)}
}

func (p *Portal) Name() string            { return "regulator_portals" }
func (p *Portal) Class() model.SourceType { return model.SourceRegulatoryBody }
func (p *Portal) Accepts(qt model.QueryType) bool {
	return ClassAccepts(model.SourceRegulatoryBody, qt)
}

// Search returns announcements sharing at least half of the query's
// significant terms. Unreachable portals are skipped unless all are.
func (p *Portal) Search(ctx context.Context, q model.Query) ([]model.RawItem, error) {
	terms := significantTerms(q.Text)
	if len(terms) == 0 || len(p.urls) == 0 {
		return nil, nil
	}

	var (
		items   []model.RawItem
		failed  int
		lastErr error
	)
	for _, u := range p.urls {
		entries, err := p.listing(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "source: portal search")
			}
			zap.L().Debug("source: portal unavailable", zap.String("url", u), zap.Error(err))
			failed++
			lastErr = err
			continue
		}
		for _, e := range entries {
			hits := 0
			for _, t := range terms {
				if _, ok := e.tokens[t]; ok {
					hits++
				}
			}
			if hits*2 < len(terms) {
				continue
			}
			items = append(items, model.RawItem{
				Source:        hostOf(u),
				SourceType:    model.SourceRegulatoryBody,
				Title:         e.title,
				Content:       e.summary,
				URL:           e.url,
				PublishedAt:   e.published,
				RelevanceHint: 0.4 + 0.4*float64(hits)/float64(len(terms)),
			})
		}
	}
	if failed == len(p.urls) {
		return nil, eris.Wrap(lastErr, "source: every portal failed")
	}
	return items, nil
}

func (p *Portal) listing(ctx context.Context, u string) ([]entry, error) {
	p.mu.Lock()
	cached, ok := p.cache[u]
	p.mu.Unlock()
	if ok && p.now().Sub(cached.fetchedAt) < listingTTL {
		return cached.entries, nil
	}

	page, err := p.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	var entries []entry
	if fetcher.IsFeed(page) {
		entries, err = feedEntries(ctx, page)
	} else {
		entries, err = htmlEntries(page)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "source: parse portal %s", u)
	}

	p.mu.Lock()
	p.cache[u] = listing{entries: entries, fetchedAt: p.now()}
	p.mu.Unlock()
	return entries, nil
}

func feedEntries(ctx context.Context, page *fetcher.Page) ([]entry, error) {
	feed, err := fetcher.ParseFeed(ctx, page.Body)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(feed))
	for _, it := range feed {
		summary := collapse(stripTags(it.Description))
		out = append(out, newEntry(it.Title, summary, resolve(page.URL, it.Link), it.Published))
	}
	return out, nil
}

// htmlEntries pulls headline links out of newsroom listing markup. Each
// candidate block contributes its first link as the headline and its
// whole text as the summary.
func htmlEntries(page *fetcher.Page) ([]entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, eris.Wrap(err, "source: parse html")
	}

	seen := make(map[string]bool)
	var out []entry
	doc.Find("article, .views-row, li, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a[href]").First()
		href, ok := link.Attr("href")
		title := collapse(link.Text())
		if !ok || len(title) < minHeadlineLen {
			return true
		}
		abs := resolve(page.URL, href)
		if abs == "" || seen[abs] {
			return true
		}
		seen[abs] = true

		var published *time.Time
		if dt, ok := s.Find("time[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				published = &t
			} else if t, err := time.Parse("2006-01-02", dt); err == nil {
				published = &t
			}
		}
		out = append(out, newEntry(title, collapse(s.Text()), abs, published))
		return len(out) < maxListingItems
	})
	return out, nil
}

func newEntry(title, summary, link string, published *time.Time) entry {
	if summary == "" {
		summary = title
	}
	return entry{
		title:     title,
		summary:   summary,
		url:       link,
		published: published,
		tokens:    textutil.TokenSet(title + " " + summary),
	}
}

// significantTerms are the query tokens longer than three runes.
func significantTerms(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range textutil.Tokens(text) {
		if len([]rune(t)) > 3 && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return u
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
