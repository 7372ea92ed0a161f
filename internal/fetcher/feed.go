package fetcher

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
)

// FeedItem is one entry of an RSS or Atom feed.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	Published   *time.Time
}

// ParseFeed reads the items of an RSS or Atom document. Atom entries
// without a summary fall back to their content.
func ParseFeed(ctx context.Context, body []byte) ([]FeedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "feed: context cancelled")
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse")
	}

	out := make([]FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		item := FeedItem{
			Title:       strings.TrimSpace(it.Title),
			Link:        strings.TrimSpace(it.Link),
			Description: firstNonEmpty(it.Description, it.Content),
		}
		if item.Link == "" && len(it.Links) > 0 {
			item.Link = strings.TrimSpace(it.Links[0])
		}
		switch {
		case it.PublishedParsed != nil:
			t := it.PublishedParsed.UTC()
			item.Published = &t
		case it.UpdatedParsed != nil:
			t := it.UpdatedParsed.UTC()
			item.Published = &t
		}
		out = append(out, item)
	}
	return out, nil
}

// IsFeed reports whether a page is an XML feed rather than HTML.
func IsFeed(p *Page) bool {
	ct := strings.ToLower(p.ContentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "xml") {
		return true
	}
	return gofeed.DetectFeedType(bytes.NewReader(p.Body)) != gofeed.FeedTypeUnknown
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
