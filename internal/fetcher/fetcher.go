// Package fetcher downloads regulator pages and feeds with per-host rate
// limiting, bounded retries and charset decoding.
package fetcher

import (
	"context"
	"time"
)

// Page is a fetched document, decoded to UTF-8.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Fetcher defines the interface for downloading remote documents.
type Fetcher interface {
	// Fetch downloads url and returns its body decoded to UTF-8.
	Fetch(ctx context.Context, url string) (*Page, error)
}
