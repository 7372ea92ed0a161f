// Package fedreg is a client for the Federal Register documents API.
package fedreg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.federalregister.gov/api/v1"

// Document types accepted by the type filter.
const (
	TypeRule         = "RULE"
	TypeProposedRule = "PRORULE"
	TypeNotice       = "NOTICE"
)

// Client searches Federal Register documents.
type Client interface {
	Search(ctx context.Context, q SearchQuery) (*SearchResponse, error)
}

// SearchQuery filters a document search.
type SearchQuery struct {
	Term    string
	Types   []string
	Since   time.Time
	PerPage int
}

// SearchResponse is a page of matching documents.
type SearchResponse struct {
	Count   int        `json:"count"`
	Results []Document `json:"results"`
}

// Document is a single published rule, proposed rule or notice.
type Document struct {
	DocumentNumber  string   `json:"document_number"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	Type            string   `json:"type"`
	HTMLURL         string   `json:"html_url"`
	PublicationDate string   `json:"publication_date"`
	Agencies        []Agency `json:"agencies"`
}

// Agency is the issuing agency of a document.
type Agency struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Published parses the publication date.
func (d Document) Published() *time.Time {
	t, err := time.Parse("2006-01-02", d.PublicationDate)
	if err != nil {
		return nil
	}
	return &t
}

// AgencyNames returns the issuing agency names.
func (d Document) AgencyNames() []string {
	out := make([]string, 0, len(d.Agencies))
	for _, a := range d.Agencies {
		if a.Name != "" {
			out = append(out, a.Name)
		}
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Federal Register client. The API needs no key.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var documentFields = []string{
	"document_number", "title", "abstract", "type", "html_url", "publication_date", "agencies",
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	v.Set("conditions[term]", q.Term)
	v.Set("order", "newest")
	perPage := q.PerPage
	if perPage <= 0 || perPage > 1000 {
		perPage = 20
	}
	v.Set("per_page", strconv.Itoa(perPage))
	for _, t := range q.Types {
		v.Add("conditions[type][]", t)
	}
	if !q.Since.IsZero() {
		v.Set("conditions[publication_date][gte]", q.Since.Format("2006-01-02"))
	}
	for _, f := range documentFields {
		v.Add("fields[]", f)
	}
	return v
}

func (c *httpClient) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	if q.Term == "" {
		return nil, eris.New("fedreg: search term is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/documents.json?"+q.values().Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "fedreg: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fedreg: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "fedreg: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "fedreg: unmarshal response")
	}
	return &out, nil
}

// StatusError is a non-200 API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "fedreg: unexpected status " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}
