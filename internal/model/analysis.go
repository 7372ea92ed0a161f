package model

import (
	"strings"
	"time"
)

// AnalysisType controls query breadth and result caps.
type AnalysisType string

const (
	AnalysisComprehensive AnalysisType = "comprehensive"
	AnalysisTargeted      AnalysisType = "targeted"
	AnalysisMonitoring    AnalysisType = "monitoring"
)

// ParseAnalysisType maps a free-form value onto a known analysis type.
// Unknown or empty values become comprehensive.
func ParseAnalysisType(s string) AnalysisType {
	switch AnalysisType(strings.ToLower(strings.TrimSpace(s))) {
	case AnalysisTargeted:
		return AnalysisTargeted
	case AnalysisMonitoring:
		return AnalysisMonitoring
	default:
		return AnalysisComprehensive
	}
}

// Valid reports whether t is one of the known analysis types.
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisComprehensive, AnalysisTargeted, AnalysisMonitoring:
		return true
	}
	return false
}

// QueryType tags the generation rule family that produced a query.
type QueryType string

const (
	QueryKeyword       QueryType = "keyword"
	QueryIndustry      QueryType = "industry"
	QueryJurisdiction  QueryType = "jurisdiction"
	QueryComprehensive QueryType = "comprehensive"
	QueryTargeted      QueryType = "targeted"
	QueryMonitoring    QueryType = "monitoring"
	QueryWebSearch     QueryType = "web_search"
)

// Tier is the coarse execution bucket of a query. Lower values run first.
type Tier int

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// Query is a single search request produced by query generation.
type Query struct {
	Text       string    `json:"text"`
	Type       QueryType `json:"type"`
	Tier       Tier      `json:"tier"`
	Priority   int       `json:"priority"` // 1..5, higher first within a tier
	Provenance string    `json:"provenance"`
}

// SourceType classifies where an acquired item came from.
type SourceType string

const (
	SourceGovernment     SourceType = "government"
	SourceRegulatoryBody SourceType = "regulatory_body"
	SourceNews           SourceType = "news"
	SourceIndustry       SourceType = "industry"
	SourceLegal          SourceType = "legal"
	SourceOther          SourceType = "other"
)

// RawItem is a document returned by a data source.
type RawItem struct {
	Source        string     `json:"source"`
	SourceType    SourceType `json:"source_type"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	URL           string     `json:"url"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	RelevanceHint float64    `json:"relevance_hint"`
	Query         string     `json:"query,omitempty"`
}

// ScoredItem is a RawItem that passed filtering, with its scores in [0,1].
type ScoredItem struct {
	RawItem
	Relevance  float64 `json:"relevance"`
	Importance float64 `json:"importance"`
	Recency    float64 `json:"recency"`
	Combined   float64 `json:"combined"`
}

// AnalysisRequest identifies a pipeline run for an existing report.
type AnalysisRequest struct {
	ReportID     string       `json:"report_id"`
	ProfileID    string       `json:"company_profile_id"`
	AnalysisType AnalysisType `json:"analysis_type"`
	Scope        string       `json:"scope,omitempty"`
	Keywords     []string     `json:"keywords,omitempty"`
}

// RequestFor builds the run request for a stored report.
func RequestFor(r *Report) AnalysisRequest {
	return AnalysisRequest{
		ReportID:     r.ID,
		ProfileID:    r.CompanyProfileID,
		AnalysisType: r.AnalysisType,
		Scope:        r.Scope,
		Keywords:     r.Keywords,
	}
}
