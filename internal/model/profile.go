package model

import (
	"strings"
	"time"
)

// CompanySize is the coarse size class of a company.
type CompanySize string

const (
	CompanySizeSmall  CompanySize = "small"
	CompanySizeMedium CompanySize = "medium"
	CompanySizeLarge  CompanySize = "large"
)

// CompanyProfile is the company context an analysis runs against. It is
// read-only inside the pipeline.
type CompanyProfile struct {
	ID             string      `json:"id" yaml:"id"`
	UserID         string      `json:"user_id,omitempty" yaml:"user_id"`
	CompanyName    string      `json:"company_name" yaml:"company_name"`
	Industry       string      `json:"industry,omitempty" yaml:"industry"`
	Jurisdiction   string      `json:"jurisdiction,omitempty" yaml:"jurisdiction"`
	CompanySize    CompanySize `json:"company_size,omitempty" yaml:"company_size"`
	Description    string      `json:"description,omitempty" yaml:"description"`
	Keywords       []string    `json:"keywords,omitempty" yaml:"keywords"`
	TrustedSources []string    `json:"trusted_sources,omitempty" yaml:"trusted_sources"`
	CreatedAt      time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time   `json:"updated_at" yaml:"-"`
}

// NormalizedProfile is a CompanyProfile with every optional field resolved
// to an explicit value. Industry and Jurisdiction are lower-cased; the
// original casing of the company name is kept for display.
type NormalizedProfile struct {
	CompanyName    string
	Industry       string
	Jurisdiction   string
	CompanySize    CompanySize
	Description    string
	Keywords       []string
	TrustedSources []string
}

// Normalized resolves the optional fields of the profile once. Blank
// keywords and trusted sources are dropped and the remaining values trimmed.
// An unknown size class defaults to medium.
func (p CompanyProfile) Normalized() NormalizedProfile {
	n := NormalizedProfile{
		CompanyName:  strings.TrimSpace(p.CompanyName),
		Industry:     strings.ToLower(strings.TrimSpace(p.Industry)),
		Jurisdiction: strings.ToLower(strings.TrimSpace(p.Jurisdiction)),
		Description:  strings.TrimSpace(p.Description),
		CompanySize:  p.CompanySize,
	}
	switch n.CompanySize {
	case CompanySizeSmall, CompanySizeMedium, CompanySizeLarge:
	default:
		n.CompanySize = CompanySizeMedium
	}
	n.Keywords = compact(p.Keywords, false)
	n.TrustedSources = compact(p.TrustedSources, true)
	return n
}

// Validate reports whether the profile carries the required fields.
func (p CompanyProfile) Validate() error {
	if strings.TrimSpace(p.CompanyName) == "" {
		return ErrMissingCompanyName
	}
	return nil
}

func compact(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if lower {
			s = strings.ToLower(s)
		}
		out = append(out, s)
	}
	return out
}
