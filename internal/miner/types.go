// Package miner defines core types shared across subsystems.
package miner

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SourceKind tags how a source should be interpreted. The set is open;
// anything unrecognized is treated as generic.
type SourceKind string

// Known source kinds.
const (
	SourceKindGeneric SourceKind = "generic"
	SourceKindMuseum  SourceKind = "museum"
	SourceKindArchive SourceKind = "archive"
)

// CollectionSpec describes how to discover detail pages starting from a
// source's listing pages.
type CollectionSpec struct {
	ListURLs       []string `json:"list_urls,omitempty" mapstructure:"list_urls"`
	SearchTemplate string   `json:"search_template,omitempty" mapstructure:"search_template"`
	SearchTerms    []string `json:"search_terms,omitempty" mapstructure:"search_terms"`
	LinkSelector   string   `json:"link_selector" mapstructure:"link_selector"`
	LinkAttr       string   `json:"link_attr,omitempty" mapstructure:"link_attr"`
	MaxItems       int      `json:"max_items,omitempty" mapstructure:"max_items"`
}

// Default collection knobs applied when a spec omits them.
const (
	DefaultLinkAttr = "href"
	DefaultMaxItems = 8
)

// Attr returns the attribute holding the link target.
func (c CollectionSpec) Attr() string {
	if c.LinkAttr == "" {
		return DefaultLinkAttr
	}
	return c.LinkAttr
}

// Cap returns the maximum number of detail pages to hydrate.
func (c CollectionSpec) Cap() int {
	if c.MaxItems <= 0 {
		return DefaultMaxItems
	}
	return c.MaxItems
}

// Validate enforces the collection invariant: a selector plus at least one
// way to build listing URLs.
func (c CollectionSpec) Validate() error {
	if strings.TrimSpace(c.LinkSelector) == "" {
		return fmt.Errorf("collection.link_selector must be set")
	}
	if len(c.ListURLs) == 0 && (c.SearchTemplate == "" || len(c.SearchTerms) == 0) {
		return fmt.Errorf("collection requires list_urls or search_template with search_terms")
	}
	if c.SearchTemplate != "" && !strings.Contains(c.SearchTemplate, "{query}") {
		return fmt.Errorf("collection.search_template must contain a {query} placeholder")
	}
	return nil
}

// Source is a configured origin the pipeline may scrape. Immutable during a
// pass.
type Source struct {
	ID         string          `json:"id" mapstructure:"id"`
	Name       string          `json:"name" mapstructure:"name"`
	BaseURL    string          `json:"base_url" mapstructure:"base_url"`
	Kind       SourceKind      `json:"kind,omitempty" mapstructure:"kind"`
	Notes      string          `json:"notes,omitempty" mapstructure:"notes"`
	Priority   int             `json:"priority,omitempty" mapstructure:"priority"`
	Collection *CollectionSpec `json:"collection,omitempty" mapstructure:"collection"`
}

// Validate checks the fields required for a source to be processed.
func (s Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("source id must be set")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source %q: name must be set", s.ID)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source %q: base_url %q is not a valid absolute URL", s.ID, s.BaseURL)
	}
	if s.Collection != nil {
		if err := s.Collection.Validate(); err != nil {
			return fmt.Errorf("source %q: %w", s.ID, err)
		}
	}
	return nil
}

// LicenseVerdict is the output of the licensing heuristic. Never mutated
// after creation.
type LicenseVerdict struct {
	IsLikelyCC0 bool     `json:"is_likely_cc0"`
	Confidence  float64  `json:"confidence"`
	Evidence    []string `json:"evidence"`
}

// Assessment verdict values returned by the relevance gate.
const (
	VerdictAccept = "accept"
	VerdictReject = "reject"
)

// Assessment is the optional output of the relevance gate.
type Assessment struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	Reason     string   `json:"reason"`
}

// Rejected reports whether the assessment vetoes submission. A nil
// assessment never vetoes (fail-open).
func (a *Assessment) Rejected() bool {
	return a != nil && a.Verdict == VerdictReject
}

// Artifact is one extracted page's structured result.
type Artifact struct {
	SourceID   string            `json:"source_id"`
	SourceName string            `json:"source_name"`
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Summary    string            `json:"summary"`
	ImageURL   string            `json:"image_url,omitempty"`
	License    LicenseVerdict    `json:"license"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Snippet    string            `json:"snippet,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	Assessment *Assessment       `json:"assessment,omitempty"`
}

// AttachAssessment records the gate's decision on the artifact and mirrors
// it into the metadata map for downstream audit.
func (a *Artifact) AttachAssessment(as *Assessment) {
	if as == nil {
		return
	}
	a.Assessment = as
	if a.Metadata == nil {
		a.Metadata = map[string]string{}
	}
	a.Metadata["gate_verdict"] = as.Verdict
	a.Metadata["gate_confidence"] = fmt.Sprintf("%.2f", as.Confidence)
	if len(as.Tags) > 0 {
		a.Metadata["gate_tags"] = strings.Join(as.Tags, ",")
	}
	if as.Reason != "" {
		a.Metadata["gate_reason"] = as.Reason
	}
}
