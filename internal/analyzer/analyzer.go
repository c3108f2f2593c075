// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyzer defines the content analyzer boundary: the external
// LLM-backed collaborator a check escalates to when no learned pattern is
// trusted or productive. The engine only depends on the Analyzer interface
// and the schema-validating decode step; the Claude backend is one
// implementation.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Request carries one page to the analyzer. Content is expected to be
// pre-bounded via SampleContent.
type Request struct {
	PageURL      string
	SourceID     string
	Jurisdiction string
	Content      string
}

// Item is one publication the analyzer discovered on the page.
type Item struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	PublishedDate  string  `json:"published_date,omitempty"`
	ContentSnippet string  `json:"content_snippet,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// CandidatePattern is a reusable recipe the analyzer proposes for future
// checks against the same page.
type CandidatePattern struct {
	Type        string  `json:"type"`
	Pattern     string  `json:"pattern"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// PageAnalysis carries structural hints about the page, mined into the
// jurisdiction profile on success.
type PageAnalysis struct {
	HasDailySection       bool     `json:"has_daily_section"`
	DateFormat            string   `json:"date_format,omitempty"`
	PublicationIndicators []string `json:"publication_indicators,omitempty"`
	PageStructure         string   `json:"page_structure,omitempty"`
}

// Analysis is the analyzer's structured answer for one page.
type Analysis struct {
	Items    []Item             `json:"publications_found"`
	Patterns []CandidatePattern `json:"extraction_patterns"`
	Page     PageAnalysis       `json:"page_analysis"`
}

// Analyzer analyzes one publication page. Implementations must honor the
// context deadline; a timed-out call surfaces as an error and the check is
// recorded as failed with no pattern score changes.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Analysis, error)
}

// ParseError means the analyzer's output was not usable JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("analyzer output is not JSON: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means the JSON parsed but violated the response contract.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string { return "analyzer response schema: " + e.Reason }

// ErrNoItems means the analyzer answered correctly but found nothing.
var ErrNoItems = fmt.Errorf("analyzer found no publications")

// SampleContent bounds page content before it is sent to the analyzer.
// max <= 0 applies the 12 KB default.
func SampleContent(content string, max int) string {
	if max <= 0 {
		max = 12 * 1024
	}
	if len(content) <= max {
		return content
	}
	return content[:max]
}

// Decode validates raw analyzer output into an Analysis. LLMs wrap answers
// in markdown fences and prose, so the JSON object is located before
// decoding. Distinct failures are typed per the engine's error taxonomy:
// *ParseError for non-JSON text, *SchemaError for JSON missing required
// keys or out-of-range values, ErrNoItems for an empty item list.
func Decode(raw string) (Analysis, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return Analysis{}, &ParseError{Err: fmt.Errorf("no JSON object found in response")}
	}

	var a Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return Analysis{}, &ParseError{Err: err}
	}

	if err := validate(&a); err != nil {
		return Analysis{}, err
	}
	if len(a.Items) == 0 {
		return Analysis{}, ErrNoItems
	}
	return a, nil
}

func validate(a *Analysis) error {
	for i, item := range a.Items {
		if item.Title == "" {
			return &SchemaError{Reason: fmt.Sprintf("item %d: missing title", i)}
		}
		if item.URL == "" {
			return &SchemaError{Reason: fmt.Sprintf("item %d: missing url", i)}
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return &SchemaError{Reason: fmt.Sprintf("item %d: confidence %v out of range [0,1]", i, item.Confidence)}
		}
	}
	for i, p := range a.Patterns {
		if p.Pattern == "" {
			return &SchemaError{Reason: fmt.Sprintf("pattern %d: missing pattern value", i)}
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return &SchemaError{Reason: fmt.Sprintf("pattern %d: confidence %v out of range [0,1]", i, p.Confidence)}
		}
	}
	return nil
}

// extractJSON strips markdown code fences and returns the outermost JSON
// object in s.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) >= 2 {
			s = strings.Join(lines[1:], "\n")
			if idx := strings.LastIndex(s, "```"); idx >= 0 {
				s = s[:idx]
			}
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ParseDate parses an analyzer-supplied publication date leniently. The
// analyzer emits whatever format the page used, so several layouts are
// tried; an unrecognized value returns nil rather than an error.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"02/01/2006",
		"January 2, 2006",
		"2 January 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
