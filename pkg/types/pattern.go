// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the shared data model for the extraction-pattern
// learning engine: scored extraction patterns, per-source and per-jurisdiction
// profiles, learning session records, and stage configuration.
package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// PatternType categorizes an extraction recipe.
type PatternType string

const (
	PatternCSSSelector   PatternType = "css_selector"
	PatternXPath         PatternType = "xpath"
	PatternURL           PatternType = "url_pattern"
	PatternDateFormat    PatternType = "date_format"
	PatternContentRegex  PatternType = "content_regex"
	PatternPageStructure PatternType = "page_structure"
)

// ConfidenceLevel is the categorical bucket for a pattern's confidence score.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high" // 0.9+
	ConfidenceHigh     ConfidenceLevel = "high"      // 0.7-0.9
	ConfidenceMedium   ConfidenceLevel = "medium"    // 0.5-0.7
	ConfidenceLow      ConfidenceLevel = "low"       // 0.3-0.5
	ConfidenceVeryLow  ConfidenceLevel = "very_low"  // <0.3
)

// ExtractionPattern is a reusable extraction recipe for one source together
// with its accumulated track record. A pattern with no attempts carries the
// uninformative prior of 0.5; once it has been tried, ConfidenceScore is the
// raw success ratio, except where an optimizer reinforcement bonus has been
// applied on top (clamped to [0,1]).
type ExtractionPattern struct {
	// PatternID is a stable identifier derived from type and value.
	PatternID string `json:"pattern_id" yaml:"pattern_id"`

	// PatternType categorizes the recipe: css_selector, xpath, url_pattern,
	// date_format, content_regex, or page_structure.
	PatternType PatternType `json:"pattern_type" yaml:"pattern_type"`

	// PatternValue is the recipe itself (e.g. a selector string).
	PatternValue string `json:"pattern_value" yaml:"pattern_value"`

	// Description is a human-readable summary of what the recipe finds.
	Description string `json:"description" yaml:"description"`

	// SuccessCount and FailureCount record every scored application.
	// Both only ever increase.
	SuccessCount int `json:"success_count" yaml:"success_count"`
	FailureCount int `json:"failure_count" yaml:"failure_count"`

	// ConfidenceScore is SuccessCount/(SuccessCount+FailureCount), plus any
	// optimizer reinforcement, clamped to [0,1].
	ConfidenceScore float64 `json:"confidence_score" yaml:"confidence_score"`

	// LastUsed and LastSuccessful are nil until the pattern has been
	// tried (respectively, has succeeded).
	LastUsed       *time.Time `json:"last_used" yaml:"last_used"`
	LastSuccessful *time.Time `json:"last_successful" yaml:"last_successful"`

	// AppliesTo lists source IDs or URLs the pattern was learned against.
	AppliesTo []string `json:"applies_to" yaml:"applies_to"`

	// CreatedDate is when the pattern was first learned.
	CreatedDate time.Time `json:"created_date" yaml:"created_date"`

	// AvgExtractionTime is the running mean time in seconds over successes.
	AvgExtractionTime float64 `json:"avg_extraction_time" yaml:"avg_extraction_time"`

	// AvgItemsFound is the running mean item count over successes.
	AvgItemsFound float64 `json:"avg_items_found" yaml:"avg_items_found"`
}

// PatternID derives the stable identifier for a recipe: the first 12 hex
// characters of SHA-256 over type and value. Structurally identical recipes
// learned for the same source therefore converge on one record.
func PatternID(ptype PatternType, value string) string {
	h := sha256.New()
	h.Write([]byte(ptype))
	h.Write([]byte{0})
	h.Write([]byte(value))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// NewPattern creates a pattern with the uninformative 0.5 prior and no
// recorded attempts.
func NewPattern(ptype PatternType, value, description string) *ExtractionPattern {
	return &ExtractionPattern{
		PatternID:       PatternID(ptype, value),
		PatternType:     ptype,
		PatternValue:    value,
		Description:     description,
		ConfidenceScore: 0.5,
		CreatedDate:     time.Now().UTC(),
	}
}

// UpdateSuccess records one successful application. ConfidenceScore is
// recomputed as the raw success ratio, and the item-count and timing running
// means are advanced using the post-increment success count. Negative inputs
// are coerced to zero.
func (p *ExtractionPattern) UpdateSuccess(itemsFound int, extractionTime float64) {
	if itemsFound < 0 {
		itemsFound = 0
	}
	if extractionTime < 0 {
		extractionTime = 0
	}

	p.SuccessCount++
	now := time.Now().UTC()
	p.LastUsed = &now
	p.LastSuccessful = &now

	p.ConfidenceScore = float64(p.SuccessCount) / float64(p.SuccessCount+p.FailureCount)

	n := float64(p.SuccessCount)
	p.AvgItemsFound = (p.AvgItemsFound*(n-1) + float64(itemsFound)) / n
	p.AvgExtractionTime = (p.AvgExtractionTime*(n-1) + extractionTime) / n
}

// UpdateFailure records one failed application. The error type is for
// observability only and does not change the numeric update.
func (p *ExtractionPattern) UpdateFailure(errorType string) {
	_ = errorType

	p.FailureCount++
	now := time.Now().UTC()
	p.LastUsed = &now

	p.ConfidenceScore = float64(p.SuccessCount) / float64(p.SuccessCount+p.FailureCount)
}

// Attempts returns the total number of scored applications.
func (p *ExtractionPattern) Attempts() int {
	return p.SuccessCount + p.FailureCount
}

// SuccessRate is the raw success ratio, independent of any reinforcement
// bonus. A pattern with no attempts returns the 0.5 prior.
func (p *ExtractionPattern) SuccessRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0.5
	}
	return float64(p.SuccessCount) / float64(total)
}

// Confidence maps ConfidenceScore to its categorical bucket. Total over [0,1].
func (p *ExtractionPattern) Confidence() ConfidenceLevel {
	switch {
	case p.ConfidenceScore >= 0.9:
		return ConfidenceVeryHigh
	case p.ConfidenceScore >= 0.7:
		return ConfidenceHigh
	case p.ConfidenceScore >= 0.5:
		return ConfidenceMedium
	case p.ConfidenceScore >= 0.3:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
