// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ExtractionMethod records how a monitoring check obtained its items.
type ExtractionMethod string

const (
	// MethodLearnedPatterns means a previously learned pattern produced
	// the items without invoking the analyzer.
	MethodLearnedPatterns ExtractionMethod = "learned_patterns"

	// MethodLLMAnalysis means the check escalated to the content analyzer.
	MethodLLMAnalysis ExtractionMethod = "llm_analysis"

	// MethodCategoryDrillDown means items were enumerated by following
	// category links from the main page.
	MethodCategoryDrillDown ExtractionMethod = "category_drill_down"

	// MethodFailed means the check produced nothing: no pattern qualified
	// and the analyzer also failed.
	MethodFailed ExtractionMethod = "failed"
)

// LearningSession is the immutable record of one extraction attempt. It is
// created once at the end of the attempt and never mutated afterwards.
// Sessions reference their source and jurisdiction by value so the record
// stays valid even if the profile is later deleted.
type LearningSession struct {
	SessionID    string    `json:"session_id" yaml:"session_id"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	SourceID     string    `json:"source_id" yaml:"source_id"`
	Jurisdiction string    `json:"jurisdiction" yaml:"jurisdiction"`

	// ExtractionMethod is how the attempt was made; PatternsUsed lists the
	// IDs of every pattern actually applied.
	ExtractionMethod ExtractionMethod `json:"extraction_method" yaml:"extraction_method"`
	PatternsUsed     []string         `json:"patterns_used" yaml:"patterns_used"`

	Success        bool    `json:"success" yaml:"success"`
	ItemsFound     int     `json:"items_found" yaml:"items_found"`
	ExtractionTime float64 `json:"extraction_time" yaml:"extraction_time"`
	ErrorMessage   string  `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	// Learning outcomes of the attempt, as pattern ID lists.
	NewPatternsDiscovered []string `json:"new_patterns_discovered" yaml:"new_patterns_discovered"`
	PatternsReinforced    []string `json:"patterns_reinforced" yaml:"patterns_reinforced"`
	PatternsWeakened      []string `json:"patterns_weakened" yaml:"patterns_weakened"`

	Notes []string `json:"notes" yaml:"notes"`
}

// PublicationItem is one item found on a daily publication page.
type PublicationItem struct {
	Title            string           `json:"title" yaml:"title"`
	URL              string           `json:"url" yaml:"url"`
	PublishedDate    *time.Time       `json:"published_date" yaml:"published_date"`
	ContentSnippet   string           `json:"content_snippet" yaml:"content_snippet"`
	ItemType         string           `json:"item_type" yaml:"item_type"`
	ConfidenceScore  float64          `json:"confidence_score" yaml:"confidence_score"`
	ExtractionMethod ExtractionMethod `json:"extraction_method" yaml:"extraction_method"`
	SourceID         string           `json:"source_id" yaml:"source_id"`
}
