// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"time"
)

// SourceProfile holds everything learned about one monitored publication
// source. It exclusively owns its extraction patterns; patterns are never
// shared by reference across sources.
type SourceProfile struct {
	// SourceID identifies the monitored source.
	SourceID string `json:"source_id" yaml:"source_id"`

	// SourceName is the human-readable source name.
	SourceName string `json:"source_name" yaml:"source_name"`

	// BaseURL is the page the source is checked at.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Jurisdiction is the owning jurisdiction code (e.g. "ES", "DE").
	Jurisdiction string `json:"jurisdiction" yaml:"jurisdiction"`

	// ExtractionPatterns maps pattern ID to the learned pattern.
	ExtractionPatterns map[string]*ExtractionPattern `json:"extraction_patterns" yaml:"extraction_patterns"`

	// Hints mined from successful sessions.
	DailyPublicationPaths []string `json:"daily_publication_paths" yaml:"daily_publication_paths"`
	DateFormats           []string `json:"date_formats" yaml:"date_formats"`
	ContentIndicators     []string `json:"content_indicators" yaml:"content_indicators"`

	// TypicalUpdateTimes lists observed publication times (e.g. "08:00 CET").
	TypicalUpdateTimes []string   `json:"typical_update_times" yaml:"typical_update_times"`
	LastUpdateDetected *time.Time `json:"last_update_detected" yaml:"last_update_detected"`

	// Aggregate metrics, recomputed only from this source's sessions.
	OverallSuccessRate float64 `json:"overall_success_rate" yaml:"overall_success_rate"`
	AvgItemsPerSession float64 `json:"avg_items_per_session" yaml:"avg_items_per_session"`
	AvgExtractionTime  float64 `json:"avg_extraction_time" yaml:"avg_extraction_time"`

	FirstLearned time.Time `json:"first_learned" yaml:"first_learned"`
	LastUpdated  time.Time `json:"last_updated" yaml:"last_updated"`

	// LearningSessions counts recorded extraction attempts for this source.
	LearningSessions int `json:"learning_sessions" yaml:"learning_sessions"`
}

// NewSourceProfile creates an empty profile with the 0.5 prior success rate.
func NewSourceProfile(sourceID, sourceName, baseURL, jurisdiction string) *SourceProfile {
	now := time.Now().UTC()
	return &SourceProfile{
		SourceID:           sourceID,
		SourceName:         sourceName,
		BaseURL:            baseURL,
		Jurisdiction:       jurisdiction,
		ExtractionPatterns: make(map[string]*ExtractionPattern),
		OverallSuccessRate: 0.5,
		FirstLearned:       now,
		LastUpdated:        now,
	}
}

// AddPattern inserts or overwrites a pattern by ID.
func (s *SourceProfile) AddPattern(p *ExtractionPattern) {
	if s.ExtractionPatterns == nil {
		s.ExtractionPatterns = make(map[string]*ExtractionPattern)
	}
	s.ExtractionPatterns[p.PatternID] = p
	s.LastUpdated = time.Now().UTC()
}

// RemovePattern deletes a pattern by ID. Removal discards the pattern's
// accumulated record; a structurally identical recipe learned later starts
// over as a fresh pattern.
func (s *SourceProfile) RemovePattern(patternID string) {
	delete(s.ExtractionPatterns, patternID)
	s.LastUpdated = time.Now().UTC()
}

// BestPatterns returns the owned patterns of the given type with confidence
// at or above minConfidence, ordered by confidence descending. Ties break on
// higher success count, then on more recent last success. Returns an empty
// slice when nothing qualifies.
func (s *SourceProfile) BestPatterns(ptype PatternType, minConfidence float64) []*ExtractionPattern {
	var matched []*ExtractionPattern
	for _, p := range s.ExtractionPatterns {
		if p.PatternType == ptype && p.ConfidenceScore >= minConfidence {
			matched = append(matched, p)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if a.SuccessCount != b.SuccessCount {
			return a.SuccessCount > b.SuccessCount
		}
		return laterTime(a.LastSuccessful, b.LastSuccessful)
	})

	return matched
}

// laterTime orders nullable timestamps: a non-nil, more recent time wins.
func laterTime(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// UpdateSuccessMetrics advances the per-source running means after one
// recorded attempt. LearningSessions increments exactly once per attempt.
func (s *SourceProfile) UpdateSuccessMetrics(itemsFound int, extractionTime float64) {
	if itemsFound < 0 {
		itemsFound = 0
	}
	if extractionTime < 0 {
		extractionTime = 0
	}

	s.LearningSessions++
	n := float64(s.LearningSessions)
	s.AvgItemsPerSession = (s.AvgItemsPerSession*(n-1) + float64(itemsFound)) / n
	s.AvgExtractionTime = (s.AvgExtractionTime*(n-1) + extractionTime) / n
	s.LastUpdated = time.Now().UTC()
}

// JurisdictionProfile groups the source profiles sharing one legal or
// administrative jurisdiction. It exclusively owns its sources.
type JurisdictionProfile struct {
	// JurisdictionName is the human-readable name; JurisdictionCode is the
	// short code used as the registry key ("ES", "DE", "US").
	JurisdictionName string `json:"jurisdiction_name" yaml:"jurisdiction_name"`
	JurisdictionCode string `json:"jurisdiction_code" yaml:"jurisdiction_code"`

	// SourceProfiles maps source ID to profile.
	SourceProfiles map[string]*SourceProfile `json:"source_profiles" yaml:"source_profiles"`

	// Hints shared across sources in the jurisdiction, mined from
	// successful analyzer runs.
	CommonDateFormats     []string `json:"common_date_formats" yaml:"common_date_formats"`
	CommonContentPatterns []string `json:"common_content_patterns" yaml:"common_content_patterns"`

	// Aggregates over member sources.
	TotalSources          int     `json:"total_sources" yaml:"total_sources"`
	AvgSuccessRate        float64 `json:"avg_success_rate" yaml:"avg_success_rate"`
	TotalLearningSessions int     `json:"total_learning_sessions" yaml:"total_learning_sessions"`

	FirstDiscovered time.Time `json:"first_discovered" yaml:"first_discovered"`
	LastUpdated     time.Time `json:"last_updated" yaml:"last_updated"`
}

// NewJurisdictionProfile creates an empty jurisdiction profile.
func NewJurisdictionProfile(code, name string) *JurisdictionProfile {
	if name == "" {
		name = code
	}
	now := time.Now().UTC()
	return &JurisdictionProfile{
		JurisdictionName: name,
		JurisdictionCode: code,
		SourceProfiles:   make(map[string]*SourceProfile),
		AvgSuccessRate:   0.5,
		FirstDiscovered:  now,
		LastUpdated:      now,
	}
}

// AddSourceProfile registers a source profile under this jurisdiction.
func (j *JurisdictionProfile) AddSourceProfile(sp *SourceProfile) {
	if j.SourceProfiles == nil {
		j.SourceProfiles = make(map[string]*SourceProfile)
	}
	j.SourceProfiles[sp.SourceID] = sp
	j.TotalSources = len(j.SourceProfiles)
	j.LastUpdated = time.Now().UTC()
}

// CommonPatterns returns pattern values of the given type that appear in at
// least minSources member sources. This is the cross-source mining surface:
// a recipe that works on two BOE pages probably works on a third.
func (j *JurisdictionProfile) CommonPatterns(ptype PatternType, minSources int) []string {
	if minSources < 1 {
		minSources = 2
	}

	counts := make(map[string]int)
	for _, sp := range j.SourceProfiles {
		seen := make(map[string]bool)
		for _, p := range sp.ExtractionPatterns {
			if p.PatternType == ptype && !seen[p.PatternValue] {
				seen[p.PatternValue] = true
				counts[p.PatternValue]++
			}
		}
	}

	var common []string
	for value, count := range counts {
		if count >= minSources {
			common = append(common, value)
		}
	}
	sort.Strings(common)
	return common
}

// RecomputeAggregates refreshes the jurisdiction-wide metrics from the
// current member sources.
func (j *JurisdictionProfile) RecomputeAggregates() {
	j.TotalSources = len(j.SourceProfiles)
	j.TotalLearningSessions = 0

	if j.TotalSources == 0 {
		j.AvgSuccessRate = 0.5
		return
	}

	var sum float64
	for _, sp := range j.SourceProfiles {
		sum += sp.OverallSuccessRate
		j.TotalLearningSessions += sp.LearningSessions
	}
	j.AvgSuccessRate = sum / float64(j.TotalSources)
}
