// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/regmon-engine/pkg/types"
)

// Snapshot is a point-in-time copy of the knowledge base used for export
// and reporting.
type Snapshot struct {
	Jurisdictions map[string]*types.JurisdictionProfile `json:"jurisdictions" yaml:"jurisdictions"`
	Sessions      []types.LearningSession               `json:"sessions" yaml:"sessions"`
}

// Stats summarizes the learned state across the whole knowledge base.
type Stats struct {
	TotalJurisdictions     int `json:"total_jurisdictions" yaml:"total_jurisdictions"`
	TotalSources           int `json:"total_sources" yaml:"total_sources"`
	TotalPatterns          int `json:"total_patterns" yaml:"total_patterns"`
	HighConfidencePatterns int `json:"high_confidence_patterns" yaml:"high_confidence_patterns"`
	TotalSessions          int `json:"total_sessions" yaml:"total_sessions"`
}

// Snapshot deep-copies the current state through a JSON round trip so the
// caller can read it without holding the lock.
func (kb *KnowledgeBase) Snapshot() (Snapshot, error) {
	kb.mu.Lock()
	raw, err := json.Marshal(Snapshot{Jurisdictions: kb.jurisdictions, Sessions: kb.sessions})
	kb.mu.Unlock()
	if err != nil {
		return Snapshot{}, fmt.Errorf("copying knowledge base: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("copying knowledge base: %w", err)
	}
	return snap, nil
}

// Stats computes the knowledge-base-wide totals. High confidence means a
// pattern score of 0.8 or above.
func (kb *KnowledgeBase) Stats() Stats {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	st := Stats{
		TotalJurisdictions: len(kb.jurisdictions),
		TotalSessions:      len(kb.sessions),
	}
	for _, jp := range kb.jurisdictions {
		st.TotalSources += len(jp.SourceProfiles)
		for _, sp := range jp.SourceProfiles {
			st.TotalPatterns += len(sp.ExtractionPatterns)
			for _, p := range sp.ExtractionPatterns {
				if p.ConfidenceScore >= 0.8 {
					st.HighConfidencePatterns++
				}
			}
		}
	}
	return st
}

// ExportYAML writes the full knowledge base to w as YAML.
func (kb *KnowledgeBase) ExportYAML(w io.Writer) error {
	snap, err := kb.Snapshot()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the full knowledge base to w as indented JSON.
func (kb *KnowledgeBase) ExportJSON(w io.Writer) error {
	snap, err := kb.Snapshot()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
