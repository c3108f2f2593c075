// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kb owns the jurisdiction knowledge base: every learned profile,
// every pattern, and the append-only learning session log, persisted as JSON
// under a single storage root. The knowledge base is dependency-injected;
// callers construct one per process and pass it by reference.
package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/regmon-engine/pkg/types"
)

const (
	jurisdictionsFile = "jurisdiction_profiles.json"
	sessionsFile      = "learning_sessions.json"

	// defaultRetention bounds the session log kept on disk.
	defaultRetention = 90 * 24 * time.Hour
)

// KnowledgeBase is the process-wide registry of jurisdiction profiles and
// learning sessions. Every mutating operation is immediately followed by a
// full serialize-to-disk; the on-disk state never lags more than one
// operation behind memory. Access is guarded by a mutex so a parallelized
// monitor cannot corrupt the load/mutate/save cycle.
type KnowledgeBase struct {
	mu sync.Mutex

	dir       string
	retention time.Duration
	logger    *zap.Logger

	jurisdictions map[string]*types.JurisdictionProfile
	sessions      []types.LearningSession
}

// Option configures a KnowledgeBase at construction.
type Option func(*KnowledgeBase)

// WithLogger sets the logger used for persistence warnings and scoring
// updates. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(kb *KnowledgeBase) { kb.logger = l }
}

// WithRetention overrides the session retention horizon (default 90 days).
func WithRetention(d time.Duration) Option {
	return func(kb *KnowledgeBase) {
		if d > 0 {
			kb.retention = d
		}
	}
}

// Open loads the knowledge base rooted at dir, creating the directory if
// needed. Missing storage files yield an empty knowledge base, not an error.
func Open(dir string, opts ...Option) (*KnowledgeBase, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", dir, err)
	}

	kb := &KnowledgeBase{
		dir:           dir,
		retention:     defaultRetention,
		logger:        zap.NewNop(),
		jurisdictions: make(map[string]*types.JurisdictionProfile),
	}
	for _, opt := range opts {
		opt(kb)
	}

	if err := kb.load(); err != nil {
		return nil, err
	}
	return kb, nil
}

func (kb *KnowledgeBase) load() error {
	data, err := os.ReadFile(filepath.Join(kb.dir, jurisdictionsFile))
	switch {
	case os.IsNotExist(err):
		// First run: nothing learned yet.
	case err != nil:
		return fmt.Errorf("reading %s: %w", jurisdictionsFile, err)
	default:
		if err := json.Unmarshal(data, &kb.jurisdictions); err != nil {
			return fmt.Errorf("parsing %s: %w", jurisdictionsFile, err)
		}
	}

	data, err = os.ReadFile(filepath.Join(kb.dir, sessionsFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fmt.Errorf("reading %s: %w", sessionsFile, err)
	default:
		if err := json.Unmarshal(data, &kb.sessions); err != nil {
			return fmt.Errorf("parsing %s: %w", sessionsFile, err)
		}
	}

	return nil
}

// Save serializes the full knowledge base to disk, pruning sessions older
// than the retention horizon first.
func (kb *KnowledgeBase) Save() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.saveLocked()
}

func (kb *KnowledgeBase) saveLocked() error {
	kb.pruneSessionsLocked()

	data, err := json.MarshalIndent(kb.jurisdictions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling jurisdiction profiles: %w", err)
	}
	if err := os.WriteFile(filepath.Join(kb.dir, jurisdictionsFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", jurisdictionsFile, err)
	}

	sessions := kb.sessions
	if sessions == nil {
		sessions = []types.LearningSession{}
	}
	data, err = json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling learning sessions: %w", err)
	}
	if err := os.WriteFile(filepath.Join(kb.dir, sessionsFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", sessionsFile, err)
	}

	return nil
}

// persistLocked saves after a mutation. Persistence failures are logged and
// swallowed so the monitoring loop continues; the in-memory state is then
// ahead of disk, which is a known risk of the save-on-every-mutation design.
func (kb *KnowledgeBase) persistLocked() {
	if err := kb.saveLocked(); err != nil {
		kb.logger.Warn("knowledge base persistence failed; in-memory state is ahead of disk",
			zap.Error(err))
	}
}

func (kb *KnowledgeBase) pruneSessionsLocked() {
	if kb.retention <= 0 || len(kb.sessions) == 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-kb.retention)
	kept := kb.sessions[:0]
	for _, s := range kb.sessions {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	kb.sessions = kept
}

// GetOrCreateJurisdiction returns the profile for code, creating and
// persisting an empty one on first reference.
func (kb *KnowledgeBase) GetOrCreateJurisdiction(code, name string) *types.JurisdictionProfile {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.getOrCreateJurisdictionLocked(code, name)
}

func (kb *KnowledgeBase) getOrCreateJurisdictionLocked(code, name string) *types.JurisdictionProfile {
	if jp, ok := kb.jurisdictions[code]; ok {
		return jp
	}
	jp := types.NewJurisdictionProfile(code, name)
	kb.jurisdictions[code] = jp
	kb.persistLocked()
	return jp
}

// UpdateSource runs fn against the source profile for sourceID, lazily
// creating the jurisdiction and source on first reference, then refreshes
// the jurisdiction aggregates and persists. All pattern and metric mutations
// go through here so they hold the lock and hit disk atomically with the
// mutation.
func (kb *KnowledgeBase) UpdateSource(src types.SourceConfig, fn func(*types.SourceProfile)) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	jp := kb.getOrCreateJurisdictionLocked(src.Jurisdiction, "")
	sp, ok := jp.SourceProfiles[src.SourceID]
	if !ok {
		sp = types.NewSourceProfile(src.SourceID, src.SourceName, src.URL, src.Jurisdiction)
		jp.AddSourceProfile(sp)
	}

	if fn != nil {
		fn(sp)
	}

	jp.RecomputeAggregates()
	kb.persistLocked()
}

// UpdateJurisdiction runs fn against the jurisdiction profile and persists.
func (kb *KnowledgeBase) UpdateJurisdiction(code string, fn func(*types.JurisdictionProfile)) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	jp := kb.getOrCreateJurisdictionLocked(code, "")
	if fn != nil {
		fn(jp)
	}
	kb.persistLocked()
}

// ViewSource runs fn read-only against the source profile, if it exists.
// Callers must not retain references to the profile or its patterns past fn.
func (kb *KnowledgeBase) ViewSource(sourceID string, fn func(*types.SourceProfile)) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, jp := range kb.jurisdictions {
		if sp, ok := jp.SourceProfiles[sourceID]; ok {
			fn(sp)
			return true
		}
	}
	return false
}

// BestPatterns returns copies of the qualifying patterns for a source,
// ordered per SourceProfile.BestPatterns, capped at limit (0 = no cap).
// Copies keep scoring mutations inside UpdateSource.
func (kb *KnowledgeBase) BestPatterns(sourceID string, ptype types.PatternType, minConfidence float64, limit int) []types.ExtractionPattern {
	var out []types.ExtractionPattern
	kb.ViewSource(sourceID, func(sp *types.SourceProfile) {
		for _, p := range sp.BestPatterns(ptype, minConfidence) {
			out = append(out, *p)
			if limit > 0 && len(out) == limit {
				return
			}
		}
	})
	return out
}

// RecordSession appends one learning session to the log and persists.
// Exactly one session is recorded per extraction attempt.
func (kb *KnowledgeBase) RecordSession(s types.LearningSession) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.sessions = append(kb.sessions, s)
	kb.persistLocked()
}

// SessionsForSource returns the recorded sessions for sourceID in append
// order. When successOnly is set, failed sessions are filtered out.
func (kb *KnowledgeBase) SessionsForSource(sourceID string, successOnly bool) []types.LearningSession {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	var out []types.LearningSession
	for _, s := range kb.sessions {
		if s.SourceID != sourceID {
			continue
		}
		if successOnly && !s.Success {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SessionCount returns the total number of retained sessions.
func (kb *KnowledgeBase) SessionCount() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.sessions)
}

// RecommendedPatterns returns the best patterns for a source at the given
// confidence floor, looking the source up across jurisdictions. Sources with
// no qualifying patterns return an empty slice; jurisdiction-level transfer
// is intentionally not attempted here.
func (kb *KnowledgeBase) RecommendedPatterns(sourceID string, ptype types.PatternType, minConfidence float64) []types.ExtractionPattern {
	return kb.BestPatterns(sourceID, ptype, minConfidence, 0)
}

// Dir returns the storage root.
func (kb *KnowledgeBase) Dir() string {
	return kb.dir
}
