// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package optimizer runs periodic maintenance over one source's learned
// patterns: score, deprecate, reinforce from recent evidence, and
// synthesize a page-structure pattern when the extraction history looks
// consistently good.
package optimizer

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/regmon-engine/internal/kb"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

// InsufficientEvidenceError signals that a source has too few successful
// sessions for optimization to act on. Running the optimizer on thin
// evidence would mostly amplify noise.
type InsufficientEvidenceError struct {
	SourceID string
	Have     int
	Need     int
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("source %s has %d successful sessions, optimization needs %d", e.SourceID, e.Have, e.Need)
}

// Result reports what one optimization run did.
type Result struct {
	SourceID      string             `json:"source_id"`
	Scores        map[string]float64 `json:"scores"`
	Deprecated    []string           `json:"deprecated,omitempty"`
	Reinforced    []string           `json:"reinforced,omitempty"`
	SynthesizedID string             `json:"synthesized_id,omitempty"`
}

// Optimize runs one maintenance pass for src. The knowledge base persists
// any change before Optimize returns. A zero cfg gets the default tuning.
func Optimize(knowledge *kb.KnowledgeBase, src types.SourceConfig, cfg types.OptimizerConfig, logger *zap.Logger) (Result, error) {
	if cfg.MinSessions == 0 {
		cfg = types.DefaultOptimizerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	successful := knowledge.SessionsForSource(src.SourceID, true)
	if len(successful) < cfg.MinSessions {
		return Result{}, &InsufficientEvidenceError{
			SourceID: src.SourceID,
			Have:     len(successful),
			Need:     cfg.MinSessions,
		}
	}
	all := knowledge.SessionsForSource(src.SourceID, false)

	res := Result{SourceID: src.SourceID, Scores: make(map[string]float64)}

	knowledge.UpdateSource(src, func(sp *types.SourceProfile) {
		for id, p := range sp.ExtractionPatterns {
			res.Scores[id] = Score(p, cfg)
		}

		for id, p := range sp.ExtractionPatterns {
			if p.SuccessRate() < cfg.DeprecateSuccessRate && p.Attempts() > cfg.DeprecateMinUsage {
				sp.RemovePattern(id)
				res.Deprecated = append(res.Deprecated, id)
			}
		}
		sort.Strings(res.Deprecated)

		res.Reinforced = reinforce(sp, tail(successful, cfg.ReinforceWindow), cfg)

		if id := synthesize(sp, tail(successful, cfg.SynthesizeWindow), cfg); id != "" {
			res.SynthesizedID = id
		}

		recomputeMetrics(sp, all)
	})

	logger.Info("optimization pass complete",
		zap.String("source_id", src.SourceID),
		zap.Int("patterns_scored", len(res.Scores)),
		zap.Int("deprecated", len(res.Deprecated)),
		zap.Int("reinforced", len(res.Reinforced)),
		zap.Bool("synthesized", res.SynthesizedID != ""))

	return res, nil
}

// Score combines reliability, usage depth, and yield into one comparable
// figure in [0,1]. Usage and yield saturate at their norms so a heavily
// used pattern cannot outscore a more reliable one on volume alone.
func Score(p *types.ExtractionPattern, cfg types.OptimizerConfig) float64 {
	usage := float64(p.Attempts()) / cfg.UsageNorm
	if usage > 1 {
		usage = 1
	}
	items := p.AvgItemsFound / cfg.ItemsNorm
	if items > 1 {
		items = 1
	}
	return p.SuccessRate()*cfg.SuccessRateWeight + usage*cfg.UsageWeight + items*cfg.ItemsWeight
}

// reinforce rewards the patterns used by the recent successful sessions.
// The bonus scales with yield but is capped: a pattern is pulled toward
// 1.0 gradually, never jumped there. AvgItemsFound blends toward the
// recent observed average.
func reinforce(sp *types.SourceProfile, recent []types.LearningSession, cfg types.OptimizerConfig) []string {
	type tally struct {
		uses  int
		items int
	}
	tallies := make(map[string]*tally)
	for _, s := range recent {
		for _, id := range s.PatternsUsed {
			t := tallies[id]
			if t == nil {
				t = &tally{}
				tallies[id] = t
			}
			t.uses++
			t.items += s.ItemsFound
		}
	}

	var reinforced []string
	for id, t := range tallies {
		p, ok := sp.ExtractionPatterns[id]
		if !ok {
			continue
		}
		avgItems := float64(t.items) / float64(t.uses)
		bonus := avgItems * cfg.ReinforceBonusPerItem
		if bonus > cfg.ReinforceBonusCap {
			bonus = cfg.ReinforceBonusCap
		}
		p.ConfidenceScore += bonus
		if p.ConfidenceScore > 1.0 {
			p.ConfidenceScore = 1.0
		}
		p.AvgItemsFound = (p.AvgItemsFound + avgItems) / 2
		reinforced = append(reinforced, id)
	}
	sort.Strings(reinforced)
	return reinforced
}

// synthesize creates one page_structure pattern describing a consistently
// extractable page, when at least one recent session was both productive
// and fast. The qualifying sessions seed the pattern's success count and
// item average so later passes score it on real evidence rather than the
// untested prior. The ID carries a timestamp so repeated runs never
// overwrite an earlier synthesis.
func synthesize(sp *types.SourceProfile, recent []types.LearningSession, cfg types.OptimizerConfig) string {
	var qualified, items int
	for _, s := range recent {
		if s.ItemsFound >= cfg.SynthesizeMinItems && s.ExtractionTime < cfg.SynthesizeMaxTime {
			qualified++
			items += s.ItemsFound
		}
	}
	if qualified == 0 {
		return ""
	}

	now := time.Now().UTC()
	p := types.NewPattern(types.PatternPageStructure, "auto_optimized_structure",
		"synthesized from consistent recent extraction sessions")
	p.PatternID = "optimized_" + now.Format("20060102_150405")
	p.ConfidenceScore = cfg.SynthesizeConfidence
	p.SuccessCount = qualified
	p.AvgItemsFound = float64(items) / float64(qualified)
	p.AppliesTo = []string{sp.BaseURL}
	sp.AddPattern(p)
	return p.PatternID
}

// recomputeMetrics rebuilds the profile aggregates from the full retained
// session history, replacing whatever the incremental running means had
// drifted to.
func recomputeMetrics(sp *types.SourceProfile, sessions []types.LearningSession) {
	sp.LearningSessions = len(sessions)
	if len(sessions) == 0 {
		sp.OverallSuccessRate = 0.5
		sp.AvgItemsPerSession = 0
		sp.AvgExtractionTime = 0
		return
	}

	var successes int
	var items, elapsed float64
	for _, s := range sessions {
		if s.Success {
			successes++
		}
		items += float64(s.ItemsFound)
		elapsed += s.ExtractionTime
	}
	n := float64(len(sessions))
	sp.OverallSuccessRate = float64(successes) / n
	sp.AvgItemsPerSession = items / n
	sp.AvgExtractionTime = elapsed / n
}

// tail returns the last n elements of sessions, oldest first.
func tail(sessions []types.LearningSession, n int) []types.LearningSession {
	if n <= 0 || len(sessions) <= n {
		return sessions
	}
	return sessions[len(sessions)-n:]
}
