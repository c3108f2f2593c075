// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package optimizer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/regmon-engine/internal/kb"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

func testSource() types.SourceConfig {
	return types.SourceConfig{
		SourceID:     "boe_daily",
		SourceName:   "BOE Daily",
		URL:          "https://boe.example/daily",
		Jurisdiction: "ES",
	}
}

func openKB(t *testing.T) *kb.KnowledgeBase {
	t.Helper()
	knowledge, err := kb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return knowledge
}

// seedSessions records n successful sessions, each using the given pattern
// IDs and finding the given number of items.
func seedSessions(knowledge *kb.KnowledgeBase, src types.SourceConfig, n, itemsFound int, extractionTime float64, patternIDs ...string) {
	for i := 0; i < n; i++ {
		knowledge.RecordSession(types.LearningSession{
			SessionID:        fmt.Sprintf("s-%d-%d", time.Now().UnixNano(), i),
			Timestamp:        time.Now().UTC(),
			SourceID:         src.SourceID,
			Jurisdiction:     src.Jurisdiction,
			ExtractionMethod: types.MethodLearnedPatterns,
			PatternsUsed:     patternIDs,
			Success:          true,
			ItemsFound:       itemsFound,
			ExtractionTime:   extractionTime,
		})
	}
}

func patternWithRecord(value string, successes, failures, itemsPerSuccess int) *types.ExtractionPattern {
	p := types.NewPattern(types.PatternCSSSelector, value, "")
	for i := 0; i < successes; i++ {
		p.UpdateSuccess(itemsPerSuccess, 1)
	}
	for i := 0; i < failures; i++ {
		p.UpdateFailure("no_publications_found")
	}
	return p
}

func TestOptimizeRefusesThinEvidence(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()
	seedSessions(knowledge, src, 4, 3, 2.0)

	_, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil)
	var thin *InsufficientEvidenceError
	if !errors.As(err, &thin) {
		t.Fatalf("expected InsufficientEvidenceError, got %v", err)
	}
	if thin.Have != 4 || thin.Need != 5 {
		t.Errorf("have/need = %d/%d, want 4/5", thin.Have, thin.Need)
	}
}

func TestOptimizeDeprecatesUnreliablePatterns(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()

	bad := patternWithRecord(".stale a", 1, 9, 1)
	good := patternWithRecord(".fresh a", 4, 6, 3)
	fewTries := patternWithRecord(".young a", 0, 3, 0)
	knowledge.UpdateSource(src, func(sp *types.SourceProfile) {
		sp.AddPattern(bad)
		sp.AddPattern(good)
		sp.AddPattern(fewTries)
	})
	seedSessions(knowledge, src, 6, 3, 2.0)

	res, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Deprecated) != 1 || res.Deprecated[0] != bad.PatternID {
		t.Fatalf("deprecated = %v, want exactly %s", res.Deprecated, bad.PatternID)
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		if _, ok := sp.ExtractionPatterns[bad.PatternID]; ok {
			t.Error("unreliable pattern still present after deprecation")
		}
		// 0.4 success rate is below no threshold that also requires usage.
		if _, ok := sp.ExtractionPatterns[good.PatternID]; !ok {
			t.Error("marginal-but-acceptable pattern was removed")
		}
		// Low success rate but too few attempts to judge.
		if _, ok := sp.ExtractionPatterns[fewTries.PatternID]; !ok {
			t.Error("lightly used pattern was removed")
		}
	})
}

func TestScore(t *testing.T) {
	cfg := types.DefaultOptimizerConfig()
	p := patternWithRecord(".list a", 8, 2, 5)

	// 0.8*0.6 + (10/100)*0.2 + (5/10)*0.2
	want := 0.48 + 0.02 + 0.1
	if got := Score(p, cfg); math.Abs(got-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got, want)
	}

	// A pattern with huge usage and yield saturates both secondary terms.
	heavy := patternWithRecord(".all a", 200, 0, 50)
	want = 1.0*0.6 + 0.2 + 0.2
	if got := Score(heavy, cfg); math.Abs(got-want) > 1e-9 {
		t.Fatalf("saturated score = %v, want %v", got, want)
	}
}

func TestOptimizeReinforcesRecentlyUsedPatterns(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()

	p := patternWithRecord(".daily a", 6, 0, 4)
	p.ConfidenceScore = 0.8
	p.AvgItemsFound = 4
	knowledge.UpdateSource(src, func(sp *types.SourceProfile) {
		sp.AddPattern(p)
	})
	seedSessions(knowledge, src, 6, 4, 2.0, p.PatternID)

	res, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Reinforced) != 1 || res.Reinforced[0] != p.PatternID {
		t.Fatalf("reinforced = %v, want %s", res.Reinforced, p.PatternID)
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		got := sp.ExtractionPatterns[p.PatternID]
		// bonus = min(0.1, 4*0.01) = 0.04
		if math.Abs(got.ConfidenceScore-0.84) > 1e-9 {
			t.Errorf("confidence = %v, want 0.84", got.ConfidenceScore)
		}
		if math.Abs(got.AvgItemsFound-4) > 1e-9 {
			t.Errorf("avg items = %v, want 4", got.AvgItemsFound)
		}
	})
}

func TestOptimizeReinforcementClampsAtOne(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()

	p := patternWithRecord(".daily a", 6, 0, 20)
	p.ConfidenceScore = 0.95
	knowledge.UpdateSource(src, func(sp *types.SourceProfile) {
		sp.AddPattern(p)
	})
	seedSessions(knowledge, src, 6, 20, 2.0, p.PatternID)

	if _, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil); err != nil {
		t.Fatal(err)
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		// bonus would be min(0.1, 20*0.01) = 0.1, but 0.95+0.1 clamps.
		if got := sp.ExtractionPatterns[p.PatternID].ConfidenceScore; got != 1.0 {
			t.Errorf("confidence = %v, want clamp at 1.0", got)
		}
	})
}

func TestOptimizeSynthesizesStructurePattern(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()
	seedSessions(knowledge, src, 5, 8, 3.0)

	res, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SynthesizedID == "" {
		t.Fatal("expected a synthesized pattern")
	}
	if !strings.HasPrefix(res.SynthesizedID, "optimized_") {
		t.Errorf("synthesized id = %q, want optimized_ prefix", res.SynthesizedID)
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		got, ok := sp.ExtractionPatterns[res.SynthesizedID]
		if !ok {
			t.Fatal("synthesized pattern not stored")
		}
		if got.PatternType != types.PatternPageStructure {
			t.Errorf("type = %s, want %s", got.PatternType, types.PatternPageStructure)
		}
		if got.PatternValue != "auto_optimized_structure" {
			t.Errorf("value = %q", got.PatternValue)
		}
		if got.ConfidenceScore != 0.7 {
			t.Errorf("confidence = %v, want 0.7", got.ConfidenceScore)
		}
		// Seeded from the 5 qualifying sessions, so a later pass scores it
		// on evidence rather than the untested prior.
		if got.SuccessCount != 5 {
			t.Errorf("success count = %d, want 5", got.SuccessCount)
		}
		if math.Abs(got.AvgItemsFound-8) > 1e-9 {
			t.Errorf("avg items = %v, want 8", got.AvgItemsFound)
		}
		if got.SuccessRate() != 1.0 {
			t.Errorf("success rate = %v, want 1.0", got.SuccessRate())
		}
	})
}

func TestOptimizeSynthesisSeedsOnlyQualifyingSessions(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()
	// Three productive-and-fast sessions qualify; the slow and the thin
	// ones do not, but still count toward the evidence floor.
	seedSessions(knowledge, src, 3, 10, 4.0)
	seedSessions(knowledge, src, 1, 10, 50.0)
	seedSessions(knowledge, src, 1, 2, 4.0)

	cfg := types.DefaultOptimizerConfig()
	cfg.SynthesizeWindow = 10
	res, err := Optimize(knowledge, src, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SynthesizedID == "" {
		t.Fatal("expected a synthesized pattern")
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		got := sp.ExtractionPatterns[res.SynthesizedID]
		if got.SuccessCount != 3 {
			t.Errorf("success count = %d, want 3", got.SuccessCount)
		}
		if math.Abs(got.AvgItemsFound-10) > 1e-9 {
			t.Errorf("avg items = %v, want 10", got.AvgItemsFound)
		}
	})
}

func TestOptimizeSkipsSynthesisWhenSlow(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()
	// Productive but all too slow to qualify.
	seedSessions(knowledge, src, 6, 8, 45.0)

	res, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SynthesizedID != "" {
		t.Errorf("synthesized %s from slow sessions", res.SynthesizedID)
	}
}

func TestOptimizeRecomputesProfileMetrics(t *testing.T) {
	knowledge := openKB(t)
	src := testSource()

	seedSessions(knowledge, src, 6, 4, 2.0)
	knowledge.RecordSession(types.LearningSession{
		SessionID:        "failed-1",
		Timestamp:        time.Now().UTC(),
		SourceID:         src.SourceID,
		Jurisdiction:     src.Jurisdiction,
		ExtractionMethod: types.MethodFailed,
		Success:          false,
		ItemsFound:       0,
		ExtractionTime:   9.0,
	})

	if _, err := Optimize(knowledge, src, types.OptimizerConfig{}, nil); err != nil {
		t.Fatal(err)
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		if sp.LearningSessions != 7 {
			t.Errorf("learning sessions = %d, want 7", sp.LearningSessions)
		}
		if math.Abs(sp.OverallSuccessRate-6.0/7.0) > 1e-9 {
			t.Errorf("success rate = %v, want 6/7", sp.OverallSuccessRate)
		}
		if math.Abs(sp.AvgItemsPerSession-24.0/7.0) > 1e-9 {
			t.Errorf("avg items = %v, want 24/7", sp.AvgItemsPerSession)
		}
		if math.Abs(sp.AvgExtractionTime-21.0/7.0) > 1e-9 {
			t.Errorf("avg time = %v, want 3", sp.AvgExtractionTime)
		}
	})
}
