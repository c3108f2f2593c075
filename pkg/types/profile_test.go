package types

import (
	"testing"
	"time"
)

func patternWithRecord(value string, successes, failures int) *ExtractionPattern {
	p := NewPattern(PatternCSSSelector, value, "")
	for i := 0; i < successes; i++ {
		p.UpdateSuccess(2, 0.1)
	}
	for i := 0; i < failures; i++ {
		p.UpdateFailure("no_publications_found")
	}
	return p
}

func TestBestPatternsFiltersAndOrders(t *testing.T) {
	sp := NewSourceProfile("boe_daily", "BOE", "https://boe.es/diario", "ES")
	sp.AddPattern(patternWithRecord(".a", 1, 1)) // 0.5
	sp.AddPattern(patternWithRecord(".b", 3, 1)) // 0.75
	sp.AddPattern(patternWithRecord(".c", 4, 0)) // 1.0
	sp.AddPattern(patternWithRecord(".d", 0, 2)) // 0.0
	sp.AddPattern(NewPattern(PatternXPath, "//a", ""))

	got := sp.BestPatterns(PatternCSSSelector, 0.6)
	if len(got) != 2 {
		t.Fatalf("qualifying patterns = %d, want 2", len(got))
	}
	if got[0].PatternValue != ".c" || got[1].PatternValue != ".b" {
		t.Errorf("order = %s, %s; want .c, .b", got[0].PatternValue, got[1].PatternValue)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ConfidenceScore > got[i-1].ConfidenceScore {
			t.Error("result not non-increasing in confidence")
		}
	}
	for _, p := range got {
		if p.ConfidenceScore < 0.6 {
			t.Errorf("pattern %s below min confidence: %v", p.PatternValue, p.ConfidenceScore)
		}
	}
}

func TestBestPatternsTieBreaks(t *testing.T) {
	sp := NewSourceProfile("s", "", "", "ES")
	a := patternWithRecord(".a", 2, 0) // confidence 1.0, 2 successes
	b := patternWithRecord(".b", 5, 0) // confidence 1.0, 5 successes
	sp.AddPattern(a)
	sp.AddPattern(b)

	got := sp.BestPatterns(PatternCSSSelector, 0.5)
	if got[0].PatternValue != ".b" {
		t.Errorf("tie should break on success count; got %s first", got[0].PatternValue)
	}

	// Equal counts: more recent last success wins.
	early := time.Now().UTC().Add(-time.Hour)
	late := time.Now().UTC()
	a.SuccessCount, b.SuccessCount = 3, 3
	a.LastSuccessful, b.LastSuccessful = &late, &early
	got = sp.BestPatterns(PatternCSSSelector, 0.5)
	if got[0].PatternValue != ".a" {
		t.Errorf("tie should break on recent success; got %s first", got[0].PatternValue)
	}
}

func TestBestPatternsEmptyResult(t *testing.T) {
	sp := NewSourceProfile("s", "", "", "ES")
	if got := sp.BestPatterns(PatternCSSSelector, 0.6); len(got) != 0 {
		t.Errorf("expected empty result, got %d patterns", len(got))
	}
}

func TestUpdateSuccessMetrics(t *testing.T) {
	sp := NewSourceProfile("s", "", "", "ES")
	sp.UpdateSuccessMetrics(10, 2.0)
	sp.UpdateSuccessMetrics(0, 4.0)
	if sp.LearningSessions != 2 {
		t.Errorf("learning sessions = %d, want 2", sp.LearningSessions)
	}
	if !almostEqual(sp.AvgItemsPerSession, 5.0) {
		t.Errorf("avg items per session = %v, want 5.0", sp.AvgItemsPerSession)
	}
	if !almostEqual(sp.AvgExtractionTime, 3.0) {
		t.Errorf("avg extraction time = %v, want 3.0", sp.AvgExtractionTime)
	}
}

func TestCommonPatternsMajorityVote(t *testing.T) {
	j := NewJurisdictionProfile("ES", "Spain")

	boe := NewSourceProfile("boe", "", "", "ES")
	boe.AddPattern(NewPattern(PatternCSSSelector, ".diario a", ""))
	boe.AddPattern(NewPattern(PatternCSSSelector, ".only-boe", ""))

	borme := NewSourceProfile("borme", "", "", "ES")
	borme.AddPattern(NewPattern(PatternCSSSelector, ".diario a", ""))

	j.AddSourceProfile(boe)
	j.AddSourceProfile(borme)

	common := j.CommonPatterns(PatternCSSSelector, 2)
	if len(common) != 1 || common[0] != ".diario a" {
		t.Errorf("common patterns = %v, want [.diario a]", common)
	}
}

func TestRecomputeAggregates(t *testing.T) {
	j := NewJurisdictionProfile("ES", "")
	a := NewSourceProfile("a", "", "", "ES")
	a.OverallSuccessRate = 0.8
	a.LearningSessions = 4
	b := NewSourceProfile("b", "", "", "ES")
	b.OverallSuccessRate = 0.4
	b.LearningSessions = 6
	j.AddSourceProfile(a)
	j.AddSourceProfile(b)

	j.RecomputeAggregates()
	if !almostEqual(j.AvgSuccessRate, 0.6) {
		t.Errorf("avg success rate = %v, want 0.6", j.AvgSuccessRate)
	}
	if j.TotalSources != 2 || j.TotalLearningSessions != 10 {
		t.Errorf("totals = %d sources, %d sessions; want 2, 10", j.TotalSources, j.TotalLearningSessions)
	}
}
