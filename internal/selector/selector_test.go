// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package selector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pdiddy/regmon-engine/internal/analyzer"
	"github.com/pdiddy/regmon-engine/internal/kb"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

type scriptedApplier struct {
	// results maps pattern value to the items to return; missing entries
	// return an error.
	results map[string][]types.PublicationItem
	calls   []string
}

func (a *scriptedApplier) Apply(_ context.Context, p types.ExtractionPattern, _, _ string) ([]types.PublicationItem, error) {
	a.calls = append(a.calls, p.PatternValue)
	items, ok := a.results[p.PatternValue]
	if !ok {
		return nil, errors.New("selector not supported")
	}
	return items, nil
}

type scriptedAnalyzer struct {
	responses []analyzer.Analysis
	errs      []error
	calls     int
}

func (a *scriptedAnalyzer) Analyze(_ context.Context, _ analyzer.Request) (analyzer.Analysis, error) {
	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return analyzer.Analysis{}, a.errs[i]
	}
	if i < len(a.responses) {
		return a.responses[i], nil
	}
	return analyzer.Analysis{}, errors.New("unscripted analyzer call")
}

func testSource() types.SourceConfig {
	return types.SourceConfig{
		SourceID:     "agency_x",
		SourceName:   "Agency X",
		URL:          "https://agency-x.example/news",
		Jurisdiction: "EU",
	}
}

func nItems(n int) []types.PublicationItem {
	items := make([]types.PublicationItem, n)
	for i := range items {
		items[i] = types.PublicationItem{Title: "item", URL: "https://agency-x.example/a"}
	}
	return items
}

func analyzerItems(n int) []analyzer.Item {
	items := make([]analyzer.Item, n)
	for i := range items {
		items[i] = analyzer.Item{Title: "Notice", URL: "https://agency-x.example/notice", Confidence: 0.9}
	}
	return items
}

func onlyPattern(t *testing.T, knowledge *kb.KnowledgeBase, sourceID string) types.ExtractionPattern {
	t.Helper()
	var got types.ExtractionPattern
	var count int
	knowledge.ViewSource(sourceID, func(sp *types.SourceProfile) {
		count = len(sp.ExtractionPatterns)
		for _, p := range sp.ExtractionPatterns {
			got = *p
		}
	})
	if count != 1 {
		t.Fatalf("expected exactly 1 pattern, got %d", count)
	}
	return got
}

// TestCheckLifecycle walks one source through the full learning loop:
// escalate on first contact, reuse the learned pattern, penalize it when
// the site changes, and escalate again in the same invocation.
func TestCheckLifecycle(t *testing.T) {
	knowledge, err := kb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := testSource()

	app := &scriptedApplier{results: map[string][]types.PublicationItem{}}
	an := &scriptedAnalyzer{
		responses: []analyzer.Analysis{
			{
				Items: analyzerItems(4),
				Patterns: []analyzer.CandidatePattern{
					{Type: "css_selector", Pattern: ".news-item a", Description: "news list links", Confidence: 0.8},
				},
				Page: analyzer.PageAnalysis{DateFormat: "DD/MM/YYYY", PublicationIndicators: []string{"news-item"}},
			},
			{Items: analyzerItems(3)},
		},
	}
	sel := New(knowledge, app, an, types.SelectorConfig{}, nil)

	// First check: empty knowledge base, must escalate and learn.
	res, err := sel.Check(context.Background(), src, "<html>page one</html>")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if res.Method != types.MethodLLMAnalysis {
		t.Fatalf("first check method = %s, want %s", res.Method, types.MethodLLMAnalysis)
	}
	if len(res.Items) != 4 {
		t.Fatalf("first check items = %d, want 4", len(res.Items))
	}
	if len(res.NewPatterns) != 1 {
		t.Fatalf("first check new patterns = %d, want 1", len(res.NewPatterns))
	}
	p := onlyPattern(t, knowledge, src.SourceID)
	if p.SuccessCount != 1 || p.FailureCount != 0 {
		t.Fatalf("after learn: success=%d failure=%d, want 1/0", p.SuccessCount, p.FailureCount)
	}
	if p.ConfidenceScore != 1.0 {
		t.Fatalf("after learn: confidence = %v, want 1.0", p.ConfidenceScore)
	}
	if p.AvgItemsFound != 4 {
		t.Fatalf("after learn: avg items = %v, want 4", p.AvgItemsFound)
	}

	// Second check: the learned pattern now clears the confidence floor
	// and the applier succeeds, so no escalation happens.
	app.results[".news-item a"] = nItems(4)
	res, err = sel.Check(context.Background(), src, "<html>page two</html>")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if res.Method != types.MethodLearnedPatterns {
		t.Fatalf("second check method = %s, want %s", res.Method, types.MethodLearnedPatterns)
	}
	if an.calls != 1 {
		t.Fatalf("second check escalated; analyzer calls = %d", an.calls)
	}
	p = onlyPattern(t, knowledge, src.SourceID)
	if p.SuccessCount != 2 || p.ConfidenceScore != 1.0 {
		t.Fatalf("after reuse: success=%d confidence=%v, want 2 and 1.0", p.SuccessCount, p.ConfidenceScore)
	}
	if p.AvgItemsFound != 4 {
		t.Fatalf("after reuse: avg items = %v, want 4", p.AvgItemsFound)
	}

	// Third check: the site changed, the pattern yields nothing. It must
	// be weakened and the check must still succeed via escalation.
	app.results[".news-item a"] = nil
	res, err = sel.Check(context.Background(), src, "<html>page three</html>")
	if err != nil {
		t.Fatalf("third check: %v", err)
	}
	if res.Method != types.MethodLLMAnalysis {
		t.Fatalf("third check method = %s, want %s", res.Method, types.MethodLLMAnalysis)
	}
	if len(res.Items) != 3 {
		t.Fatalf("third check items = %d, want 3", len(res.Items))
	}
	p = onlyPattern(t, knowledge, src.SourceID)
	if p.SuccessCount != 2 || p.FailureCount != 1 {
		t.Fatalf("after miss: success=%d failure=%d, want 2/1", p.SuccessCount, p.FailureCount)
	}
	if math.Abs(p.ConfidenceScore-2.0/3.0) > 1e-9 {
		t.Fatalf("after miss: confidence = %v, want 2/3", p.ConfidenceScore)
	}
	if an.calls != 2 {
		t.Fatalf("analyzer calls = %d, want 2", an.calls)
	}

	sessions := knowledge.SessionsForSource(src.SourceID, false)
	if len(sessions) != 3 {
		t.Fatalf("sessions recorded = %d, want 3", len(sessions))
	}
	wantMethods := []types.ExtractionMethod{
		types.MethodLLMAnalysis, types.MethodLearnedPatterns, types.MethodLLMAnalysis,
	}
	for i, s := range sessions {
		if s.ExtractionMethod != wantMethods[i] {
			t.Errorf("session %d method = %s, want %s", i, s.ExtractionMethod, wantMethods[i])
		}
		if s.SessionID == "" {
			t.Errorf("session %d has empty id", i)
		}
	}
}

func TestCheckPatternErrorWeakensOnly(t *testing.T) {
	knowledge, err := kb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := testSource()

	// Two trusted patterns: one whose recipe errors, one that works. The
	// broken one has the deeper record, so it is tried first.
	knowledge.UpdateSource(src, func(sp *types.SourceProfile) {
		bad := types.NewPattern(types.PatternCSSSelector, "div..broken", "")
		bad.UpdateSuccess(2, 1)
		bad.UpdateSuccess(2, 1)
		good := types.NewPattern(types.PatternCSSSelector, ".ok a", "")
		good.UpdateSuccess(2, 1)
		sp.AddPattern(bad)
		sp.AddPattern(good)
	})

	app := &scriptedApplier{results: map[string][]types.PublicationItem{
		".ok a": nItems(2),
	}}
	an := &scriptedAnalyzer{}
	sel := New(knowledge, app, an, types.SelectorConfig{}, nil)

	res, err := sel.Check(context.Background(), src, "<html></html>")
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != types.MethodLearnedPatterns {
		t.Fatalf("method = %s, want %s", res.Method, types.MethodLearnedPatterns)
	}
	if an.calls != 0 {
		t.Fatalf("escalated despite a working pattern; analyzer calls = %d", an.calls)
	}

	badID := types.PatternID(types.PatternCSSSelector, "div..broken")
	goodID := types.PatternID(types.PatternCSSSelector, ".ok a")
	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		if got := sp.ExtractionPatterns[badID]; got.FailureCount != 1 || got.SuccessCount != 2 {
			t.Errorf("broken pattern record = %d/%d, want 2 successes and 1 failure",
				got.SuccessCount, got.FailureCount)
		}
		if got := sp.ExtractionPatterns[goodID]; got.SuccessCount != 2 {
			t.Errorf("working pattern successes = %d, want 2", got.SuccessCount)
		}
	})

	// The session must not list the errored recipe as used, or a later
	// optimization pass would reinforce it off this very check.
	sessions := knowledge.SessionsForSource(src.SourceID, false)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if got := sessions[0].PatternsUsed; len(got) != 1 || got[0] != goodID {
		t.Errorf("patterns used = %v, want only %s", got, goodID)
	}
	if got := sessions[0].PatternsWeakened; len(got) != 1 || got[0] != badID {
		t.Errorf("patterns weakened = %v, want only %s", got, badID)
	}
}

func TestCheckAnalyzerFailure(t *testing.T) {
	knowledge, err := kb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := testSource()

	app := &scriptedApplier{}
	an := &scriptedAnalyzer{errs: []error{errors.New("api unreachable")}}
	sel := New(knowledge, app, an, types.SelectorConfig{}, nil)

	res, err := sel.Check(context.Background(), src, "<html></html>")
	if err == nil {
		t.Fatal("expected error when analyzer fails on an unlearned source")
	}
	if res.Method != types.MethodFailed {
		t.Fatalf("method = %s, want %s", res.Method, types.MethodFailed)
	}

	sessions := knowledge.SessionsForSource(src.SourceID, false)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if sessions[0].Success {
		t.Error("failed check recorded as success")
	}
	if sessions[0].ErrorMessage == "" {
		t.Error("failed session has no error message")
	}

	if got := knowledge.SessionsForSource(src.SourceID, true); len(got) != 0 {
		t.Errorf("successful-session filter returned %d, want 0", len(got))
	}
}

func TestCheckJurisdictionHints(t *testing.T) {
	knowledge, err := kb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := testSource()

	an := &scriptedAnalyzer{responses: []analyzer.Analysis{{
		Items: analyzerItems(2),
		Page:  analyzer.PageAnalysis{DateFormat: "YYYY-MM-DD", PublicationIndicators: []string{"press-release", "press-release"}},
	}}}
	sel := New(knowledge, &scriptedApplier{}, an, types.SelectorConfig{}, nil)

	if _, err := sel.Check(context.Background(), src, "<html></html>"); err != nil {
		t.Fatal(err)
	}

	knowledge.ViewSource(src.SourceID, func(sp *types.SourceProfile) {
		if len(sp.DateFormats) != 1 || sp.DateFormats[0] != "YYYY-MM-DD" {
			t.Errorf("source date formats = %v", sp.DateFormats)
		}
		if len(sp.ContentIndicators) != 1 {
			t.Errorf("indicators not deduplicated: %v", sp.ContentIndicators)
		}
	})
}
