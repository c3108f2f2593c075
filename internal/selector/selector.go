// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package selector implements the per-check decision flow: try learned
// patterns first, escalate to the content analyzer when none is trusted or
// productive, learn new patterns from a successful escalation, and record
// exactly one learning session whatever happens.
package selector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/regmon-engine/internal/analyzer"
	"github.com/pdiddy/regmon-engine/internal/kb"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

// Applier applies one extraction pattern to fetched page content. The
// engine treats application as an opaque primitive; implementations live
// outside the decision flow.
type Applier interface {
	Apply(ctx context.Context, pattern types.ExtractionPattern, pageURL, content string) ([]types.PublicationItem, error)
}

// Selector runs monitoring checks against one knowledge base.
type Selector struct {
	kb       *kb.KnowledgeBase
	applier  Applier
	analyzer analyzer.Analyzer
	cfg      types.SelectorConfig
	logger   *zap.Logger

	// AnalyzerTimeout caps one escalation; a timed-out analyzer call is a
	// failed check and must not mutate pattern scores.
	AnalyzerTimeout time.Duration
}

// New builds a Selector. A zero cfg gets the design defaults; a nil logger
// is replaced with a no-op one.
func New(knowledge *kb.KnowledgeBase, app Applier, an analyzer.Analyzer, cfg types.SelectorConfig, logger *zap.Logger) *Selector {
	if cfg.MinConfidence == 0 && cfg.MaxPatterns == 0 {
		cfg = types.DefaultSelectorConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		kb:       knowledge,
		applier:  app,
		analyzer: an,
		cfg:      cfg,
		logger:   logger,
	}
}

// CheckResult is the outcome of one monitoring check.
type CheckResult struct {
	SessionID    string
	Method       types.ExtractionMethod
	Items        []types.PublicationItem
	PatternsUsed []string
	NewPatterns  []string
}

// Check runs one monitoring check for src against already-fetched page
// content. It returns the items found and how. A check that finds nothing
// by either method returns the analyzer's error with Method set to
// MethodFailed; the caller decides whether that aborts anything (the
// monitor does not). Every invocation records exactly one learning session.
func (s *Selector) Check(ctx context.Context, src types.SourceConfig, content string) (CheckResult, error) {
	start := time.Now()
	sessionID := uuid.NewString()

	// Lazily create the profile so even a first-ever check has a home for
	// whatever it learns.
	s.kb.UpdateSource(src, nil)

	candidates := s.kb.BestPatterns(src.SourceID, types.PatternCSSSelector, s.cfg.MinConfidence, s.cfg.MaxPatterns)

	var items []types.PublicationItem
	var tried, errored []string
	for _, p := range candidates {
		got, err := s.applier.Apply(ctx, p, src.URL, content)
		if err != nil {
			// A malformed recipe fails this pattern, not the check.
			s.logger.Debug("pattern application failed",
				zap.String("source_id", src.SourceID),
				zap.String("pattern_id", p.PatternID),
				zap.Error(err))
			errored = append(errored, p.PatternID)
			continue
		}
		tried = append(tried, p.PatternID)
		if len(got) > 0 {
			items = got
			break
		}
	}
	if len(items) > 0 {
		return s.finishLearned(src, sessionID, start, items, tried, errored)
	}

	if len(tried)+len(errored) > 0 {
		// Learned patterns existed but produced nothing: penalize before
		// escalating.
		s.kb.UpdateSource(src, func(sp *types.SourceProfile) {
			for _, id := range tried {
				if p, ok := sp.ExtractionPatterns[id]; ok {
					p.UpdateFailure("no_publications_found")
				}
			}
			for _, id := range errored {
				if p, ok := sp.ExtractionPatterns[id]; ok {
					p.UpdateFailure("pattern_error")
				}
			}
		})
		s.logger.Info("learned patterns found no publications, escalating",
			zap.String("source_id", src.SourceID),
			zap.Int("patterns_tried", len(tried)+len(errored)))
	}

	analysis, err := s.escalate(ctx, src, content)
	if err != nil {
		return s.finishFailed(src, sessionID, start, tried, errored, err)
	}
	return s.finishAnalyzed(src, sessionID, start, analysis, tried, errored)
}

func (s *Selector) escalate(ctx context.Context, src types.SourceConfig, content string) (analyzer.Analysis, error) {
	if s.AnalyzerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AnalyzerTimeout)
		defer cancel()
	}

	return s.analyzer.Analyze(ctx, analyzer.Request{
		PageURL:      src.URL,
		SourceID:     src.SourceID,
		Jurisdiction: src.Jurisdiction,
		Content:      analyzer.SampleContent(content, s.cfg.MaxContentSample),
	})
}

// finishLearned scores a successful learned-pattern check and records the
// session. Every pattern actually applied shares the same items-found
// figure; recipes that errored are scored as individual failures.
func (s *Selector) finishLearned(src types.SourceConfig, sessionID string, start time.Time, items []types.PublicationItem, tried, errored []string) (CheckResult, error) {
	elapsed := time.Since(start).Seconds()

	s.kb.UpdateSource(src, func(sp *types.SourceProfile) {
		for _, id := range tried {
			if p, ok := sp.ExtractionPatterns[id]; ok {
				p.UpdateSuccess(len(items), elapsed)
			}
		}
		for _, id := range errored {
			if p, ok := sp.ExtractionPatterns[id]; ok {
				p.UpdateFailure("pattern_error")
			}
		}
		sp.UpdateSuccessMetrics(len(items), elapsed)
	})

	for i := range items {
		items[i].SourceID = src.SourceID
		items[i].ExtractionMethod = types.MethodLearnedPatterns
	}

	// Only recipes that actually ran count as used; errored recipes are
	// recorded as weakened so later reinforcement cannot reward them.
	s.record(types.LearningSession{
		SessionID:          sessionID,
		Timestamp:          start.UTC(),
		SourceID:           src.SourceID,
		Jurisdiction:       src.Jurisdiction,
		ExtractionMethod:   types.MethodLearnedPatterns,
		PatternsUsed:       tried,
		Success:            true,
		ItemsFound:         len(items),
		ExtractionTime:     elapsed,
		PatternsReinforced: tried,
		PatternsWeakened:   errored,
	})

	return CheckResult{
		SessionID:    sessionID,
		Method:       types.MethodLearnedPatterns,
		Items:        items,
		PatternsUsed: tried,
	}, nil
}

// finishAnalyzed converts a successful analyzer run into items and new
// learned patterns. Proposed recipes are seeded through UpdateSuccess so
// they start with real evidence instead of the uninformative prior.
func (s *Selector) finishAnalyzed(src types.SourceConfig, sessionID string, start time.Time, analysis analyzer.Analysis, tried, errored []string) (CheckResult, error) {
	elapsed := time.Since(start).Seconds()

	items := make([]types.PublicationItem, 0, len(analysis.Items))
	for _, it := range analysis.Items {
		items = append(items, types.PublicationItem{
			Title:            it.Title,
			URL:              it.URL,
			PublishedDate:    analyzer.ParseDate(it.PublishedDate),
			ContentSnippet:   it.ContentSnippet,
			ItemType:         "publication",
			ConfidenceScore:  it.Confidence,
			ExtractionMethod: types.MethodLLMAnalysis,
			SourceID:         src.SourceID,
		})
	}

	var newIDs []string
	s.kb.UpdateSource(src, func(sp *types.SourceProfile) {
		for _, cand := range analysis.Patterns {
			if cand.Type != string(types.PatternCSSSelector) {
				continue
			}
			p := types.NewPattern(types.PatternCSSSelector, cand.Pattern, cand.Description)
			p.AppliesTo = []string{src.URL}
			p.UpdateSuccess(len(items), 0)
			sp.AddPattern(p)
			newIDs = append(newIDs, p.PatternID)
			s.logger.Info("learned new pattern from analyzer",
				zap.String("source_id", src.SourceID),
				zap.String("pattern_id", p.PatternID),
				zap.String("pattern_value", p.PatternValue))
		}

		if analysis.Page.DateFormat != "" {
			sp.DateFormats = appendUnique(sp.DateFormats, analysis.Page.DateFormat)
		}
		for _, ind := range analysis.Page.PublicationIndicators {
			sp.ContentIndicators = appendUnique(sp.ContentIndicators, ind)
		}
		sp.UpdateSuccessMetrics(len(items), elapsed)
	})

	// The same hints feed the jurisdiction-wide pool for transfer to
	// sibling sources.
	s.kb.UpdateJurisdiction(src.Jurisdiction, func(jp *types.JurisdictionProfile) {
		if analysis.Page.DateFormat != "" {
			jp.CommonDateFormats = appendUnique(jp.CommonDateFormats, analysis.Page.DateFormat)
		}
		for _, ind := range analysis.Page.PublicationIndicators {
			jp.CommonContentPatterns = appendUnique(jp.CommonContentPatterns, ind)
		}
	})

	weakened := append(append([]string{}, tried...), errored...)
	s.record(types.LearningSession{
		SessionID:             sessionID,
		Timestamp:             start.UTC(),
		SourceID:              src.SourceID,
		Jurisdiction:          src.Jurisdiction,
		ExtractionMethod:      types.MethodLLMAnalysis,
		PatternsUsed:          tried,
		Success:               true,
		ItemsFound:            len(items),
		ExtractionTime:        elapsed,
		NewPatternsDiscovered: newIDs,
		PatternsWeakened:      weakened,
	})

	return CheckResult{
		SessionID:    sessionID,
		Method:       types.MethodLLMAnalysis,
		Items:        items,
		PatternsUsed: tried,
		NewPatterns:  newIDs,
	}, nil
}

// finishFailed records a check where neither learned patterns nor the
// analyzer produced anything. No pattern scores change here: no pattern
// caused the analyzer's failure.
func (s *Selector) finishFailed(src types.SourceConfig, sessionID string, start time.Time, tried, errored []string, cause error) (CheckResult, error) {
	elapsed := time.Since(start).Seconds()

	s.kb.UpdateSource(src, func(sp *types.SourceProfile) {
		sp.UpdateSuccessMetrics(0, elapsed)
	})

	weakened := append(append([]string{}, tried...), errored...)
	s.record(types.LearningSession{
		SessionID:        sessionID,
		Timestamp:        start.UTC(),
		SourceID:         src.SourceID,
		Jurisdiction:     src.Jurisdiction,
		ExtractionMethod: types.MethodFailed,
		PatternsUsed:     tried,
		Success:          false,
		ItemsFound:       0,
		ExtractionTime:   elapsed,
		ErrorMessage:     cause.Error(),
		PatternsWeakened: weakened,
		Notes:            []string{"analyzer escalation failed; consider reviewing patterns for this source"},
	})

	return CheckResult{
		SessionID:    sessionID,
		Method:       types.MethodFailed,
		PatternsUsed: tried,
	}, fmt.Errorf("check failed for %s: %w", src.SourceID, cause)
}

func (s *Selector) record(session types.LearningSession) {
	s.kb.RecordSession(session)
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
