// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/regmon-engine/internal/analyzer"
	"github.com/pdiddy/regmon-engine/internal/kb"
	"github.com/pdiddy/regmon-engine/internal/selector"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	page, ok := f.pages[url]
	if !ok {
		return "", errors.New("connection refused")
	}
	return page, nil
}

type fixedAnalyzer struct {
	analysis analyzer.Analysis
	err      error
}

func (a *fixedAnalyzer) Analyze(_ context.Context, _ analyzer.Request) (analyzer.Analysis, error) {
	return a.analysis, a.err
}

type noopApplier struct{}

func (noopApplier) Apply(_ context.Context, _ types.ExtractionPattern, _, _ string) ([]types.PublicationItem, error) {
	return nil, nil
}

func newSelector(t *testing.T, an analyzer.Analyzer) *selector.Selector {
	t.Helper()
	knowledge, err := kb.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return selector.New(knowledge, noopApplier{}, an, types.SelectorConfig{}, nil)
}

func TestRunContinuesAfterSourceFailure(t *testing.T) {
	an := &fixedAnalyzer{analysis: analyzer.Analysis{
		Items: []analyzer.Item{{Title: "Notice", URL: "https://a.example/n1", Confidence: 0.9}},
	}}
	sel := newSelector(t, an)

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/news": "<html>a</html>",
		"https://c.example/news": "<html>c</html>",
	}}
	cfg := types.MonitorConfig{
		Sources: []types.SourceConfig{
			{SourceID: "src_a", URL: "https://a.example/news", Jurisdiction: "EU"},
			{SourceID: "src_b", URL: "https://b.example/news", Jurisdiction: "EU"},
			{SourceID: "src_c", URL: "https://c.example/news", Jurisdiction: "EU"},
		},
	}

	var buf bytes.Buffer
	result, err := Run(context.Background(), sel, fetcher, cfg, &buf)
	if err != nil {
		t.Fatal(err)
	}

	if result.Checked != 3 || result.Failed != 1 || result.Analyzed != 2 {
		t.Fatalf("result = %+v, want 3 checked / 1 failed / 2 analyzed", result)
	}
	if result.ItemsFound != 2 {
		t.Errorf("items found = %d, want 2", result.ItemsFound)
	}

	out := buf.String()
	if !strings.Contains(out, "failed:  src_b") {
		t.Errorf("missing failure line for src_b:\n%s", out)
	}
	if !strings.Contains(out, "Pass summary: 3 checked") {
		t.Errorf("missing pass summary:\n%s", out)
	}
}

func TestRunFailedCheckDoesNotAbort(t *testing.T) {
	// The analyzer is down, so every check fails, but the pass completes.
	sel := newSelector(t, &fixedAnalyzer{err: errors.New("api unreachable")})
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/news": "<html></html>",
		"https://b.example/news": "<html></html>",
	}}
	cfg := types.MonitorConfig{
		Sources: []types.SourceConfig{
			{SourceID: "src_a", URL: "https://a.example/news", Jurisdiction: "EU"},
			{SourceID: "src_b", URL: "https://b.example/news", Jurisdiction: "EU"},
		},
	}

	var buf bytes.Buffer
	result, err := Run(context.Background(), sel, fetcher, cfg, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if result.Checked != 2 || result.Failed != 2 {
		t.Fatalf("result = %+v, want 2 checked / 2 failed", result)
	}
	if !result.HasFailures() {
		t.Error("HasFailures = false")
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	sel := newSelector(t, &fixedAnalyzer{err: errors.New("unused")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := types.MonitorConfig{
		Sources: []types.SourceConfig{
			{SourceID: "src_a", URL: "https://a.example/news", Jurisdiction: "EU"},
		},
	}
	var buf bytes.Buffer
	_, err := Run(ctx, sel, &fakeFetcher{}, cfg, &buf)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPFetcher(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, "<html>daily</html>")
	}))
	defer ts.Close()

	f := &HTTPFetcher{Client: ts.Client(), UserAgent: "regmon-engine/0.1"}
	body, err := f.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	if body != "<html>daily</html>" {
		t.Errorf("body = %q", body)
	}
	if gotUA != "regmon-engine/0.1" {
		t.Errorf("user agent = %q", gotUA)
	}
}

func TestHTTPFetcherNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := &HTTPFetcher{Client: ts.Client()}
	if _, err := f.Fetch(context.Background(), ts.URL); err == nil {
		t.Fatal("expected error on 404")
	}
}
