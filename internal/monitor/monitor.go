// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package monitor runs sequential monitoring passes over the configured
// publication sources.
package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/regmon-engine/internal/httputil"
	"github.com/pdiddy/regmon-engine/internal/selector"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

// Fetcher fetches one source page. Implementations own transport concerns;
// the pass logic only sees page content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP with retry on transient statuses.
type HTTPFetcher struct {
	Client     *http.Client
	UserAgent  string
	MaxRetries int
}

// Fetch retrieves url and returns the response body as a string.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", url, err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, f.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return string(body), nil
}

// PassResult summarizes one monitoring pass.
type PassResult struct {
	Checked    int
	Learned    int
	Analyzed   int
	Failed     int
	ItemsFound int
	Items      []types.PublicationItem
}

// Total returns the number of sources processed.
func (r PassResult) Total() int {
	return r.Checked
}

// HasFailures reports whether any source check failed.
func (r PassResult) HasFailures() bool {
	return r.Failed > 0
}

// Run checks every configured source once, printing per-source status and
// returning a summary. It continues after individual failures and pauses
// between consecutive sources. A canceled context stops the pass early and
// returns the context error alongside the partial summary.
func Run(ctx context.Context, sel *selector.Selector, fetcher Fetcher, cfg types.MonitorConfig, w io.Writer) (PassResult, error) {
	var result PassResult
	for i, src := range cfg.Sources {
		if i > 0 && cfg.InterSourceDelay > 0 {
			select {
			case <-time.After(cfg.InterSourceDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Checked++
		content, err := fetcher.Fetch(ctx, src.URL)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", src.SourceID, err)
			result.Failed++
			continue
		}

		res, err := sel.Check(ctx, src, content)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", src.SourceID, err)
			result.Failed++
			continue
		}

		switch res.Method {
		case types.MethodLearnedPatterns:
			result.Learned++
			fmt.Fprintf(w, "checked: %s (%d items, learned patterns)\n", src.SourceID, len(res.Items))
		case types.MethodLLMAnalysis:
			result.Analyzed++
			fmt.Fprintf(w, "checked: %s (%d items, analyzer, %d new patterns)\n", src.SourceID, len(res.Items), len(res.NewPatterns))
		default:
			fmt.Fprintf(w, "checked: %s (%d items, %s)\n", src.SourceID, len(res.Items), res.Method)
		}
		result.ItemsFound += len(res.Items)
		result.Items = append(result.Items, res.Items...)
	}

	fmt.Fprintf(w, "\nPass summary: %d checked, %d via learned patterns, %d via analyzer, %d failed, %d items\n",
		result.Checked, result.Learned, result.Analyzed, result.Failed, result.ItemsFound)
	return result, nil
}
