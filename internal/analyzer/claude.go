// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/pdiddy/regmon-engine/internal/httputil"
)

// analysisPromptTmpl is the prompt sent to the Claude API for one publication
// page. It asks for today's publications plus reusable extraction patterns,
// as a single JSON object matching the Analysis schema.
var analysisPromptTmpl = template.Must(template.New("analysis").Parse(`You are a publication page analyst for regulatory monitoring. Analyze this daily publication page from {{.Jurisdiction}} and extract TODAY's regulatory publications.

PAGE URL: {{.PageURL}}
SOURCE ID: {{.SourceID}}

HTML CONTENT:
{{.Content}}

Your task:
1. Find sections containing today's or very recent publications
2. Extract each publication (title, full URL, date if shown, brief snippet)
3. Propose CSS selectors that could be reused to extract the same section on future days
4. Ignore archive sections and navigation

Respond with a single JSON object and no other text:
{"publications_found": [{"title": "...", "url": "...", "published_date": "...", "content_snippet": "...", "confidence": 0.0}], "extraction_patterns": [{"type": "css_selector", "pattern": ".publication-item a", "description": "...", "confidence": 0.0}], "page_analysis": {"has_daily_section": true, "date_format": "...", "publication_indicators": ["..."], "page_structure": "..."}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeAnalyzer implements Analyzer against the Claude Messages API.
type ClaudeAnalyzer struct {
	APIKey     string
	Model      string
	MaxRetries int
	Client     *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Analyze sends the page to the Claude API and decodes the structured
// answer. Rate-limited calls are retried with backoff; every other failure
// mode (transport error, non-JSON output, schema violation, empty item
// list) surfaces as an error for the caller to record as a failed check.
func (c *ClaudeAnalyzer) Analyze(ctx context.Context, req Request) (Analysis, error) {
	var prompt bytes.Buffer
	if err := analysisPromptTmpl.Execute(&prompt, req); err != nil {
		return Analysis{}, fmt.Errorf("rendering prompt: %w", err)
	}

	body := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt.String()},
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Analysis{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Analysis{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries)
	if err != nil {
		return Analysis{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Analysis{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return Analysis{}, fmt.Errorf("decoding Claude response: %w", err)
	}
	if len(cResp.Content) == 0 {
		return Analysis{}, fmt.Errorf("Claude API returned empty content")
	}

	return Decode(cResp.Content[0].Text)
}
