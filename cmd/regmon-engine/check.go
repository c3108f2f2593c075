// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/regmon-engine/internal/analyzer"
	"github.com/pdiddy/regmon-engine/internal/applier"
	"github.com/pdiddy/regmon-engine/internal/drill"
	"github.com/pdiddy/regmon-engine/internal/kb"
	"github.com/pdiddy/regmon-engine/internal/monitor"
	"github.com/pdiddy/regmon-engine/internal/selector"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

var checkCmd = &cobra.Command{
	Use:   "check [source-id]",
	Short: "Check one publication source for new publications",
	Long: `Check fetches one source page and extracts its publication listing,
using learned patterns when a trusted one exists and escalating to the AI
content analyzer otherwise. The source is looked up in the configured
monitor sources by ID, or described directly with --url and --jurisdiction.

With --drill, category links below the page are followed (bounded by the
drill configuration) to find publications not listed on the page itself.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("url", "", "source page URL (instead of a configured source ID)")
	checkCmd.Flags().String("jurisdiction", "", "jurisdiction code for --url (e.g. ES, DE)")
	checkCmd.Flags().Bool("drill", false, "follow category links below the page")
	checkCmd.Flags().Bool("json", false, "output items as JSON")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	logger := newLogger()
	defer logger.Sync()

	src, err := resolveSource(cmd, args, cfg)
	if err != nil {
		return err
	}

	sel, fetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	content, err := fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return err
	}

	res, err := sel.Check(ctx, src, content)
	if err != nil {
		return err
	}
	items := res.Items

	doDrill, _ := cmd.Flags().GetBool("drill")
	if doDrill {
		d := drill.New(fetcher, cfg.Drill, logger)
		dres, err := d.Drill(ctx, src, content)
		if err != nil {
			return err
		}
		items = append(items, dres.Items...)
		fmt.Fprintf(os.Stderr, "drill-down: %d categories followed, %d pages, %d additional items\n",
			dres.CategoriesFollowed, dres.PagesFetched, len(dres.Items))
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	fmt.Printf("%s: %d publications (%s)\n", src.SourceID, len(items), res.Method)
	for _, it := range items {
		fmt.Printf("  %s\n    %s\n", it.Title, it.URL)
	}
	if len(res.NewPatterns) > 0 {
		fmt.Printf("learned %d new pattern(s)\n", len(res.NewPatterns))
	}
	return nil
}

// resolveSource finds the source to check: a configured ID, or an ad-hoc
// --url/--jurisdiction pair.
func resolveSource(cmd *cobra.Command, args []string, cfg types.EngineConfig) (types.SourceConfig, error) {
	url, _ := cmd.Flags().GetString("url")
	if url != "" {
		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		if jurisdiction == "" {
			return types.SourceConfig{}, fmt.Errorf("--jurisdiction is required with --url")
		}
		id := url
		if len(args) > 0 {
			id = args[0]
		}
		return types.SourceConfig{SourceID: id, SourceName: id, URL: url, Jurisdiction: jurisdiction}, nil
	}

	if len(args) != 1 {
		return types.SourceConfig{}, fmt.Errorf("provide a configured source ID, or --url with --jurisdiction")
	}
	for _, src := range cfg.Monitor.Sources {
		if src.SourceID == args[0] {
			return src, nil
		}
	}
	return types.SourceConfig{}, fmt.Errorf("source %q not found in configuration", args[0])
}

// openKnowledge opens the knowledge base at the configured storage root.
func openKnowledge(cfg types.EngineConfig, logger *zap.Logger) (*kb.KnowledgeBase, error) {
	opts := []kb.Option{kb.WithLogger(logger)}
	if cfg.Storage.SessionRetention > 0 {
		opts = append(opts, kb.WithRetention(cfg.Storage.SessionRetention))
	}
	return kb.Open(cfg.Storage.Dir, opts...)
}

// buildEngine wires the pattern selector and page fetcher from the
// resolved configuration.
func buildEngine(cfg types.EngineConfig, logger *zap.Logger) (*selector.Selector, monitor.Fetcher, error) {
	knowledge, err := openKnowledge(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	an := &analyzer.ClaudeAnalyzer{
		APIKey:     apiKey(cfg),
		Model:      cfg.Analyzer.Model,
		MaxRetries: cfg.Analyzer.MaxRetries,
		Client:     &http.Client{Timeout: cfg.Analyzer.Timeout},
	}

	sel := selector.New(knowledge, &applier.HTMLApplier{}, an, cfg.Selector, logger)
	sel.AnalyzerTimeout = cfg.Analyzer.Timeout

	fetcher := &monitor.HTTPFetcher{
		Client:    &http.Client{Timeout: cfg.Monitor.Timeout},
		UserAgent: cfg.Monitor.UserAgent,
	}
	return sel, fetcher, nil
}
