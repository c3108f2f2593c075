// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/regmon-engine/internal/optimizer"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [source-ids...]",
	Short: "Run pattern maintenance for learned sources",
	Long: `Optimize scores each source's learned patterns, removes patterns that
keep failing, reinforces the ones recent sessions relied on, and records a
page-structure pattern for consistently productive sources. Sources with
too little session history are reported and skipped.

Without arguments, every configured source is optimized.`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	logger := newLogger()
	defer logger.Sync()

	knowledge, err := openKnowledge(cfg, logger)
	if err != nil {
		return err
	}

	sources := cfg.Monitor.Sources
	if len(args) > 0 {
		var picked []types.SourceConfig
		for _, id := range args {
			found := false
			for _, src := range sources {
				if src.SourceID == id {
					picked = append(picked, src)
					found = true
					break
				}
			}
			if !found {
				// Not configured, but may still have a learned profile.
				picked = append(picked, types.SourceConfig{SourceID: id})
			}
		}
		sources = picked
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources to optimize: configure monitor.sources or pass source IDs")
	}

	var skipped int
	for _, src := range sources {
		res, err := optimizer.Optimize(knowledge, src, cfg.Optimizer, logger)
		var thin *optimizer.InsufficientEvidenceError
		if errors.As(err, &thin) {
			fmt.Printf("%s: skipped (%d of %d successful sessions needed)\n", src.SourceID, thin.Have, thin.Need)
			skipped++
			continue
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d patterns scored, %d deprecated, %d reinforced", src.SourceID,
			len(res.Scores), len(res.Deprecated), len(res.Reinforced))
		if res.SynthesizedID != "" {
			fmt.Printf(", synthesized %s", res.SynthesizedID)
		}
		fmt.Println()

		ids := make([]string, 0, len(res.Scores))
		for id := range res.Scores {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return res.Scores[ids[i]] > res.Scores[ids[j]] })
		for _, id := range ids {
			fmt.Printf("  %-16s score %.3f\n", id, res.Scores[id])
		}
	}

	if skipped == len(sources) {
		fmt.Println("nothing optimized: no source has enough session history yet")
	}
	return nil
}
