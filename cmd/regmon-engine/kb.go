// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/regmon-engine/pkg/types"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect and export the learned knowledge base",
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print knowledge base summary counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := engineConfig()
		logger := newLogger()
		defer logger.Sync()

		knowledge, err := openKnowledge(cfg, logger)
		if err != nil {
			return err
		}

		stats := knowledge.Stats()
		fmt.Printf("Knowledge base: %s\n", knowledge.Dir())
		fmt.Printf("  jurisdictions:           %d\n", stats.TotalJurisdictions)
		fmt.Printf("  sources:                 %d\n", stats.TotalSources)
		fmt.Printf("  patterns:                %d\n", stats.TotalPatterns)
		fmt.Printf("  high-confidence (>=0.8): %d\n", stats.HighConfidencePatterns)
		fmt.Printf("  sessions retained:       %d\n", stats.TotalSessions)
		return nil
	},
}

var kbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge base to YAML or JSON on stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := engineConfig()
		logger := newLogger()
		defer logger.Sync()

		knowledge, err := openKnowledge(cfg, logger)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "yaml", "":
			return knowledge.ExportYAML(os.Stdout)
		case "json":
			return knowledge.ExportJSON(os.Stdout)
		default:
			return fmt.Errorf("unsupported format %q: use yaml or json", format)
		}
	},
}

var kbPatternsCmd = &cobra.Command{
	Use:   "patterns [source-id]",
	Short: "List the trusted extraction patterns learned for a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := engineConfig()
		logger := newLogger()
		defer logger.Sync()

		knowledge, err := openKnowledge(cfg, logger)
		if err != nil {
			return err
		}

		minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
		patterns := knowledge.RecommendedPatterns(args[0], types.PatternCSSSelector, minConfidence)
		if len(patterns) == 0 {
			fmt.Printf("no patterns at or above confidence %.2f for %s\n", minConfidence, args[0])
			return nil
		}
		for _, p := range patterns {
			fmt.Printf("%-16s %.3f  %d/%d  %s\n",
				p.PatternID, p.ConfidenceScore, p.SuccessCount, p.SuccessCount+p.FailureCount, p.PatternValue)
		}
		return nil
	},
}

func init() {
	kbExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	kbPatternsCmd.Flags().Float64("min-confidence", 0.6, "confidence floor")

	kbCmd.AddCommand(kbStatsCmd)
	kbCmd.AddCommand(kbExportCmd)
	kbCmd.AddCommand(kbPatternsCmd)
	rootCmd.AddCommand(kbCmd)
}
