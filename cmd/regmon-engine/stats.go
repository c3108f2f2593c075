// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/regmon-engine/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Build the session statistics index and print a report",
	Long: `Stats indexes the learning session log into a local SQLite database
and prints per-source and per-method aggregates. An unchanged log is not
re-indexed.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()

	store, err := stats.Open(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Ingest(ctx, os.Stderr); err != nil {
		return err
	}
	return store.WriteReport(ctx, os.Stdout)
}
