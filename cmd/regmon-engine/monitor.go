// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pdiddy/regmon-engine/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one monitoring pass over all configured sources",
	Long: `Monitor checks every source in the configuration once, sequentially,
pausing between sources. A failing source never aborts the pass. The
knowledge base is updated as each check completes, so an interrupted pass
keeps what it learned.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	if len(cfg.Monitor.Sources) == 0 {
		return fmt.Errorf("no sources configured: add monitor.sources to the config file")
	}

	logger := newLogger()
	defer logger.Sync()

	sel, fetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := monitor.Run(ctx, sel, fetcher, cfg.Monitor, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d source(s) failed", result.Failed)
	}
	return nil
}
