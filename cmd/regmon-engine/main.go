// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the regmon-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/regmon-engine/internal/secrets"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultUserAgent = "regmon-engine/0.1"
)

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the regmon-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "regmon-engine",
	Short: "Self-improving extraction engine for regulatory publication monitoring",
	Long: `regmon-engine monitors official publication pages (regulator news feeds,
official gazettes) and learns how to extract publication listings from each
one. Checks run cheap learned patterns first and escalate to an AI content
analyzer only when no trusted pattern produces results; what the analyzer
finds is stored as new patterns, so sources get cheaper to monitor over time.

Each operation is a subcommand: check one source, monitor a configured pass,
optimize a source's learned patterns, inspect the knowledge base, or build
session statistics.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./regmon-engine.yaml or ~/.config/regmon-engine/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("regmon-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "regmon-engine"))
		}
	}

	viper.SetEnvPrefix("REGMON_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig resolves the full engine configuration from the config file
// and environment, filling in defaults for anything unset.
func engineConfig() types.EngineConfig {
	var cfg types.EngineConfig
	_ = viper.Unmarshal(&cfg)

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "knowledge"
	}
	if cfg.Analyzer.Model == "" {
		cfg.Analyzer.Model = defaultModel
	}
	if cfg.Analyzer.Timeout == 0 {
		cfg.Analyzer.Timeout = 120 * time.Second
	}
	if cfg.Monitor.Timeout == 0 {
		cfg.Monitor.Timeout = 60 * time.Second
	}
	if cfg.Monitor.UserAgent == "" {
		cfg.Monitor.UserAgent = defaultUserAgent
	}
	if cfg.Monitor.InterSourceDelay == 0 {
		cfg.Monitor.InterSourceDelay = 2 * time.Second
	}
	return cfg
}

// apiKey resolves the analyzer API key: config, then .secrets/, then the
// environment.
func apiKey(cfg types.EngineConfig) string {
	if cfg.Analyzer.APIKey != "" {
		return cfg.Analyzer.APIKey
	}
	return secrets.Get(loadedSecrets, "anthropic-api-key", "ANTHROPIC_API_KEY")
}

func newLogger() *zap.Logger {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
