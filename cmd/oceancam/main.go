/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/oceancam/internal/config"
	"github.com/friendsincode/oceancam/internal/logbuffer"
	"github.com/friendsincode/oceancam/internal/logging"
	"github.com/friendsincode/oceancam/internal/version"
)

var (
	logger     zerolog.Logger
	cfg        *config.Config
	configPath string
	logCloser  io.Closer = io.NopCloser(nil)
)

var rootCmd = &cobra.Command{
	Use:     "oceancam",
	Short:   "Oceancam - unattended underwater camera controller",
	Long:    "Oceancam runs a scheduled underwater camera: photo bursts, video, sensor annotation, media upload and power management between slots.",
	Version: version.Version,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logCloser.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.FileEnv+")")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it).
func loadConfig() error {
	return loadConfigWithBuffer(nil)
}

// loadConfigWithBuffer also tees logs into buf when it is non-nil.
func loadConfigWithBuffer(buf *logbuffer.Buffer) error {
	path := configPath
	if path == "" {
		path = os.Getenv(config.FileEnv)
	}

	var err error
	cfg, err = config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var extra io.Writer
	if buf != nil {
		extra = logbuffer.NewWriter(buf, nil)
	}
	logger, logCloser = logging.SetupWithWriter(cfg.Environment, extra, cfg.Paths.LogFile)
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	return nil
}
