// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/inkwell-dev/inkwell/internal/config"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Inkwell gateway",
		Long:  "Load configuration, wire every subsystem, and serve the HTTP API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "loading config")
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Gateway.Listen = listen
	}

	log := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := WireGateway(ctx, cfg, log)
	if err != nil {
		return inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "wiring gateway")
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil {
			log.Warn("shutdown left errors behind", "error", cerr)
		}
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Inkwell gateway listening on %s\n", cfg.Gateway.Listen)
	return gw.Start(ctx)
}

// setupLogging installs the process-wide logger per the log config and
// returns it.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
