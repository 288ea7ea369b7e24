// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/inkwell-dev/inkwell/internal/config"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root inkwell command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inkwell",
		Short:         "Inkwell, an agentic draft editing gateway",
		Long:          "Inkwell runs a drafting agent behind a local HTTP gateway.\nModel edits land as reviewable changes that must be accepted before they touch the draft.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return checkExplicitConfig(cmd)
		},
	}

	// Global flags shared by every subcommand.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newVersionCmd(),
		newSessionCmd(),
		newSecretCmd(),
		newChatCmd(),
		newDoctorCmd(),
	)

	return root
}

// checkExplicitConfig fails early when --config names a file that cannot
// be read, so every subcommand reports the mistake the same way.
func checkExplicitConfig(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile == "" {
		return nil
	}
	if _, err := os.Stat(cfgFile); err != nil {
		return inkerr.Wrapf(err, inkerr.CodeConfigLoadReadFailure, "reading config file %s", cfgFile)
	}
	return nil
}

// resolveConfigFile picks the config file for commands that need full
// configuration: the --config flag when set, otherwise the first
// inkwell.yaml found in the standard locations. Empty means no file was
// found anywhere.
func resolveConfigFile(cmd *cobra.Command) string {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		return cfgFile
	}

	candidates := []string{"inkwell.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "inkwell", "inkwell.yaml"))
	}
	candidates = append(candidates, filepath.Join("/etc", "inkwell", "inkwell.yaml"))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadConfig loads the resolved config file with keyring:// references
// resolved, then applies flag overrides so the effective precedence is
// flag > env > file > defaults. When no config file exists anywhere, a
// commented default is bootstrapped first.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := resolveConfigFile(cmd)
	if path == "" {
		path = config.Bootstrap()
	}
	if path != "" {
		config.WarnInsecurePermissions(path)
	}

	cfg, err := config.LoadWithSecrets(path, secretStoreFactory())
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Gateway.DataDir = dataDir
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
