// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/inkwell-dev/inkwell/internal/secrets"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

// secretStoreFactory builds the secret store commands use. Swapped in
// tests for an in-memory mock.
var secretStoreFactory = func() secrets.Store { return secrets.NewKeyring() }

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage keyring secrets",
		Long:  "Store, list, and delete gateway credentials in the OS keyring.\nConfig values reference them as keyring://inkwell/<key>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret read from stdin",
		Long:  "Read a value from the first line of stdin and store it under the given key.\n\nExample:\n  echo \"$ANTHROPIC_API_KEY\" | inkwell secret set anthropic-api-key",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return inkerr.Wrapf(err, inkerr.CodeCLIInputInvalid, "reading secret value")
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return inkerr.New(inkerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Set(secrets.Service, args[0], value); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s\n", args[0])
	return err
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret keys",
		RunE:  runSecretList,
	}
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.Service)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, err := fmt.Fprintln(out, "No secrets stored.")
		return err
	}
	for _, key := range keys {
		if _, err := fmt.Fprintln(out, key); err != nil {
			return err
		}
	}
	return nil
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	if err := secretStoreFactory().Delete(secrets.Service, args[0]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", args[0])
	return err
}
