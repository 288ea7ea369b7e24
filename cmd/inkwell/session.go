// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage agent sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(),
	)

	return cmd
}

func newSessionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		RunE:  runSessionList,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address")
	cmd.Flags().Int("limit", 0, "maximum sessions to list (0 lists all)")

	return cmd
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	limit, _ := cmd.Flags().GetInt("limit")
	out := cmd.OutOrStdout()

	path := "/api/v1/sessions"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	gw := newGatewayClient(addr)
	var body struct {
		Sessions []struct {
			ID        string    `json:"id"`
			DraftID   string    `json:"draftId"`
			Status    string    `json:"status"`
			Model     string    `json:"model"`
			UpdatedAt time.Time `json:"updatedAt"`
		} `json:"sessions"`
	}
	if err := gw.getJSON(path, &body); err != nil {
		if inkerr.HasCode(err, inkerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		return inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "listing sessions")
	}

	if len(body.Sessions) == 0 {
		_, _ = fmt.Fprintln(out, "No sessions found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDRAFT\tSTATUS\tUPDATED")
	for _, s := range body.Sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.DraftID, s.Status, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
