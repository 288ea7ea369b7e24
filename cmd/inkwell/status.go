// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/inkwell-dev/inkwell/internal/server"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Check the running gateway's status endpoint and display what it is serving with.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address to check")

	return cmd
}

// defaultGatewayAddr matches the gateway.listen config default.
const defaultGatewayAddr = "127.0.0.1:8399"

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	gw := newGatewayClient(addr)
	var body server.StatusBody
	if err := gw.getJSON("/api/v1/status", &body); err != nil {
		if inkerr.HasCode(err, inkerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", addr, body.Status)
	_, _ = fmt.Fprintf(out, "  version:   %s\n", body.Version)
	if body.DefaultModel != "" {
		_, _ = fmt.Fprintf(out, "  model:     %s\n", body.DefaultModel)
	}
	if len(body.Providers) > 0 {
		_, _ = fmt.Fprintf(out, "  providers: %s\n", strings.Join(body.Providers, ", "))
	}
	for _, p := range body.Plugins {
		_, _ = fmt.Fprintf(out, "  plugin:    %s %s (%s)\n", p.Name, p.Version, strings.Join(p.Tools, ", "))
	}
	return nil
}
