// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/inkwell-dev/inkwell/internal/server"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

func main() {
	doc, err := generateDoc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/openapi.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, doc, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing document: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI document written to %s\n", outPath)
}

// generateDoc creates a server with all routes registered and extracts the
// OpenAPI document huma derives from the Go type annotations. Handlers are
// never invoked during generation, so the engine and store stay nil.
func generateDoc() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, inkerr.Errorf(inkerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
