// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package document carries the working copy of a draft through a
// conversation round and applies accepted mutations to a sink.
package document

import (
	"fmt"
	"strings"
)

// Context is the working copy of a draft. Tool handlers read from and
// mutate it directly; the dispatcher decides when a mutation also
// reaches a sink.
type Context struct {
	DraftID string
	Title   string
	Content string
}

// Clone returns an independent copy.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// NumberedLines renders the content as "N: text" lines, numbered from 1.
// A trailing newline does not produce an extra numbered line.
func (c *Context) NumberedLines() string {
	if c.Content == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(c.Content, "\n"), "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	return b.String()
}

// LineCount reports how many lines the content holds. A trailing newline
// terminates the last line rather than opening a new one.
func (c *Context) LineCount() int {
	if c.Content == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(c.Content, "\n"), "\n") + 1
}
