// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package diff renders display-ready line diffs for proposed draft edits.
// Output is bounded: common prefix and suffix are stripped before the
// line diff runs, long unchanged runs collapse into separators, and the
// final listing is truncated in the middle past a display ceiling.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Kind tags one rendered diff line.
type Kind string

const (
	KindUnchanged Kind = "unchanged"
	KindAdded     Kind = "added"
	KindRemoved   Kind = "removed"
	KindSeparator Kind = "separator"
)

const (
	// DefaultContextLines is how many unchanged lines surround each
	// changed region.
	DefaultContextLines = 3
	// DefaultMaxDisplayLines caps the rendered listing.
	DefaultMaxDisplayLines = 500
	// DefaultSizeCeiling skips diffing entirely for very large inputs.
	DefaultSizeCeiling = 1 << 20
)

// Line is one rendered diff row. OldLine and NewLine are 1-based and zero
// when the side does not apply. Omitted is set on separators.
type Line struct {
	Kind    Kind   `json:"kind"`
	Text    string `json:"text,omitempty"`
	OldLine int    `json:"oldLine,omitempty"`
	NewLine int    `json:"newLine,omitempty"`
	Omitted int    `json:"omitted,omitempty"`
}

// Stats summarizes a change without requiring the full listing.
type Stats struct {
	Added        int `json:"added"`
	Removed      int `json:"removed"`
	Unchanged    int `json:"unchanged"`
	ChangedChars int `json:"changedChars"`
}

// Result is a computed diff.
type Result struct {
	Lines     []Line `json:"lines,omitempty"`
	Stats     Stats  `json:"stats"`
	Truncated bool   `json:"truncated,omitempty"`
	// Skipped is set when either input exceeded the size ceiling and
	// only Stats were computed.
	Skipped bool `json:"skipped,omitempty"`
}

// Options tune a single computation. Zero values select the defaults.
type Options struct {
	ContextLines    int
	MaxDisplayLines int
	SizeCeiling     int
}

func (o Options) withDefaults() Options {
	if o.ContextLines <= 0 {
		o.ContextLines = DefaultContextLines
	}
	if o.MaxDisplayLines <= 0 {
		o.MaxDisplayLines = DefaultMaxDisplayLines
	}
	if o.SizeCeiling <= 0 {
		o.SizeCeiling = DefaultSizeCeiling
	}
	return o
}

// Compute renders the line diff between two document versions.
func Compute(oldText, newText string, opts Options) Result {
	opts = opts.withDefaults()

	if len(oldText) > opts.SizeCeiling || len(newText) > opts.SizeCeiling {
		return Result{Stats: Summary(oldText, newText), Skipped: true}
	}

	oldLines := splitLines(oldText)
	newLines := splitLines(newText)
	prefix, suffix := commonEnds(oldLines, newLines)

	if prefix == len(oldLines) && prefix == len(newLines) {
		return Result{Stats: Stats{Unchanged: prefix}}
	}

	oldRegion := oldLines[prefix : len(oldLines)-suffix]
	newRegion := newLines[prefix : len(newLines)-suffix]

	regionRows := diffRegion(oldRegion, newRegion, prefix)

	st := Stats{Unchanged: prefix + suffix}
	for _, r := range regionRows {
		switch r.Kind {
		case KindUnchanged:
			st.Unchanged++
		case KindAdded:
			st.Added++
			st.ChangedChars += len(r.Text)
		case KindRemoved:
			st.Removed++
			st.ChangedChars += len(r.Text)
		}
	}

	regionRows = collapseRuns(regionRows, opts.ContextLines)

	var rows []Line

	// Leading context from the stripped prefix.
	ctxStart := prefix - opts.ContextLines
	if ctxStart < 0 {
		ctxStart = 0
	}
	if ctxStart > 0 {
		rows = append(rows, Line{Kind: KindSeparator, Omitted: ctxStart})
	}
	for i := ctxStart; i < prefix; i++ {
		rows = append(rows, Line{Kind: KindUnchanged, Text: oldLines[i], OldLine: i + 1, NewLine: i + 1})
	}

	rows = append(rows, regionRows...)

	// Trailing context from the stripped suffix.
	tail := suffix
	if tail > opts.ContextLines {
		tail = opts.ContextLines
	}
	oldBase := len(oldLines) - suffix
	newBase := len(newLines) - suffix
	for i := 0; i < tail; i++ {
		rows = append(rows, Line{
			Kind:    KindUnchanged,
			Text:    oldLines[oldBase+i],
			OldLine: oldBase + i + 1,
			NewLine: newBase + i + 1,
		})
	}
	if rest := suffix - tail; rest > 0 {
		rows = append(rows, Line{Kind: KindSeparator, Omitted: rest})
	}

	res := Result{Lines: rows, Stats: st}

	if len(res.Lines) > opts.MaxDisplayLines {
		res.Lines = truncateMiddle(res.Lines, opts.MaxDisplayLines)
		res.Truncated = true
	}
	return res
}

// Summary computes change counts without line diffing the region. It is
// the fallback for documents past the size ceiling and the cheap header
// shown before a full diff is requested.
func Summary(oldText, newText string) Stats {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)
	prefix, suffix := commonEnds(oldLines, newLines)

	oldRegion := oldLines[prefix : len(oldLines)-suffix]
	newRegion := newLines[prefix : len(newLines)-suffix]

	chars := 0
	for _, l := range oldRegion {
		chars += len(l)
	}
	for _, l := range newRegion {
		chars += len(l)
	}
	return Stats{
		Added:        len(newRegion),
		Removed:      len(oldRegion),
		Unchanged:    prefix + suffix,
		ChangedChars: chars,
	}
}

// diffRegion line-diffs the changed middle of the two documents. base is
// the number of stripped prefix lines, used for absolute numbering.
func diffRegion(oldRegion, newRegion []string, base int) []Line {
	oldJoined := joinLines(oldRegion)
	newJoined := joinLines(newRegion)

	dmp := diffmatchpatch.New()
	c1, c2, arr := dmp.DiffLinesToChars(oldJoined, newJoined)
	diffs := dmp.DiffMain(c1, c2, false)
	diffs = dmp.DiffCharsToLines(diffs, arr)

	var rows []Line
	oldNo := base + 1
	newNo := base + 1
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				rows = append(rows, Line{Kind: KindUnchanged, Text: text, OldLine: oldNo, NewLine: newNo})
				oldNo++
				newNo++
			case diffmatchpatch.DiffDelete:
				rows = append(rows, Line{Kind: KindRemoved, Text: text, OldLine: oldNo})
				oldNo++
			case diffmatchpatch.DiffInsert:
				rows = append(rows, Line{Kind: KindAdded, Text: text, NewLine: newNo})
				newNo++
			}
		}
	}
	return rows
}

// collapseRuns replaces unchanged runs longer than twice the context with
// a separator, keeping context lines on each side.
func collapseRuns(rows []Line, context int) []Line {
	keep := 2 * context
	out := make([]Line, 0, len(rows))

	i := 0
	for i < len(rows) {
		if rows[i].Kind != KindUnchanged {
			out = append(out, rows[i])
			i++
			continue
		}
		j := i
		for j < len(rows) && rows[j].Kind == KindUnchanged {
			j++
		}
		run := j - i
		if run <= keep+1 {
			out = append(out, rows[i:j]...)
		} else {
			out = append(out, rows[i:i+context]...)
			out = append(out, Line{Kind: KindSeparator, Omitted: run - keep})
			out = append(out, rows[j-context:j]...)
		}
		i = j
	}
	return out
}

// truncateMiddle keeps the head and tail of an overlong listing.
func truncateMiddle(rows []Line, max int) []Line {
	head := max / 2
	tail := max - head - 1
	omitted := len(rows) - head - tail

	out := make([]Line, 0, max)
	out = append(out, rows[:head]...)
	out = append(out, Line{Kind: KindSeparator, Omitted: omitted})
	out = append(out, rows[len(rows)-tail:]...)
	return out
}

// splitLines breaks a document into lines, treating a trailing newline as
// a terminator rather than an empty final line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(s, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// commonEnds counts shared leading and trailing lines. The suffix never
// overlaps the prefix.
func commonEnds(a, b []string) (prefix, suffix int) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for prefix < n && a[prefix] == b[prefix] {
		prefix++
	}
	for suffix < n-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	return prefix, suffix
}
