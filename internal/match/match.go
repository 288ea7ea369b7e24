// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package match locates model-provided search text inside a draft and
// computes replacements. Strategies escalate from exact matching through
// newline and whitespace normalization to a scored fuzzy window scan, and
// every located span maps back to byte offsets in the original text so
// replacements splice without disturbing untouched bytes.
package match

import (
	"fmt"
	"sort"
	"strings"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Strategy names which matching stage located the span.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyNormalized Strategy = "normalized"
	StrategyWhitespace Strategy = "whitespace"
	StrategyFuzzy      Strategy = "fuzzy"
)

const (
	// DefaultFuzzyThreshold is the minimum window score accepted by the
	// fuzzy stage.
	DefaultFuzzyThreshold = 0.82
	// DefaultMaxCandidates bounds how many fuzzy windows are retained.
	DefaultMaxCandidates = 20

	maxFuzzyStep   = 1024
	previewLimit   = 5
	previewContext = 2
	minFuzzySearch = 3
)

// Options tune a single Find or Replace invocation.
type Options struct {
	// ReplaceAll replaces every located occurrence instead of requiring
	// a unique one.
	ReplaceAll bool
	// Occurrence selects the Nth match (1-based) when the search text
	// appears more than once. Zero means unset.
	Occurrence int
	// StartLine and EndLine restrict the search to a 1-based inclusive
	// line range of the document. Zero means unbounded on that side.
	StartLine int
	EndLine   int
	// FuzzyThreshold overrides DefaultFuzzyThreshold when positive.
	FuzzyThreshold float64
	// MaxCandidates overrides DefaultMaxCandidates when positive.
	MaxCandidates int
}

// Span is a half-open byte range into the original document.
type Span struct {
	Start int
	End   int
}

// Preview shows one candidate occurrence with surrounding context, for
// disambiguation messages sent back to the model.
type Preview struct {
	Line    int    // 1-based line of the occurrence start
	Snippet string // occurrence with up to two context lines each side
}

// Result reports what a Find located, or why it failed.
type Result struct {
	Found    bool
	Strategy Strategy
	Count    int
	Spans    []Span // position order; Spans[0] is the selected occurrence
	Score    float64
	Warnings []string
	Previews []Preview
	Hints    []string
}

// Find locates search inside doc. It never mutates anything; Replace
// builds on it.
func Find(doc, search string, opts Options) Result {
	if search == "" {
		return Result{Warnings: []string{"search text is empty"}}
	}

	region, regionRes := narrowRegion(doc, opts)
	if regionRes != nil {
		return *regionRes
	}

	var warnings []string

	// Stage 1: exact.
	if spans := indexAll(doc, search, region); len(spans) > 0 {
		return selectSpans(doc, spans, StrategyExact, 0, warnings, opts)
	}
	warnings = append(warnings, "no exact match")

	// Stage 2: newline normalization plus line-number prefix stripping.
	normDoc, normMap := normalizeNewlines(doc[region.Start:region.End])
	normSearch, _ := normalizeNewlines(search)
	if stripped, ok := stripLineNumbers(normSearch); ok {
		normSearch = stripped
		warnings = append(warnings, "stripped line-number prefixes from search text")
	}
	if spans := indexAllMapped(normDoc, normSearch, normMap, region.Start, doc); len(spans) > 0 {
		return selectSpans(doc, spans, StrategyNormalized, 0, warnings, opts)
	}
	warnings = append(warnings, "no match after newline normalization")

	// Stage 3: whitespace collapsing on both sides.
	wsDoc, wsMap := collapseWhitespace(normDoc)
	wsSearch, _ := collapseWhitespace(normSearch)
	composed := composeMaps(wsMap, normMap)
	if spans := indexAllMapped(wsDoc, wsSearch, composed, region.Start, doc); len(spans) > 0 {
		return selectSpans(doc, spans, StrategyWhitespace, 0, warnings, opts)
	}
	warnings = append(warnings, "no match after whitespace normalization")

	// Stage 4: fuzzy window scan over the whitespace-normalized text.
	if len(wsSearch) >= minFuzzySearch {
		cands := fuzzyScan(wsDoc, wsSearch, opts)
		if len(cands) > 0 {
			spans := make([]Span, 0, len(cands))
			for _, c := range cands {
				spans = append(spans, mapSpan(c.span, composed, region.Start, doc))
			}
			sortSpans(spans)
			warnings = append(warnings, fmt.Sprintf("approximate match (best score %.2f)", cands[0].score))
			// Approximate spans are never bulk-replaced; several
			// candidates always need explicit disambiguation.
			fuzzyOpts := opts
			fuzzyOpts.ReplaceAll = false
			return selectSpans(doc, spans, StrategyFuzzy, cands[0].score, warnings, fuzzyOpts)
		}
	}
	warnings = append(warnings, "no approximate match above threshold")

	return Result{Warnings: warnings, Hints: notFoundHints(doc, search)}
}

// Replace computes the document text after substituting replacement for
// the located occurrence(s) of search. The original text is never edited
// in place; the returned string is a fresh value.
func Replace(doc, search, replacement string, opts Options) (string, Result, error) {
	res := Find(doc, search, opts)
	if !res.Found {
		if res.Count > 1 {
			return "", res, inkerr.New(inkerr.CodeMatchAmbiguous,
				fmt.Sprintf("search text matches %d locations", res.Count))
		}
		return "", res, inkerr.New(inkerr.CodeMatchNotFound, "search text not found")
	}

	spans := res.Spans
	if !opts.ReplaceAll || opts.Occurrence > 0 || res.Strategy == StrategyFuzzy {
		spans = spans[:1]
	}

	var b strings.Builder
	b.Grow(len(doc) + len(replacement))
	prev := 0
	for _, sp := range spans {
		b.WriteString(doc[prev:sp.Start])
		b.WriteString(replacement)
		prev = sp.End
	}
	b.WriteString(doc[prev:])
	return b.String(), res, nil
}

// FailureMessage renders a failed Result as an actionable message for the
// model that issued the edit.
func (r Result) FailureMessage() string {
	var b strings.Builder
	if r.Count > 1 {
		fmt.Fprintf(&b, "The search text matches %d locations in the draft. Pick one:\n", r.Count)
		for i, p := range r.Previews {
			fmt.Fprintf(&b, "\nOccurrence %d (line %d):\n%s\n", i+1, p.Line, p.Snippet)
		}
	} else {
		b.WriteString("The search text was not found in the draft.")
		for _, w := range r.Warnings {
			b.WriteString("\n- " + w)
		}
	}
	if len(r.Hints) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, h := range r.Hints {
			b.WriteString("\n- " + h)
		}
	}
	return b.String()
}

type region struct {
	Start int
	End   int
}

// narrowRegion resolves the Start/End line options to a byte range. A non
// nil Result means the range itself is unusable.
func narrowRegion(doc string, opts Options) (region, *Result) {
	r := region{Start: 0, End: len(doc)}
	if opts.StartLine <= 0 && opts.EndLine <= 0 {
		return r, nil
	}

	starts := lineStarts(doc)
	total := len(starts)

	if opts.StartLine > total {
		return r, &Result{Warnings: []string{
			fmt.Sprintf("start_line %d is beyond the document (%d lines)", opts.StartLine, total),
		}}
	}
	if opts.StartLine > 0 {
		r.Start = starts[opts.StartLine-1]
	}
	if opts.EndLine > 0 && opts.EndLine < total {
		r.End = starts[opts.EndLine] // start of the following line
	}
	if opts.EndLine > 0 && opts.StartLine > 0 && opts.EndLine < opts.StartLine {
		return r, &Result{Warnings: []string{
			fmt.Sprintf("end_line %d precedes start_line %d", opts.EndLine, opts.StartLine),
		}}
	}
	return r, nil
}

// selectSpans applies occurrence selection and uniqueness rules to the
// located spans.
func selectSpans(doc string, spans []Span, strategy Strategy, score float64, warnings []string, opts Options) Result {
	res := Result{
		Strategy: strategy,
		Count:    len(spans),
		Spans:    spans,
		Score:    score,
		Warnings: warnings,
	}

	if opts.Occurrence > 0 {
		if opts.Occurrence > len(spans) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("occurrence %d requested but only %d found", opts.Occurrence, len(spans)))
			return res
		}
		chosen := spans[opts.Occurrence-1]
		rest := make([]Span, 0, len(spans))
		rest = append(rest, chosen)
		for i, sp := range spans {
			if i != opts.Occurrence-1 {
				rest = append(rest, sp)
			}
		}
		res.Spans = rest
		res.Found = true
		return res
	}

	if len(spans) == 1 || opts.ReplaceAll {
		res.Found = true
		return res
	}

	// Ambiguous: more than one occurrence and the caller wants exactly one.
	res.Previews = buildPreviews(doc, spans)
	res.Hints = ambiguityHints()
	return res
}

func ambiguityHints() []string {
	return []string{
		"include more surrounding lines in the search text to pinpoint one occurrence",
		"set replace_all to true to change every occurrence",
		"set occurrence to N to target the Nth match",
		"narrow the edit with start_line and end_line",
	}
}

func notFoundHints(doc, search string) []string {
	var hints []string
	if strings.Contains(strings.ToLower(doc), strings.ToLower(strings.TrimSpace(search))) {
		hints = append(hints, "the text appears with different letter casing; match the draft exactly")
	}
	hints = append(hints, "read the draft again and copy the search text verbatim")
	return hints
}

// buildPreviews renders up to previewLimit occurrences with context lines.
func buildPreviews(doc string, spans []Span) []Preview {
	lines := strings.Split(doc, "\n")
	starts := lineStarts(doc)

	previews := make([]Preview, 0, previewLimit)
	for _, sp := range spans {
		if len(previews) >= previewLimit {
			break
		}
		first := lineOfOffset(starts, sp.Start)
		last := lineOfOffset(starts, maxInt(sp.Start, sp.End-1))

		from := maxInt(0, first-previewContext)
		to := minInt(len(lines)-1, last+previewContext)

		var b strings.Builder
		for i := from; i <= to; i++ {
			fmt.Fprintf(&b, "%d: %s", i+1, lines[i])
			if i < to {
				b.WriteByte('\n')
			}
		}
		previews = append(previews, Preview{Line: first + 1, Snippet: b.String()})
	}
	return previews
}

// indexAll finds every non-overlapping occurrence of search in doc within
// the region.
func indexAll(doc, search string, r region) []Span {
	var spans []Span
	off := r.Start
	for off <= r.End-len(search) {
		i := strings.Index(doc[off:r.End], search)
		if i < 0 {
			break
		}
		start := off + i
		spans = append(spans, Span{Start: start, End: start + len(search)})
		off = start + len(search)
	}
	return spans
}

// indexAllMapped finds occurrences in normalized text and maps the spans
// back to original byte offsets.
func indexAllMapped(norm, search string, m []int, base int, doc string) []Span {
	if search == "" {
		return nil
	}
	var spans []Span
	off := 0
	for off <= len(norm)-len(search) {
		i := strings.Index(norm[off:], search)
		if i < 0 {
			break
		}
		start := off + i
		spans = append(spans, mapSpan(Span{Start: start, End: start + len(search)}, m, base, doc))
		off = start + len(search)
	}
	return spans
}

// mapSpan translates a span in normalized space to original offsets. A
// span ending on the newline of a collapsed CRLF pair extends past the
// pair so a replacement consumes both bytes.
func mapSpan(sp Span, m []int, base int, doc string) Span {
	if sp.End <= sp.Start || len(m) == 0 {
		return Span{Start: base, End: base}
	}
	start := m[sp.Start]
	last := m[sp.End-1]
	end := last + 1
	if o := base + last; o+1 < len(doc) && doc[o] == '\r' && doc[o+1] == '\n' {
		end = last + 2
	}
	return Span{Start: base + start, End: base + end}
}

// composeMaps chains an inner map (applied first) under an outer one, so
// outer[i] indexes into inner's input space.
func composeMaps(outer, inner []int) []int {
	composed := make([]int, len(outer))
	for i, v := range outer {
		composed[i] = inner[v]
	}
	return composed
}

// normalizeNewlines rewrites CRLF and bare CR to LF. The returned map
// gives, for each normalized byte, the offset of the original byte that
// produced it.
func normalizeNewlines(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	m := make([]int, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\r' {
			b.WriteByte('\n')
			m = append(m, i)
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}
		b.WriteByte(c)
		m = append(m, i)
	}
	return b.String(), m
}

// collapseWhitespace collapses runs of spaces and tabs between words into
// a single space. Leading indentation is kept byte for byte so lines that
// differ only in depth stay distinct; trailing runs are dropped.
func collapseWhitespace(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	m := make([]int, 0, len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' {
			j := i
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			atLineStart := i == 0 || s[i-1] == '\n'
			atLineEnd := j == len(s) || s[j] == '\n'
			switch {
			case atLineStart:
				for k := i; k < j; k++ {
					b.WriteByte(s[k])
					m = append(m, k)
				}
			case atLineEnd:
				// Trailing whitespace never blocks a match.
			default:
				b.WriteByte(' ')
				m = append(m, i)
			}
			i = j
			continue
		}
		b.WriteByte(c)
		m = append(m, i)
		i++
	}
	return b.String(), m
}

// stripLineNumbers removes "N:", "N.", "N|" or "N<tab>" prefixes when
// every non-empty line of s carries one. Models copy these from numbered
// document reads.
func stripLineNumbers(s string) (string, bool) {
	lines := strings.Split(s, "\n")
	any := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, ok := splitLineNumber(line); !ok {
			return s, false
		}
		any = true
	}
	if !any {
		return s, false
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		rest, _ := splitLineNumber(line)
		out[i] = rest
	}
	return strings.Join(out, "\n"), true
}

// splitLineNumber strips one leading line-number prefix from a single
// line, returning the remainder.
func splitLineNumber(line string) (string, bool) {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	d := i
	for d < len(line) && line[d] >= '0' && line[d] <= '9' {
		d++
	}
	if d == i {
		return "", false
	}
	if d >= len(line) {
		return "", false
	}
	switch line[d] {
	case ':', '.', '|':
		rest := line[d+1:]
		rest = strings.TrimPrefix(rest, " ")
		return rest, true
	case '\t':
		return line[d+1:], true
	default:
		return "", false
	}
}

type fuzzyCandidate struct {
	span  Span
	score float64
}

// fuzzyScan slides a search-sized window across doc, scoring each window
// against the search text. Candidates at or above the threshold are
// deduplicated by overlap, ranked by score, and capped.
func fuzzyScan(doc, search string, opts Options) []fuzzyCandidate {
	threshold := opts.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	maxCands := opts.MaxCandidates
	if maxCands <= 0 {
		maxCands = DefaultMaxCandidates
	}

	winLen := len(search)
	if winLen > len(doc) {
		winLen = len(doc)
	}
	if winLen == 0 {
		return nil
	}
	step := len(search) / 10
	if step < 1 {
		step = 1
	}
	if step > maxFuzzyStep {
		step = maxFuzzyStep
	}

	searchHist := histogram(search)

	var cands []fuzzyCandidate
	lastStart := -1
	for start := 0; start+winLen <= len(doc); start += step {
		window := doc[start : start+winLen]
		score := windowScore(window, search, searchHist)
		if score >= threshold {
			cands = append(cands, fuzzyCandidate{span: Span{Start: start, End: start + winLen}, score: score})
		}
		lastStart = start
	}
	// Evaluate a final window against the document end when the step
	// skipped over it.
	if final := len(doc) - winLen; final >= 0 && final != lastStart {
		window := doc[final:]
		score := windowScore(window, search, searchHist)
		if score >= threshold {
			cands = append(cands, fuzzyCandidate{span: Span{Start: final, End: len(doc)}, score: score})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	var kept []fuzzyCandidate
	for _, c := range cands {
		if len(kept) >= maxCands {
			break
		}
		overlap := false
		for _, k := range kept {
			if c.span.Start < k.span.End && k.span.Start < c.span.End {
				overlap = true
				break
			}
		}
		if !overlap {
			kept = append(kept, c)
		}
	}
	return kept
}

// windowScore combines positional, character-set, and length similarity.
func windowScore(window, search string, searchHist [256]int) float64 {
	longer := len(window)
	if len(search) > longer {
		longer = len(search)
	}
	if longer == 0 {
		return 0
	}

	shorter := len(window)
	if len(search) < shorter {
		shorter = len(search)
	}
	same := 0
	for i := 0; i < shorter; i++ {
		if window[i] == search[i] {
			same++
		}
	}
	positional := float64(same) / float64(longer)

	winHist := histogram(window)
	overlap := 0
	for b := 0; b < 256; b++ {
		if winHist[b] < searchHist[b] {
			overlap += winHist[b]
		} else {
			overlap += searchHist[b]
		}
	}
	charset := float64(overlap) / float64(longer)

	length := float64(shorter) / float64(longer)

	return 0.6*positional + 0.3*charset + 0.1*length
}

func histogram(s string) [256]int {
	var h [256]int
	for i := 0; i < len(s); i++ {
		h[s[i]]++
	}
	return h
}

// lineStarts returns the byte offset of each line start.
func lineStarts(doc string) []int {
	starts := []int{0}
	for i := 0; i < len(doc); i++ {
		if doc[i] == '\n' && i+1 < len(doc) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOfOffset returns the 0-based line containing the byte offset.
func lineOfOffset(starts []int, off int) int {
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > off })
	return i - 1
}

func sortSpans(spans []Span) {
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
