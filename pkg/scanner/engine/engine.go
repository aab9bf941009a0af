// Package engine finds pattern matches in text content.
package engine

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
)

const (
	// Ellipsis marks a side of a snippet where the content continues.
	Ellipsis = "..."
	// MatchOpen and MatchClose surround the matched text inside a snippet.
	MatchOpen  = "<mark>"
	MatchClose = "</mark>"
)

// Scan applies every pattern of set to content and returns the matches in pattern order,
// each pattern's matches in content order. contextSize is the snippet window on each side, in characters.
func Scan(content string, set types.PatternSet, contextSize int) []types.MatchRecord {
	matches := []types.MatchRecord{}
	if content == "" || len(set) == 0 {
		return matches
	}

	lines := newLineIndex(content)
	for _, pattern := range set {
		if pattern.Rule == nil {
			continue
		}
		for _, loc := range pattern.Rule.FindAllStringIndex(content, -1) {
			start, end := loc[0], loc[1]
			if start == end {
				continue
			}
			matches = append(matches, types.MatchRecord{
				PatternName: pattern.Name,
				Confidence:  pattern.Confidence,
				Match:       content[start:end],
				LineNumber:  lines.lineAt(start),
				Snippet:     Snippet(content, start, end, contextSize),
			})
		}
	}
	return matches
}

// Snippet renders content[start:end] with up to contextSize characters on each side.
// A side gets an Ellipsis when the window stops before the content bounds.
func Snippet(content string, start int, end int, contextSize int) string {
	windowStart := backRunes(content, start, contextSize)
	windowEnd := forwardRunes(content, end, contextSize)

	var b strings.Builder
	b.Grow(windowEnd - windowStart + len(MatchOpen) + len(MatchClose) + 2*len(Ellipsis))
	if windowStart > 0 {
		b.WriteString(Ellipsis)
	}
	b.WriteString(content[windowStart:start])
	b.WriteString(MatchOpen)
	b.WriteString(content[start:end])
	b.WriteString(MatchClose)
	b.WriteString(content[end:windowEnd])
	if windowEnd < len(content) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

func backRunes(s string, pos int, n int) int {
	for ; n > 0 && pos > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:pos])
		pos -= size
	}
	return pos
}

func forwardRunes(s string, pos int, n int) int {
	for ; n > 0 && pos < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[pos:])
		pos += size
	}
	return pos
}

// lineIndex holds the byte offsets of every newline in a text.
type lineIndex []int

func newLineIndex(content string) lineIndex {
	idx := lineIndex{}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			idx = append(idx, i)
		}
	}
	return idx
}

// lineAt returns the 1-based line of the byte at offset.
func (l lineIndex) lineAt(offset int) int {
	return sort.SearchInts(l, offset) + 1
}

// ContentScanner is what revision and local scanners feed file content into.
type ContentScanner interface {
	Scan(ctx context.Context, content string) []types.MatchRecord
}

// Scanner is the ContentScanner used by leakhound: the loaded PatternSet plus optional TruffleHog detectors.
type Scanner struct {
	patterns    types.PatternSet
	contextSize int
	detectors   *DetectorScanner
}

type Option func(*Scanner)

// WithDetectors appends the findings of d after the regex findings.
func WithDetectors(d *DetectorScanner) Option {
	return func(s *Scanner) {
		s.detectors = d
	}
}

func NewScanner(patterns types.PatternSet, contextSize int, opts ...Option) *Scanner {
	s := &Scanner{patterns: patterns, contextSize: contextSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scanner) Scan(ctx context.Context, content string) []types.MatchRecord {
	matches := Scan(content, s.patterns, s.contextSize)
	if s.detectors != nil {
		matches = append(matches, s.detectors.Scan(ctx, content, s.contextSize)...)
	}
	return matches
}

// Patterns returns the PatternSet the scanner was built with.
func (s *Scanner) Patterns() types.PatternSet {
	return s.patterns
}

// MustCompile builds a single case-insensitive pattern; it is meant for tests and static rule sets.
func MustCompile(name string, expr string) types.Pattern {
	return types.Pattern{Name: name, Rule: regexp.MustCompile("(?i)" + expr)}
}
