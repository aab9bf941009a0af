// Package config provides the scan configuration value shared by every leakhound component.
// It is built once by the CLI and passed by value; nothing in here is mutated after construction.
package config

import (
	"time"
)

const (
	DefaultConcurrency       = 10
	DefaultSnippetContext    = 40
	DefaultRateLimitCooldown = 60 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultCommitPageSize    = 100
	DefaultMaxFileSize       = "10Mb"
)

// CommonScanOptions contains configuration fields that are shared across the remote and local scanners.
type CommonScanOptions struct {
	// ConfidenceFilter filters rules by confidence level
	ConfidenceFilter []string
	// Concurrency is the process-wide ceiling of in-flight requests
	Concurrency int
	// SnippetContext is the number of characters kept on each side of a match
	SnippetContext int
	// RateLimitCooldown is how long a rate limited or failed request waits before it is retried
	RateLimitCooldown time.Duration
	// PollInterval controls how often the supervisor looks for finished tasks
	PollInterval time.Duration
	// CommitPageSize is the page size used when listing commits
	CommitPageSize int
	// MaxFileSize is the largest file (in bytes) that is fetched and scanned
	MaxFileSize int64
	// TruffleHogDetectors adds the TruffleHog detector set on top of the regex rules
	TruffleHogDetectors bool
	IncludeGlobs        []string
	ExcludeGlobs        []string
}

// DefaultCommonScanOptions returns sensible default values for common scan options.
func DefaultCommonScanOptions() CommonScanOptions {
	return CommonScanOptions{
		ConfidenceFilter:    []string{},
		Concurrency:         DefaultConcurrency,
		SnippetContext:      DefaultSnippetContext,
		RateLimitCooldown:   DefaultRateLimitCooldown,
		PollInterval:        DefaultPollInterval,
		CommitPageSize:      DefaultCommitPageSize,
		MaxFileSize:         10_000_000,
		TruffleHogDetectors: false,
		IncludeGlobs:        []string{},
		ExcludeGlobs:        []string{},
	}
}

// HistoryKind selects how much commit history is scanned.
type HistoryKind int

const (
	HistoryDisabled HistoryKind = iota
	HistoryLimit
	HistoryAll
)

func (k HistoryKind) String() string {
	switch k {
	case HistoryDisabled:
		return "disabled"
	case HistoryLimit:
		return "limit"
	case HistoryAll:
		return "all"
	default:
		return "unknown"
	}
}

// HistoryMode is the history selection of one scan. Limit is only meaningful for HistoryLimit.
type HistoryMode struct {
	Kind  HistoryKind
	Limit int
}

// NoHistory scans HEAD only.
func NoHistory() HistoryMode {
	return HistoryMode{Kind: HistoryDisabled}
}

// LastCommits scans the n most recent commits.
func LastCommits(n int) HistoryMode {
	return HistoryMode{Kind: HistoryLimit, Limit: n}
}

// AllCommits scans every commit, paginating until the source runs out.
func AllCommits() HistoryMode {
	return HistoryMode{Kind: HistoryAll}
}

// Enabled reports whether any commit is scanned.
func (m HistoryMode) Enabled() bool {
	switch m.Kind {
	case HistoryAll:
		return true
	case HistoryLimit:
		return m.Limit > 0
	default:
		return false
	}
}
