package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
)

var repositoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidateURL validates that a string is a valid URL.
func ValidateURL(urlStr string, fieldName string) error {
	if urlStr == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", fieldName, err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("%s must include a scheme (http/https)", fieldName)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	return nil
}

// ParseMaxFileSize parses a human-readable size string (e.g., "10Mb", "1GB") into bytes.
func ParseMaxFileSize(sizeStr string) (int64, error) {
	size, err := units.FromHumanSize(sizeStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse max file size: %w", err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("max file size must be positive, got %q", sizeStr)
	}
	return size, nil
}

// ValidateToken validates that a token is not empty.
func ValidateToken(token string, fieldName string) error {
	if token == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateThreadCount validates that the thread count is within acceptable bounds.
func ValidateThreadCount(threads int) error {
	if threads < 1 {
		return fmt.Errorf("thread count must be at least 1, got %d", threads)
	}
	if threads > 100 {
		return fmt.Errorf("thread count too high (max 100), got %d", threads)
	}
	return nil
}

// ValidateGlobs checks that every pattern is a valid doublestar glob.
func ValidateGlobs(patterns []string, fieldName string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid %s glob %q", fieldName, p)
		}
	}
	return nil
}

// ValidateRepositoryName checks the owner/name form of a repository identifier.
func ValidateRepositoryName(name string) error {
	if !repositoryNamePattern.MatchString(strings.TrimSpace(name)) {
		return fmt.Errorf("repository %q must be in the form owner/name", name)
	}
	return nil
}

// ParseHistoryFlags maps the --commits and --all-commits flags to a HistoryMode.
func ParseHistoryFlags(commits int, allCommits bool) (HistoryMode, error) {
	if commits < 0 {
		return HistoryMode{}, fmt.Errorf("commit count cannot be negative, got %d", commits)
	}
	if allCommits && commits > 0 {
		return HistoryMode{}, fmt.Errorf("--commits and --all-commits are mutually exclusive")
	}
	if allCommits {
		return AllCommits(), nil
	}
	if commits > 0 {
		return LastCommits(commits), nil
	}
	return NoHistory(), nil
}
