package types

import (
	"regexp"
	"time"
)

const (
	// RevisionHEAD identifies the default branch tip of a repository.
	RevisionHEAD = "HEAD"
	// RevisionLocal identifies content read from the local filesystem.
	RevisionLocal = "LOCAL"
)

// SecretsPatterns mirrors the secrets-patterns-db rule file layout.
type SecretsPatterns struct {
	Patterns []PatternElement `json:"patterns" yaml:"patterns"`
}

type PatternElement struct {
	Pattern PatternPattern `json:"pattern" yaml:"pattern"`
}

type PatternPattern struct {
	Name       string `json:"name" yaml:"name"`
	Regex      string `json:"regex" yaml:"regex"`
	Confidence string `json:"confidence" yaml:"confidence"`
}

// Pattern is a compiled detection rule. It is read-only after loading.
type Pattern struct {
	Name       string
	Confidence string
	Rule       *regexp.Regexp
}

// PatternSet is the ordered list of rules a scan applies. An empty set is valid.
type PatternSet []Pattern

// Names returns the rule names in load order.
func (ps PatternSet) Names() []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	return names
}

// MatchRecord is one regex occurrence inside one file.
type MatchRecord struct {
	PatternName string `json:"pattern_name"`
	Confidence  string `json:"confidence,omitempty"`
	Match       string `json:"match"`
	LineNumber  int    `json:"line_number"`
	Snippet     string `json:"snippet"`
}

// FileScanResult groups the matches of a single file. It is only emitted with at least one match.
type FileScanResult struct {
	FilePath string        `json:"file_path"`
	Matches  []MatchRecord `json:"matches"`
}

// RevisionResult holds the findings of one scanned revision (HEAD, a commit or local content).
type RevisionResult struct {
	ID    string           `json:"revision"`
	URL   string           `json:"url,omitempty"`
	Date  *time.Time       `json:"date,omitempty"`
	Files []FileScanResult `json:"files"`
}

// MatchCount returns the number of match records over all files.
func (r RevisionResult) MatchCount() int {
	count := 0
	for _, f := range r.Files {
		count += len(f.Matches)
	}
	return count
}

// IsEmpty reports whether the revision carries no findings.
func (r RevisionResult) IsEmpty() bool {
	return len(r.Files) == 0
}

// RepositoryResult is the complete, deduplicated outcome of scanning one repository.
// History is ordered newest first.
type RepositoryResult struct {
	Repository string           `json:"repo_full_name"`
	Head       RevisionResult   `json:"head"`
	History    []RevisionResult `json:"history"`
}

// Signature identifies a finding for deduplication across revisions.
type Signature struct {
	FilePath    string
	PatternName string
	Match       string
}

// SignatureOf builds the dedup identity of a match found in filePath.
func SignatureOf(filePath string, m MatchRecord) Signature {
	return Signature{FilePath: filePath, PatternName: m.PatternName, Match: m.Match}
}
