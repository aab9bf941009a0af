package result

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
)

// TaskReport records a repository that did not complete.
type TaskReport struct {
	Repository string `json:"repo_full_name"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
}

// Report is the batch handed to renderers: completed repositories in completion order
// plus the repositories that were skipped or failed.
type Report struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	Interrupted  bool                     `json:"interrupted"`
	Repositories []types.RepositoryResult `json:"repositories"`
	Incomplete   []TaskReport             `json:"incomplete"`
}

// Summary counts the matches over the whole report.
func (r Report) Summary() (repositories int, matches int) {
	for _, repo := range r.Repositories {
		matches += repo.Head.MatchCount()
		for _, rev := range repo.History {
			matches += rev.MatchCount()
		}
	}
	return len(r.Repositories), matches
}

// WriteJSON writes the report to path, readable by the current user only.
func WriteJSON(path string, report Report) error {
	if report.Repositories == nil {
		report.Repositories = []types.RepositoryResult{}
	}
	if report.Incomplete == nil {
		report.Incomplete = []TaskReport{}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed encoding report: %w", err)
	}

	// #nosec G304 - output path is provided by the operator
	if err := os.WriteFile(path, data, format.FileUserReadWrite); err != nil {
		return fmt.Errorf("failed writing report %s: %w", path, err)
	}

	repos, matches := report.Summary()
	log.Info().Str("file", path).Int("repositories", repos).Int("matches", matches).Msg("Wrote results")
	return nil
}
