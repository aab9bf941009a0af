package scan

import (
	"context"

	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/github/api"
	"github.com/CompassSecurity/leakhound/pkg/scanner/dedup"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
)

// HistoryWalker enumerates commits newest first and scans them one after another.
type HistoryWalker struct {
	api      GitHubAPI
	revision *RevisionScanner
	pageSize int
}

func NewHistoryWalker(api GitHubAPI, revision *RevisionScanner, pageSize int) *HistoryWalker {
	if pageSize < 1 {
		pageSize = config.DefaultCommitPageSize
	}
	return &HistoryWalker{api: api, revision: revision, pageSize: pageSize}
}

// Commits lists the commits selected by mode. Pagination stops at the first empty page,
// and in limit mode as soon as enough commits were collected.
func (w *HistoryWalker) Commits(ctx context.Context, repo string, mode config.HistoryMode) ([]api.CommitRef, error) {
	commits := []api.CommitRef{}
	if !mode.Enabled() {
		return commits, nil
	}

	perPage := w.pageSize
	if mode.Kind == config.HistoryLimit {
		perPage = min(mode.Limit, w.pageSize)
	}

	for page := 1; ; page++ {
		batch, err := w.api.Commits(ctx, repo, page, perPage)
		if err != nil {
			return commits, err
		}
		if len(batch) == 0 {
			break
		}

		commits = append(commits, batch...)
		if mode.Kind == config.HistoryLimit && len(commits) >= mode.Limit {
			return commits[:mode.Limit], nil
		}
	}
	return commits, nil
}

// Walk scans the selected commits sequentially in listing order and deduplicates them against head.
// Cancellation aborts the walk and returns the context error.
func (w *HistoryWalker) Walk(ctx context.Context, repo string, head types.RevisionResult, mode config.HistoryMode) ([]types.RevisionResult, error) {
	commits, err := w.Commits(ctx, repo, mode)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("repo", repo).Int("commits", len(commits)).Str("mode", mode.Kind.String()).Msg("Walking history")

	history := make([]types.RevisionResult, 0, len(commits))
	for _, c := range commits {
		result, err := w.revision.ScanRevision(ctx, repo, CommitRevision(c))
		if err != nil {
			return nil, err
		}
		history = append(history, result)
	}

	return dedup.Deduplicate(head, history), nil
}
