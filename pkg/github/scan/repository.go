package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
)

var ErrInvalidRepository = errors.New("invalid repository, expected owner/name")

// RepositoryScanner produces the deduplicated result of one repository: HEAD plus the selected history.
type RepositoryScanner struct {
	api      GitHubAPI
	revision *RevisionScanner
	history  *HistoryWalker
	mode     config.HistoryMode
}

func NewRepositoryScanner(api GitHubAPI, revision *RevisionScanner, history *HistoryWalker, mode config.HistoryMode) *RepositoryScanner {
	return &RepositoryScanner{api: api, revision: revision, history: history, mode: mode}
}

func (s *RepositoryScanner) ScanRepository(ctx context.Context, repo string) (types.RepositoryResult, error) {
	if err := config.ValidateRepositoryName(repo); err != nil {
		return types.RepositoryResult{}, fmt.Errorf("%w: %s", ErrInvalidRepository, repo)
	}

	if remaining, ok, err := s.api.RateLimitRemaining(ctx); err != nil {
		return types.RepositoryResult{}, err
	} else if ok {
		log.Debug().Str("repo", repo).Int("rateLimitRemaining", remaining).Msg("Starting repository scan")
	}

	head, err := s.revision.ScanRevision(ctx, repo, Head())
	if err != nil {
		return types.RepositoryResult{}, err
	}

	history := []types.RevisionResult{}
	if s.mode.Enabled() {
		history, err = s.history.Walk(ctx, repo, head, s.mode)
		if err != nil {
			return types.RepositoryResult{}, err
		}
	}

	log.Info().Str("repo", repo).Int("headMatches", head.MatchCount()).Int("commits", len(history)).Msg("Scanned repository")
	return types.RepositoryResult{Repository: repo, Head: head, History: history}, nil
}
