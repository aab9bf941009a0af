package scan

import (
	"context"
	"fmt"

	"github.com/CompassSecurity/leakhound/pkg/scanner/engine"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
	"github.com/wandb/parallel"
)

// RevisionScanner fetches and scans every file of one revision concurrently. The fan-out itself is
// unbounded; the Fetcher behind the API enforces the global request ceiling.
type RevisionScanner struct {
	api      GitHubAPI
	resolver *TreeResolver
	scanner  engine.ContentScanner
}

func NewRevisionScanner(api GitHubAPI, resolver *TreeResolver, scanner engine.ContentScanner) *RevisionScanner {
	return &RevisionScanner{api: api, resolver: resolver, scanner: scanner}
}

// ScanRevision returns the files of rev with at least one match, in file list order.
// Files that cannot be fetched or scanned are left out. The error is only set on cancellation.
func (s *RevisionScanner) ScanRevision(ctx context.Context, repo string, rev Revision) (types.RevisionResult, error) {
	result := types.RevisionResult{ID: rev.Ref, URL: rev.URL, Date: rev.Date, Files: []types.FileScanResult{}}

	paths, err := s.resolver.Resolve(ctx, repo, rev)
	if err != nil {
		return result, err
	}
	log.Debug().Str("repo", repo).Str("revision", rev.Ref).Int("files", len(paths)).Msg("Scanning revision")

	found := make([]*types.FileScanResult, len(paths))
	group := parallel.Unlimited(ctx)
	for i, path := range paths {
		group.Go(func(ctx context.Context) {
			found[i] = s.scanFile(ctx, repo, rev, path)
		})
	}
	group.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	for _, f := range found {
		if f != nil {
			result.Files = append(result.Files, *f)
		}
	}
	return result, nil
}

func (s *RevisionScanner) scanFile(ctx context.Context, repo string, rev Revision, path string) (file *types.FileScanResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("repo", repo).Str("revision", rev.Ref).Str("file", path).Err(fmt.Errorf("%v", r)).Msg("Failed scanning file")
			file = nil
		}
	}()

	content, ok, err := s.api.RawFile(ctx, repo, rev.Ref, path)
	if err != nil || !ok {
		log.Trace().Str("repo", repo).Str("revision", rev.Ref).Str("file", path).Msg("Skipped file without text content")
		return nil
	}

	matches := s.scanner.Scan(ctx, content)
	if len(matches) == 0 {
		return nil
	}
	return &types.FileScanResult{FilePath: path, Matches: matches}
}
