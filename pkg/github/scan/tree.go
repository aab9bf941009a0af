package scan

import (
	"context"

	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/rs/zerolog/log"
)

// TreeResolver lists the files a revision scan fetches.
type TreeResolver struct {
	api    GitHubAPI
	filter format.PathFilter
}

func NewTreeResolver(api GitHubAPI, filter format.PathFilter) *TreeResolver {
	return &TreeResolver{api: api, filter: filter}
}

// Resolve returns the full blob listing for HEAD. For a commit it returns the changed files without
// removed ones, falling back to the complete tree at that commit when GitHub provides no file list.
// The fallback attributes every match of that tree to the commit; dedup against newer revisions absorbs most of it.
// An empty list is not an error.
func (r *TreeResolver) Resolve(ctx context.Context, repo string, rev Revision) ([]string, error) {
	paths, err := r.resolve(ctx, repo, rev)
	if err != nil {
		return nil, err
	}
	return r.filter.Apply(paths), nil
}

func (r *TreeResolver) resolve(ctx context.Context, repo string, rev Revision) ([]string, error) {
	if !rev.Commit {
		paths, found, err := r.api.Tree(ctx, repo, rev.Ref)
		if err != nil {
			return nil, err
		}
		if !found {
			log.Info().Str("repo", repo).Str("ref", rev.Ref).Msg("No tree found, repository is empty or unavailable")
		}
		return paths, nil
	}

	detail, found, err := r.api.Commit(ctx, repo, rev.Ref)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Debug().Str("repo", repo).Str("commit", rev.Ref).Msg("No commit details")
		return []string{}, nil
	}

	if detail.HasFileList {
		return detail.ChangedFiles, nil
	}

	if detail.TreeSHA == "" {
		log.Debug().Str("repo", repo).Str("commit", rev.Ref).Msg("Commit has neither file list nor tree")
		return []string{}, nil
	}

	log.Debug().Str("repo", repo).Str("commit", rev.Ref).Str("tree", detail.TreeSHA).Msg("No file list for commit, scanning full tree")
	paths, _, err := r.api.Tree(ctx, repo, detail.TreeSHA)
	return paths, err
}
