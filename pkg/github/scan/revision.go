package scan

import (
	"context"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/github/api"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
)

// Revision is the ref a RevisionScanner works on: HEAD (or any branch/tag) or a single commit.
type Revision struct {
	Ref    string
	Commit bool
	URL    string
	Date   *time.Time
}

func Head() Revision {
	return Revision{Ref: types.RevisionHEAD}
}

func CommitRevision(c api.CommitRef) Revision {
	return Revision{Ref: c.SHA, Commit: true, URL: c.URL, Date: c.Date}
}

// GitHubAPI are the upstream capabilities the scanners depend on. *api.Client implements it.
type GitHubAPI interface {
	RateLimitRemaining(ctx context.Context) (int, bool, error)
	Tree(ctx context.Context, repo string, ref string) ([]string, bool, error)
	RawFile(ctx context.Context, repo string, ref string, path string) (string, bool, error)
	Commits(ctx context.Context, repo string, page int, perPage int) ([]api.CommitRef, error)
	Commit(ctx context.Context, repo string, sha string) (api.CommitDetail, bool, error)
}

var _ GitHubAPI = (*api.Client)(nil)
