package api

import (
	"context"
	"fmt"

	"github.com/google/go-github/v69/github"
	"github.com/perimeterx/marshmallow"
	"github.com/rs/zerolog/log"
)

const fileStatusRemoved = "removed"

// CommitDetail is the part of a single commit the scanners need.
type CommitDetail struct {
	SHA     string
	TreeSHA string
	// ChangedFiles lists the files the commit touched, without removed ones.
	ChangedFiles []string
	// HasFileList is false when GitHub returned no file level diff (large and merge commits).
	HasFileList bool
}

// Commit fetches the detail of one commit. found is false when GitHub returned nothing usable.
func (c *Client) Commit(ctx context.Context, repo string, sha string) (detail CommitDetail, found bool, err error) {
	endpoint := fmt.Sprintf("%s/repos/%s/commits/%s", c.apiURL, escapeRepo(repo), escapePath(sha))
	result, err := c.fetcher.FetchJSON(ctx, endpoint, c.apiHeaders)
	if err != nil {
		return CommitDetail{}, false, err
	}
	if !result.IsObject() {
		return CommitDetail{}, false, nil
	}

	commit := github.RepositoryCommit{}
	if _, err := marshmallow.Unmarshal([]byte(result.Raw), &commit); err != nil {
		log.Error().Err(err).Str("repo", repo).Str("sha", sha).Msg("Failed decoding commit details")
		return CommitDetail{}, false, nil
	}

	return newCommitDetail(&commit), true, nil
}

func newCommitDetail(commit *github.RepositoryCommit) CommitDetail {
	detail := CommitDetail{
		SHA:          commit.GetSHA(),
		TreeSHA:      commit.GetCommit().GetTree().GetSHA(),
		ChangedFiles: []string{},
		HasFileList:  len(commit.Files) > 0,
	}

	for _, f := range commit.Files {
		if f.GetStatus() == fileStatusRemoved || f.GetFilename() == "" {
			continue
		}
		detail.ChangedFiles = append(detail.ChangedFiles, f.GetFilename())
	}
	return detail
}
