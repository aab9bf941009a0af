package result

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/CompassSecurity/leakhound/pkg/logging"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/acarl005/stripansi"
)

type ReportOptions struct {
	// WebURL is the GitHub web root used for blob links. Empty disables links.
	WebURL string
	// Type overrides the secret type derived from the revision.
	Type logging.SecretType
}

// ReportRepository emits one hit per match of the repository, HEAD first, then history newest first.
func ReportRepository(r types.RepositoryResult, opts ReportOptions) {
	ReportRevision(r.Repository, r.Head, opts)
	for _, rev := range r.History {
		ReportRevision(r.Repository, rev, opts)
	}
}

func ReportRevision(repo string, rev types.RevisionResult, opts ReportOptions) {
	secretType := opts.Type
	if secretType == "" {
		secretType = logging.SecretTypeCommit
		if rev.ID == types.RevisionHEAD {
			secretType = logging.SecretTypeHead
		}
	}

	for _, f := range rev.Files {
		for _, m := range f.Matches {
			ReportMatch(repo, rev, f.FilePath, m, secretType, opts.WebURL)
		}
	}
}

func ReportMatch(repo string, rev types.RevisionResult, filePath string, m types.MatchRecord, secretType logging.SecretType, webURL string) {
	event := logging.Hit().
		Type(secretType).
		Str("confidence", m.Confidence).
		Str("ruleName", m.PatternName).
		Str("value", m.Match).
		Str("file", filePath).
		Int("line", m.LineNumber).
		Str("snippet", CleanSnippet(m.Snippet))

	if repo != "" {
		event = event.Str("repo", repo)
	}
	if rev.ID != "" {
		event = event.Str("revision", rev.ID)
	}
	if webURL != "" && repo != "" {
		event = event.Str("url", BlobURL(webURL, repo, rev.ID, filePath, m.LineNumber))
	}

	event.Msg("SECRET")
}

// CleanSnippet makes a snippet safe for a single log line. The match record is not changed.
func CleanSnippet(snippet string) string {
	return format.SingleLine(stripansi.Strip(snippet))
}

// BlobURL links to the line of a file at a revision, e.g. https://github.com/o/r/blob/HEAD/a.txt#L3.
func BlobURL(webURL string, repo string, revision string, filePath string, line int) string {
	segments := strings.Split(filePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	link := fmt.Sprintf("%s/%s/blob/%s/%s", strings.TrimSuffix(webURL, "/"), repo, url.PathEscape(revision), strings.Join(segments, "/"))
	if line > 0 {
		link = fmt.Sprintf("%s#L%d", link, line)
	}
	return link
}
