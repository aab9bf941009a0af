// Package api is the leakhound view of the GitHub REST API: rate limit status, user repositories,
// recursive trees, raw file content, commit lists and commit details.
// Plain data requests go through the rate limited httpclient.Fetcher; repository enumeration and
// the status shortcut use go-github sharing the Fetcher's concurrency ceiling.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/httpclient"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_primary_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_secondary_ratelimit"
	"github.com/google/go-github/v69/github"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultAPIURL = "https://api.github.com"
	DefaultRawURL = "https://raw.githubusercontent.com"
	// DefaultWebURL is used to build links to findings.
	DefaultWebURL = "https://github.com"

	acceptHeader = "application/vnd.github.v3+json"
	reposPerPage = 100

	primaryResetGrace = 30 * time.Second
)

// Fetcher is the subset of httpclient.Fetcher the API client needs.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, headers map[string]string) (gjson.Result, error)
	FetchText(ctx context.Context, url string, headers map[string]string) (string, bool, error)
}

// Client issues the GitHub requests of one scan. It is safe for concurrent use.
type Client struct {
	fetcher    Fetcher
	gh         *github.Client
	apiURL     string
	rawURL     string
	apiHeaders map[string]string
	rawHeaders map[string]string
}

// Options configures NewClient. Empty URLs fall back to the public GitHub endpoints.
type Options struct {
	Token  string
	APIURL string
	RawURL string
	// Transport is the base transport of the go-github client, usually Fetcher.Transport(...).
	Transport http.RoundTripper
}

func NewClient(fetcher Fetcher, opts Options) *Client {
	apiURL := strings.TrimSuffix(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	rawURL := strings.TrimSuffix(opts.RawURL, "/")
	if rawURL == "" {
		rawURL = DefaultRawURL
	}

	apiHeaders := map[string]string{"Accept": acceptHeader}
	rawHeaders := map[string]string{}
	if opts.Token != "" {
		apiHeaders["Authorization"] = "token " + opts.Token
		rawHeaders["Authorization"] = "token " + opts.Token
	}

	return &Client{
		fetcher:    fetcher,
		gh:         NewGitHubClient(opts.Token, apiURL, opts.Transport),
		apiURL:     apiURL,
		rawURL:     rawURL,
		apiHeaders: apiHeaders,
		rawHeaders: rawHeaders,
	}
}

// NewGitHubClient creates a go-github client with primary and secondary rate limit handling.
func NewGitHubClient(accessToken string, apiURL string, base http.RoundTripper) *github.Client {
	if base == nil {
		base = httpclient.NewTransport()
	}

	rateLimiter := github_ratelimit.New(base,
		github_primary_ratelimit.WithLimitDetectedCallback(func(cb *github_primary_ratelimit.CallbackContext) {
			waitForPrimaryReset(cb, httpclient.TimerSleeper)
		}),
		github_secondary_ratelimit.WithLimitDetectedCallback(func(ctx *github_secondary_ratelimit.CallbackContext) {
			log.Info().Time("reset", *ctx.ResetTime).Dur("totalSleep", *ctx.TotalSleepTime).Msg("Secondary rate limit detected, will resume automatically")
		}),
	)

	client := github.NewClient(&http.Client{Transport: rateLimiter})
	if accessToken != "" {
		client = client.WithAuthToken(accessToken)
	}

	if apiURL != "" && apiURL != DefaultAPIURL {
		baseURL, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
		if err != nil {
			log.Fatal().Err(err).Str("url", apiURL).Msg("Invalid GitHub API URL")
		}
		client.BaseURL = baseURL
	}
	return client
}

// waitForPrimaryReset blocks until shortly after the primary limit resets or the request is cancelled.
func waitForPrimaryReset(cb *github_primary_ratelimit.CallbackContext, sleeper httpclient.Sleeper) {
	if cb.ResetTime == nil {
		return
	}
	ctx := context.Background()
	if cb.Request != nil {
		ctx = cb.Request.Context()
	}

	resetTime := cb.ResetTime.Add(primaryResetGrace)
	log.Info().Str("category", string(cb.Category)).Time("reset", resetTime).Msg("Primary rate limit detected, will resume automatically")
	if err := sleeper.Sleep(ctx, time.Until(resetTime)); err != nil {
		log.Debug().Err(err).Str("category", string(cb.Category)).Msg("Stopped waiting for rate limit reset")
		return
	}
	log.Info().Str("category", string(cb.Category)).Msg("Resuming")
}

// RateLimitRemaining returns the remaining core request budget. ok is false when it could not be read.
func (c *Client) RateLimitRemaining(ctx context.Context) (remaining int, ok bool, err error) {
	result, err := c.fetcher.FetchJSON(ctx, c.apiURL+"/rate_limit", c.apiHeaders)
	if err != nil {
		return 0, false, err
	}

	value := result.Get("rate.remaining")
	if !value.Exists() {
		return 0, false, nil
	}
	return int(value.Int()), true, nil
}

// RateLimitStatus renders the current limits for the status shortcut.
func (c *Client) RateLimitStatus(ctx context.Context) *zerolog.Event {
	ctx = context.WithValue(ctx, github.BypassRateLimitCheck, true)
	rateLimit, resp, err := c.gh.RateLimit.Get(ctx)
	if resp == nil {
		return log.Info().Str("rateLimit", "You're rate limited, just wait")
	}
	if err != nil || rateLimit.GetCore() == nil {
		return log.Info().Err(err).Str("rateLimit", "unknown")
	}

	core := rateLimit.GetCore()
	return log.Info().Int("coreRateLimitRemaining", core.Remaining).Time("coreRateLimitReset", core.Reset.Time)
}

// ListUserRepos returns the full names of every repository of user (type=all), following pagination.
func (c *Client) ListUserRepos(ctx context.Context, user string) ([]string, error) {
	opt := &github.RepositoryListByUserOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: reposPerPage},
	}

	names := []string{}
	for {
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, user, opt)
		if ctx.Err() != nil {
			return names, ctx.Err()
		}
		if err != nil {
			return names, fmt.Errorf("failed fetching repositories of %s: %w", user, err)
		}

		for _, repo := range repos {
			names = append(names, repo.GetFullName())
		}

		if len(repos) == 0 || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return names, nil
}

// Tree lists the blob paths of the recursive tree at ref, which may be a branch, tag, commit or tree SHA.
// found is false when the API returned no tree.
func (c *Client) Tree(ctx context.Context, repo string, ref string) (paths []string, found bool, err error) {
	endpoint := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.apiURL, escapeRepo(repo), url.PathEscape(ref))
	result, err := c.fetcher.FetchJSON(ctx, endpoint, c.apiHeaders)
	if err != nil {
		return nil, false, err
	}

	tree := result.Get("tree")
	if !tree.IsArray() {
		return []string{}, false, nil
	}

	if result.Get("truncated").Bool() {
		log.Warn().Str("repo", repo).Str("ref", ref).Msg("Tree listing was truncated by GitHub, some files are not scanned")
	}

	paths = []string{}
	tree.ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("type").String() == "blob" {
			paths = append(paths, entry.Get("path").String())
		}
		return true
	})
	return paths, true, nil
}

// RawFile returns the text content of path at ref. ok is false when the content is absent.
func (c *Client) RawFile(ctx context.Context, repo string, ref string, path string) (content string, ok bool, err error) {
	return c.fetcher.FetchText(ctx, c.RawFileURL(repo, ref, path), c.rawHeaders)
}

// RawFileURL builds the raw content URL, escaping each path segment.
func (c *Client) RawFileURL(repo string, ref string, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.rawURL, escapeRepo(repo), url.PathEscape(ref), escapePath(path))
}

// CommitRef is one entry of a commit listing.
type CommitRef struct {
	SHA  string
	URL  string
	Date *time.Time
}

// Commits returns one page (1-based) of the commit listing, newest first. An empty slice ends pagination.
func (c *Client) Commits(ctx context.Context, repo string, page int, perPage int) ([]CommitRef, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/commits?per_page=%d&page=%d", c.apiURL, escapeRepo(repo), perPage, page)
	result, err := c.fetcher.FetchJSON(ctx, endpoint, c.apiHeaders)
	if err != nil {
		return nil, err
	}

	commits := []CommitRef{}
	if !result.IsArray() {
		return commits, nil
	}

	result.ForEach(func(_, entry gjson.Result) bool {
		sha := entry.Get("sha").String()
		if sha == "" {
			return true
		}
		ref := CommitRef{SHA: sha, URL: entry.Get("html_url").String()}
		if date := entry.Get("commit.author.date"); date.Exists() {
			if t, err := time.Parse(time.RFC3339, date.String()); err == nil {
				ref.Date = &t
			}
		}
		commits = append(commits, ref)
		return true
	})
	return commits, nil
}

func escapeRepo(repo string) string {
	return escapePath(repo)
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
