package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/CompassSecurity/leakhound/pkg/github/api"
	"github.com/CompassSecurity/leakhound/pkg/httpclient"
	"github.com/CompassSecurity/leakhound/pkg/scan/result"
	"github.com/CompassSecurity/leakhound/pkg/scan/supervisor"
	pkgscanner "github.com/CompassSecurity/leakhound/pkg/scanner"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wandb/parallel"
)

// ScanOptions contains configuration options for GitHub scanning operations.
type ScanOptions struct {
	config.CommonScanOptions

	AccessToken string
	GitHubURL   string
	RawURL      string
	WebURL      string

	// Exactly one target source is used: Repo, then User, then UsersFile.
	Repo      string
	User      string
	UsersFile string

	History    config.HistoryMode
	Rules      pkgscanner.RuleOptions
	OutputFile string

	Context        context.Context
	FetcherOptions []httpclient.FetcherOption
}

type Scanner interface {
	pkgscanner.ScannerWithStatus
	// Run scans every target and returns the batch without writing it.
	Run(ctx context.Context) (result.Report, error)
	// Skip abandons one unfinished repository. It never blocks.
	Skip()
	GetRateLimitStatus() *zerolog.Event
}

type scanner struct {
	options    ScanOptions
	client     *api.Client
	fetcher    *httpclient.Fetcher
	repos      *RepositoryScanner
	supervisor *supervisor.Supervisor[types.RepositoryResult]
	skip       chan struct{}
}

var _ pkgscanner.BaseScanner = (*scanner)(nil)

func NewScanner(opts ScanOptions) Scanner {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.WebURL == "" {
		opts.WebURL = api.DefaultWebURL
	}

	fetcher := httpclient.NewFetcher(opts.CommonScanOptions, opts.FetcherOptions...)
	client := api.NewClient(fetcher, api.Options{
		Token:     opts.AccessToken,
		APIURL:    opts.GitHubURL,
		RawURL:    opts.RawURL,
		Transport: fetcher.Transport(httpclient.NewTransport()),
	})

	contentScanner := pkgscanner.NewPatternScanner(opts.Context, opts.Rules, opts.CommonScanOptions)
	resolver := NewTreeResolver(client, format.PathFilter{Include: opts.IncludeGlobs, Exclude: opts.ExcludeGlobs})
	revision := NewRevisionScanner(client, resolver, contentScanner)
	history := NewHistoryWalker(client, revision, opts.CommitPageSize)

	s := &scanner{
		options: opts,
		client:  client,
		fetcher: fetcher,
		repos:   NewRepositoryScanner(client, revision, history, opts.History),
		skip:    make(chan struct{}, 1),
	}
	s.supervisor = supervisor.New[types.RepositoryResult](opts.PollInterval, supervisor.WithResultHook[types.RepositoryResult](func(_ supervisor.TaskStatus, r types.RepositoryResult) {
		result.ReportRepository(r, result.ReportOptions{WebURL: opts.WebURL})
	}))
	return s
}

// Scan performs the GitHub scanning operation based on the configured options.
func (s *scanner) Scan() error {
	report, err := s.Run(s.options.Context)
	if err != nil {
		return err
	}

	if s.options.OutputFile != "" {
		if err := result.WriteJSON(s.options.OutputFile, report); err != nil {
			return err
		}
	}

	stats := s.fetcher.Stats()
	log.Info().Int64("requests", stats.Requests).Int64("rateLimited", stats.RateLimited).Int64("retried", stats.Retried).Msg("Scan Finished, Bye Bye 🏳️‍🌈🔥")
	return nil
}

func (s *scanner) Run(ctx context.Context) (result.Report, error) {
	targets, err := s.resolveTargets(ctx)
	if err != nil {
		return result.Report{}, err
	}
	log.Info().Int("repositories", len(targets)).Str("history", s.options.History.Kind.String()).Msg("Scanning repositories")

	tasks := make([]supervisor.Task[types.RepositoryResult], 0, len(targets))
	for _, repo := range targets {
		tasks = append(tasks, supervisor.Task[types.RepositoryResult]{
			Name: repo,
			Run: func(ctx context.Context) (types.RepositoryResult, error) {
				return s.repos.ScanRepository(ctx, repo)
			},
		})
	}

	batch := s.supervisor.Run(ctx, tasks, s.skip)
	return newReport(batch), nil
}

func newReport(batch supervisor.Batch[types.RepositoryResult]) result.Report {
	report := result.Report{
		GeneratedAt:  time.Now().UTC(),
		Interrupted:  batch.Interrupted,
		Repositories: batch.Results,
		Incomplete:   []result.TaskReport{},
	}
	for _, task := range batch.Tasks {
		if task.State == supervisor.Completed {
			continue
		}
		incomplete := result.TaskReport{Repository: task.Name, State: task.State.String()}
		if task.Err != nil {
			incomplete.Error = task.Err.Error()
		}
		report.Incomplete = append(report.Incomplete, incomplete)
	}
	return report
}

func (s *scanner) Skip() {
	select {
	case s.skip <- struct{}{}:
	default:
		log.Debug().Msg("Skip already requested")
	}
}

func (s *scanner) Status() *zerolog.Event {
	done, total := s.supervisor.Progress()
	return s.GetRateLimitStatus().Int("done", done).Int("total", total)
}

// GetRateLimitStatus returns the current rate limit status for the GitHub API.
func (s *scanner) GetRateLimitStatus() *zerolog.Event {
	return s.client.RateLimitStatus(s.options.Context)
}

func (s *scanner) resolveTargets(ctx context.Context) ([]string, error) {
	switch {
	case s.options.Repo != "":
		repo := strings.TrimSpace(s.options.Repo)
		if err := config.ValidateRepositoryName(repo); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRepository, repo)
		}
		log.Info().Str("repository", repo).Msg("Scanning single repository")
		return []string{repo}, nil
	case s.options.User != "":
		log.Info().Str("user", s.options.User).Msg("Scanning user's repositories")
		return s.userRepositories(ctx, []string{s.options.User})
	case s.options.UsersFile != "":
		users, err := ReadUsersFile(s.options.UsersFile)
		if err != nil {
			return nil, err
		}
		log.Info().Int("users", len(users)).Str("file", s.options.UsersFile).Msg("Scanning repositories of users file")
		return s.userRepositories(ctx, users)
	default:
		return nil, errors.New("no scan target, set a repository, a user or a users file")
	}
}

// userRepositories lists the repositories of all users concurrently, keeping user order and dropping duplicates.
func (s *scanner) userRepositories(ctx context.Context, users []string) ([]string, error) {
	listed := make([][]string, len(users))
	errs := make([]error, len(users))

	group := parallel.Limited(ctx, max(1, s.options.Concurrency))
	for i, user := range users {
		group.Go(func(ctx context.Context) {
			listed[i], errs[i] = s.client.ListUserRepos(ctx, user)
		})
	}
	group.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	repos := []string{}
	for i, names := range listed {
		if errs[i] != nil {
			log.Error().Err(errs[i]).Str("user", users[i]).Msg("Failed listing repositories, skipping user")
		}
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			repos = append(repos, name)
		}
	}
	return repos, nil
}

// ReadUsersFile returns one user per line, ignoring blank lines and # comments.
func ReadUsersFile(path string) ([]string, error) {
	// #nosec G304 - users file path is provided by the operator
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed opening users file: %w", err)
	}
	defer func() { _ = file.Close() }()

	users := []string{}
	lines := bufio.NewScanner(file)
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		users = append(users, line)
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("failed reading users file: %w", err)
	}
	return users, nil
}
