package scan

import (
	"os"

	"github.com/CompassSecurity/leakhound/internal/cmd/common"
	"github.com/CompassSecurity/leakhound/internal/cmd/flags"
	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/github/api"
	pkgscan "github.com/CompassSecurity/leakhound/pkg/github/scan"
	"github.com/CompassSecurity/leakhound/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// TokenEnv is read when --token is not given.
const TokenEnv = "GITHUB_TOKEN"

type GitHubScanOptions struct {
	pkgscan.ScanOptions
	Commits    int
	AllCommits bool
}

var options = GitHubScanOptions{
	ScanOptions: pkgscan.ScanOptions{
		CommonScanOptions: config.DefaultCommonScanOptions(),
	},
}
var maxFileSize string

func NewScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan GitHub repositories for secrets",
		Long: `Scan the default branch and optionally the commit history of GitHub repositories for secrets.

Every file of HEAD is fetched from the raw content host and matched against the rule file.
With --commits or --all-commits the changed files of each commit are scanned as well, findings
already present in a newer revision are only reported once.

### Authentication
A token is optional but raises the API rate limit considerably. Create a fine grained, read-only token here: https://github.com/settings/tokens
If --token is not set the ` + TokenEnv + ` environment variable is used.

### Shortcuts
Press Enter to skip the repository that is currently scanned, s to print the rate limit status and Ctrl+C to stop and write partial results.
t, d, i, w and e switch the log level.
		`,
		Example: `
# Scan the default branch of a single repository
leakhound scan --token xxxxxxxxxxx --repo octocat/hello-world

# Scan the last 50 commits of a repository and only report high confidence findings
leakhound scan --repo octocat/hello-world --commits 50 --confidence high

# Scan the full history of all repositories of a user
leakhound scan --user octocat --all-commits

# Scan all repositories of the users listed in a file, one username per line
leakhound scan --users-file users.txt --exclude 'vendor/**,*.lock' --output results.json

# Scan a GitHub Enterprise Server instance
leakhound scan --repo team/service --github https://github.example.com/api/v3 --raw https://github.example.com/raw --web https://github.example.com
		`,
		Run: Scan,
	}
	flags.AddCommonScanFlags(scanCmd, &options.CommonScanOptions, &maxFileSize)
	flags.AddRuleFlags(scanCmd, &options.Rules)
	flags.AddOutputFlag(scanCmd, &options.OutputFile)

	scanCmd.Flags().StringVarP(&options.AccessToken, "token", "t", "", "GitHub personal access token, defaults to $"+TokenEnv)
	scanCmd.Flags().StringVarP(&options.Repo, "repo", "r", "", "Repository to scan in the form owner/name")
	scanCmd.Flags().StringVarP(&options.User, "user", "u", "", "Scan all repositories of this user")
	scanCmd.Flags().StringVarP(&options.UsersFile, "users-file", "", "", "File with one username per line, all their repositories are scanned")
	scanCmd.MarkFlagsMutuallyExclusive("repo", "user", "users-file")
	scanCmd.MarkFlagsOneRequired("repo", "user", "users-file")

	scanCmd.Flags().IntVarP(&options.Commits, "commits", "", 0, "Additionally scan the N most recent commits")
	scanCmd.Flags().BoolVarP(&options.AllCommits, "all-commits", "", false, "Additionally scan every commit of the history")
	scanCmd.MarkFlagsMutuallyExclusive("commits", "all-commits")

	scanCmd.Flags().StringVarP(&options.GitHubURL, "github", "", api.DefaultAPIURL, "GitHub API base URL")
	scanCmd.Flags().StringVarP(&options.RawURL, "raw", "", api.DefaultRawURL, "GitHub raw content base URL")
	scanCmd.Flags().StringVarP(&options.WebURL, "web", "", api.DefaultWebURL, "GitHub web URL used for links to findings")

	return scanCmd
}

func Scan(cmd *cobra.Command, args []string) {
	if options.AccessToken == "" {
		options.AccessToken = os.Getenv(TokenEnv)
	}
	if options.AccessToken == "" {
		log.Warn().Msg("No GitHub token given, the anonymous rate limit of 60 requests per hour applies")
	}
	if options.Repo != "" {
		if err := config.ValidateRepositoryName(options.Repo); err != nil {
			log.Fatal().Err(err).Msg("Invalid repository")
		}
	}
	if err := config.ValidateURL(options.GitHubURL, "GitHub API URL"); err != nil {
		log.Fatal().Err(err).Msg("Invalid GitHub API URL")
	}
	if err := config.ValidateURL(options.RawURL, "GitHub raw URL"); err != nil {
		log.Fatal().Err(err).Msg("Invalid GitHub raw URL")
	}
	if err := config.ValidateURL(options.WebURL, "GitHub web URL"); err != nil {
		log.Fatal().Err(err).Msg("Invalid GitHub web URL")
	}
	if err := flags.ApplyCommonScanFlags(&options.CommonScanOptions, maxFileSize); err != nil {
		log.Fatal().Err(err).Str("size", maxFileSize).Msg("Invalid scan options")
	}

	history, err := config.ParseHistoryFlags(options.Commits, options.AllCommits)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid history options")
	}
	options.History = history

	ctx, stop := common.ScanContext()
	defer stop()
	options.Context = ctx

	scanner := pkgscan.NewScanner(options.ScanOptions)
	logging.RegisterSkipHook(scanner.Skip)
	logging.RegisterStatusHook(scanner.Status)

	if err := scanner.Scan(); err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}
}
