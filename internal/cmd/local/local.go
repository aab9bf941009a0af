package local

import (
	"github.com/CompassSecurity/leakhound/internal/cmd/common"
	"github.com/CompassSecurity/leakhound/internal/cmd/flags"
	"github.com/CompassSecurity/leakhound/pkg/config"
	pkgscan "github.com/CompassSecurity/leakhound/pkg/local/scan"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var options = pkgscan.ScanOptions{
	CommonScanOptions: config.DefaultCommonScanOptions(),
}
var maxFileSize string

func NewLocalCmd() *cobra.Command {
	localCmd := &cobra.Command{
		Use:   "local <directory>",
		Short: "Scan a local directory for secrets",
		Long: `Scan the files of a local directory, e.g. a checked out repository, with the same rules as the GitHub scan.

VCS metadata and dependency folders (.git, node_modules, vendor, ...) are skipped, as are binary files
and files larger than --max-file-size.`,
		Example: `
# Scan the current directory
leakhound local .

# Scan a checkout, only YAML files
leakhound local ./my-repo --include '**/*.yml,**/*.yaml' --output local-results.json
		`,
		Args: cobra.ExactArgs(1),
		Run:  Scan,
	}
	flags.AddCommonScanFlags(localCmd, &options.CommonScanOptions, &maxFileSize)
	flags.AddRuleFlags(localCmd, &options.Rules)
	flags.AddOutputFlag(localCmd, &options.OutputFile)

	return localCmd
}

func Scan(cmd *cobra.Command, args []string) {
	options.Directory = args[0]
	if err := flags.ApplyCommonScanFlags(&options.CommonScanOptions, maxFileSize); err != nil {
		log.Fatal().Err(err).Str("size", maxFileSize).Msg("Invalid scan options")
	}

	ctx, stop := common.ScanContext()
	defer stop()
	options.Context = ctx

	if err := pkgscan.NewScanner(options).Scan(); err != nil {
		log.Fatal().Err(err).Str("directory", options.Directory).Msg("Scan failed")
	}
}
