package main

import (
	"github.com/CompassSecurity/leakhound/internal/cmd/common"
	"github.com/CompassSecurity/leakhound/internal/cmd/local"
	"github.com/CompassSecurity/leakhound/internal/cmd/scan"
	"github.com/spf13/cobra"
)

func main() {
	common.Run(newRootCmd())
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leakhound",
		Short: "Scan GitHub repositories and their history for secrets",
		Long: `LeakHound fetches the files of GitHub repositories, optionally including their commit history,
and matches them against a secret detection rule set. Findings are logged as they are found and written to a JSON report.`,
		Version: common.Version,
	}

	common.SetupPersistentPreRun(rootCmd)
	common.AddCommonFlags(rootCmd)

	rootCmd.AddCommand(scan.NewScanCmd())
	rootCmd.AddCommand(local.NewLocalCmd())

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	return rootCmd
}
