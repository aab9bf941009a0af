// Package flags registers the flags shared by the scan commands.
package flags

import (
	"fmt"

	"github.com/CompassSecurity/leakhound/pkg/config"
	pkgscanner "github.com/CompassSecurity/leakhound/pkg/scanner"
	"github.com/CompassSecurity/leakhound/pkg/scanner/rules"
	"github.com/spf13/cobra"
)

// DefaultOutputFile is where the batch results are written unless --output says otherwise.
const DefaultOutputFile = "leakhound-results.json"

// AddCommonScanFlags binds the engine options. The size string is parsed by ApplyCommonScanFlags.
func AddCommonScanFlags(cmd *cobra.Command, opts *config.CommonScanOptions, maxFileSize *string) {
	cmd.Flags().StringSliceVarP(&opts.ConfidenceFilter, "confidence", "", []string{}, "Filter for confidence level, separate by comma if multiple. See rules file for available levels")
	cmd.Flags().IntVarP(&opts.Concurrency, "threads", "", config.DefaultConcurrency, "Maximum number of concurrent requests")
	cmd.Flags().IntVarP(&opts.SnippetContext, "context", "", config.DefaultSnippetContext, "Number of characters shown around a match")
	cmd.Flags().StringVarP(maxFileSize, "max-file-size", "", config.DefaultMaxFileSize, "Max file size to scan e.g. 500Kb, 10Mb")
	cmd.Flags().StringSliceVarP(&opts.IncludeGlobs, "include", "", []string{}, "Only scan paths matching these globs, e.g. '**/*.yml'")
	cmd.Flags().StringSliceVarP(&opts.ExcludeGlobs, "exclude", "", []string{}, "Skip paths matching these globs, e.g. 'vendor/**,*.png'")
	cmd.Flags().BoolVarP(&opts.TruffleHogDetectors, "trufflehog", "", false, "Additionally run the TruffleHog detectors (without verification)")
}

func AddRuleFlags(cmd *cobra.Command, opts *pkgscanner.RuleOptions) {
	cmd.Flags().StringVarP(&opts.PatternsFile, "patterns", "p", rules.DefaultRuleFileName, "Pattern file (YAML or JSON5) with the secret detection rules")
	cmd.Flags().BoolVarP(&opts.Download, "download-rules", "", false, "Download the default rule set if the pattern file does not exist")
	cmd.Flags().StringVarP(&opts.RulesURL, "rules-url", "", rules.DefaultRuleFileURL, "Rule set downloaded by --download-rules")
}

func AddOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "o", DefaultOutputFile, "JSON file the results are written to, empty to disable")
}

// ApplyCommonScanFlags validates the flag values and parses the file size into opts.
func ApplyCommonScanFlags(opts *config.CommonScanOptions, maxFileSize string) error {
	if err := config.ValidateThreadCount(opts.Concurrency); err != nil {
		return err
	}
	if opts.SnippetContext < 0 {
		return fmt.Errorf("context cannot be negative, got %d", opts.SnippetContext)
	}
	if err := config.ValidateGlobs(opts.IncludeGlobs, "include"); err != nil {
		return err
	}
	if err := config.ValidateGlobs(opts.ExcludeGlobs, "exclude"); err != nil {
		return err
	}

	size, err := config.ParseMaxFileSize(maxFileSize)
	if err != nil {
		return err
	}
	opts.MaxFileSize = size
	return nil
}
