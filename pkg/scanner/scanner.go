// Package scanner assembles the content scanner of a scan from its rule file and options.
package scanner

import (
	"context"

	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/scanner/engine"
	"github.com/CompassSecurity/leakhound/pkg/scanner/rules"
	"github.com/rs/zerolog/log"
)

// RuleOptions selects the pattern file of a scan.
type RuleOptions struct {
	PatternsFile string
	// Download fetches RulesURL into PatternsFile when the file does not exist yet.
	Download bool
	RulesURL string
}

// NewPatternScanner loads the rules and builds the content scanner shared by all revisions of a scan.
// A rule file that cannot be loaded results in a scanner without patterns.
func NewPatternScanner(ctx context.Context, ruleOpts RuleOptions, opts config.CommonScanOptions) *engine.Scanner {
	patternsFile := ruleOpts.PatternsFile
	if patternsFile == "" {
		patternsFile = rules.DefaultRuleFileName
	}

	if ruleOpts.Download {
		url := ruleOpts.RulesURL
		if url == "" {
			url = rules.DefaultRuleFileURL
		}
		if err := rules.Download(ctx, url, patternsFile); err != nil {
			log.Error().Err(err).Str("url", url).Msg("Failed downloading rules file")
		}
	}

	patterns := rules.Load(patternsFile, opts.ConfidenceFilter)
	engineOpts := []engine.Option{}
	if opts.TruffleHogDetectors {
		engineOpts = append(engineOpts, engine.WithDetectors(engine.NewDetectorScanner(opts.Concurrency)))
	}
	return engine.NewScanner(patterns, opts.SnippetContext, engineOpts...)
}
