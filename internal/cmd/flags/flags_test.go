package flags

import (
	"testing"

	"github.com/CompassSecurity/leakhound/pkg/config"
	pkgscanner "github.com/CompassSecurity/leakhound/pkg/scanner"
	"github.com/CompassSecurity/leakhound/pkg/scanner/rules"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCommonScanFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	opts := config.DefaultCommonScanOptions()
	var maxFileSize string
	AddCommonScanFlags(cmd, &opts, &maxFileSize)

	for _, name := range []string{"confidence", "threads", "context", "max-file-size", "include", "exclude", "trufflehog"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "10", cmd.Flags().Lookup("threads").DefValue)
	assert.Equal(t, config.DefaultMaxFileSize, cmd.Flags().Lookup("max-file-size").DefValue)

	require.NoError(t, cmd.ParseFlags([]string{"--threads", "3", "--include", "**/*.yml,*.env", "--confidence", "high"}))
	assert.Equal(t, 3, opts.Concurrency)
	assert.Equal(t, []string{"**/*.yml", "*.env"}, opts.IncludeGlobs)
	assert.Equal(t, []string{"high"}, opts.ConfidenceFilter)
}

func TestAddRuleFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var opts pkgscanner.RuleOptions
	AddRuleFlags(cmd, &opts)

	assert.Equal(t, rules.DefaultRuleFileName, opts.PatternsFile)
	assert.Equal(t, rules.DefaultRuleFileURL, opts.RulesURL)
	assert.Equal(t, "p", cmd.Flags().Lookup("patterns").Shorthand)

	require.NoError(t, cmd.ParseFlags([]string{"-p", "custom.json5", "--download-rules"}))
	assert.Equal(t, "custom.json5", opts.PatternsFile)
	assert.True(t, opts.Download)
}

func TestAddOutputFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var output string
	AddOutputFlag(cmd, &output)
	assert.Equal(t, DefaultOutputFile, output)
	assert.Equal(t, "o", cmd.Flags().Lookup("output").Shorthand)
}

func TestApplyCommonScanFlags(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*config.CommonScanOptions)
		size     string
		wantSize int64
		wantErr  bool
	}{
		{name: "defaults", size: "10Mb", wantSize: 10_000_000},
		{name: "small size", size: "500kb", wantSize: 500_000},
		{name: "invalid size", size: "lots", wantErr: true},
		{name: "zero threads", size: "1Mb", modify: func(o *config.CommonScanOptions) { o.Concurrency = 0 }, wantErr: true},
		{name: "negative context", size: "1Mb", modify: func(o *config.CommonScanOptions) { o.SnippetContext = -1 }, wantErr: true},
		{name: "invalid include glob", size: "1Mb", modify: func(o *config.CommonScanOptions) { o.IncludeGlobs = []string{"[abc"} }, wantErr: true},
		{name: "invalid exclude glob", size: "1Mb", modify: func(o *config.CommonScanOptions) { o.ExcludeGlobs = []string{"{a,b"} }, wantErr: true},
		{name: "valid globs", size: "1Mb", modify: func(o *config.CommonScanOptions) { o.ExcludeGlobs = []string{"vendor/**"} }, wantSize: 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.DefaultCommonScanOptions()
			if tt.modify != nil {
				tt.modify(&opts)
			}

			err := ApplyCommonScanFlags(&opts, tt.size)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, opts.MaxFileSize)
		})
	}
}
