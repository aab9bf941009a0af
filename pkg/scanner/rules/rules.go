package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/CompassSecurity/leakhound/pkg/httpclient"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// DefaultRuleFileURL points to the stable secrets-patterns-db rule set, which uses the same layout as git-leaks.yaml.
const DefaultRuleFileURL = "https://raw.githubusercontent.com/mazen160/secrets-patterns-db/master/db/rules-stable.yml"

// DefaultRuleFileName is the pattern file looked up in the working directory.
const DefaultRuleFileName = "git-leaks.yaml"

const unknownPatternName = "Unknown"

// Download stores the rule file from url at path unless the file already exists.
func Download(ctx context.Context, url string, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	log.Debug().Str("url", url).Str("file", path).Msg("No rules file found, downloading")

	client := httpclient.GetLeakhoundHTTPClient(nil)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading rules file failed with HTTP %d", resp.StatusCode)
	}

	// #nosec G304 - rule file path is provided by the operator
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, format.FileUserReadWrite)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, resp.Body)
	return err
}

// Load reads and compiles the pattern file at path. Any failure to read or parse the whole
// file yields an empty PatternSet; single invalid rules are dropped with a warning.
func Load(path string, confidenceFilter []string) types.PatternSet {
	// #nosec G304 - rule file path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed loading patterns file, continuing without patterns")
		return types.PatternSet{}
	}

	raw, err := Parse(data, filepath.Ext(path))
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed parsing patterns file, continuing without patterns")
		return types.PatternSet{}
	}

	set := Compile(ApplyConfidenceFilter(raw.Patterns, confidenceFilter))
	log.Info().Int("count", len(set)).Str("file", path).Msg("Loaded patterns")
	return set
}

// Parse decodes a rule document. JSON and JSON5 files are selected by extension, everything else is read as YAML.
func Parse(data []byte, ext string) (types.SecretsPatterns, error) {
	patterns := types.SecretsPatterns{}
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &patterns); err != nil {
			return types.SecretsPatterns{}, fmt.Errorf("invalid JSON5 rule file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &patterns); err != nil {
			return types.SecretsPatterns{}, fmt.Errorf("invalid YAML rule file: %w", err)
		}
	}
	return patterns, nil
}

// ApplyConfidenceFilter keeps the rules whose confidence is listed. An empty filter keeps everything.
func ApplyConfidenceFilter(patterns []types.PatternElement, confidenceFilter []string) []types.PatternElement {
	if len(confidenceFilter) == 0 {
		return patterns
	}

	log.Debug().Str("filter", strings.Join(confidenceFilter, ",")).Msg("Applying confidence filter")
	filtered := []types.PatternElement{}
	for _, pattern := range patterns {
		if slices.Contains(confidenceFilter, pattern.Pattern.Confidence) {
			filtered = append(filtered, pattern)
		}
	}

	if len(filtered) == 0 {
		log.Warn().Strs("filter", confidenceFilter).Msg("Your confidence filter removed all rules, are you sure?")
	}
	return filtered
}

// Compile turns rule definitions into case-insensitive matchers, skipping empty and invalid expressions.
func Compile(patterns []types.PatternElement) types.PatternSet {
	set := types.PatternSet{}
	for _, element := range patterns {
		p := element.Pattern
		if p.Regex == "" {
			continue
		}

		name := p.Name
		if name == "" {
			name = unknownPatternName
		}

		rule, err := regexp.Compile("(?i)" + p.Regex)
		if err != nil {
			log.Warn().Err(err).Str("name", name).Str("regex", p.Regex).Msg("Invalid regex, skipping pattern")
			continue
		}

		set = append(set, types.Pattern{Name: name, Confidence: p.Confidence, Rule: rule})
	}
	return set
}
