package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
	"github.com/trufflesecurity/trufflehog/v3/pkg/detectors"
	"github.com/trufflesecurity/trufflehog/v3/pkg/engine/defaults"
	"github.com/wandb/parallel"
)

const (
	detectorPatternPrefix = "trufflehog:"
	detectorConfidence    = "trufflehog-unverified"
)

// DetectorScanner runs TruffleHog detectors over content without verifying the secrets they find.
type DetectorScanner struct {
	detectors  []detectors.Detector
	maxThreads int
}

// NewDetectorScanner uses the given detectors, or the TruffleHog default set when none are given.
func NewDetectorScanner(maxThreads int, dets ...detectors.Detector) *DetectorScanner {
	if len(dets) == 0 {
		dets = defaults.DefaultDetectors()
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	return &DetectorScanner{detectors: dets, maxThreads: maxThreads}
}

// Scan reports each raw secret found by a detector at its first location in content.
// Secrets that cannot be located are dropped, as a MatchRecord needs a line number and snippet.
func (d *DetectorScanner) Scan(ctx context.Context, content string, contextSize int) []types.MatchRecord {
	if content == "" {
		return []types.MatchRecord{}
	}

	lower := strings.ToLower(content)
	data := []byte(content)
	lines := newLineIndex(content)

	group := parallel.Collect[[]types.MatchRecord](parallel.Limited(ctx, d.maxThreads))
	for _, detector := range d.detectors {
		if !hasKeyword(lower, detector.Keywords()) {
			continue
		}

		group.Go(func(ctx context.Context) ([]types.MatchRecord, error) {
			results, err := detector.FromData(ctx, false, data)
			if err != nil {
				log.Trace().Err(err).Str("detector", detector.Type().String()).Msg("TruffleHog detector failed")
				return nil, nil
			}

			records := []types.MatchRecord{}
			for _, result := range results {
				secret := locateSecret(content, result)
				if secret == "" {
					continue
				}
				start := strings.Index(content, secret)
				end := start + len(secret)
				records = append(records, types.MatchRecord{
					PatternName: detectorPatternPrefix + result.DetectorType.String(),
					Confidence:  detectorConfidence,
					Match:       secret,
					LineNumber:  lines.lineAt(start),
					Snippet:     Snippet(content, start, end, contextSize),
				})
			}
			return records, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		log.Error().Stack().Err(err).Msg("Failed waiting for trufflehog parallel hit detection")
	}

	records := slices.Concat(results...)
	slices.SortStableFunc(records, func(a, b types.MatchRecord) int {
		if c := strings.Compare(a.PatternName, b.PatternName); c != 0 {
			return c
		}
		return a.LineNumber - b.LineNumber
	})
	return slices.CompactFunc(records, func(a, b types.MatchRecord) bool {
		return a.PatternName == b.PatternName && a.Match == b.Match && a.LineNumber == b.LineNumber
	})
}

func locateSecret(content string, result detectors.Result) string {
	for _, raw := range [][]byte{result.Raw, result.RawV2} {
		if len(raw) > 0 && strings.Contains(content, string(raw)) {
			return string(raw)
		}
	}
	return ""
}

func hasKeyword(lowerContent string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lowerContent, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
