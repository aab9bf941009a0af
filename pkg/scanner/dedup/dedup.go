// Package dedup removes findings from older revisions that a newer revision already reported.
package dedup

import (
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
	"github.com/rxwycdh/rxhash"
)

// Baseline is the accumulating set of signatures that were already reported.
// It belongs to one repository walk and is not safe for concurrent use.
type Baseline struct {
	seen map[string]struct{}
}

func NewBaseline() *Baseline {
	return &Baseline{seen: map[string]struct{}{}}
}

// Seed adds every signature of r without filtering it.
func (b *Baseline) Seed(r types.RevisionResult) {
	for _, f := range r.Files {
		for _, m := range f.Matches {
			b.add(types.SignatureOf(f.FilePath, m))
		}
	}
}

// Filter returns a copy of r without the matches already in the baseline, then adds the survivors.
// Repeated occurrences inside r are all kept. Files left without matches are dropped; a revision left
// without files is still returned.
func (b *Baseline) Filter(r types.RevisionResult) types.RevisionResult {
	filtered := types.RevisionResult{ID: r.ID, URL: r.URL, Date: r.Date, Files: []types.FileScanResult{}}
	survivors := []types.Signature{}
	for _, f := range r.Files {
		kept := []types.MatchRecord{}
		for _, m := range f.Matches {
			sig := types.SignatureOf(f.FilePath, m)
			if b.Contains(sig) {
				continue
			}
			survivors = append(survivors, sig)
			kept = append(kept, m)
		}
		if len(kept) > 0 {
			filtered.Files = append(filtered.Files, types.FileScanResult{FilePath: f.FilePath, Matches: kept})
		}
	}

	for _, sig := range survivors {
		b.add(sig)
	}
	return filtered
}

func (b *Baseline) Contains(sig types.Signature) bool {
	_, ok := b.seen[key(sig)]
	return ok
}

func (b *Baseline) Len() int {
	return len(b.seen)
}

func (b *Baseline) add(sig types.Signature) {
	b.seen[key(sig)] = struct{}{}
}

func key(sig types.Signature) string {
	hash, err := rxhash.HashStruct(sig)
	if err != nil {
		// unreachable for a struct of strings
		log.Trace().Err(err).Msg("Failed hashing signature")
		return sig.FilePath + "\x00" + sig.PatternName + "\x00" + sig.Match
	}
	return hash
}

// Deduplicate filters history (newest first) against a baseline seeded from head.
// It must run after every revision was scanned, in the order the history was listed.
func Deduplicate(head types.RevisionResult, history []types.RevisionResult) []types.RevisionResult {
	baseline := NewBaseline()
	baseline.Seed(head)

	deduped := make([]types.RevisionResult, 0, len(history))
	for _, r := range history {
		deduped = append(deduped, baseline.Filter(r))
	}
	return deduped
}
