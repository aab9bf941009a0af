package format

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathFilter selects repository paths by doublestar globs. Paths use forward slashes.
// A path is kept when it matches an include glob (or no include globs are set) and no exclude glob.
// Globs are also tried against the base name so "*.png" matches in any directory.
type PathFilter struct {
	Include []string
	Exclude []string
}

func (f PathFilter) Allows(p string) bool {
	if len(f.Include) > 0 && !matchAnyGlob(p, f.Include) {
		return false
	}
	return !matchAnyGlob(p, f.Exclude)
}

// Apply returns the allowed paths, keeping their order.
func (f PathFilter) Apply(paths []string) []string {
	if len(f.Include) == 0 && len(f.Exclude) == 0 {
		return paths
	}

	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if f.Allows(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func matchAnyGlob(p string, globs []string) bool {
	for _, g := range globs {
		g = strings.TrimPrefix(g, "./")
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, path.Base(p)); ok {
			return true
		}
	}
	return false
}
