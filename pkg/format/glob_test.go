package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathFilter_Allows(t *testing.T) {
	tests := []struct {
		name     string
		filter   PathFilter
		path     string
		expected bool
	}{
		{name: "no globs", filter: PathFilter{}, path: "src/main.go", expected: true},
		{name: "include match", filter: PathFilter{Include: []string{"**/*.go"}}, path: "src/main.go", expected: true},
		{name: "include miss", filter: PathFilter{Include: []string{"**/*.go"}}, path: "README.md", expected: false},
		{name: "exclude directory", filter: PathFilter{Exclude: []string{"vendor/**"}}, path: "vendor/lib/a.go", expected: false},
		{name: "exclude base name", filter: PathFilter{Exclude: []string{"*.png"}}, path: "docs/img/logo.png", expected: false},
		{name: "exclude wins over include", filter: PathFilter{Include: []string{"**/*.yml"}, Exclude: []string{"test/**"}}, path: "test/ci.yml", expected: false},
		{name: "dot slash prefix", filter: PathFilter{Exclude: []string{"./docs/**"}}, path: "docs/a.md", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filter.Allows(tt.path))
		})
	}
}

func TestPathFilter_Apply(t *testing.T) {
	f := PathFilter{Exclude: []string{"*.lock"}}
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, f.Apply([]string{"a.txt", "yarn.lock", "b/c.txt"}))
}
