// Package scan runs the content scanner over a directory on disk. The directory is treated as a single
// revision without history.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/CompassSecurity/leakhound/pkg/logging"
	"github.com/CompassSecurity/leakhound/pkg/scan/result"
	pkgscanner "github.com/CompassSecurity/leakhound/pkg/scanner"
	"github.com/CompassSecurity/leakhound/pkg/scanner/engine"
	"github.com/CompassSecurity/leakhound/pkg/scanner/types"
	"github.com/rs/zerolog/log"
	"github.com/wandb/parallel"
)

// DefaultExcludeDirs are never descended into.
var DefaultExcludeDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"node_modules":  {},
	"venv":          {},
	".venv":         {},
	"__pycache__":   {},
	".mypy_cache":   {},
	".pytest_cache": {},
	"dist":          {},
	"build":         {},
}

// DirectoryScanner scans files below a root directory.
type DirectoryScanner struct {
	scanner     engine.ContentScanner
	filter      format.PathFilter
	maxFileSize int64
	concurrency int
}

func NewDirectoryScanner(scanner engine.ContentScanner, opts config.CommonScanOptions) *DirectoryScanner {
	return &DirectoryScanner{
		scanner:     scanner,
		filter:      format.PathFilter{Include: opts.IncludeGlobs, Exclude: opts.ExcludeGlobs},
		maxFileSize: opts.MaxFileSize,
		concurrency: max(1, opts.Concurrency),
	}
}

// ListFiles returns the slash separated paths below root in lexical order, without excluded directories.
func (d *DirectoryScanner) ListFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	paths := []string{}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Debug().Err(walkErr).Str("path", path).Msg("Skipped unreadable path")
			return nil
		}

		if entry.IsDir() {
			if _, skip := DefaultExcludeDirs[entry.Name()]; skip && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.filter.Allows(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	return paths, err
}

// ScanDirectory scans every file below root.
func (d *DirectoryScanner) ScanDirectory(ctx context.Context, root string) (types.RepositoryResult, error) {
	paths, err := d.ListFiles(root)
	if err != nil {
		return types.RepositoryResult{}, err
	}
	return d.ScanFiles(ctx, root, paths)
}

// ScanFiles scans a pre-enumerated set of paths relative to root. Files that are missing, too large,
// binary or not decodable are skipped. Results keep the order of paths.
func (d *DirectoryScanner) ScanFiles(ctx context.Context, root string, paths []string) (types.RepositoryResult, error) {
	found := make([]*types.FileScanResult, len(paths))

	group := parallel.Limited(ctx, d.concurrency)
	for i, path := range paths {
		group.Go(func(ctx context.Context) {
			found[i] = d.scanFile(ctx, root, path)
		})
	}
	group.Wait()

	if err := ctx.Err(); err != nil {
		return types.RepositoryResult{}, err
	}

	head := types.RevisionResult{ID: types.RevisionLocal, Files: []types.FileScanResult{}}
	for _, f := range found {
		if f != nil {
			head.Files = append(head.Files, *f)
		}
	}
	return types.RepositoryResult{Repository: root, Head: head, History: []types.RevisionResult{}}, nil
}

func (d *DirectoryScanner) scanFile(ctx context.Context, root string, path string) *types.FileScanResult {
	content, ok := d.readText(filepath.Join(root, filepath.FromSlash(path)))
	if !ok {
		return nil
	}

	matches := d.scanner.Scan(ctx, content)
	if len(matches) == 0 {
		return nil
	}
	return &types.FileScanResult{FilePath: path, Matches: matches}
}

func (d *DirectoryScanner) readText(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("Skipped missing file")
		return "", false
	}
	if d.maxFileSize > 0 && info.Size() > d.maxFileSize {
		log.Debug().Str("file", path).Str("size", format.HumanSize(info.Size())).Msg("Skipped large file")
		return "", false
	}

	// #nosec G304 - path is below the directory chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("Failed reading file")
		return "", false
	}

	content, ok := format.DecodeText(data, "")
	if !ok {
		log.Trace().Str("file", path).Msg("Skipped binary file")
	}
	return content, ok
}

// ScanOptions contains configuration options for scanning a local directory.
type ScanOptions struct {
	config.CommonScanOptions

	Directory  string
	Rules      pkgscanner.RuleOptions
	OutputFile string
	Context    context.Context
}

type Scanner struct {
	options   ScanOptions
	directory *DirectoryScanner
}

var _ pkgscanner.BaseScanner = (*Scanner)(nil)

func NewScanner(opts ScanOptions) *Scanner {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	contentScanner := pkgscanner.NewPatternScanner(opts.Context, opts.Rules, opts.CommonScanOptions)
	return &Scanner{options: opts, directory: NewDirectoryScanner(contentScanner, opts.CommonScanOptions)}
}

func (s *Scanner) Scan() error {
	if !format.IsExistingDirectory(s.options.Directory) {
		return errors.New("directory " + s.options.Directory + " does not exist")
	}

	log.Info().Str("directory", s.options.Directory).Msg("Scanning local directory")
	repo, err := s.directory.ScanDirectory(s.options.Context, s.options.Directory)
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}

	report := result.Report{GeneratedAt: time.Now().UTC(), Interrupted: interrupted}
	if !interrupted {
		result.ReportRepository(repo, result.ReportOptions{Type: logging.SecretTypeLocal})
		report.Repositories = []types.RepositoryResult{repo}
	}

	if s.options.OutputFile != "" {
		if err := result.WriteJSON(s.options.OutputFile, report); err != nil {
			return err
		}
	}

	log.Info().Int("files", len(repo.Head.Files)).Msg("Scan Finished, Bye Bye 🏳️‍🌈🔥")
	return nil
}
