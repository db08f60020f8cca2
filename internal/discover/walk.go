package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

// DefaultExcludeDirs are directory names never descended into.
var DefaultExcludeDirs = []string{".git", ".hg", ".svn", "node_modules", "vendor", "target", "__pycache__"}

// Stats counts what a walk saw.
type Stats struct {
	Discovered int
	Filtered   int
	Skipped    int
	Errors     int
}

// Walker expands path arguments into a deduplicated file list.
type Walker struct {
	filter         *FileFilter
	excludeDirs    map[string]bool
	followSymlinks bool
	includeHidden  bool
	maxFileSize    int64
	allowIOErrors  bool
	logger         *logging.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithFilter sets the file filter.
func WithFilter(f *FileFilter) Option {
	return func(w *Walker) {
		w.filter = f
	}
}

// WithExcludeDirs replaces the excluded directory names.
func WithExcludeDirs(names ...string) Option {
	return func(w *Walker) {
		w.excludeDirs = make(map[string]bool, len(names))
		for _, n := range names {
			w.excludeDirs[n] = true
		}
	}
}

// WithFollowSymlinks enables following symlinks.
func WithFollowSymlinks(follow bool) Option {
	return func(w *Walker) {
		w.followSymlinks = follow
	}
}

// WithIncludeHidden includes dot files and dot directories.
func WithIncludeHidden(include bool) Option {
	return func(w *Walker) {
		w.includeHidden = include
	}
}

// WithMaxFileSize skips files larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(w *Walker) {
		w.maxFileSize = n
	}
}

// WithAllowIOErrors logs unreadable entries instead of failing the walk.
func WithAllowIOErrors(allow bool) Option {
	return func(w *Walker) {
		w.allowIOErrors = allow
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Walker) {
		w.logger = l
	}
}

// NewWalker creates a walker with the default filter and exclusions.
func NewWalker(opts ...Option) *Walker {
	w := &Walker{
		filter:        DefaultFilter(),
		allowIOErrors: true,
		logger:        logging.New(logging.LevelInfo),
	}
	WithExcludeDirs(DefaultExcludeDirs...)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// walk holds the state of one Walk call.
type walk struct {
	*Walker
	visited map[string]bool
	files   []string
	stats   Stats
}

// Walk returns every file under paths that passes the filter, as sorted
// absolute paths. Files named directly are subject to the filter too.
func (w *Walker) Walk(ctx context.Context, paths []string) ([]string, Stats, error) {
	st := &walk{Walker: w, visited: make(map[string]bool)}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return st.files, st.stats, err
		}

		info, err := os.Stat(path)
		if err != nil {
			if !w.allowIOErrors {
				return nil, st.stats, fmt.Errorf("cannot access %s: %w", path, err)
			}
			w.logger.Warning("Cannot access path %s: %v", path, err)
			st.stats.Errors++
			continue
		}

		if info.IsDir() {
			if err := st.walkDirectory(ctx, path); err != nil {
				return st.files, st.stats, err
			}
			continue
		}
		st.add(path, info)
	}

	sort.Strings(st.files)
	return st.files, st.stats, nil
}

func (st *walk) walkDirectory(ctx context.Context, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if err != nil {
			if st.allowIOErrors {
				st.logger.Warning("Error accessing %s: %v", path, err)
				st.stats.Errors++
				return nil
			}
			return err
		}

		if d.IsDir() {
			if path != dir && st.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !st.includeHidden && isHidden(d.Name()) {
			st.stats.Skipped++
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return st.followLink(ctx, path)
		}

		info, err := d.Info()
		if err != nil {
			st.stats.Errors++
			return nil
		}
		st.add(path, info)
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("walking %s: %w", dir, err)
	}
	return err
}

func (st *walk) followLink(ctx context.Context, path string) error {
	if !st.followSymlinks {
		st.stats.Skipped++
		return nil
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		st.logger.Debug("Cannot resolve symlink %s: %v", path, err)
		st.stats.Errors++
		return nil
	}
	if st.visited[resolved] {
		return nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		st.visited[resolved] = true
		return st.walkDirectory(ctx, resolved)
	}
	st.add(resolved, info)
	return nil
}

func (st *walk) skipDir(name string) bool {
	if st.excludeDirs[name] {
		return true
	}
	return !st.includeHidden && isHidden(name)
}

func (st *walk) add(path string, info os.FileInfo) {
	if !info.Mode().IsRegular() {
		st.stats.Skipped++
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if st.visited[absPath] {
		return
	}
	st.visited[absPath] = true
	st.stats.Discovered++

	if !st.filter.Filter(absPath) {
		st.stats.Filtered++
		return
	}
	if st.maxFileSize > 0 && info.Size() > st.maxFileSize {
		st.logger.Debug("Skipping %s: %d bytes exceeds limit", absPath, info.Size())
		st.stats.Skipped++
		return
	}
	st.files = append(st.files, absPath)
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}
