// Package discover turns path arguments into the list of files to analyze.
package discover

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/greysquirr3l/codeguardian-go/internal/cache"
)

// FilterCondition is one allow or deny test in a FileFilter.
type FilterCondition struct {
	Test  func(path string) bool
	Allow bool
}

// FileFilter decides which discovered files are analyzed. A path passes
// when at least one allow condition matches and no deny condition does.
type FileFilter struct {
	conditions []*FilterCondition
}

// NewFileFilter creates an empty filter. It rejects everything until an
// allow condition is added.
func NewFileFilter() *FileFilter {
	return &FileFilter{
		conditions: make([]*FilterCondition, 0),
	}
}

// AddCondition adds a filter condition
func (f *FileFilter) AddCondition(cond *FilterCondition) {
	f.conditions = append(f.conditions, cond)
}

// Add adds a condition with the given test and allow flag
func (f *FileFilter) Add(test func(path string) bool, allow bool) {
	f.AddCondition(&FilterCondition{
		Test:  test,
		Allow: allow,
	})
}

// Allow adds an allow condition
func (f *FileFilter) Allow(test func(path string) bool) {
	f.Add(test, true)
}

// Deny adds a deny condition
func (f *FileFilter) Deny(test func(path string) bool) {
	f.Add(test, false)
}

// Filter reports whether path should be analyzed.
func (f *FileFilter) Filter(path string) bool {
	allowed := false

	for _, cond := range f.conditions {
		if cond.Allow && allowed {
			continue // one allow is enough
		}

		if cond.Test(path) {
			if !cond.Allow {
				return false // deny wins
			}
			allowed = true
		}
	}

	return allowed
}

// SourceExtensions are the file types analyzed by default.
var SourceExtensions = []string{
	"go", "rs", "py", "js", "jsx", "ts", "tsx", "java", "kt", "rb", "php",
	"c", "h", "cc", "cpp", "hpp", "cs", "swift", "scala", "sh", "bash",
	"sql", "html", "htm", "vue", "yaml", "yml", "toml", "json", "xml",
	"ini", "env", "conf", "tf",
}

// FilterAny always returns true
func FilterAny(string) bool {
	return true
}

// FilterFilename matches paths whose base name is filename.
func FilterFilename(filename string) func(string) bool {
	return func(path string) bool {
		return filepath.Base(path) == filename
	}
}

// FilterPattern matches paths against a regular expression. RE2 syntax is
// preferred; patterns that need lookaround fall back to a backtracking
// engine.
func FilterPattern(pattern string) (func(string) bool, error) {
	re, err := cache.CompilePattern(pattern, time.Second)
	if err != nil {
		return nil, fmt.Errorf("filter pattern: %w", err)
	}
	return func(path string) bool {
		ok, err := re.MatchString(path)
		return err == nil && ok
	}, nil
}

// FilterExtensions matches any of exts, case-insensitively. A leading dot
// is optional.
func FilterExtensions(exts ...string) func(string) bool {
	extMap := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}
	return func(path string) bool {
		return extMap[strings.ToLower(filepath.Ext(path))]
	}
}

// DefaultFilter allows SourceExtensions.
func DefaultFilter() *FileFilter {
	f := NewFileFilter()
	f.Allow(FilterExtensions(SourceExtensions...))
	return f
}

// AllFilesFilter creates a filter that allows all files
func AllFilesFilter() *FileFilter {
	f := NewFileFilter()
	f.Allow(FilterAny)
	return f
}

// FilterConfig lists include and exclude rules on top of the defaults.
type FilterConfig struct {
	IncludeFiles    []string // base names to include
	IncludePatterns []string // regexes to include
	ExcludeFiles    []string // base names to exclude
	ExcludePatterns []string // regexes to exclude
	IncludeAll      bool
}

// NewFilterFromConfig builds a filter from cfg.
func NewFilterFromConfig(cfg *FilterConfig) (*FileFilter, error) {
	f := NewFileFilter()

	if cfg.IncludeAll {
		f.Allow(FilterAny)
	} else {
		f.Allow(FilterExtensions(SourceExtensions...))

		for _, filename := range cfg.IncludeFiles {
			f.Allow(FilterFilename(filename))
		}
		for _, pattern := range cfg.IncludePatterns {
			fn, err := FilterPattern(pattern)
			if err != nil {
				return nil, err
			}
			f.Allow(fn)
		}
	}

	for _, filename := range cfg.ExcludeFiles {
		f.Deny(FilterFilename(filename))
	}
	for _, pattern := range cfg.ExcludePatterns {
		fn, err := FilterPattern(pattern)
		if err != nil {
			return nil, err
		}
		f.Deny(fn)
	}

	return f, nil
}
