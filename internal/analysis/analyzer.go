// Package analysis provides the security analyzer run by the engine for
// every file and stream chunk.
package analysis

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/greysquirr3l/codeguardian-go/internal/cache"
	"github.com/greysquirr3l/codeguardian-go/internal/finding"
	"github.com/greysquirr3l/codeguardian-go/internal/logging"
	"github.com/greysquirr3l/codeguardian-go/internal/matcher"
	"github.com/greysquirr3l/codeguardian-go/internal/pool"
)

// RegexAnalyzerID identifies findings produced by regex rules.
const RegexAnalyzerID = "regex_security"

// Rule is a regex rule run alongside the literal pattern set.
type Rule struct {
	Name        string
	Pattern     string
	Severity    finding.Severity
	Category    string
	Description string
	// Prescreen skips the rule on content without markup or shell
	// metacharacters.
	Prescreen bool
}

// ParseRules builds rules from "name=regex" or bare "regex" entries.
// Bare entries are named custom_1, custom_2 and so on.
func ParseRules(specs []string) []Rule {
	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		name, pattern, ok := strings.Cut(spec, "=")
		if !ok || name == "" || strings.ContainsAny(name, " \t()[]\\") {
			name, pattern = fmt.Sprintf("custom_%d", i+1), spec
		}
		rules = append(rules, Rule{
			Name:        name,
			Pattern:     pattern,
			Severity:    finding.SeverityMedium,
			Category:    "custom",
			Description: fmt.Sprintf("Custom rule %s matched", name),
		})
	}
	return rules
}

// SecurityAnalyzer runs the literal pattern matcher and any regex rules
// over content. Whole-file results are memoized in a ResultStore keyed
// by the configuration hash. Safe for concurrent use.
type SecurityAnalyzer struct {
	content    *matcher.ContentAnalyzer
	regexes    *cache.RegexCache
	rules      []Rule
	results    cache.ResultStore
	configHash string
	pools      *pool.Pools
	logger     *logging.Logger
}

// Option configures a SecurityAnalyzer.
type Option func(*SecurityAnalyzer)

// WithRules adds regex rules.
func WithRules(rules ...Rule) Option {
	return func(a *SecurityAnalyzer) {
		a.rules = append(a.rules, rules...)
	}
}

// WithRegexCache sets the cache used to compile rule patterns.
func WithRegexCache(c *cache.RegexCache) Option {
	return func(a *SecurityAnalyzer) {
		a.regexes = c
	}
}

// WithResultStore enables result memoization under configHash.
func WithResultStore(store cache.ResultStore, configHash string) Option {
	return func(a *SecurityAnalyzer) {
		a.results = store
		a.configHash = configHash
	}
}

// WithPools sets the pools used for scratch buffers.
func WithPools(p *pool.Pools) Option {
	return func(a *SecurityAnalyzer) {
		a.pools = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *SecurityAnalyzer) {
		a.logger = l
	}
}

// New creates an analyzer around content. Every rule pattern is compiled
// up front; an invalid pattern is an error.
func New(content *matcher.ContentAnalyzer, opts ...Option) (*SecurityAnalyzer, error) {
	a := &SecurityAnalyzer{
		content: content,
		results: cache.NoOpResultStore{},
		logger:  logging.New(logging.LevelInfo),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.regexes == nil {
		a.regexes = cache.NewRegexCache(cache.WithRegexLogger(a.logger))
	}
	if a.pools == nil {
		a.pools = pool.DefaultPools()
	}

	sources := make([]string, len(a.rules))
	for i, r := range a.rules {
		sources[i] = r.Pattern
	}
	if err := a.regexes.PreloadPatterns(sources); err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}
	return a, nil
}

// Rules returns the configured regex rules.
func (a *SecurityAnalyzer) Rules() []Rule {
	return slices.Clone(a.rules)
}

// Analyze implements engine.Analyzer. content may be a whole file or a
// chunk of one; only whole files go through the result store.
func (a *SecurityAnalyzer) Analyze(ctx context.Context, path string, content []byte) ([]finding.Finding, error) {
	whole := isWholeFile(path, content)
	if whole {
		if cached, ok := a.results.Get(path, a.configHash); ok {
			return cached, nil
		}
	}

	start := time.Now()
	findings, err := a.analyze(ctx, path, content)
	if err != nil {
		return nil, err
	}

	if whole {
		elapsed := uint64(time.Since(start).Milliseconds())
		if err := a.results.Put(path, findings, a.configHash, elapsed); err != nil {
			a.logger.Debug("not caching results for %s: %v", path, err)
		}
	}
	return findings, nil
}

func (a *SecurityAnalyzer) analyze(ctx context.Context, path string, content []byte) ([]finding.Finding, error) {
	scratch := a.pools.Findings.Get()
	defer func() { a.pools.Findings.Put(scratch) }()

	matches := a.content.AnalyzeContent(content)
	scratch = append(scratch, a.content.Findings(path, content, matches)...)

	suspicious := a.content.NeedsAnalysis(content)
	for _, rule := range a.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rule.Prescreen && !suspicious {
			continue
		}
		found, err := a.applyRule(rule, path, content)
		if err != nil {
			return nil, err
		}
		scratch = append(scratch, found...)
	}
	return slices.Clone(scratch), nil
}

func (a *SecurityAnalyzer) applyRule(rule Rule, path string, content []byte) ([]finding.Finding, error) {
	re, err := a.regexes.GetOrCompile(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
	}
	spans, err := re.FindAllIndex(content)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
	}

	out := make([]finding.Finding, 0, len(spans))
	for _, span := range spans {
		line := uint32(matcher.LineNumber(content, span[0])) //#nosec G115 -- line counts fit in uint32
		col := uint32(matcher.Column(content, span[0]))      //#nosec G115 -- bounded by line length
		f := finding.New(RegexAnalyzerID, rule.Name, rule.Severity, path, line, a.message(rule, content[span[0]:span[1]])).
			WithColumn(col).
			WithCategory(rule.Category).
			WithDescription(rule.Description)
		out = append(out, f)
	}
	return out, nil
}

// maxExcerpt bounds the matched text quoted in a message.
const maxExcerpt = 40

func (a *SecurityAnalyzer) message(rule Rule, matched []byte) string {
	b := a.pools.Builders.Get()
	defer a.pools.Builders.Put(b)

	b.WriteString("Rule ")
	b.WriteString(rule.Name)
	b.WriteString(" matched ")
	if len(matched) > maxExcerpt {
		fmt.Fprintf(b, "%q...", matched[:maxExcerpt])
	} else {
		fmt.Fprintf(b, "%q", matched)
	}
	return b.String()
}

// isWholeFile reports whether content is the entire current file at path.
func isWholeFile(path string, content []byte) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() == int64(len(content))
}
