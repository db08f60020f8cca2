// Package matcher finds a fixed set of literal patterns in file content
// with a single Aho-Corasick automaton.
package matcher

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

// ErrNoPatterns is returned when a matcher is built from an empty pattern list.
var ErrNoPatterns = errors.New("matcher: no patterns")

// PatternMetadata describes the rule behind a literal pattern.
type PatternMetadata struct {
	Name        string
	Severity    finding.Severity
	Category    string
	Description string
}

// Pattern pairs literal text with its rule metadata.
type Pattern struct {
	Text     string
	Metadata PatternMetadata
}

// Match is one occurrence of a pattern. Start and End are byte offsets
// into the scanned content; Line is 1-based.
type Match struct {
	Start       int
	End         int
	PatternID   int
	PatternName string
	Line        int
}

// PatternStats summarizes a matcher's pattern set.
type PatternStats struct {
	TotalPatterns  int
	Categories     int
	LongestPattern int
}

// PatternMatcher scans content for all of its patterns in one pass.
// Matching is ASCII case-insensitive. Safe for concurrent use.
type PatternMatcher struct {
	automaton ahocorasick.AhoCorasick
	patterns  []Pattern
	longest   int
}

// New compiles patterns into a single automaton. Pattern IDs are the
// indices into patterns.
func New(patterns []Pattern) (*PatternMatcher, error) {
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}

	texts := make([]string, len(patterns))
	longest := 0
	for i, p := range patterns {
		if p.Text == "" {
			return nil, fmt.Errorf("matcher: pattern %d (%s) is empty", i, p.Metadata.Name)
		}
		texts[i] = p.Text
		longest = max(longest, len(p.Text))
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.StandardMatch,
		DFA:                  true,
	})

	stored := make([]Pattern, len(patterns))
	copy(stored, patterns)

	return &PatternMatcher{
		automaton: builder.Build(texts),
		patterns:  stored,
		longest:   longest,
	}, nil
}

// NewDefault builds a matcher over DefaultSecurityPatterns.
func NewDefault() (*PatternMatcher, error) {
	return New(DefaultSecurityPatterns())
}

// FindAll returns every match in content, ordered by start offset.
func (m *PatternMatcher) FindAll(content []byte) []Match {
	return m.findAll(content, &lineCounter{content: content})
}

func (m *PatternMatcher) findAll(content []byte, lines *lineCounter) []Match {
	if len(content) == 0 {
		return nil
	}

	// The automaton only reads the haystack, so it can share content's memory.
	haystack := unsafe.String(unsafe.SliceData(content), len(content))

	raw := m.automaton.FindAll(haystack)
	if len(raw) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(raw))
	for _, r := range raw {
		id := r.Pattern()
		if id < 0 || id >= len(m.patterns) {
			continue
		}
		matches = append(matches, Match{
			Start:       r.Start(),
			End:         r.End(),
			PatternID:   id,
			PatternName: m.patterns[id].Metadata.Name,
			Line:        lines.lineAt(r.Start()),
		})
	}
	return matches
}

// Metadata returns the rule metadata for a pattern ID.
func (m *PatternMatcher) Metadata(id int) (PatternMetadata, bool) {
	if id < 0 || id >= len(m.patterns) {
		return PatternMetadata{}, false
	}
	return m.patterns[id].Metadata, true
}

// Patterns returns a copy of the pattern set.
func (m *PatternMatcher) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// LongestPattern returns the byte length of the longest pattern.
func (m *PatternMatcher) LongestPattern() int {
	return m.longest
}

// Stats returns pattern set statistics.
func (m *PatternMatcher) Stats() PatternStats {
	categories := make(map[string]struct{})
	for _, p := range m.patterns {
		categories[p.Metadata.Category] = struct{}{}
	}
	return PatternStats{
		TotalPatterns:  len(m.patterns),
		Categories:     len(categories),
		LongestPattern: m.longest,
	}
}

// FindChars returns every offset in content holding one of chars.
func (m *PatternMatcher) FindChars(content, chars []byte) []int {
	return FindChars(content, chars)
}

// HasSuspiciousContent reports whether content contains any shell or
// markup metacharacter. Content without them cannot match the default
// injection rules.
func (m *PatternMatcher) HasSuspiciousContent(content []byte) bool {
	return HasSuspiciousContent(content)
}

// lineCounter computes 1-based line numbers for ascending offsets by
// counting newlines only between consecutive queries.
type lineCounter struct {
	content []byte
	pos     int
	line    int
}

func (lc *lineCounter) lineAt(offset int) int {
	if offset > len(lc.content) {
		offset = len(lc.content)
	}
	if lc.line == 0 || offset < lc.pos {
		lc.pos = 0
		lc.line = 1
	}
	lc.line += bytes.Count(lc.content[lc.pos:offset], []byte{'\n'})
	lc.pos = offset
	return lc.line
}

// LineNumber returns the 1-based line containing offset.
func LineNumber(content []byte, offset int) int {
	if offset <= 0 {
		return 1
	}
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte{'\n'}) + 1
}

// Column returns the 1-based byte column of offset within its line.
func Column(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return offset - (bytes.LastIndexByte(content[:offset], '\n') + 1) + 1
}
