package cache

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/wasilibs/go-re2"
)

// DefaultMatchTimeout bounds a single backtracking match.
const DefaultMatchTimeout = time.Second

// PatternError reports pattern text that neither regex engine accepts.
type PatternError struct {
	Pattern string
	Cause   error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Cause)
}

func (e *PatternError) Unwrap() error {
	return e.Cause
}

// Is matches ErrInvalidPattern.
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// CompiledPattern holds a pattern compiled for the fastest engine that
// accepts it. RE2 is tried first; the backtracking engine serves patterns
// RE2 rejects (lookaround, backreferences). Both engines run in multiline
// mode so ^ and $ anchor at line boundaries whichever one is used.
type CompiledPattern struct {
	re2Pattern  *re2.Regexp
	pcrePattern *regexp2.Regexp
	source      string
	useRE2      bool
}

// CompilePattern compiles source with the two-engine strategy. It fails
// only when neither engine accepts the text.
func CompilePattern(source string, timeout time.Duration) (*CompiledPattern, error) {
	cp := &CompiledPattern{source: source}

	if re, err := re2.Compile("(?m)" + source); err == nil {
		cp.re2Pattern = re
		cp.useRE2 = true
	}

	pcre, err := regexp2.Compile(source, regexp2.Multiline)
	if err != nil {
		if cp.useRE2 {
			// RE2-only syntax such as (?P<name>...) or \Q...\E.
			return cp, nil
		}
		return nil, &PatternError{Pattern: source, Cause: err}
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	pcre.MatchTimeout = timeout
	cp.pcrePattern = pcre

	return cp, nil
}

// Source returns the pattern text.
func (cp *CompiledPattern) Source() string {
	return cp.source
}

// IsRE2 reports whether matching runs on the RE2 engine.
func (cp *CompiledPattern) IsRE2() bool {
	return cp.useRE2
}

// MatchString reports whether the pattern matches anywhere in s.
func (cp *CompiledPattern) MatchString(s string) (bool, error) {
	if cp.useRE2 {
		return cp.re2Pattern.MatchString(s), nil
	}
	ok, err := cp.pcrePattern.MatchString(s)
	if err != nil {
		return false, fmt.Errorf("matching %q: %w", cp.source, err)
	}
	return ok, nil
}

// FindAllIndex returns the byte spans of every non-overlapping match.
func (cp *CompiledPattern) FindAllIndex(content []byte) ([][2]int, error) {
	if cp.useRE2 {
		locs := cp.re2Pattern.FindAllIndex(content, -1)
		out := make([][2]int, len(locs))
		for i, loc := range locs {
			out[i] = [2]int{loc[0], loc[1]}
		}
		return out, nil
	}

	// regexp2 reports rune offsets; translate them back to bytes.
	s := string(content)
	offsets := runeByteOffsets(s)

	var out [][2]int
	m, err := cp.pcrePattern.FindStringMatch(s)
	for m != nil && err == nil {
		start := offsets[m.Index]
		end := offsets[m.Index+m.Length]
		out = append(out, [2]int{start, end})
		m, err = cp.pcrePattern.FindNextMatch(m)
	}
	if err != nil {
		return out, fmt.Errorf("matching %q: %w", cp.source, err)
	}
	return out, nil
}

// runeByteOffsets maps rune index i to its byte offset, with one extra
// slot for the end of the string.
func runeByteOffsets(s string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}
