package matcher

import (
	"sort"
	"strconv"

	"github.com/sourcegraph/conc"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

// DefaultChunkSize is the content size above which AnalyzeContent splits
// work across goroutines.
const DefaultChunkSize = 64 * 1024

// AnalyzerID identifies findings produced from literal pattern matches.
const AnalyzerID = "pattern_security"

// ContentAnalyzer runs a PatternMatcher over arbitrarily large buffers.
type ContentAnalyzer struct {
	matcher   *PatternMatcher
	chunkSize int
	overlap   int
}

// AnalyzerOption configures a ContentAnalyzer.
type AnalyzerOption func(*ContentAnalyzer)

// WithChunkSize sets the parallel chunk threshold in bytes.
func WithChunkSize(size int) AnalyzerOption {
	return func(a *ContentAnalyzer) {
		if size > 0 {
			a.chunkSize = size
		}
	}
}

// NewContentAnalyzer wraps m. Adjacent chunks overlap by the longest
// pattern length minus one so that no match is lost at a chunk seam.
func NewContentAnalyzer(m *PatternMatcher, opts ...AnalyzerOption) *ContentAnalyzer {
	a := &ContentAnalyzer{
		matcher:   m,
		chunkSize: DefaultChunkSize,
		overlap:   max(m.LongestPattern()-1, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Matcher returns the underlying pattern matcher.
func (a *ContentAnalyzer) Matcher() *PatternMatcher {
	return a.matcher
}

// ChunkSize returns the parallel chunk threshold.
func (a *ContentAnalyzer) ChunkSize() int {
	return a.chunkSize
}

// NeedsAnalysis is a cheap pre-screen; false means content is clearly benign
// for markup and shell rules.
func (a *ContentAnalyzer) NeedsAnalysis(content []byte) bool {
	return a.matcher.HasSuspiciousContent(content)
}

// AnalyzeContent returns all matches in content ordered by offset. Inputs
// larger than the chunk size are split into chunks matched concurrently.
func (a *ContentAnalyzer) AnalyzeContent(content []byte) []Match {
	if len(content) <= a.chunkSize {
		return a.matcher.FindAll(content)
	}

	numChunks := (len(content) + a.chunkSize - 1) / a.chunkSize
	perChunk := make([][]Match, numChunks)

	var wg conc.WaitGroup
	for i := 0; i < numChunks; i++ {
		wg.Go(func() {
			perChunk[i] = a.matchChunk(content, i*a.chunkSize)
		})
	}
	wg.Wait()

	return a.merge(content, perChunk)
}

// matchChunk scans the window starting at start and keeps only matches
// that begin in the chunk's own range; the trailing overlap belongs to the
// next chunk.
func (a *ContentAnalyzer) matchChunk(content []byte, start int) []Match {
	owned := min(start+a.chunkSize, len(content))
	end := min(owned+a.overlap, len(content))

	window := content[start:end]
	found := a.matcher.findAll(window, &lineCounter{content: window})

	kept := found[:0]
	for _, m := range found {
		if start+m.Start >= owned {
			continue
		}
		m.Start += start
		m.End += start
		kept = append(kept, m)
	}
	return kept
}

type matchKey struct {
	start, end, pattern int
}

func (a *ContentAnalyzer) merge(content []byte, perChunk [][]Match) []Match {
	total := 0
	for _, ms := range perChunk {
		total += len(ms)
	}

	merged := make([]Match, 0, total)
	seen := make(map[matchKey]struct{}, total)
	for _, ms := range perChunk {
		for _, m := range ms {
			key := matchKey{m.Start, m.End, m.PatternID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, m)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Start != merged[j].Start {
			return merged[i].Start < merged[j].Start
		}
		return merged[i].PatternID < merged[j].PatternID
	})

	// Chunk-local line numbers are meaningless once merged.
	lines := &lineCounter{content: content}
	for i := range merged {
		merged[i].Line = lines.lineAt(merged[i].Start)
	}
	return merged
}

// Findings converts matches against content into findings for path.
func (a *ContentAnalyzer) Findings(path string, content []byte, matches []Match) []finding.Finding {
	out := make([]finding.Finding, 0, len(matches))
	for _, m := range matches {
		md, ok := a.matcher.Metadata(m.PatternID)
		if !ok {
			continue
		}
		line := uint32(m.Line)                  //#nosec G115 -- line counts fit in uint32
		col := uint32(Column(content, m.Start)) //#nosec G115 -- bounded by line length
		f := finding.New(AnalyzerID, md.Name, md.Severity, path, line, md.Description).
			WithColumn(col).
			WithCategory(md.Category).
			WithSuggestion(SuggestionFor(md.Category)).
			WithMetadata("offset", strconv.Itoa(m.Start))
		out = append(out, f)
	}
	return out
}
