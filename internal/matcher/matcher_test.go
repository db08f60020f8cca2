package matcher

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

func newDefaultMatcher(t *testing.T) *PatternMatcher {
	t.Helper()
	m, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	return m
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(nil); err != ErrNoPatterns {
		t.Errorf("expected ErrNoPatterns, got %v", err)
	}
	if _, err := New([]Pattern{{Text: "", Metadata: PatternMetadata{Name: "blank"}}}); err == nil {
		t.Error("expected error for empty pattern text")
	}
}

func TestFindAllLineNumber(t *testing.T) {
	m := newDefaultMatcher(t)

	// One newline at offset 10, pattern at offset 20.
	content := []byte("aaaaaaaaaa\nbbbbbbbbbsk-secret123456789 tail")
	if idx := bytes.Index(content, []byte("sk-")); idx != 20 {
		t.Fatalf("fixture broken: pattern at %d", idx)
	}

	matches := m.FindAll(content)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(matches), matches)
	}

	got := matches[0]
	if got.Start != 20 || got.End != 23 {
		t.Errorf("expected span [20,23), got [%d,%d)", got.Start, got.End)
	}
	if got.PatternName != "stripe_secret_key" {
		t.Errorf("expected stripe_secret_key, got %s", got.PatternName)
	}
	if got.Line != 2 {
		t.Errorf("expected line 2, got %d", got.Line)
	}
}

func TestFindAllCaseInsensitive(t *testing.T) {
	m := newDefaultMatcher(t)
	matches := m.FindAll([]byte("key = akiaIOSFODNN7EXAMPLE"))
	if len(matches) != 1 || matches[0].PatternName != "aws_access_key" {
		t.Fatalf("expected case-insensitive aws match, got %+v", matches)
	}
}

func TestFindAllCompleteness(t *testing.T) {
	m := newDefaultMatcher(t)

	content := []byte("line one\n" +
		"q = \"UNION SELECT password\"\n" +
		"\n" +
		"<script>alert(1)</script>\n" +
		"os.system(\"x; rm -rf /\")\n")

	want := map[string]bool{"sql_union": true, "xss_script_tag": true, "command_rm_rf": true}
	matches := m.FindAll(content)
	if len(matches) != len(want) {
		t.Fatalf("expected %d matches, got %d: %+v", len(want), len(matches), matches)
	}

	for _, match := range matches {
		if !want[match.PatternName] {
			t.Errorf("unexpected match %s", match.PatternName)
		}
		text := m.patterns[match.PatternID].Text
		if !strings.EqualFold(string(content[match.Start:match.End]), text) {
			t.Errorf("span [%d,%d) = %q does not bound %q", match.Start, match.End, content[match.Start:match.End], text)
		}
		if wantLine := bytes.Count(content[:match.Start], []byte("\n")) + 1; match.Line != wantLine {
			t.Errorf("%s: line %d, want %d", match.PatternName, match.Line, wantLine)
		}
	}
}

func TestFindAllEmpty(t *testing.T) {
	m := newDefaultMatcher(t)
	if got := m.FindAll(nil); got != nil {
		t.Errorf("expected nil for empty content, got %+v", got)
	}
	if got := m.FindAll([]byte("nothing to see")); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestFindChars(t *testing.T) {
	content := []byte("a<b>c;d&e|f\xffg")

	tests := []struct {
		name  string
		chars []byte
		want  []int
	}{
		{"single", []byte("<"), []int{1}},
		{"pair", []byte("<>"), []int{1, 3}},
		{"triple", []byte(";&|"), []int{5, 7, 9}},
		{"generic", []byte("<>;&|"), []int{1, 3, 5, 7, 9}},
		{"non-ascii", []byte{0xff, 'a'}, []int{0, 11}},
		{"none", []byte("z"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindChars(content, tt.chars)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindChars(%q) = %v, want %v", tt.chars, got, tt.want)
			}
		})
	}
}

func TestHasSuspiciousContent(t *testing.T) {
	m := newDefaultMatcher(t)
	if m.HasSuspiciousContent([]byte("plain words only")) {
		t.Error("plain text should not be suspicious")
	}
	if !m.HasSuspiciousContent([]byte("a && b")) {
		t.Error("expected & to be suspicious")
	}
}

func TestStats(t *testing.T) {
	stats := newDefaultMatcher(t).Stats()
	if stats.TotalPatterns != 12 {
		t.Errorf("expected 12 patterns, got %d", stats.TotalPatterns)
	}
	if stats.Categories != 4 {
		t.Errorf("expected 4 categories, got %d", stats.Categories)
	}
	if stats.LongestPattern != len("SELECT * FROM") {
		t.Errorf("unexpected longest pattern %d", stats.LongestPattern)
	}
}

func TestLineAndColumn(t *testing.T) {
	content := []byte("ab\ncd\nef")
	tests := []struct {
		offset, line, col int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{3, 2, 1},
		{7, 3, 2},
	}
	for _, tt := range tests {
		if got := LineNumber(content, tt.offset); got != tt.line {
			t.Errorf("LineNumber(%d) = %d, want %d", tt.offset, got, tt.line)
		}
		if got := Column(content, tt.offset); got != tt.col {
			t.Errorf("Column(%d) = %d, want %d", tt.offset, got, tt.col)
		}
	}
}

func buildChunkedFixture() []byte {
	var b bytes.Buffer
	pieces := []string{"DROP TABLE", "ghp_", "javascript:", "UNION SELECT", "<script>"}
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("x", 7+i%5))
		if i%3 == 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pieces[i%len(pieces)])
	}
	return b.Bytes()
}

func TestAnalyzeContentMatchesSinglePass(t *testing.T) {
	m := newDefaultMatcher(t)
	content := buildChunkedFixture()

	for _, chunk := range []int{16, 23, 64, 1 << 20} {
		a := NewContentAnalyzer(m, WithChunkSize(chunk))
		got := a.AnalyzeContent(content)
		want := m.FindAll(content)

		if !reflect.DeepEqual(got, want) {
			t.Errorf("chunk %d: chunked matches differ from single pass\n got %d matches\nwant %d matches", chunk, len(got), len(want))
		}
	}
}

func TestAnalyzeContentStraddlingBoundary(t *testing.T) {
	m := newDefaultMatcher(t)
	// "DROP TABLE" spans offsets 12..22, across a 16-byte chunk seam.
	content := []byte(strings.Repeat("x", 12) + "DROP TABLE" + strings.Repeat("y", 30))

	a := NewContentAnalyzer(m, WithChunkSize(16))
	matches := a.AnalyzeContent(content)
	if len(matches) != 1 {
		t.Fatalf("expected the straddling match once, got %+v", matches)
	}
	if matches[0].Start != 12 || matches[0].End != 22 {
		t.Errorf("unexpected span [%d,%d)", matches[0].Start, matches[0].End)
	}
}

func TestFindings(t *testing.T) {
	m := newDefaultMatcher(t)
	a := NewContentAnalyzer(m)

	content := []byte("x := 1\n  token := \"ghp_abcdef\"\n")
	matches := a.AnalyzeContent(content)
	findings := a.Findings("main.go", content, matches)

	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Rule != "github_token" || f.Severity != finding.SeverityHigh {
		t.Errorf("unexpected finding %+v", f)
	}
	if f.Line != 2 {
		t.Errorf("expected line 2, got %d", f.Line)
	}
	if f.Column == nil || *f.Column != 13 {
		t.Errorf("expected column 13, got %v", f.Column)
	}
	if f.Category != CategorySecret || f.Suggestion == "" {
		t.Errorf("expected category and suggestion, got %+v", f)
	}
	if f.Analyzer != AnalyzerID {
		t.Errorf("expected analyzer %s, got %s", AnalyzerID, f.Analyzer)
	}
}
