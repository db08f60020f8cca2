package matcher

import (
	"testing"
)

// generateSource repeats a Go-like snippet with a few planted findings
// until it reaches size bytes.
func generateSource(size int) []byte {
	base := `package handlers

import "database/sql"

func lookup(db *sql.DB, id string) error {
	// TODO: validate id
	rows, err := db.Query("SELECT * FROM users WHERE id = " + id)
	if err != nil {
		return err
	}
	defer rows.Close()
	return nil
}

const region = "us-east-1"
`
	content := make([]byte, 0, size)
	for len(content) < size {
		remaining := size - len(content)
		if remaining >= len(base) {
			content = append(content, base...)
		} else {
			content = append(content, base[:remaining]...)
		}
	}
	return content
}

func benchmarkMatcher(b *testing.B) *PatternMatcher {
	b.Helper()
	m, err := NewDefault()
	if err != nil {
		b.Fatal(err)
	}
	return m
}

// BenchmarkFindAllSmallFile benchmarks a single pass over 1KB
func BenchmarkFindAllSmallFile(b *testing.B) {
	m := benchmarkMatcher(b)
	content := generateSource(1024)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = m.FindAll(content)
	}
}

// BenchmarkFindAllLargeFile benchmarks a single pass over 1MB
func BenchmarkFindAllLargeFile(b *testing.B) {
	m := benchmarkMatcher(b)
	content := generateSource(1024 * 1024)

	b.SetBytes(int64(len(content)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = m.FindAll(content)
	}
}

// BenchmarkAnalyzeContentChunked benchmarks the parallel chunked path
// against the same 1MB input
func BenchmarkAnalyzeContentChunked(b *testing.B) {
	a := NewContentAnalyzer(benchmarkMatcher(b), WithChunkSize(64*1024))
	content := generateSource(1024 * 1024)

	b.SetBytes(int64(len(content)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = a.AnalyzeContent(content)
	}
}

// BenchmarkNeedsAnalysis benchmarks the character pre-screen
func BenchmarkNeedsAnalysis(b *testing.B) {
	a := NewContentAnalyzer(benchmarkMatcher(b))
	content := generateSource(100 * 1024)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = a.NeedsAnalysis(content)
	}
}
