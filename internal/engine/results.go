package engine

import (
	"sort"
	"sync"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

// Summary aggregates a batch.
type Summary struct {
	finding.Summary
	TotalFilesScanned int    `json:"total_files_scanned"`
	FilesFailed       int    `json:"files_failed"`
	SmallFiles        int    `json:"small_files"`
	LargeFiles        int    `json:"large_files"`
	BytesRead         int64  `json:"bytes_read"`
	ScanDurationMs    uint64 `json:"scan_duration_ms"`
	PeakConcurrency   int    `json:"peak_concurrency"`
}

// AnalysisResults is the output of AnalyzeBatch. Findings are in no
// particular order unless Sort is called.
type AnalysisResults struct {
	Findings []finding.Finding `json:"findings"`
	Summary  Summary           `json:"summary"`
	Failures []*FileError      `json:"failures,omitempty"`
}

// Sort orders findings by file, line and rule.
func (r *AnalysisResults) Sort() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		a, b := &r.Findings[i], &r.Findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Rule < b.Rule
	})
}

// collector gathers per-file outcomes from concurrent workers.
type collector struct {
	mu       sync.Mutex
	findings []finding.Finding
	summary  finding.Summary
	failures []*FileError
	stats    *FileErrorStats
	done     int
	bytes    int64
	total    int
	progress ProgressFunc
}

func newCollector(total int, progress ProgressFunc, stats *FileErrorStats) *collector {
	return &collector{
		summary:  finding.NewSummary(),
		total:    total,
		progress: progress,
		stats:    stats,
	}
}

func (c *collector) addFindings(fs []finding.Finding, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range fs {
		c.summary.Add(&fs[i])
	}
	c.findings = append(c.findings, fs...)
	c.bytes += bytes
	c.complete()
}

func (c *collector) addFailure(err *FileError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, err)
	if c.stats != nil {
		c.stats.Record(err)
	}
	c.complete()
}

// complete counts one finished file and reports progress. Caller holds
// the lock, so progress counts are delivered in order.
func (c *collector) complete() {
	c.done++
	if c.progress != nil {
		c.progress(c.done, c.total)
	}
}

func (c *collector) results() *AnalysisResults {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &AnalysisResults{
		Findings: c.findings,
		Failures: c.failures,
		Summary: Summary{
			Summary:           c.summary,
			TotalFilesScanned: c.done,
			FilesFailed:       len(c.failures),
			BytesRead:         c.bytes,
		},
	}
}
