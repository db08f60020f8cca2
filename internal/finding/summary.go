package finding

// Summary aggregates findings by severity and analyzer.
type Summary struct {
	TotalFindings int              `json:"total_findings"`
	BySeverity    map[Severity]int `json:"by_severity"`
	ByAnalyzer    map[string]int   `json:"by_analyzer"`
}

// NewSummary creates an empty summary.
func NewSummary() Summary {
	return Summary{
		BySeverity: make(map[Severity]int),
		ByAnalyzer: make(map[string]int),
	}
}

// Add counts f in the summary.
func (s *Summary) Add(f *Finding) {
	s.TotalFindings++
	s.BySeverity[f.Severity]++
	s.ByAnalyzer[f.Analyzer]++
}

// HighestSeverity returns the most serious severity present, and false
// when the summary is empty.
func (s *Summary) HighestSeverity() (Severity, bool) {
	for sev := SeverityCritical; sev >= SeverityInfo; sev-- {
		if s.BySeverity[sev] > 0 {
			return sev, true
		}
	}
	return SeverityInfo, false
}
