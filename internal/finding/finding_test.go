package finding

import (
	"encoding/json"
	"testing"
)

func TestGenerateIDStable(t *testing.T) {
	a := GenerateID("security", "aws_access_key", "main.go", 7, "AWS access key detected")
	b := GenerateID("security", "aws_access_key", "main.go", 7, "AWS access key detected")
	c := GenerateID("security", "aws_access_key", "main.go", 8, "AWS access key detected")

	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different lines produced the same ID")
	}
}

func TestBuilders(t *testing.T) {
	f := New("security", "xss_script_tag", SeverityHigh, "index.html", 3, "script tag").
		WithColumn(5).
		WithCategory("xss").
		WithMetadata("pattern", "<script>")

	if f.Column == nil || *f.Column != 5 {
		t.Errorf("expected column 5, got %v", f.Column)
	}
	if f.Category != "xss" {
		t.Errorf("expected category xss, got %q", f.Category)
	}
	if f.Metadata["pattern"] != "<script>" {
		t.Errorf("metadata not set: %v", f.Metadata)
	}

	g := f.WithMetadata("extra", "1")
	if _, ok := f.Metadata["extra"]; ok {
		t.Error("WithMetadata must not mutate the original map")
	}
	if len(g.Metadata) != 2 {
		t.Errorf("expected 2 metadata keys, got %d", len(g.Metadata))
	}
}

func TestShiftLine(t *testing.T) {
	f := New("security", "sql_union", SeverityHigh, "big.sql", 2, "union")
	shifted := f.ShiftLine(100)

	if shifted.Line != 102 {
		t.Errorf("expected line 102, got %d", shifted.Line)
	}
	if shifted.ID != GenerateID("security", "sql_union", "big.sql", 102, "union") {
		t.Error("shifted finding should carry a recomputed ID")
	}
	if f.Line != 2 {
		t.Error("ShiftLine must not modify the receiver")
	}
}

func TestSeverityJSON(t *testing.T) {
	f := New("a", "r", SeverityCritical, "f", 1, "m")
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Finding
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Severity != SeverityCritical {
		t.Errorf("expected Critical, got %v", back.Severity)
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(SeverityInfo < SeverityLow && SeverityLow < SeverityMedium &&
		SeverityMedium < SeverityHigh && SeverityHigh < SeverityCritical) {
		t.Error("severities are not ordered")
	}
	if _, err := ParseSeverity("bogus"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestSummary(t *testing.T) {
	s := NewSummary()
	if _, ok := s.HighestSeverity(); ok {
		t.Error("empty summary should have no highest severity")
	}

	for _, f := range []Finding{
		New("security", "a", SeverityLow, "x", 1, "m"),
		New("security", "b", SeverityHigh, "x", 2, "m"),
		New("quality", "c", SeverityLow, "y", 1, "m"),
	} {
		s.Add(&f)
	}

	if s.TotalFindings != 3 {
		t.Errorf("expected 3 findings, got %d", s.TotalFindings)
	}
	if s.BySeverity[SeverityLow] != 2 {
		t.Errorf("expected 2 low findings, got %d", s.BySeverity[SeverityLow])
	}
	if s.ByAnalyzer["security"] != 2 {
		t.Errorf("expected 2 security findings, got %d", s.ByAnalyzer["security"])
	}
	if sev, _ := s.HighestSeverity(); sev != SeverityHigh {
		t.Errorf("expected High, got %v", sev)
	}
}
