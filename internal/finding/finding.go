// Package finding defines the records produced by analyzers.
package finding

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unsafe"
)

// Severity ranks how serious a finding is.
type Severity int

// Severity levels, ordered from least to most serious.
const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"Info", "Low", "Medium", "High", "Critical"}

// String returns the display name of the severity.
func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return "Unknown"
	}
	return severityNames[s]
}

// ParseSeverity converts a severity name (case-insensitive) to a Severity.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Severity(i), nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Finding is a single reported defect. Treat it as immutable once built.
type Finding struct {
	ID          string            `json:"id"`
	Analyzer    string            `json:"analyzer"`
	Rule        string            `json:"rule"`
	Severity    Severity          `json:"severity"`
	File        string            `json:"file"`
	Line        uint32            `json:"line"`
	Column      *uint32           `json:"column,omitempty"`
	Message     string            `json:"message"`
	Description string            `json:"description,omitempty"`
	Suggestion  string            `json:"suggestion,omitempty"`
	Category    string            `json:"category,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New builds a finding and derives its ID.
func New(analyzer, rule string, severity Severity, file string, line uint32, message string) Finding {
	return Finding{
		ID:       GenerateID(analyzer, rule, file, line, message),
		Analyzer: analyzer,
		Rule:     rule,
		Severity: severity,
		File:     file,
		Line:     line,
		Message:  message,
	}
}

// GenerateID returns the first 32 hex characters of a sha256 over the
// identifying fields, so the same defect yields the same ID across runs.
func GenerateID(analyzer, rule, file string, line uint32, message string) string {
	h := sha256.New()
	h.Write([]byte(analyzer))
	h.Write([]byte(rule))
	h.Write([]byte(file))
	var lineBytes [4]byte
	binary.LittleEndian.PutUint32(lineBytes[:], line)
	h.Write(lineBytes[:])
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// WithColumn returns a copy of f with the column set.
func (f Finding) WithColumn(col uint32) Finding {
	f.Column = &col
	return f
}

// WithDescription returns a copy of f with the description set.
func (f Finding) WithDescription(desc string) Finding {
	f.Description = desc
	return f
}

// WithSuggestion returns a copy of f with the suggestion set.
func (f Finding) WithSuggestion(s string) Finding {
	f.Suggestion = s
	return f
}

// WithCategory returns a copy of f with the category set.
func (f Finding) WithCategory(c string) Finding {
	f.Category = c
	return f
}

// WithMetadata returns a copy of f with key set in a fresh metadata map.
func (f Finding) WithMetadata(key, value string) Finding {
	md := make(map[string]string, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		md[k] = v
	}
	md[key] = value
	f.Metadata = md
	return f
}

// ShiftLine returns a copy of f moved down by delta lines with a
// recomputed ID. Used when a finding was produced against a slice of a
// larger file.
func (f Finding) ShiftLine(delta uint32) Finding {
	if delta == 0 {
		return f
	}
	f.Line += delta
	f.ID = GenerateID(f.Analyzer, f.Rule, f.File, f.Line, f.Message)
	return f
}

// StructSize is the fixed in-memory size of a Finding value.
const StructSize = int(unsafe.Sizeof(Finding{}))

// HeapSize estimates the bytes held by the variable-length fields of f.
func (f *Finding) HeapSize() int {
	return len(f.Message) + len(f.Description) + len(f.Suggestion)
}
