package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrorCode classifies a per-file failure.
type ErrorCode string

// Error codes for file analysis.
const (
	CodeFileAccess    ErrorCode = "FILE_ACCESS"
	CodeFileRead      ErrorCode = "FILE_READ"
	CodeAnalyzer      ErrorCode = "ANALYZER"
	CodeAnalyzerPanic ErrorCode = "ANALYZER_PANIC"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"
	CodeCancelled     ErrorCode = "CONTEXT_CANCELLED"
	CodeValidation    ErrorCode = "VALIDATION"
)

// ErrNoAnalyzer is returned when AnalyzeBatch is called without an analyzer.
var ErrNoAnalyzer = errors.New("no analyzer")

// FileError records why one file could not be analyzed. It never aborts
// the batch; the engine collects it in AnalysisResults.Failures.
type FileError struct {
	Code      ErrorCode              `json:"code"`
	Path      string                 `json:"path"`
	Operation string                 `json:"operation"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s failed for %s: %s: %v",
			e.Code, e.Operation, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s failed for %s: %s",
		e.Code, e.Operation, e.Path, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FileError) Unwrap() error {
	return e.Cause
}

// Is matches another *FileError with the same code.
func (e *FileError) Is(target error) bool {
	if t, ok := target.(*FileError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext attaches a key/value pair and returns e.
func (e *FileError) WithContext(key string, value interface{}) *FileError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewFileError creates a file error stamped with the current time.
func NewFileError(code ErrorCode, path, operation, message string, cause error) *FileError {
	return &FileError{
		Code:      code,
		Path:      path,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func errFileAccess(path string, cause error) *FileError {
	return NewFileError(CodeFileAccess, path, "open", "cannot access file", cause)
}

func errFileRead(path string, cause error) *FileError {
	return NewFileError(CodeFileRead, path, "read", "cannot read file", cause)
}

func errAnalyzer(path string, cause error) *FileError {
	return NewFileError(CodeAnalyzer, path, "analyze", "analyzer failed", cause)
}

func errAnalyzerPanic(path string, cause error) *FileError {
	return NewFileError(CodeAnalyzerPanic, path, "analyze", "analyzer panicked", cause)
}

func errCancelled(path string, cause error) *FileError {
	return NewFileError(CodeCancelled, path, "analyze", "operation cancelled", cause)
}

// IsRetryable reports whether the file may succeed on a later attempt.
func (e *FileError) IsRetryable() bool {
	switch e.Code {
	case CodeRateLimited, CodeFileAccess:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error ends the batch.
func (e *FileError) IsFatal() bool {
	return e.Code == CodeCancelled
}

// FileErrorStats tracks failures by code and path. It is safe for
// concurrent use.
type FileErrorStats struct {
	mu        sync.Mutex
	ByCode    map[ErrorCode]int64
	ByPath    map[string]int
	Retryable int64
	Fatal     int64
	Total     int64
}

// NewFileErrorStats creates an empty tracker.
func NewFileErrorStats() *FileErrorStats {
	return &FileErrorStats{
		ByCode: make(map[ErrorCode]int64),
		ByPath: make(map[string]int),
	}
}

// Record adds err to the counts.
func (s *FileErrorStats) Record(err *FileError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Total++
	s.ByCode[err.Code]++
	s.ByPath[err.Path]++

	if err.IsRetryable() {
		s.Retryable++
	}
	if err.IsFatal() {
		s.Fatal++
	}
}

// Count returns the number of errors recorded with code.
func (s *FileErrorStats) Count(code ErrorCode) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ByCode[code]
}
