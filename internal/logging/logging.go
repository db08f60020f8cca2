// Package logging provides leveled logging for the analysis engine and CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents a logging level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelVerbose is for verbose messages.
	LevelVerbose
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarning is for warning messages.
	LevelWarning
	// LevelError is for error messages.
	LevelError
	// LevelCritical is for critical messages.
	LevelCritical
)

var levelNames = map[Level]string{
	LevelDebug:    "DEBUG",
	LevelVerbose:  "VERBOSE",
	LevelInfo:     "INFO",
	LevelWarning:  "WARNING",
	LevelError:    "ERROR",
	LevelCritical: "CRITICAL",
}

// String returns the string representation of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(name string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "WARN" {
		upper = "WARNING"
	}
	for level, n := range levelNames {
		if n == upper {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// sink is the output state shared by a logger and its named children.
type sink struct {
	mu       sync.Mutex
	level    Level
	out      io.Writer
	errOut   io.Writer
	colored  bool
	prefixed bool
}

// Logger provides leveled logging.
type Logger struct {
	sink      *sink
	component string
}

// New creates a new Logger with the given level.
func New(level Level) *Logger {
	return &Logger{
		sink: &sink{
			level:    level,
			out:      os.Stdout,
			errOut:   os.Stderr,
			colored:  true,
			prefixed: true,
		},
	}
}

// Named returns a child logger that tags every message with component.
// The child shares level and outputs with its parent.
func (l *Logger) Named(component string) *Logger {
	if l.component != "" {
		component = l.component + "." + component
	}
	return &Logger{sink: l.sink, component: component}
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

// SetColored enables or disables colored output.
func (l *Logger) SetColored(colored bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.colored = colored
	color.NoColor = !colored
}

// SetPrefixed enables or disables level prefixes.
func (l *Logger) SetPrefixed(prefixed bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.prefixed = prefixed
}

// SetOutput sets the output writer for non-error messages.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
}

// SetErrorOutput sets the output writer for warning and above.
func (l *Logger) SetErrorOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.errOut = w
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = l.component + ": " + msg
	}

	out := s.out
	if level >= LevelWarning {
		out = s.errOut
	}

	if !s.prefixed {
		fmt.Fprintln(out, msg)
		return
	}

	prefix := fmt.Sprintf("[%s] ", level.String())
	if s.colored {
		switch level {
		case LevelDebug:
			prefix = color.HiBlackString(prefix)
		case LevelVerbose:
			prefix = color.CyanString(prefix)
		case LevelInfo:
			prefix = color.BlueString(prefix)
		case LevelWarning:
			prefix = color.YellowString(prefix)
		case LevelError:
			prefix = color.RedString(prefix)
		case LevelCritical:
			prefix = color.HiRedString(prefix)
		}
	}
	fmt.Fprintf(out, "%s%s\n", prefix, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Verbose logs a verbose message.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.log(LevelVerbose, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warning logs a warning message.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(LevelWarning, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Critical logs a critical message.
func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(LevelCritical, format, args...)
}

var defaultLogger = New(LevelInfo)

// Default returns the process-wide logger configured by the CLI.
func Default() *Logger {
	return defaultLogger
}

// SetDefaultLevel sets the default logger level.
func SetDefaultLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetDefaultColored enables or disables colored output on the default logger.
func SetDefaultColored(colored bool) {
	defaultLogger.SetColored(colored)
}

// SetDefaultPrefixed enables or disables level prefixes on the default logger.
func SetDefaultPrefixed(prefixed bool) {
	defaultLogger.SetPrefixed(prefixed)
}

// Debug logs a debug message to the default logger.
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs an informational message to the default logger.
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warning logs a warning message to the default logger.
func Warning(format string, args ...interface{}) {
	defaultLogger.Warning(format, args...)
}

// Error logs an error message to the default logger.
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}
