// Package logging provides the leveled debug log used throughout condoor.
//
// The call shape (Infof/Warnf/Errorf/Debugf over a package-level logger
// behind a sync.Once) mirrors the teacher's internal/logging package; the
// backing implementation is github.com/sirupsen/logrus so that session
// fields (hop host, session id) can be attached and so the redacting filter
// from spec.md section 6 can be installed as a logrus.Hook.
package logging

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// condoorFormatter renders "YYYY-MM-DD HH:MM:SS.sss  LEVEL: message" per
// spec section 6, instead of logrus's default key=value text formatter.
type condoorFormatter struct{}

func (condoorFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := e.Time.Format("2006-01-02 15:04:05.000")
	level := fmt.Sprintf("%-5s", levelName(e.Level))
	line := fmt.Sprintf("%s  %s: %s\n", ts, level, e.Message)
	return []byte(line), nil
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.DebugLevel:
		return "DEBUG"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

func initLogger() {
	logger = logrus.New()
	logger.SetFormatter(condoorFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(os.Stderr)
}

func ensureLogger() {
	once.Do(initLogger)
}

// RedactHook implements logrus.Hook, replacing the first capture group of a
// caller-supplied regex with "***" before the entry is emitted. It is the
// condoor-go equivalent of the redacting log filter from spec.md section 6,
// adapted from the teacher's internal/store.scrubSensitive approach (regex
// substitution over rendered text) generalized from fixed IP/MAC patterns to
// a single caller-supplied capture-group pattern.
type RedactHook struct {
	re *regexp.Regexp
}

// DefaultRedactPattern matches embedded ftp/sftp credentials per spec section 6.
const DefaultRedactPattern = `s?ftp://.*:(.*)@`

// NewRedactHook compiles pattern (DefaultRedactPattern if empty) into a hook.
func NewRedactHook(pattern string) (*RedactHook, error) {
	if pattern == "" {
		pattern = DefaultRedactPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("logging: compile redact pattern: %w", err)
	}
	return &RedactHook{re: re}, nil
}

func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *RedactHook) Fire(e *logrus.Entry) error {
	e.Message = redactString(h.re, e.Message)
	for k, v := range e.Data {
		if s, ok := v.(string); ok {
			e.Data[k] = redactString(h.re, s)
		}
	}
	return nil
}

func redactString(re *regexp.Regexp, s string) string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil || len(loc) < 4 || loc[2] < 0 {
		return s
	}
	return s[:loc[2]] + "***" + s[loc[3]:]
}

// InstallRedaction wires a RedactHook into the package logger. Safe to call
// more than once; the most recent pattern wins for future log calls.
func InstallRedaction(pattern string) error {
	ensureLogger()
	hook, err := NewRedactHook(pattern)
	if err != nil {
		return err
	}
	logger.Hooks = make(logrus.LevelHooks)
	logger.AddHook(hook)
	return nil
}

// SetOutput redirects where the ambient logger writes; used to attach the
// per-connection debug log file described in spec.md section 6.
func SetOutput(w io.Writer) {
	ensureLogger()
	logger.SetOutput(w)
}

func logf(level logrus.Level, format string, args ...interface{}) {
	ensureLogger()
	logger.Logf(level, format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...interface{}) { logf(logrus.InfoLevel, format, args...) }

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) { logf(logrus.WarnLevel, format, args...) }

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) { logf(logrus.ErrorLevel, format, args...) }

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) { logf(logrus.DebugLevel, format, args...) }

// WithFields returns a structured entry for call sites that want to attach
// fields (hop host, session id) without losing the shared formatter/hook.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	ensureLogger()
	return logger.WithFields(fields)
}
