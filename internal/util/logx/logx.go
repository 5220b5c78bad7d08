// Package logx is the application log. Lines are kept in memory so the TUI
// can show them; stderr output is off by default because it would corrupt
// the terminal. A file sink can be opened with OpenFile.
package logx

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

var (
	mu       sync.Mutex
	level    = Info
	buf      = make([]string, 0, 500)
	maxLines = 500
	toStderr = false
	sink     *zap.Logger
)

func SetLevel(l Level) { mu.Lock(); level = l; mu.Unlock() }

func GetLevel() Level { mu.Lock(); defer mu.Unlock(); return level }

// ParseLevel accepts debug, info, warn/warning and error.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, true
	case "info":
		return Info, true
	case "warn", "warning":
		return Warn, true
	case "error":
		return Error, true
	}
	return Info, false
}

// SetLevelFromEnv reads CWINSIGHTS_LOG_LEVEL and CWINSIGHTS_LOG_STDERR.
func SetLevelFromEnv() {
	if l, ok := ParseLevel(os.Getenv("CWINSIGHTS_LOG_LEVEL")); ok {
		SetLevel(l)
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("CWINSIGHTS_LOG_STDERR"))); v != "" {
		mu.Lock()
		toStderr = v != "0" && v != "false" && v != "no"
		mu.Unlock()
	}
}

// OpenFile mirrors every accepted line into a JSON log file.
func OpenFile(path string) error {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	mu.Lock()
	old := sink
	sink = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// Sync flushes the file sink, if any.
func Sync() {
	mu.Lock()
	l := sink
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}

// CloseFile flushes and detaches the file sink.
func CloseFile() {
	mu.Lock()
	l := sink
	sink = nil
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}

func Debugf(format string, a ...any) { logf(Debug, format, a...) }
func Infof(format string, a ...any)  { logf(Info, format, a...) }
func Warnf(format string, a ...any)  { logf(Warn, format, a...) }
func Errorf(format string, a ...any) { logf(Error, format, a...) }

func logf(l Level, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	msg := fmt.Sprintf(format, a...)
	line := fmt.Sprintf("%s %-5s %s", time.Now().Format("2006-01-02T15:04:05.000Z07:00"), l, msg)
	if len(buf) >= maxLines {
		copy(buf[0:], buf[1:])
		buf = buf[:len(buf)-1]
	}
	buf = append(buf, line)
	if toStderr {
		fmt.Fprintln(os.Stderr, line)
	}
	if sink != nil {
		switch l {
		case Debug:
			sink.Debug(msg)
		case Info:
			sink.Info(msg)
		case Warn:
			sink.Warn(msg)
		default:
			sink.Error(msg)
		}
	}
}

func Dump() string {
	mu.Lock()
	defer mu.Unlock()
	return strings.Join(buf, "\n")
}

func Lines() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, len(buf))
	copy(out, buf)
	return out
}

// Reset clears the in-memory buffer.
func Reset() {
	mu.Lock()
	buf = buf[:0]
	mu.Unlock()
}
