// Package logger provides the relay's slog handler and log sinks.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2="two words"
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): per-delivery tracing
//   - LevelFail  (12): unrecoverable errors
package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

var levelNames = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
}

// levelName returns the display name for a log level.
func levelName(l slog.Level) string {
	for _, ln := range levelNames {
		if l <= ln.level {
			return ln.name
		}
	}
	return "FAIL"
}

// ParseLevel converts a level name (trace, debug, info, warn, error, fail;
// case-insensitive) to a slog.Level. Unrecognized names yield LevelInfo.
func ParseLevel(s string) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "FAIL" {
		return LevelFail
	}
	for _, ln := range levelNames {
		if ln.name == s {
			return ln.level
		}
	}
	return LevelInfo
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Handler is a slog.Handler producing one line per record in the format
// described in the package documentation.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex // shared by handlers derived through WithAttrs/WithGroup
	level slog.Level
	attrs []slog.Attr
	// prefix is the dotted group path including the trailing dot.
	prefix string
}

// NewHandler creates a Handler that writes to w, dropping records below level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{w: w, mu: &sync.Mutex{}, level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	sep := " | "
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		b.WriteString(sep)
		sep = ", "
		b.WriteString(h.prefix)
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(a.Value))
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// formatValue renders a value, quoting strings that would be ambiguous in
// the key=value list.
func formatValue(v slog.Value) string {
	s := v.Resolve().String()
	if s == "" || strings.ContainsAny(s, " ,=|\"\n") {
		return strconv.Quote(s)
	}
	return s
}

// WithAttrs returns a Handler with attrs applied to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a Handler that prefixes later keys with "name.".
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options selects the sink and filtering for [New].
type Options struct {
	// Path is the log file; empty writes to stderr.
	Path string
	// Level is the minimum level emitted.
	Level slog.Level
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a logger for opts. File output rotates through lumberjack;
// the returned io.Closer must be closed on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return slog.New(NewHandler(os.Stderr, opts.Level)), nopCloser{}, nil
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = 3
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: backups,
		MaxAge:     28,
	}
	return slog.New(NewHandler(lj, opts.Level)), lj, nil
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// ReadTail returns the last n lines of the file at path, oldest first.
func ReadTail(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ring := make([]string, n)
	total := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ring[total%n] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	if total < n {
		return strings.Join(ring[:total], "\n"), nil
	}
	start := total % n
	return strings.Join(append(ring[start:], ring[:start]...), "\n"), nil
}
