package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"mercator-hq/aegis/pkg/config"
)

// LogFormat represents the output format for logs.
type LogFormat string

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON LogFormat = "json"
	// FormatText outputs logs in logfmt-style text.
	FormatText LogFormat = "text"
	// FormatConsole is text intended for a terminal.
	FormatConsole LogFormat = "console"
)

// Config contains configuration for the Logger.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error")
	Level string

	// Format is the output format ("json", "text", "console")
	Format string

	// AddSource includes file and line number in logs
	AddSource bool

	// RedactPII enables automatic PII redaction
	RedactPII bool

	// BufferSize enables asynchronous writes through a buffer of that many
	// lines. Zero writes synchronously.
	BufferSize int

	// RedactPatterns contains custom PII redaction patterns
	RedactPatterns []config.RedactPattern

	// Writer is the output writer (defaults to os.Stdout)
	Writer io.Writer
}

// FromConfig converts the telemetry section into a logger Config.
func FromConfig(cfg config.LoggingConfig) Config {
	return Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactPII:      cfg.RedactPII,
		BufferSize:     cfg.BufferSize,
		RedactPatterns: cfg.RedactPatterns,
	}
}

// Logger owns the slog.Logger built from Config and its output buffer.
type Logger struct {
	*slog.Logger
	buffer *LogBuffer
}

// New creates a new Logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	var buffer *LogBuffer
	if cfg.BufferSize > 0 {
		buffer = NewLogBuffer(writer, cfg.BufferSize)
		writer = buffer
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch format {
	case FormatText, FormatConsole:
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	if cfg.RedactPII {
		handler = &redactingHandler{next: handler, redactor: NewRedactor(cfg.RedactPatterns)}
	}
	handler = &contextHandler{next: handler}

	return &Logger{Logger: slog.New(handler), buffer: buffer}, nil
}

// Setup builds a Logger and installs it as the slog default, so every
// component logger derived from slog.Default picks it up.
func Setup(cfg Config) (*Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.Logger)
	return l, nil
}

// Dropped returns the number of lines discarded because the buffer was full.
func (l *Logger) Dropped() int64 {
	if l.buffer == nil {
		return 0
	}
	return l.buffer.Dropped()
}

// Shutdown flushes pending writes.
func (l *Logger) Shutdown() error {
	if l.buffer != nil {
		l.buffer.Close()
	}
	return nil
}

// LogBuffer writes log lines from a background goroutine so request paths
// never block on stdout. Lines are dropped, and counted, when it is full.
type LogBuffer struct {
	lines   chan []byte
	writer  io.Writer
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewLogBuffer starts a buffer of size lines in front of w.
func NewLogBuffer(w io.Writer, size int) *LogBuffer {
	lb := &LogBuffer{
		lines:  make(chan []byte, size),
		writer: w,
		done:   make(chan struct{}),
	}
	go lb.run()
	return lb
}

// Write implements io.Writer. slog handlers reuse p, so it is copied.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	if lb.closed {
		return lb.writer.Write(p)
	}

	line := make([]byte, len(p))
	copy(line, p)
	select {
	case lb.lines <- line:
	default:
		lb.dropped.Add(1)
	}
	return len(p), nil
}

func (lb *LogBuffer) run() {
	defer close(lb.done)
	for line := range lb.lines {
		_, _ = lb.writer.Write(line)
	}
}

// Close drains pending lines and waits for the writer goroutine.
func (lb *LogBuffer) Close() {
	lb.mu.Lock()
	if lb.closed {
		lb.mu.Unlock()
		return
	}
	lb.closed = true
	close(lb.lines)
	lb.mu.Unlock()
	<-lb.done
}

// Dropped returns the number of dropped lines.
func (lb *LogBuffer) Dropped() int64 {
	return lb.dropped.Load()
}

func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (LogFormat, error) {
	switch strings.ToLower(formatStr) {
	case "json", "":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "console":
		return FormatConsole, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", formatStr)
	}
}
