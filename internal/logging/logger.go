package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LevelStep sits between Info and Warn and marks step boundary banners.
const LevelStep = slog.Level(2)

var (
	mu      sync.Mutex
	logger  *slog.Logger
	logPath string
	logFile *os.File
)

// Init installs the global logger: a styled console sink on stderr plus an
// append-only file sink when logFilePath is non-empty.
func Init(level string, logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handlers := []slog.Handler{newConsoleHandler(os.Stderr, lvl)}

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
		}
		if logFile != nil {
			logFile.Close()
		}
		logFile = f
		logPath = logFilePath
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}))
	}

	logger = slog.New(&fanoutHandler{handlers: handlers})
	slog.SetDefault(logger)
	return nil
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info", "")
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// Path returns the active log file path, or "" when only the console sink
// is installed.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// Step logs a step boundary banner.
func Step(msg string, args ...any) {
	Logger().Log(context.Background(), LevelStep, msg, args...)
}

// fanoutHandler duplicates records to every sink. A failing sink must never
// fail a step, so only the first write error is surfaced to slog.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

var (
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleStep  = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleAttr  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// consoleHandler renders human-readable, level-styled lines.
type consoleHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var tag string
	switch {
	case r.Level == LevelStep:
		tag = styleStep.Render("[STEP]")
	case r.Level >= slog.LevelError:
		tag = styleError.Render("[ERROR]")
	case r.Level >= slog.LevelWarn:
		tag = styleWarn.Render("[WARN]")
	case r.Level >= slog.LevelInfo:
		tag = styleInfo.Render("[INFO]")
	default:
		tag = styleDebug.Render("[DEBUG]")
	}

	var b strings.Builder
	b.WriteString(r.Time.Format(time.DateTime))
	b.WriteByte(' ')
	b.WriteString(tag)
	b.WriteByte(' ')
	b.WriteString(r.Message)

	appendAttr := func(a slog.Attr) {
		b.WriteByte(' ')
		b.WriteString(styleAttr.Render(fmt.Sprintf("%s=%v", a.Key, a.Value)))
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if r.Level == LevelStep {
		fmt.Fprintln(h.out, styleStep.Render("========================================"))
	}
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return h
}
