package mudlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger   = slog.New(newTintHandler(os.Stderr, slog.LevelInfo))
	logLevel = new(slog.LevelVar)
	fileLog  *lumberjack.Logger
	logLock  sync.RWMutex
)

type Options struct {
	Level      string // debug, info, warn, error
	File       string // Optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	NoColor    bool
}

// SetupLogger replaces the package logger. Safe to call more than once.
func SetupLogger(opts Options) {
	logLock.Lock()
	defer logLock.Unlock()

	logLevel.Set(ParseLevel(opts.Level))

	if fileLog != nil {
		fileLog.Close()
		fileLog = nil
	}

	var console slog.Handler = newTintHandler(os.Stderr, logLevel)
	if opts.NoColor {
		console = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	if opts.File == `` {
		logger = slog.New(console)
		return
	}

	if opts.MaxSizeMB < 1 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups < 1 {
		opts.MaxBackups = 3
	}

	fileLog = &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	logger = slog.New(teeHandler{
		console,
		slog.NewJSONHandler(fileLog, &slog.HandlerOptions{Level: logLevel}),
	})
}

// SetOutput is used by tests to capture log output.
func SetOutput(w io.Writer, level string) {
	logLock.Lock()
	defer logLock.Unlock()
	logLevel.Set(ParseLevel(level))
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case `debug`:
		return slog.LevelDebug
	case `warn`, `warning`:
		return slog.LevelWarn
	case `error`:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func Close() {
	logLock.Lock()
	defer logLock.Unlock()
	if fileLog != nil {
		fileLog.Close()
		fileLog = nil
	}
}

func get() *slog.Logger {
	logLock.RLock()
	defer logLock.RUnlock()
	return logger
}

func Debug(name string, args ...any) {
	get().Debug(name, args...)
}

func Info(name string, args ...any) {
	get().Info(name, args...)
}

func Warn(name string, args ...any) {
	get().Warn(name, args...)
}

func Error(name string, args ...any) {
	get().Error(name, args...)
}

// teeHandler fans a record out to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// tintHandler is a compact single line console handler with coloured levels.
type tintHandler struct {
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	mu    *sync.Mutex
}

func newTintHandler(w io.Writer, level slog.Leveler) *tintHandler {
	return &tintHandler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *tintHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *tintHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("15:04:05.000"))
	sb.WriteString(` `)
	sb.WriteString(levelTag(r.Level))
	sb.WriteString(` `)
	sb.WriteString(color.New(color.Bold).Sprint(r.Message))

	writeAttr := func(a slog.Attr) {
		sb.WriteString(` `)
		sb.WriteString(color.New(color.FgHiBlack).Sprint(a.Key + `=`))
		sb.WriteString(fmt.Sprint(a.Value.Any()))
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *tintHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

func (h *tintHandler) WithGroup(_ string) slog.Handler {
	return h
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return color.RedString("ERR")
	case l >= slog.LevelWarn:
		return color.YellowString("WRN")
	case l >= slog.LevelInfo:
		return color.GreenString("INF")
	}
	return color.CyanString("DBG")
}
