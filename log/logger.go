// Package log provides the structured, leveled logger used throughout the
// cache. It follows the go-ethereum convention of call sites like
// log.Debug("content load", "hash", h, "err", err) rather than printf-style
// formatting, backed by the standard library's slog and rendered through a
// terminal-aware handler (mattn/go-isatty, mattn/go-colorable) when writing
// to a TTY.
package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger is the interface every call site in this module uses. It never
// returns an error: a logging failure must never perturb the cache's
// response path.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	New(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

// LevelTrace is finer than slog's built-in Debug; go-ethereum's log package
// makes the same distinction.
const LevelTrace = slog.Level(-8)

// LevelCrit is logged above Error; there is no process-abort behavior
// attached to it here, since invariant violations use panic directly.
const LevelCrit = slog.Level(12)

var root Logger = &logger{inner: slog.New(defaultHandler(os.Stderr))}

func defaultHandler(w *os.File) slog.Handler {
	useColor := isatty.IsTerminal(w.Fd())
	var out = colorable.NewColorable(w)
	if !useColor {
		out = w
	}
	return slog.NewTextHandler(out, &slog.HandlerOptions{Level: LevelTrace})
}

// Root returns the root logger, matching go-ethereum's log.Root().
func Root() Logger { return root }

// SetDefault replaces the root logger, e.g. to redirect into an
// AsyncFileWriter.
func SetDefault(l Logger) { root = l }

func (l *logger) log(level slog.Level, msg string, ctx []any) {
	l.inner.Log(context.Background(), level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(slog.LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(slog.LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(slog.LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.log(slog.LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.log(LevelCrit, msg, ctx) }

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

// NewWriterLogger builds a Logger that writes through w (typically an
// *AsyncFileWriter) instead of stderr.
func NewWriterLogger(w *AsyncFileWriter) Logger {
	return &logger{inner: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LevelTrace}))}
}

// Package-level convenience functions mirroring Root(), used pervasively by
// call sites that don't hold their own *Logger (e.g. package-level helpers).
func Trace(msg string, ctx ...any) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { root.Crit(msg, ctx...) }
