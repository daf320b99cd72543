// Package logger builds the server's operational logger: colorized text to
// stderr when attached to a terminal, plain text otherwise, mirrored to a
// rotated file under the dot-directory. It is unrelated to the Scheduler's
// per-run log files, which are plain, unrotated, headered/footered text
// governed by mtime retention (see internal/scheduler).
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls rotation of the server's own log file.
type FileConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// rotatedWriter returns a lumberjack writer for "<dir>/server.log", or nil
// if Dir is empty.
func (c FileConfig) rotatedWriter() io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, "server.log"),
		MaxSize:    valOr(c.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, defaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, defaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// New builds the root slog.Logger for the process. stderr output is
// colorized when it is a terminal; the rotated file (if cfg.Dir is set)
// always gets plain text so log shippers don't choke on ANSI escapes.
// The returned io.Closer flushes/closes the rotated file and is a no-op
// when logging to stderr only.
func New(cfg FileConfig, level slog.Level) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: level}

	var stderrHandler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		stderrHandler = NewColorTextHandler(os.Stderr, opts, true)
	} else {
		stderrHandler = slog.NewTextHandler(os.Stderr, opts)
	}

	rotated := cfg.rotatedWriter()
	if rotated == nil {
		return slog.New(stderrHandler), noopCloser{}
	}

	fileHandler := slog.NewTextHandler(rotated, opts)
	return slog.New(fanoutHandler{stderrHandler, fileHandler}), rotated
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// fanoutHandler dispatches every record to each wrapped handler in turn.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
