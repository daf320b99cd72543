package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// levelColors maps each slog level to its ANSI escape. Kept as a package
// var rather than inlined in Handle so a future level (e.g. a custom
// "TRACE") only needs one entry added here.
var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m", // cyan
	slog.LevelInfo:  "\033[32m", // green
	slog.LevelWarn:  "\033[33m", // yellow
	slog.LevelError: "\033[31m", // red
}

const colorReset = "\033[0m"

// ColorTextHandler wraps slog.TextHandler to prefix the level field with
// an ANSI color and, optionally, drop the timestamp attribute entirely
// (useful for the server's own startup banner lines, where a timestamp
// is just noise). It honors NO_COLOR (https://no-color.org) on top of
// the TTY check logger.New already does before constructing one, so a
// handler built directly in a test or future caller doesn't need to
// duplicate that check.
type ColorTextHandler struct {
	*slog.TextHandler
	showTime bool
	color    bool
}

// NewColorTextHandler creates a new ColorTextHandler. showTime controls
// whether the record's timestamp attribute is kept.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	forwarded := opts
	if !showTime {
		forwarded = withoutTime(opts)
	}
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, forwarded),
		showTime:    showTime,
		color:       os.Getenv("NO_COLOR") == "",
	}
}

// withoutTime clones opts with a ReplaceAttr that strips slog.TimeKey.
func withoutTime(opts *slog.HandlerOptions) *slog.HandlerOptions {
	base := *opts
	prev := base.ReplaceAttr
	base.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		if prev != nil {
			return prev(groups, a)
		}
		return a
	}
	return &base
}

// Handle implements slog.Handler, color-coding the level before
// delegating to the wrapped TextHandler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.color {
		return h.TextHandler.Handle(ctx, r)
	}
	code, ok := levelColors[r.Level]
	if !ok {
		code = colorReset
	}
	r.Message = code + r.Level.String() + colorReset + "  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}
