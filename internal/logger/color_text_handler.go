package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// ColorTextHandler prefixes each line with an ANSI-colored level tag so
// console output can be scanned quickly. The tag is written straight to the
// writer; routing it through the record would get the escape bytes quoted
// by slog.TextHandler.
type ColorTextHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	inner slog.Handler
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	return &ColorTextHandler{mu: &sync.Mutex{}, w: w, inner: slog.NewTextHandler(w, opts)}
}

func (h *ColorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var color string
	switch r.Level {
	case slog.LevelDebug:
		color = "\033[36m"
	case slog.LevelInfo:
		color = "\033[32m"
	case slog.LevelWarn:
		color = "\033[33m"
	case slog.LevelError:
		color = "\033[31m"
	default:
		color = "\033[0m"
	}
	// The lock keeps the tag and the record on one line under concurrency.
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, color+r.Level.String()+"\033[0m "); err != nil {
		return err
	}
	return h.inner.Handle(ctx, r)
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{mu: h.mu, w: h.w, inner: h.inner.WithAttrs(attrs)}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{mu: h.mu, w: h.w, inner: h.inner.WithGroup(name)}
}

// TeeHandler fans each record out to two handlers. Errors from the secondary
// handler are dropped so a full disk cannot break console logging.
type TeeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func NewTeeHandler(primary, secondary slog.Handler) TeeHandler {
	return TeeHandler{primary: primary, secondary: secondary}
}

func (t TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level)
}

func (t TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	if t.secondary.Enabled(ctx, r.Level) {
		_ = t.secondary.Handle(ctx, r.Clone())
	}
	return t.primary.Handle(ctx, r)
}

func (t TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return TeeHandler{primary: t.primary.WithAttrs(attrs), secondary: t.secondary.WithAttrs(attrs)}
}

func (t TeeHandler) WithGroup(name string) slog.Handler {
	return TeeHandler{primary: t.primary.WithGroup(name), secondary: t.secondary.WithGroup(name)}
}
