package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// BufferHandler is an slog.Handler that copies records into a Buffer in
// addition to a wrapped base handler.
type BufferHandler struct {
	base   slog.Handler
	buf    *Buffer
	min    slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewBufferHandler wraps base. Records at or above floor are buffered even
// when base drops them.
func NewBufferHandler(base slog.Handler, buf *Buffer, floor slog.Level) *BufferHandler {
	return &BufferHandler{base: base, buf: buf, min: floor}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min || h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.base.Enabled(ctx, r.Level) {
		err = h.base.Handle(ctx, r)
	}
	if r.Level >= h.min {
		h.buf.Add(Record{
			Time:    r.Time,
			Level:   r.Level,
			Message: r.Message,
			Attrs:   formatAttrs(r, h.attrs, h.groups),
		})
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.base = h.base.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.base = h.base.WithGroup(name)
	c.groups = append(append([]string{}, h.groups...), name)
	return &c
}

func formatAttrs(r slog.Record, pre []slog.Attr, groups []string) string {
	var parts []string
	for _, a := range pre {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Key, a.Value.String()))
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, a.Value.String()))
		return true
	})
	return strings.Join(parts, " ")
}

// ParseLevel accepts debug, info, warn/warning and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Setup installs the default logger writing text records at level to w.
// With a non-nil buf, Debug and above are also kept in buf.
func Setup(level slog.Level, w io.Writer, buf *Buffer) *slog.Logger {
	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if buf != nil {
		h = NewBufferHandler(h, buf, slog.LevelDebug)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
