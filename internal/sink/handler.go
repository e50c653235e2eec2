package sink

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTimeFormat renders timestamps as "2024-05-01 13:45:09,123".
const DefaultTimeFormat = "2006-01-02 15:04:05,000"

// separator joins the columns of a record line.
const separator = " - "

// LineHandler is a slog.Handler that renders each record as a single text line:
//
//	<timestamp> - <message>
//	<timestamp> - <LEVEL> - <message>   (when the level column is enabled)
//
// Attributes, if any, follow the message as space-separated key=value pairs.
// Each record is written with one Write call so that a file destination sees
// whole lines only.
type LineHandler struct {
	mu         *sync.Mutex
	w          io.Writer
	level      slog.Leveler
	showLevel  bool
	timeFormat string
	attrs      []slog.Attr
	group      string
}

// NewLineHandler creates a LineHandler writing to w.
func NewLineHandler(w io.Writer, opts ...Option) *LineHandler {
	h := &LineHandler{
		mu:         &sync.Mutex{},
		w:          w,
		level:      slog.LevelInfo,
		timeFormat: DefaultTimeFormat,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled reports whether records at level are written.
func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats r and writes it as one line.
func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(h.timeFormat))
	b.WriteString(separator)

	if h.showLevel {
		b.WriteString(r.Level.String())
		b.WriteString(separator)
	}

	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a handler that appends attrs to every record.
func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup returns a handler that qualifies subsequent attribute keys with name.
func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}
