package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// filePerm is the permission used when a record file is created.
const filePerm = 0o644

// Option configures a LineHandler.
type Option func(*LineHandler)

// WithLevel sets the minimum level that is written. Default: slog.LevelInfo.
func WithLevel(level slog.Leveler) Option {
	return func(h *LineHandler) { h.level = level }
}

// WithLevelColumn adds the record level between timestamp and message.
func WithLevelColumn() Option {
	return func(h *LineHandler) { h.showLevel = true }
}

// WithTimeFormat overrides DefaultTimeFormat.
func WithTimeFormat(layout string) Option {
	return func(h *LineHandler) { h.timeFormat = layout }
}

// Sink is an append-only destination for timestamped records.
//
// Records are never buffered: each one reaches the underlying writer before
// Record returns. A Sink is safe for concurrent use.
type Sink struct {
	handler *LineHandler
	closer  io.Closer
	name    string
	now     func() time.Time
}

// Open opens (or creates) the file at path in append mode and returns a Sink
// writing to it. The file is held open until Close.
func Open(path string, opts ...Option) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	s := New(f, opts...)
	s.closer = f
	s.name = path
	return s, nil
}

// New returns a Sink writing to w. Close does nothing for sinks built this way.
func New(w io.Writer, opts ...Option) *Sink {
	return &Sink{
		handler: NewLineHandler(w, opts...),
		name:    "writer",
		now:     time.Now,
	}
}

// Messages returns the options for the received-message sink:
// "<timestamp> - <message>" at info level and above.
func Messages() []Option {
	return []Option{WithLevel(slog.LevelInfo)}
}

// Errors returns the options for the error sink:
// "<timestamp> - <LEVEL> - <message>" at error level only.
func Errors() []Option {
	return []Option{WithLevel(slog.LevelError), WithLevelColumn()}
}

// Record appends msg at the given level. Records below the sink's minimum
// level are dropped without error.
func (s *Sink) Record(level slog.Level, msg string) error {
	ctx := context.Background()
	if !s.handler.Enabled(ctx, level) {
		return nil
	}
	r := slog.NewRecord(s.now(), level, msg, 0)
	if err := s.handler.Handle(ctx, r); err != nil {
		return fmt.Errorf("sink: write %s: %w", s.name, err)
	}
	return nil
}

// Info appends msg at info level.
func (s *Sink) Info(msg string) error {
	return s.Record(slog.LevelInfo, msg)
}

// Error appends msg at error level.
func (s *Sink) Error(msg string) error {
	return s.Record(slog.LevelError, msg)
}

// Logger exposes the sink as a *slog.Logger for callers that prefer the slog API.
// Write errors are dropped on this path.
func (s *Sink) Logger() *slog.Logger {
	return slog.New(s.handler)
}

// Name returns the file path, or "writer" for sinks built with New.
func (s *Sink) Name() string {
	return s.name
}

// Close releases the underlying file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("sink: close %s: %w", s.name, err)
	}
	return nil
}
