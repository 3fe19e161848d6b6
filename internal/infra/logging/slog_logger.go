package logging

import (
	"context"
	"io"
	"log/slog"
	"sort"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// NewJSON builds the JSON logger used by the server binary.
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (s *SlogLogger) log(level slog.Level, msg string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}

func (s *SlogLogger) Info(msg string, fields map[string]any) {
	s.log(slog.LevelInfo, msg, fields)
}

func (s *SlogLogger) Warn(msg string, fields map[string]any) {
	s.log(slog.LevelWarn, msg, fields)
}

func (s *SlogLogger) Error(msg string, fields map[string]any) {
	s.log(slog.LevelError, msg, fields)
}

func (s *SlogLogger) Slog() *slog.Logger { return s.l }
