// Package logging builds the tool's structured logger: human-readable
// output on the terminal, plus a per-instance log file when a VM runs.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a settings string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithFile fans the logger out to an instance log file as well. The
// file side always records at debug so the full run can be examined
// afterwards. The returned closer flushes and detaches the file.
func WithFile(w io.Writer, level slog.Level, path string) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	handler := slogmulti.Fanout(
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
		slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	return slog.New(handler), f.Close, nil
}
