// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/reactor/internal/config"
)

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}

// Output returns the writer for an output name: "-" is stderr, "=" is
// stdout, anything else is a file rotated by size.
func Output(name string, maxSizeMB, keep int) io.Writer {
	switch name {
	case "", "-":
		return os.Stderr
	case "=":
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   name,
		MaxSize:    maxSizeMB,
		MaxBackups: keep,
	}
}

// New builds a logger for cfg writing to w. verbose forces debug level.
func New(cfg config.Logging, w io.Writer, verbose bool) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), nil
}

// Setup installs the logger for cfg as the slog default. Closing the
// returned closer puts the previous default back and releases a log file,
// if any.
func Setup(cfg config.Logging, verbose bool) (io.Closer, error) {
	w := Output(cfg.Output, cfg.FileMaxSizeMB, cfg.FilesKeep)
	logger, err := New(cfg, w, verbose)
	if err != nil {
		return nil, err
	}
	prev := slog.Default()
	slog.SetDefault(logger)

	c := &restoreCloser{prev: prev}
	if wc, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		c.file = wc
	}
	return c, nil
}

type restoreCloser struct {
	prev *slog.Logger
	file io.Closer
}

func (c *restoreCloser) Close() error {
	slog.SetDefault(c.prev)
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
