package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects where log records go.
type Config struct {
	Level         string // debug, info, warn or error
	FilePath      string // empty disables the log file
	MaxSizeMB     int
	MaxFiles      int
	WriteToStderr bool
	// Command is attached to every record so that the entries of concurrent
	// processes sharing one log file can be told apart.
	Command string
}

// DefaultConfig logs at info level to ~/.searchkit/logs/searchkit.log and stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// ServeConfig logs to the file only. The MCP server owns stdio.
func ServeConfig(level string) Config {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false
	cfg.Command = "serve"
	return cfg
}

// Setup builds a JSON slog logger. The returned cleanup flushes and closes
// the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var (
		outputs []io.Writer
		file    *RotatingWriter
	)
	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		file = w
		outputs = append(outputs, w)
	}
	if cfg.WriteToStderr {
		outputs = append(outputs, os.Stderr)
	}

	out := io.Discard
	if len(outputs) > 0 {
		out = io.MultiWriter(outputs...)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: LevelFromString(cfg.Level)}))
	if cfg.Command != "" {
		logger = logger.With(slog.String("cmd", cfg.Command))
	}

	cleanup := func() {
		if file != nil {
			_ = file.Sync()
			_ = file.Close()
		}
	}
	return logger, cleanup, nil
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// LevelFromString parses a level name case-insensitively. Unknown names are info.
func LevelFromString(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}
