package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/ubuygold/ledgerpool/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a new slog.Logger instance that writes to os.Stdout.
// If debug is true, the log level is set to Debug. Otherwise, it's set to Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewFromConfig builds the service logger. When cfg.Log.File is set, records
// go to stdout and to a size-rotated file. The returned closer releases the file.
func NewFromConfig(cfg *config.Config) (*slog.Logger, io.Closer) {
	if cfg.Log.File == "" {
		return New(cfg.Debug), io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
	return NewWithWriter(io.MultiWriter(os.Stdout, rotator), cfg.Debug), rotator
}

// NewWithWriter creates a new slog.Logger instance with a specific writer.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
