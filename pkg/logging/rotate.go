package logging

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingFileConfig configures a size/age-rotated log file sink, layered
// underneath NewStructuredLogger's JSON/text formatting via Output.
type RotatingFileConfig struct {
	// Path is the log file to write to; directories are created by
	// lumberjack on first write.
	Path string
	// MaxSizeMB rotates the file once it exceeds this size.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
	// MaxAgeDays deletes rotated files older than this.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

// NewRotatingWriter returns an io.Writer suitable as logging.Config.Output,
// backed by a size/age-rotated file. Used by the daemon when its logging
// config names a file; otherwise it logs to stderr.
func NewRotatingWriter(cfg RotatingFileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   cfg.Compress,
	}
}

// NewRotatingLogger builds a component-tagged structured logger writing to a
// rotated file, combining NewStructuredLogger and NewRotatingWriter.
func NewRotatingLogger(component string, level slog.Level, cfg RotatingFileConfig) *slog.Logger {
	return NewStructuredLogger(Config{
		Level:     level,
		Format:    FormatJSON,
		Output:    NewRotatingWriter(cfg),
		Component: component,
	})
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
