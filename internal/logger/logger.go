package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for run logs.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// Config describes where the diagnostic run log is written.
// If Path is empty and Dir is set, the log file will be Dir/<name>.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	Path       string `json:"path" mapstructure:"path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Writer returns an io.WriteCloser for the run log named name.
// Returns (nil, nil) when neither Path nor Dir is configured.
func (c Config) Writer(name string) (io.WriteCloser, error) {
	path := c.Path
	if path == "" {
		if c.Dir == "" {
			return nil, nil
		}
		path = filepath.Join(c.Dir, fmt.Sprintf("%s.log", name))
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

// Setup installs the default slog logger. Console output goes through the
// colorized handler; when fileW is non-nil every record is duplicated into it
// as plain text so each run leaves a durable trace.
func Setup(level slog.Level, fileW io.Writer) {
	opts := &slog.HandlerOptions{Level: level}
	console := NewColorTextHandler(os.Stderr, opts)
	if fileW == nil {
		slog.SetDefault(slog.New(console))
		return
	}
	file := slog.NewTextHandler(fileW, opts)
	slog.SetDefault(slog.New(NewTeeHandler(console, file)))
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
