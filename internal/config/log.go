package config

import (
    "io"
    "log/slog"
    "os"
    "strings"

    "github.com/covalenthq/lumberjack"
)

// LogConfig selects the level, encoding and optional file of the
// application log.  LOG_FILE output is rotated.
type LogConfig struct {
    Level  slog.Level
    Format string // "json" or "text"
    File   string
}

// LoadLogConfig reads LOG_LEVEL, LOG_FORMAT and LOG_FILE.
func LoadLogConfig() LogConfig {
    var lvl slog.Level
    if err := lvl.UnmarshalText([]byte(envStr("LOG_LEVEL", "info"))); err != nil {
        lvl = slog.LevelInfo
    }
    format := strings.ToLower(envStr("LOG_FORMAT", "json"))
    if format != "text" {
        format = "json"
    }
    return LogConfig{Level: lvl, Format: format, File: os.Getenv("LOG_FILE")}
}

// RotatingFile returns a size-rotated writer for path.
func RotatingFile(path string) io.WriteCloser {
    return &lumberjack.Logger{
        Filename:   path,
        MaxSize:    500, // megabytes
        MaxBackups: 3,
        MaxAge:     30, // days
        Compress:   true,
    }
}

// NewLogger builds the process logger.  With a file configured, records
// go both to stdout and to the rotated file.
func NewLogger(cfg LogConfig) *slog.Logger {
    var out io.Writer = os.Stdout
    if cfg.File != "" {
        out = io.MultiWriter(os.Stdout, RotatingFile(cfg.File))
    }
    opts := &slog.HandlerOptions{Level: cfg.Level}
    if cfg.Format == "text" {
        return slog.New(slog.NewTextHandler(out, opts))
    }
    return slog.New(slog.NewJSONHandler(out, opts))
}
