package logging

import (
	"device-adapter-core/internal/infrastructure/config"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "device-adapter-core"

// New builds the process logger from cfg. The returned close func flushes
// the rotating file writer when output is "file". Output from the standard
// library log package is redirected to the new logger.
func New(cfg config.LoggingConfig, version string) (zerolog.Logger, func() error, error) {
	var (
		out     io.Writer
		closeFn = func() error { return nil }
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		out = os.Stderr
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), closeFn, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
		}
		out = lj
		closeFn = lj.Close
	default:
		out = os.Stdout
	}

	logger := newWithWriter(out, cfg, version)
	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With().Str("source", "stdlog").Logger())
	return logger, closeFn, nil
}

func newWithWriter(out io.Writer, cfg config.LoggingConfig, version string) zerolog.Logger {
	if strings.ToLower(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    strings.ToLower(cfg.Output) == "file",
		}
	}
	return zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", version).
		Logger()
}

// parseLevel falls back to info for unknown levels.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
