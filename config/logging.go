package config

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger installs a JSON slog logger as the default and routes the
// standard library logger through it. With LOG_FILE set, output also goes
// to a size-rotated file.
func (c *Config) SetupLogger(service string) *slog.Logger {
	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	return NewLogger(out, c.level(), service, c.ServiceEnv)
}

// NewLogger builds the logger SetupLogger installs, writing to w.
func NewLogger(w io.Writer, level slog.Level, service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr.Key = "severity"
				attr.Value = slog.StringValue(strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", service)}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withAttrs := handler.WithAttrs(attrs)
	logger := slog.New(withAttrs)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(withAttrs, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
	return logger
}

func (c *Config) level() slog.Level {
	level, err := c.SlogLevel()
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
