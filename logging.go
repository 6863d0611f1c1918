package smarthandles

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type LoggingConfig struct {
	Level      string    `yaml:"level"`
	TimeFormat string    `yaml:"timeFormat" split_words:"true"`
	Prefix     string    `yaml:"prefix"`
	Output     io.Writer `yaml:"-"          ignored:"true"`
}

// NewLogger returns a slog logger backed by charmbracelet/log, suitable for
// WithLogger.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.TimeOnly
	}
	handler := log.NewWithOptions(output, log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Prefix:          cfg.Prefix,
		Level:           parseLevel(cfg.Level),
	})
	return slog.New(handler)
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
