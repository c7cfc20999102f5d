// Package logger wraps logrus with the configuration knobs used across the
// ledger binaries.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, format and destination of log output.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEDGER_LOG_LEVEL"`
	Format     string `yaml:"format" env:"LEDGER_LOG_FORMAT"`
	Output     string `yaml:"output" env:"LEDGER_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LEDGER_LOG_FILE_PREFIX"`
}

// Logger is a logrus logger tagged with a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a logger from cfg. Unknown levels fall back to info and unknown
// outputs fall back to stdout.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	l.SetOutput(openOutput(cfg))
	return &Logger{Logger: l}
}

// NewDefault returns a JSON info-level logger for the named component.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
	log.component = component
	return log
}

// Component returns the component name, if any.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent derives an entry carrying the component field.
func (l *Logger) WithComponent() *logrus.Entry {
	return l.WithField("component", l.component)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l, component: "discard"}
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "ledger"
		}
		name := filepath.Clean(prefix + "-" + time.Now().UTC().Format("20060102") + ".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}
