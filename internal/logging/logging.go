package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, format and destination of the logger.
type Options struct {
	Level    string
	Format   string // text | json
	Output   string // stdout | stderr | file
	FilePath string
}

// Logger wraps a logrus entry so components can carry their own fields.
type Logger struct {
	*logrus.Entry
	rotator *lumberjack.Logger
}

func New(opts Options) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	const timestampFormat = "2006-01-02 15:04:05.000"
	switch strings.ToLower(opts.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	l := &Logger{}
	switch strings.ToLower(opts.Output) {
	case "", "stdout":
		base.SetOutput(os.Stdout)
	case "stderr":
		base.SetOutput(os.Stderr)
	case "file":
		if opts.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("create log folder failed: %w", err)
		}
		l.rotator = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		// Output to both file and console while debugging
		if level == logrus.DebugLevel {
			base.SetOutput(io.MultiWriter(os.Stdout, l.rotator))
		} else {
			base.SetOutput(l.rotator)
		}
	default:
		return nil, fmt.Errorf("unsupported log output: %s", opts.Output)
	}

	l.Entry = logrus.NewEntry(base)
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: logrus.NewEntry(base)}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Entry: l.WithField("component", name), rotator: l.rotator}
}

// With returns a child logger carrying one extra field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{Entry: l.WithField(key, value), rotator: l.rotator}
}

func (l *Logger) Close() {
	if l.rotator == nil {
		return
	}
	_ = l.rotator.Close()
}
