package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// LineFormatter renders one event per line:
//
//	[<ISO-8601 timestamp>] [<LEVEL>] [<scope>] <message>
//
// Scope is the machine identifier for the agent, or the component name for
// the collector. Remaining fields are appended as key=value pairs.
type LineFormatter struct {
	Scope string
}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	b.WriteString("[")
	b.WriteString(entry.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString("] [")
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString("] [")
	b.WriteString(f.Scope)
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

// Logger wraps a logrus logger together with its optional file sink.
type Logger struct {
	*logrus.Logger
	file *os.File
}

// New creates a logger scoped to the given identifier. When path is
// non-empty the log file is opened once in append mode and every line is
// written both to stderr and to the file. The file is never rotated or
// truncated here.
func New(scope, path string) (*Logger, error) {
	log := logrus.New()
	log.SetFormatter(&LineFormatter{Scope: scope})
	log.SetLevel(logrus.InfoLevel)

	l := &Logger{Logger: log}

	if path == "" {
		log.SetOutput(os.Stderr)
		return l, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	return l, nil
}

// Close closes the log file sink if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.Logger.SetOutput(os.Stderr)
	return l.file.Close()
}
