package cmd

import (
	"fmt"
	"io"

	"github.com/GoCodeAlone/oors"
	"github.com/charmbracelet/log"
)

// charmLogger adapts a charmbracelet logger to oors.Logger.
type charmLogger struct {
	l *log.Logger
}

func (c charmLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c charmLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }
func (c charmLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c charmLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }

func newLogger(w io.Writer, level string) (oors.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l := log.NewWithOptions(w, log.Options{
		Prefix:          "oors",
		Level:           lvl,
		ReportTimestamp: true,
	})
	return charmLogger{l}, nil
}
