package eventlogger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/oors"
)

// LogEntry is a single logged event.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Subject   string         `json:"subject,omitempty"`
	ID        string         `json:"id"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OutputTarget defines the interface for event log output targets.
type OutputTarget interface {
	// WriteEvent writes a log entry to the output target
	WriteEvent(entry *LogEntry) error

	// Close flushes and releases the target.
	Close() error
}

// NewOutputTarget creates a new output target based on configuration.
func NewOutputTarget(config OutputTargetConfig, logger oors.Logger) (OutputTarget, error) {
	switch config.Type {
	case "logger":
		return &LoggerTarget{config: config, logger: logger}, nil
	case "console":
		return NewConsoleTarget(config, os.Stdout), nil
	case "file":
		return NewFileTarget(config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutputType, config.Type)
	}
}

// LoggerTarget forwards entries to an oors.Logger.
type LoggerTarget struct {
	config OutputTargetConfig
	logger oors.Logger
}

// WriteEvent logs the entry at its level.
func (l *LoggerTarget) WriteEvent(entry *LogEntry) error {
	if !shouldLogLevel(entry.Level, l.config.Level) {
		return nil
	}
	args := []any{"type", entry.Type, "source", entry.Source, "id", entry.ID}
	if entry.Subject != "" {
		args = append(args, "subject", entry.Subject)
	}
	if entry.Data != nil {
		args = append(args, "data", entry.Data)
	}

	switch entry.Level {
	case "DEBUG":
		l.logger.Debug("Event", args...)
	case "WARN":
		l.logger.Warn("Event", args...)
	case "ERROR":
		l.logger.Error("Event", args...)
	default:
		l.logger.Info("Event", args...)
	}
	return nil
}

// Close is a no-op.
func (l *LoggerTarget) Close() error { return nil }

// ConsoleTarget outputs events to a writer, stdout by default.
type ConsoleTarget struct {
	config OutputTargetConfig
	mu     sync.Mutex
	writer io.Writer
}

// NewConsoleTarget creates a new console output target.
func NewConsoleTarget(config OutputTargetConfig, w io.Writer) *ConsoleTarget {
	return &ConsoleTarget{config: config, writer: w}
}

// WriteEvent writes a log entry to the writer.
func (c *ConsoleTarget) WriteEvent(entry *LogEntry) error {
	if !shouldLogLevel(entry.Level, c.config.Level) {
		return nil
	}

	output, err := format(c.config.Format, entry)
	if err != nil {
		return fmt.Errorf("failed to format log entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.writer, output); err != nil {
		return fmt.Errorf("failed to write to console: %w", err)
	}
	return nil
}

// Close is a no-op.
func (c *ConsoleTarget) Close() error { return nil }

// FileTarget appends events to a file.
type FileTarget struct {
	config OutputTargetConfig
	mu     sync.Mutex
	file   *os.File
}

// NewFileTarget opens the log file, creating its directory when needed.
func NewFileTarget(config OutputTargetConfig) (*FileTarget, error) {
	if config.Path == "" {
		return nil, ErrMissingFilePath
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(config.Path), err)
	}
	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", config.Path, err)
	}
	if config.Format == "" {
		config.Format = "json"
	}
	return &FileTarget{config: config, file: file}, nil
}

// WriteEvent writes a log entry to file.
func (f *FileTarget) WriteEvent(entry *LogEntry) error {
	if !shouldLogLevel(entry.Level, f.config.Level) {
		return nil
	}

	output, err := format(f.config.Format, entry)
	if err != nil {
		return fmt.Errorf("failed to format log entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ErrFileNotOpen
	}
	if _, err := fmt.Fprintln(f.file, output); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

// Close syncs and closes the file.
func (f *FileTarget) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	syncErr := f.file.Sync()
	closeErr := f.file.Close()
	f.file = nil
	if syncErr != nil {
		return fmt.Errorf("failed to sync file: %w", syncErr)
	}
	return closeErr
}

func format(name string, entry *LogEntry) (string, error) {
	switch name {
	case "json":
		data, err := json.Marshal(entry)
		if err != nil {
			return "", fmt.Errorf("failed to marshal log entry to JSON: %w", err)
		}
		return string(data), nil
	case "structured":
		return formatStructured(entry), nil
	default:
		return formatText(entry), nil
	}
}

// formatText formats a log entry as human-readable text.
func formatText(entry *LogEntry) string {
	timestamp := entry.Timestamp.Format("2006-01-02 15:04:05")
	dataStr := ""
	if entry.Data != nil {
		dataStr = fmt.Sprintf(" %v", entry.Data)
	}
	return fmt.Sprintf("%s %s [%s] %s%s", timestamp, entry.Level, entry.Type, entry.Source, dataStr)
}

// formatStructured formats a log entry as pipe separated fields.
func formatStructured(entry *LogEntry) string {
	var builder strings.Builder

	timestamp := entry.Timestamp.Format("2006-01-02 15:04:05")
	fmt.Fprintf(&builder, "[%s] %s %s | Source: %s", timestamp, entry.Level, entry.Type, entry.Source)
	if entry.Subject != "" {
		fmt.Fprintf(&builder, " | Subject: %s", entry.Subject)
	}
	if entry.Data != nil {
		fmt.Fprintf(&builder, " | Data: %v", entry.Data)
	}
	if len(entry.Metadata) > 0 {
		keys := make([]string, 0, len(entry.Metadata))
		for k := range entry.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&builder, " | %s: %v", k, entry.Metadata[k])
		}
	}
	return builder.String()
}

// shouldLogLevel checks if a log level should be included based on minimum level.
func shouldLogLevel(eventLevel, minLevel string) bool {
	eventLevelNum := slices.Index(levels, eventLevel)
	minLevelNum := slices.Index(levels, minLevel)
	if eventLevelNum < 0 || minLevelNum < 0 {
		return true
	}
	return eventLevelNum >= minLevelNum
}
