package eventlogger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/oors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubModule struct {
	oors.BaseModule
	setupErr error
}

func newStub(name string, setupErr error) *stubModule {
	return &stubModule{BaseModule: oors.NewBaseModule(name, nil), setupErr: setupErr}
}

func (s *stubModule) Initialize(*oors.ModuleContext) error { return nil }

func (s *stubModule) Setup(context.Context, *oors.ModuleContext) error { return s.setupErr }

func types(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Type
	}
	return out
}

func TestEventLogger_RecordsLifecycle(t *testing.T) {
	el := New(map[string]any{"logLevel": "debug", "bufferSize": 100, "includeData": true})
	m := oors.NewManager()
	require.NoError(t, m.Register(el, newStub("db", nil)))
	require.NoError(t, m.Bootstrap(context.Background()))

	got := types(el.Recent())
	assert.Contains(t, got, oors.EventModuleRegistered)
	assert.Contains(t, got, oors.EventBeforeSetup)
	assert.Contains(t, got, oors.EventModuleLoaded)
	assert.Contains(t, got, "module:db:after:setup")

	for _, e := range el.Recent() {
		if e.Type == oors.EventModuleRegistered {
			assert.Equal(t, "DEBUG", e.Level)
			assert.Equal(t, "db", e.Subject)
			assert.Equal(t, "db", e.Data.(map[string]any)["module"])
			assert.NotEmpty(t, e.ID)
		}
	}

	exported, err := m.Get(ModuleName, ExportLogger, nil)
	require.NoError(t, err)
	assert.Same(t, el, exported)
	require.NoError(t, el.Close())
}

func TestEventLogger_Filters(t *testing.T) {
	el := New(map[string]any{
		"logLevel": "DEBUG",
		"include":  []any{"module:"},
		"exclude":  []any{"module:registered"},
	})
	m := oors.NewManager()
	require.NoError(t, m.Register(el, newStub("db", nil)))
	require.NoError(t, m.Bootstrap(context.Background()))

	got := types(el.Recent())
	assert.NotContains(t, got, oors.EventModuleRegistered)
	assert.NotContains(t, got, oors.EventBeforeSetup)
	assert.Contains(t, got, oors.EventModuleLoaded)
	for _, e := range el.Recent() {
		assert.Nil(t, e.Data)
	}
}

func TestEventLogger_LevelAndBuffer(t *testing.T) {
	el := New(map[string]any{"logLevel": "ERROR", "bufferSize": 1})
	m := oors.NewManager()
	require.NoError(t, m.Register(el, newStub("db", errors.New("down")), newStub("cache", errors.New("down"))))
	require.Error(t, m.Bootstrap(context.Background()))

	recent := el.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "ERROR", recent[0].Level)
}

func TestEventLogger_FileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.log")
	el := New(map[string]any{
		"logLevel":      "INFO",
		"outputTargets": []any{map[string]any{"type": "file", "path": path}},
	})
	m := oors.NewManager()
	require.NoError(t, m.Register(el))
	require.NoError(t, m.Bootstrap(context.Background()))
	require.NoError(t, el.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var loaded bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		assert.NotEqual(t, "DEBUG", entry.Level)
		if entry.Type == oors.EventModuleLoaded {
			loaded = true
		}
	}
	assert.True(t, loaded)
}

func TestEventLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"level", map[string]any{"logLevel": "TRACE"}},
		{"target type", map[string]any{"outputTargets": []any{map[string]any{"type": "syslog"}}}},
		{"file without path", map[string]any{"outputTargets": []any{map[string]any{"type": "file"}}}},
		{"unknown key", map[string]any{"flushInterval": "5s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, oors.NewManager().Register(New(tt.config)))
		})
	}

	cfg := Config{LogLevel: "INFO", OutputTargets: []OutputTargetConfig{{}, {Type: "file"}}}
	err := cfg.Validate()
	var terr *OutputTargetError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.Index)
	assert.ErrorIs(t, err, ErrMissingFilePath)
}

type mockLogger struct{ mock.Mock }

func (m *mockLogger) Info(msg string, args ...any)  { m.Called(msg, args) }
func (m *mockLogger) Error(msg string, args ...any) { m.Called(msg, args) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.Called(msg, args) }
func (m *mockLogger) Debug(msg string, args ...any) { m.Called(msg, args) }

func TestLoggerTarget(t *testing.T) {
	logger := &mockLogger{}
	logger.On("Error", "Event", mock.Anything).Once()
	target := &LoggerTarget{config: OutputTargetConfig{Level: "WARN"}, logger: logger}

	require.NoError(t, target.WriteEvent(&LogEntry{Level: "INFO", Type: "module:loaded"}))
	require.NoError(t, target.WriteEvent(&LogEntry{Level: "ERROR", Type: "module:failed", Source: "oors", ID: "1"}))
	logger.AssertExpectations(t)
}

func TestFormats(t *testing.T) {
	entry := &LogEntry{
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Level:     "INFO",
		Type:      "module:loaded",
		Source:    "oors",
		Subject:   "db",
		Data:      map[string]any{"module": "db"},
		Metadata:  map[string]any{"b": 2, "a": 1},
	}

	var buf bytes.Buffer
	require.NoError(t, NewConsoleTarget(OutputTargetConfig{Level: "DEBUG", Format: "text"}, &buf).WriteEvent(entry))
	assert.Equal(t, "2024-05-01 10:00:00 INFO [module:loaded] oors map[module:db]\n", buf.String())

	buf.Reset()
	require.NoError(t, NewConsoleTarget(OutputTargetConfig{Level: "DEBUG", Format: "structured"}, &buf).WriteEvent(entry))
	assert.Equal(t, "[2024-05-01 10:00:00] INFO module:loaded | Source: oors | Subject: db | Data: map[module:db] | a: 1 | b: 2\n", buf.String())

	buf.Reset()
	require.NoError(t, NewConsoleTarget(OutputTargetConfig{Level: "ERROR", Format: "json"}, &buf).WriteEvent(entry))
	assert.Empty(t, buf.String())
}
