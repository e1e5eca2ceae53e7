package cmd

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/oors"
	"github.com/GoCodeAlone/oors/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "oors", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "validate")
	assert.Contains(t, PrintVersion(), "oors vdev")
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, "oors.yaml", `
modules:
  router:
    port: 9000
    basePath: /api
  scheduler:
    timezone: Europe/Paris
    schedules:
      cleanup: "@hourly"
`)
	out, err := execute("validate", "-c", path, "--env-prefix", "")
	require.NoError(t, err)
	assert.Contains(t, out, "router: ok")
	assert.Contains(t, out, "scheduler: ok")
	assert.Contains(t, out, "eventlogger: ok")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeConfig(t, "oors.toml", `
[modules.scheduler]
timezone = "Mars/Olympus"

[modules.cache]
ttl = 5
`)
	out, err := execute("validate", "-c", path, "--env-prefix", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.ErrorIs(t, err, oors.ErrConfigValidation)
	assert.Contains(t, err.Error(), "scheduler")
	assert.Contains(t, out, "router: ok")
	assert.NotContains(t, out, "scheduler: ok")
}

func TestValidateCommand_EnvOverride(t *testing.T) {
	t.Setenv("OORSTEST_ROUTER__PORT", "70000")
	path := writeConfig(t, "oors.json", `{"modules": {"router": {"port": 8080}}}`)

	_, err := execute("validate", "-c", path, "--env-prefix", "OORSTEST")
	require.Error(t, err)
	assert.ErrorIs(t, err, oors.ErrConfigValidation)

	_, err = execute("validate", "-c", path, "--env-prefix", "")
	require.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(io.Discard, "loud")
	assert.Error(t, err)

	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "module", "router")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "module=router")
}

func TestServe(t *testing.T) {
	path := writeConfig(t, "oors.yaml", `
modules:
  router:
    port: 9123
    basePath: /api
  scheduler:
    autoStart: false
`)
	opts := &options{configFiles: []string{path}, shutdownTimeout: 2 * time.Second}
	logger, err := newLogger(io.Discard, "debug")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := make(chan string, 1)
	var gotPort int
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, opts, logger, func(port int) (net.Listener, error) {
			gotPort = port
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err == nil {
				addr <- ln.Addr().String()
			}
			return ln, err
		})
	}()

	var base string
	select {
	case base = <-addr:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	assert.Equal(t, 9123, gotPort)

	resp, err := http.Get("http://" + base + "/api/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestApp_ConfigChanged(t *testing.T) {
	doc := &config.Document{Modules: map[string]map[string]any{
		"scheduler": {"autoStart": false},
	}}
	a, err := newApp(context.Background(), doc, oors.NopLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.shutdown(context.Background())) }()

	var modules []any
	a.manager.On(oors.EventConfigChanged, func(ctx context.Context, e oors.Event) error {
		var data map[string]any
		if err := e.DataAs(&data); err != nil {
			return err
		}
		modules = data["modules"].([]any)
		return nil
	})

	changes := []*config.Change{
		{Module: "router", FieldPath: "port", Type: config.ChangeModified, OldValue: 8080, NewValue: 9090},
		{Module: "router", FieldPath: "basePath", Type: config.ChangeAdded, NewValue: "/v2"},
	}
	require.NoError(t, a.configChanged(context.Background(), doc, changes))
	assert.Equal(t, []any{"router"}, modules)
}

func TestApp_UnknownSection(t *testing.T) {
	doc := &config.Document{Modules: map[string]map[string]any{"billing": {}}}
	_, err := newApp(context.Background(), doc, oors.NopLogger())
	assert.ErrorIs(t, err, ErrUnknownModule)
}
