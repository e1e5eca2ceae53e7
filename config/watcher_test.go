package config

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "router:\n  port: 8080\n")

	l := NewLoader([]string{path}, WithEnviron(noEnv))
	_, err := l.Load(context.Background())
	require.NoError(t, err)

	got := make(chan []*Change, 16)
	w, err := NewWatcher(l, func(ctx context.Context, doc *Document, changes []*Change) error {
		select {
		case got <- changes:
		default:
		}
		return nil
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// unrelated files in the same directory are ignored
	writeFile(t, dir, "other.yaml", "x: 1\n")
	writeFile(t, dir, "app.yaml", "router:\n  port: 9090\n")

	// a write can be observed half done, so wait for the final state
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case changes := <-got:
			for _, c := range changes {
				if c.FieldPath == "port" && c.NewValue == 9090 {
					seen = true
				}
			}
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, w.Run(context.Background()), ErrWatcherStarted)
}

func TestWatcher_ReportsReloadErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.json", `{"router": {"port": 1}}`)

	l := NewLoader([]string{path}, WithEnviron(noEnv))
	_, err := l.Load(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var errs []error
	reported := make(chan struct{}, 1)
	w, err := NewWatcher(l, nil, WithDebounce(10*time.Millisecond), WithErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		select {
		case reported <- struct{}{}:
		default:
		}
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	writeFile(t, dir, "app.json", "{")

	select {
	case <-reported:
	case <-time.After(5 * time.Second):
		t.Fatal("reload error not reported")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, errs)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	l := NewLoader([]string{"/does/not/exist/app.yaml"})
	_, err := NewWatcher(l, nil)
	assert.Error(t, err)
}
