package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Static errors for configuration package
var (
	ErrNoSources         = errors.New("no configuration sources")
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
	ErrInvalidDocument   = errors.New("invalid configuration document")
)

// Document is a loaded configuration: one raw tree per module name.
type Document struct {
	Modules map[string]map[string]any `json:"modules" yaml:"modules" toml:"modules"`
}

// Module returns the configuration of one module, or nil.
func (d *Document) Module(name string) map[string]any {
	if d == nil {
		return nil
	}
	return d.Modules[name]
}

// ModuleNames returns the configured module names, sorted.
func (d *Document) ModuleNames() []string {
	if d == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(d.Modules))
}

// Loader reads configuration files in order, later files overriding earlier
// ones, then applies environment overrides.
type Loader struct {
	mu      sync.Mutex
	paths   []string
	sources []*Source
	env     *envOverrides
	current *Document
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvPrefix changes the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		if prefix == "" {
			l.env = nil
			return
		}
		l.env.prefix = prefix
	}
}

// WithEnviron replaces os.Environ as the source of environment variables.
func WithEnviron(environ func() []string) LoaderOption {
	return func(l *Loader) {
		if l.env != nil {
			l.env.environ = environ
		}
	}
}

// NewLoader creates a loader for the given files.
func NewLoader(paths []string, opts ...LoaderOption) *Loader {
	l := &Loader{
		paths: slices.Clone(paths),
		env:   &envOverrides{prefix: DefaultEnvPrefix, environ: os.Environ},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every file into a fresh Document.
func Load(paths ...string) (*Document, error) {
	return NewLoader(paths).Load(context.Background())
}

// Load loads configuration from all sources.
func (l *Loader) Load(ctx context.Context) (*Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, sources, err := l.load(ctx)
	l.sources = sources
	if err != nil {
		return nil, err
	}
	l.current = doc
	return doc, nil
}

// Reload loads all sources again and reports what changed since the
// previous successful load. The previous document stays current when the
// reload fails.
func (l *Loader) Reload(ctx context.Context) (*Document, []*Change, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, sources, err := l.load(ctx)
	l.sources = sources
	if err != nil {
		return nil, nil, err
	}
	changes := Diff(l.current, doc)
	l.current = doc
	return doc, changes, nil
}

// Current returns the last successfully loaded document.
func (l *Loader) Current() *Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Paths returns the configured files.
func (l *Loader) Paths() []string {
	return slices.Clone(l.paths)
}

// Sources returns information about the sources of the last load.
func (l *Loader) Sources() []*Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sources)
}

func (l *Loader) load(ctx context.Context) (*Document, []*Source, error) {
	if len(l.paths) == 0 && l.env == nil {
		return nil, nil, ErrNoSources
	}

	doc := &Document{Modules: map[string]map[string]any{}}
	sources := make([]*Source, 0, len(l.paths)+1)

	for i, path := range l.paths {
		if err := ctx.Err(); err != nil {
			return nil, sources, err
		}
		src := &Source{Name: filepath.Base(path), Type: formatOf(path), Location: path, Priority: i}
		sources = append(sources, src)

		fileDoc, err := readFile(path)
		if err != nil {
			src.Error = err.Error()
			return nil, sources, err
		}
		merge(doc, fileDoc)
		markLoaded(src)
	}

	if l.env != nil {
		src := &Source{Name: "environment", Type: "env", Location: l.env.prefix + "_", Priority: len(l.paths)}
		sources = append(sources, src)
		l.env.apply(doc)
		markLoaded(src)
	}
	return doc, sources, nil
}

func markLoaded(src *Source) {
	now := time.Now()
	src.Loaded = true
	src.LastLoaded = &now
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// readFile decodes one file. Files may either nest module trees under a
// "modules" key or put them at the top level.
func readFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	switch format := formatOf(path); format {
	case "yaml":
		err = yaml.Unmarshal(data, &raw)
	case "toml":
		err = toml.Unmarshal(data, &raw)
	case "json":
		err = json.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	tree := raw
	if nested, ok := raw["modules"]; ok {
		m, ok := nested.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: modules must be a map, got %T", ErrInvalidDocument, path, nested)
		}
		tree = m
	}

	doc := &Document{Modules: make(map[string]map[string]any, len(tree))}
	for name, v := range tree {
		switch cfg := v.(type) {
		case map[string]any:
			doc.Modules[name] = cfg
		case nil:
			doc.Modules[name] = map[string]any{}
		default:
			return nil, fmt.Errorf("%w: %s: module %q must be a map, got %T", ErrInvalidDocument, path, name, v)
		}
	}
	return doc, nil
}

func merge(dst, src *Document) {
	for name, cfg := range src.Modules {
		dst.Modules[name] = mergeMaps(dst.Modules[name], cfg)
	}
}

// mergeMaps deep merges src into a copy of dst. Non-map values in src
// replace the value in dst.
func mergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	maps.Copy(out, dst)
	for k, v := range src {
		sm, sok := v.(map[string]any)
		dm, dok := out[k].(map[string]any)
		if sok && dok {
			out[k] = mergeMaps(dm, sm)
			continue
		}
		out[k] = v
	}
	return out
}
