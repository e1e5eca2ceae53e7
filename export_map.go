package oors

import (
	"fmt"
	"strings"
	"sync"
)

// Capabilities is an insertion-ordered, read-only snapshot of the values a
// module exported.
type Capabilities struct {
	keys   []string
	values map[string]any
}

// Len returns the number of exported keys.
func (c Capabilities) Len() int { return len(c.keys) }

// Keys returns the exported keys in insertion order.
func (c Capabilities) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Lookup returns the value exported under key.
func (c Capabilities) Lookup(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Get walks a dot separated path into nested maps and returns def when any
// segment is missing. An empty path is not valid; use Map for everything.
func (c Capabilities) Get(path string, def any) any {
	segments := strings.Split(path, ".")
	cur, ok := c.values[segments[0]]
	if !ok {
		return def
	}
	for _, seg := range segments[1:] {
		switch m := cur.(type) {
		case map[string]any:
			cur, ok = m[seg]
		case Capabilities:
			cur, ok = m.values[seg]
		default:
			ok = false
		}
		if !ok {
			return def
		}
	}
	return cur
}

// Map returns a copy of the exported values.
func (c Capabilities) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

type exportEntry struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

func (e *exportEntry) snapshot() Capabilities {
	e.mu.RLock()
	defer e.mu.RUnlock()

	values := make(map[string]any, len(e.values))
	for k, v := range e.values {
		values[k] = v
	}
	return Capabilities{keys: append([]string(nil), e.keys...), values: values}
}

// ExportMap holds one capability map per registered module. Writes are
// serialized per module; readers never block each other.
type ExportMap struct {
	mu      sync.RWMutex
	entries map[string]*exportEntry
}

// NewExportMap creates an empty export map registry.
func NewExportMap() *ExportMap {
	return &ExportMap{entries: make(map[string]*exportEntry)}
}

// Declare creates the empty map of a module.
func (m *ExportMap) Declare(module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[module]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, module)
	}
	m.entries[module] = &exportEntry{values: make(map[string]any)}
	return nil
}

func (m *ExportMap) entry(module string) (*exportEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[module]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	return e, nil
}

// Export merges values into a module map. Existing keys are overwritten and
// keep their original position. Plain maps are merged in sorted key order.
func (m *ExportMap) Export(module string, values map[string]any) error {
	return m.ExportOrdered(module, sortedKeys(values), values)
}

// ExportOrdered merges values in the order given by keys.
func (m *ExportMap) ExportOrdered(module string, keys []string, values map[string]any) error {
	e, err := m.entry(module)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		if _, exists := e.values[k]; !exists {
			e.keys = append(e.keys, k)
		}
		e.values[k] = v
	}
	return nil
}

// Read returns a single capability.
func (m *ExportMap) Read(module, key string) (any, error) {
	e, err := m.entry(module)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not exported by module %q", ErrUnknownCapability, key, module)
	}
	return v, nil
}

// Snapshot returns a copy of the current map of a module.
func (m *ExportMap) Snapshot(module string) (Capabilities, error) {
	e, err := m.entry(module)
	if err != nil {
		return Capabilities{}, err
	}
	return e.snapshot(), nil
}
