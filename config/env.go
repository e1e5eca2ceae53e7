package config

import (
	"maps"
	"slices"
	"strings"
)

// DefaultEnvPrefix is the prefix of environment overrides:
// OORS_<MODULE>__<KEY>[__<KEY>...]=value.
const DefaultEnvPrefix = "OORS"

const envPathSeparator = "__"

type envOverrides struct {
	prefix  string
	environ func() []string
}

// apply sets string leaves from matching environment variables. Values stay
// strings; the module schema coerces them.
func (e *envOverrides) apply(doc *Document) {
	prefix := e.prefix + "_"
	for _, kv := range e.environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		segments := strings.Split(strings.TrimPrefix(key, prefix), envPathSeparator)
		if len(segments) < 2 || slices.Contains(segments, "") {
			continue
		}

		module := matchKey(doc.Modules, segments[0])
		cfg := doc.Modules[module]
		if cfg == nil {
			cfg = map[string]any{}
		}
		doc.Modules[module] = setPath(cfg, segments[1:], value)
	}
}

// setPath sets value at path inside a copy of m, creating maps as needed.
func setPath(m map[string]any, path []string, value string) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = map[string]any{}
	}

	key := matchKey(out, path[0])
	if len(path) == 1 {
		out[key] = value
		return out
	}
	child, _ := out[key].(map[string]any)
	out[key] = setPath(child, path[1:], value)
	return out
}

// matchKey finds the existing key that an environment segment refers to.
// Matching ignores case and treats '_' and '-' alike; unmatched segments
// are lowercased.
func matchKey[V any](m map[string]V, segment string) string {
	want := normalizeEnvKey(segment)
	for k := range m {
		if normalizeEnvKey(k) == want {
			return k
		}
	}
	return strings.ToLower(segment)
}

func normalizeEnvKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", "_"))
}
