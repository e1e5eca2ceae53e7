package config

import (
	"maps"
	"reflect"
	"slices"
	"time"
)

// Diff compares two documents field by field. Changes are sorted by module,
// then by field path. A nil old document reports everything as added.
func Diff(old, next *Document) []*Change {
	now := time.Now()
	before := flattenDocument(old)
	after := flattenDocument(next)

	var changes []*Change
	for _, module := range sortedUnion(before, after) {
		b, a := before[module], after[module]
		for _, path := range sortedUnion(b, a) {
			oldVal, hadOld := b[path]
			newVal, hasNew := a[path]

			c := &Change{Module: module, FieldPath: path, OldValue: oldVal, NewValue: newVal, Timestamp: now}
			switch {
			case !hadOld:
				c.Type = ChangeAdded
			case !hasNew:
				c.Type = ChangeRemoved
			case !reflect.DeepEqual(oldVal, newVal):
				c.Type = ChangeModified
			default:
				continue
			}
			changes = append(changes, c)
		}
	}
	return changes
}

// ChangedModules returns the distinct module names in changes, in order.
func ChangedModules(changes []*Change) []string {
	var out []string
	for _, c := range changes {
		if !slices.Contains(out, c.Module) {
			out = append(out, c.Module)
		}
	}
	return out
}

func flattenDocument(doc *Document) map[string]map[string]any {
	out := map[string]map[string]any{}
	if doc == nil {
		return out
	}
	for name, cfg := range doc.Modules {
		flat := map[string]any{}
		flatten(cfg, "", flat)
		out[name] = flat
	}
	return out
}

// flatten converts nested maps to dotted keys. Empty maps are kept as
// leaves so that adding or removing one is reported.
func flatten(m map[string]any, prefix string, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			flatten(sub, key, out)
			continue
		}
		out[key] = v
	}
}

func sortedUnion[V any](a, b map[string]V) []string {
	keys := slices.Collect(maps.Keys(a))
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
