package oors

import (
	"fmt"
	"slices"
	"sync"
)

// DependencyGraph tracks, per module, the direct dependencies and their
// transitive closure. The closure is maintained incrementally on every edge
// insertion so that a cycle is reported by the very AddEdge call that
// closes it.
type DependencyGraph struct {
	mu      sync.Mutex
	direct  map[string]map[string]struct{}
	closure map[string]map[string]struct{}
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		direct:  make(map[string]map[string]struct{}),
		closure: make(map[string]map[string]struct{}),
	}
}

// AddNode declares a module. Adding an existing node is a no-op.
func (g *DependencyGraph) AddNode(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.direct[name]; ok {
		return
	}
	g.direct[name] = make(map[string]struct{})
	g.closure[name] = make(map[string]struct{})
}

// HasNode reports whether name was declared.
func (g *DependencyGraph) HasNode(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.direct[name]
	return ok
}

// AddEdge records that from depends on to. It fails with ErrSelfDependency,
// ErrUnknownModule or a *CycleError; on failure the graph is left as it was.
func (g *DependencyGraph) AddEdge(from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %q waits for itself to load", ErrSelfDependency, from)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.direct[from]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, from)
	}
	if _, ok := g.direct[to]; !ok {
		return fmt.Errorf("%w: %q required by %q, registered modules: %v",
			ErrUnknownModule, to, from, g.sortedNodes())
	}

	_, hadEdge := g.direct[from][to]
	g.direct[from][to] = struct{}{}

	// from itself plus every node that already reaches from
	var touched []string
	for node, reach := range g.closure {
		if _, ok := reach[from]; ok || node == from {
			touched = append(touched, node)
		}
	}

	via := g.reachVia(to)
	added := make(map[string][]string, len(touched))
	for _, node := range touched {
		reach := g.closure[node]
		for _, n := range via {
			if _, ok := reach[n]; !ok {
				reach[n] = struct{}{}
				added[node] = append(added[node], n)
			}
		}
	}

	for _, node := range touched {
		if _, ok := g.closure[node][node]; ok {
			path := g.cyclePath(from, to)
			g.rollback(from, to, hadEdge, added)
			return &CycleError{From: from, To: to, Path: path}
		}
	}

	return nil
}

// reachVia returns to and everything in its closure.
func (g *DependencyGraph) reachVia(to string) []string {
	out := make([]string, 0, len(g.closure[to])+1)
	out = append(out, to)
	for n := range g.closure[to] {
		out = append(out, n)
	}
	return out
}

func (g *DependencyGraph) rollback(from, to string, hadEdge bool, added map[string][]string) {
	if !hadEdge {
		delete(g.direct[from], to)
	}
	for node, names := range added {
		for _, n := range names {
			delete(g.closure[node], n)
		}
	}
}

// cyclePath finds the shortest path from to back to from over direct edges
// and returns it prefixed with from, e.g. [A B C A].
func (g *DependencyGraph) cyclePath(from, to string) []string {
	prev := map[string]string{to: ""}
	queue := []string{to}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == from {
			break
		}
		for _, next := range sortedKeys(g.direct[cur]) {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}

	if _, ok := prev[from]; !ok {
		return []string{from, to, from}
	}

	var rev []string
	for cur := from; cur != ""; cur = prev[cur] {
		rev = append(rev, cur)
	}
	slices.Reverse(rev)
	return append([]string{from}, rev...)
}

// Direct returns the sorted direct dependencies of name.
func (g *DependencyGraph) Direct(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.direct[name])
}

// Closure returns the sorted transitive dependencies of name.
func (g *DependencyGraph) Closure(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.closure[name])
}

// DependsOn reports whether from reaches to, directly or transitively.
func (g *DependencyGraph) DependsOn(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.closure[from][to]
	return ok
}

// Nodes returns every declared module name, sorted.
func (g *DependencyGraph) Nodes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedNodes()
}

func (g *DependencyGraph) sortedNodes() []string {
	return sortedKeys(g.direct)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
