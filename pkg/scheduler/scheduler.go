// Package scheduler builds the per-phase DAG of spec §4.8: topological
// waves over explicit runs_after edges and mutex-conflict edges, with
// cycle detection and a stable declaration-order tie-break among
// admissible nodes within a wave.
package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// CycleError is returned when the dependency graph contains a cycle. It
// names every participant so the run can abort with a clear message
// (spec §4.8 step 3, tested).
type CycleError struct {
	Participants []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among plugins: %s", strings.Join(e.Participants, ", "))
}

// node is one plugin's scheduling state for a single phase graph.
type node struct {
	desc    *plugin.Descriptor
	mutexes []string
	deps    map[string]struct{} // names this node must run after
}

// Graph is the constructed DAG for one phase over one set of applicable
// plugins, ready to be consumed wave by wave.
type Graph struct {
	nodes map[string]*node
	order []string // declaration order, for stable tie-break
}

// Build constructs the DAG for one phase. descs must already be filtered
// to applicable plugins (spec §4.8 step 1); effectiveMutexes maps plugin
// name to its effective mutex set for this phase (static ∪ dynamic).
//
// Edges are added for (a) explicit RunsAfter declarations and (b) mutex
// conflicts: if two plugins declare an overlapping mutex for this phase,
// an edge is added from the declaration-order-earlier plugin to the
// later one, so the mutex manager never has to arbitrate two admissible
// nodes racing for the same lock within a wave.
func Build(descs []*plugin.Descriptor, effectiveMutexes map[string][]string) (*Graph, error) {
	sorted := append([]*plugin.Descriptor(nil), descs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DeclarationRank < sorted[j].DeclarationRank })

	g := &Graph{nodes: make(map[string]*node, len(sorted))}
	for _, d := range sorted {
		g.nodes[d.Name] = &node{desc: d, mutexes: effectiveMutexes[d.Name], deps: make(map[string]struct{})}
		g.order = append(g.order, d.Name)
	}

	for _, d := range sorted {
		for _, dep := range d.RunsAfter {
			if _, ok := g.nodes[dep]; !ok {
				continue // dependency not applicable this phase; nothing to wait on
			}
			g.nodes[d.Name].deps[dep] = struct{}{}
		}
	}

	for i, a := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			b := sorted[j]
			if mutexSetsOverlap(effectiveMutexes[a.Name], effectiveMutexes[b.Name]) {
				g.nodes[b.Name].deps[a.Name] = struct{}{}
			}
		}
	}

	if cyc := g.findCycle(); cyc != nil {
		return nil, &CycleError{Participants: cyc}
	}
	return g, nil
}

func mutexSetsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, m := range a {
		set[m] = struct{}{}
	}
	for _, m := range b {
		if _, ok := set[m]; ok {
			return true
		}
	}
	return false
}

// findCycle performs a DFS cycle check and, if one is found, returns the
// cycle's participants in stable order.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cyc []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		deps := make([]string, 0, len(g.nodes[name].deps))
		for d := range g.nodes[name].deps {
			deps = append(deps, d)
		}
		sort.Strings(deps)
		for _, d := range deps {
			switch color[d] {
			case white:
				if visit(d) {
					return true
				}
			case gray:
				// Found the cycle: participants are the stack from d's
				// first occurrence onward.
				for i, s := range stack {
					if s == d {
						cyc = append([]string(nil), stack[i:]...)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range g.order {
		if color[name] == white {
			if visit(name) {
				sort.Strings(cyc)
				return cyc
			}
		}
	}
	return nil
}

// Wave returns the maximal set of node names with no unsatisfied
// predecessors among done (already-completed plugin names), in stable
// declaration order (spec §4.8 tie-break).
func (g *Graph) Wave(done map[string]bool) []string {
	var wave []string
	for _, name := range g.order {
		if done[name] {
			continue
		}
		ready := true
		for dep := range g.nodes[name].deps {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			wave = append(wave, name)
		}
	}
	return wave
}

// Remaining reports whether any node has not yet been marked done.
func (g *Graph) Remaining(done map[string]bool) bool {
	for _, name := range g.order {
		if !done[name] {
			return true
		}
	}
	return false
}
