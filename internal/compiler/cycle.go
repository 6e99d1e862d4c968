package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dataflow/internal/ir"
)

// Cycle is a set of builders that feed each other.
//
// A builder cannot be placed on a level until every producer of its
// consumed keys has been placed, so any cycle makes a flow unlevelable.
type Cycle struct {
	Path    []string `json:"path"`    // ["enrich", "score", "enrich"]
	Message string   `json:"message"` // Human-readable description
}

// FindCycles reports every dependency cycle among the given builders.
//
// The algorithm:
//  1. Build producer → consumer edges from produces/consumes keys
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// Nodes and edges are visited in sorted order so the result is stable.
func FindCycles(metas []ir.DataBuilderMeta) []Cycle {
	if len(metas) == 0 {
		return nil
	}

	graph := buildDependencyGraph(metas)
	sccs := tarjanSCC(graph)

	var cycles []Cycle
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// dependencyGraph maps builder name → builders consuming its product.
type dependencyGraph map[string][]string

func buildDependencyGraph(metas []ir.DataBuilderMeta) dependencyGraph {
	graph := make(dependencyGraph, len(metas))

	consumers := make(map[string][]string)
	for _, m := range metas {
		for _, key := range m.Consumes {
			consumers[key] = append(consumers[key], m.Name)
		}
	}

	for _, m := range metas {
		// Ensure node exists even without edges
		edges := graph[m.Name]
		if edges == nil {
			edges = []string{}
		}
		for _, c := range consumers[m.Produces] {
			if !slices.Contains(edges, c) {
				edges = append(edges, c)
			}
		}
		slices.Sort(edges)
		graph[m.Name] = edges
	}

	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func sccToCycle(scc []string, graph dependencyGraph) Cycle {
	if len(scc) == 1 {
		name := scc[0]
		return Cycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("builder consumes its own product: %s → %s", name, name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath returns the shortest cycle through the smallest
// SCC member, found by breadth-first search inside the SCC.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	parent := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range graph[current] {
			if !sccSet[neighbor] {
				continue
			}
			if neighbor == start {
				path := []string{start}
				for n := current; n != start; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := parent[neighbor]; !seen {
				parent[neighbor] = current
				queue = append(queue, neighbor)
			}
		}
	}

	// Unreachable for a genuine SCC
	return append(slices.Clone(scc), start)
}
