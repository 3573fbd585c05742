// Package graph orders service startup so every dependency starts before
// its dependents.
package graph

import (
	"sort"
	"strings"

	"github.com/lapiml/stackctl/pkg/errdefs"
)

// Deps maps a node to the nodes it depends on. Every referenced node must
// appear as a key; the parser guarantees that for descriptors.
type Deps map[string][]string

// Order returns a total startup order (Kahn's algorithm). Nodes with no
// ordering constraint between them are emitted alphabetically so the result
// is deterministic.
func Order(deps Deps) ([]string, error) {
	levels, err := Levels(deps)
	if err != nil {
		return nil, err
	}
	var order []string
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// Levels groups nodes into startup waves: everything in level i depends only
// on nodes in levels < i, so members of one level may start concurrently.
func Levels(deps Deps) ([][]string, error) {
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for node, ds := range deps {
		if _, ok := indegree[node]; !ok {
			indegree[node] = 0
		}
		for _, d := range ds {
			indegree[node]++
			dependents[d] = append(dependents[d], node)
			if _, ok := indegree[d]; !ok {
				indegree[d] = 0
			}
		}
	}

	total := len(indegree)

	var levels [][]string
	placed := 0
	current := zeroes(indegree)
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		placed += len(current)

		var next []string
		for _, done := range current {
			delete(indegree, done)
			for _, dep := range dependents[done] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if placed != total {
		remaining := make([]string, 0, len(indegree))
		for node := range indegree {
			remaining = append(remaining, node)
		}
		sort.Strings(remaining)
		return nil, errdefs.Newf(errdefs.KindDependencyCycle,
			"dependency cycle among: %s", strings.Join(remaining, ", "))
	}
	return levels, nil
}

func zeroes(indegree map[string]int) []string {
	var out []string
	for node, n := range indegree {
		if n == 0 {
			out = append(out, node)
		}
	}
	return out
}
