// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

// tarjanSCC orders keys into strongly connected components over the edges
// in refs, using Tarjan's algorithm. Components are returned in reverse
// topological order: a component that depends on nothing in keys comes
// first. Because every [model.TypeRef] is pre-allocated before this
// ordering is even computed, resolution does not actually require
// dependency-first order to be correct — but preserving it keeps
// diagnostics (and any future incremental re-resolution) easier to read,
// and mirrors how a mutually-recursive group is conventionally reported:
// as one unit.
func tarjanSCC(keys []assignmentKey, refs map[assignmentKey][]assignmentKey) [][]assignmentKey {
	index := map[assignmentKey]int{}
	lowlink := map[assignmentKey]int{}
	onStack := map[assignmentKey]bool{}
	var stack []assignmentKey
	counter := 0
	var result [][]assignmentKey

	known := map[assignmentKey]bool{}
	for _, k := range keys {
		known[k] = true
	}

	var strongconnect func(v assignmentKey)
	strongconnect = func(v assignmentKey) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range refs[v] {
			if !known[w] {
				continue // cross-module or unresolved; reported later as an error
			}
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var group []assignmentKey
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				group = append(group, w)
				if w == v {
					break
				}
			}
			result = append(result, group)
		}
	}

	for _, k := range keys {
		if _, seen := index[k]; !seen {
			strongconnect(k)
		}
	}

	return result
}
