package project

import (
	"fmt"
	"sort"
)

// NormalizeSteps turns plan steps into a dependency graph keyed by step ID.
// Duplicate dependencies collapse; steps without IDs are rejected.
func NormalizeSteps(steps []Step) (map[string][]string, error) {
	graph := make(map[string][]string, len(steps))
	for _, step := range steps {
		if step.ID == "" {
			return nil, fmt.Errorf("every step must include an id")
		}
		seen := map[string]bool{}
		var deps []string
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
		graph[step.ID] = deps
	}
	return graph, nil
}

// DetectCycles returns every dependency cycle found in the graph, each as
// the path of step IDs closing back on its start.
func DetectCycles(graph map[string][]string) [][]string {
	visited := map[string]bool{}
	stack := map[string]bool{}
	var cycles [][]string

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		if stack[node] {
			for i, step := range path {
				if step == node {
					cycle := append(append([]string(nil), path[i:]...), node)
					cycles = append(cycles, cycle)
					return
				}
			}
			return
		}
		if visited[node] {
			return
		}
		visited[node] = true
		stack[node] = true
		for _, dep := range graph[node] {
			dfs(dep, append(path, dep))
		}
		stack[node] = false
	}

	for _, node := range sortedNodes(graph) {
		if !visited[node] {
			dfs(node, []string{node})
		}
	}
	return cycles
}

// FindUnresolved returns dependencies that name no step in the graph,
// sorted and deduplicated.
func FindUnresolved(graph map[string][]string) []string {
	missing := map[string]bool{}
	for _, deps := range graph {
		for _, dep := range deps {
			if _, ok := graph[dep]; !ok {
				missing[dep] = true
			}
		}
	}
	var out []string
	for dep := range missing {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// ComputeDepths assigns each step its dependency depth: roots are 0, a
// step is one deeper than its deepest dependency. Cycles are an error.
func ComputeDepths(graph map[string][]string) (map[string]int, error) {
	depths := map[string]int{}
	visiting := map[string]bool{}

	var dfs func(node string) (int, error)
	dfs = func(node string) (int, error) {
		if depth, ok := depths[node]; ok {
			return depth, nil
		}
		if visiting[node] {
			return 0, fmt.Errorf("cycle detected while computing depths at %s", node)
		}
		visiting[node] = true
		defer delete(visiting, node)

		depth := 0
		for _, dep := range graph[node] {
			if _, ok := graph[dep]; !ok {
				continue
			}
			sub, err := dfs(dep)
			if err != nil {
				return 0, err
			}
			if sub+1 > depth {
				depth = sub + 1
			}
		}
		depths[node] = depth
		return depth, nil
	}

	for _, node := range sortedNodes(graph) {
		if _, err := dfs(node); err != nil {
			return nil, err
		}
	}
	return depths, nil
}

// TopologicalSort orders steps so dependencies come first. Steps stuck in
// cycles are appended at the end in sorted order so callers still see them.
func TopologicalSort(graph map[string][]string) []string {
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for node := range graph {
		indegree[node] = 0
	}
	for node, deps := range graph {
		for _, dep := range deps {
			if _, ok := graph[dep]; !ok {
				continue
			}
			indegree[node]++
			dependents[dep] = append(dependents[dep], node)
		}
	}

	var queue []string
	for _, node := range sortedNodes(graph) {
		if indegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var ordered []string
	placed := map[string]bool{}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		ordered = append(ordered, node)
		placed[node] = true
		sort.Strings(dependents[node])
		for _, dependent := range dependents[node] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	var remaining []string
	for node := range graph {
		if !placed[node] {
			remaining = append(remaining, node)
		}
	}
	sort.Strings(remaining)
	return append(ordered, remaining...)
}

func sortedNodes(graph map[string][]string) []string {
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
