// Package taskgraph models plans as directed acyclic graphs of task nodes
// linked by the artifacts they produce and require.
package taskgraph

import "fmt"

// Node is a single unit of work inside a graph. A node with an empty Tool
// is a no-op placeholder that succeeds without doing anything.
type Node struct {
	ID             string
	Description    string
	Tool           string
	Args           map[string]interface{}
	Requires       []string
	Produces       []string
	Parallelizable bool
	Metadata       map[string]interface{}
}

// Graph holds task nodes in insertion order. Dependencies are implicit:
// node B depends on node A when A produces an artifact B requires.
type Graph struct {
	nodes []*Node
	byID  map[string]*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byID: make(map[string]*Node)}
}

// Add appends a node. Node IDs must be unique within the graph.
func (g *Graph) Add(n *Node) error {
	if n.ID == "" {
		return &StructuralError{Check: "node_id", Detail: "node ID must not be empty"}
	}
	if _, exists := g.byID[n.ID]; exists {
		return &StructuralError{Check: "node_id", Detail: fmt.Sprintf("duplicate node ID %q", n.ID)}
	}
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
	return nil
}

// Get returns the node with the given ID.
func (g *Graph) Get(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ProducerMap maps each artifact to the ID of the node producing it.
// Two producers for the same artifact is a structural error.
func (g *Graph) ProducerMap() (map[string]string, error) {
	producers := make(map[string]string)
	for _, n := range g.nodes {
		for _, artifact := range n.Produces {
			if prev, exists := producers[artifact]; exists {
				return nil, &StructuralError{
					Check:  "artifact_producer",
					Detail: fmt.Sprintf("artifact %q produced by both %q and %q", artifact, prev, n.ID),
				}
			}
			producers[artifact] = n.ID
		}
	}
	return producers, nil
}

// DependencyMap maps each node ID to the IDs of the nodes producing its
// required artifacts. Requirements with no producer inside the graph carry
// no edge; the validator rejects them unless the caller declares them as
// available inputs.
func (g *Graph) DependencyMap() (map[string][]string, error) {
	producers, err := g.ProducerMap()
	if err != nil {
		return nil, err
	}
	deps := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		deps[n.ID] = nil
		seen := make(map[string]bool)
		for _, req := range n.Requires {
			producer, ok := producers[req]
			if !ok || producer == n.ID || seen[producer] {
				continue
			}
			seen[producer] = true
			deps[n.ID] = append(deps[n.ID], producer)
		}
	}
	return deps, nil
}

// Indegree counts incoming dependency edges per node.
func Indegree(deps map[string][]string) map[string]int {
	indegree := make(map[string]int, len(deps))
	for id := range deps {
		indegree[id] = len(deps[id])
	}
	return indegree
}

// Batches splits the graph into topological batches. Consecutive ready
// parallelizable nodes share a batch; a non-parallelizable node always
// runs in a batch of one.
func (g *Graph) Batches() ([][]*Node, error) {
	deps, err := g.DependencyMap()
	if err != nil {
		return nil, err
	}
	indegree := Indegree(deps)

	var ready []*Node
	for _, n := range g.nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n)
		}
	}

	var batches [][]*Node
	done := 0
	for len(ready) > 0 {
		batch := nextBatch(ready)
		ready = ready[len(batch):]
		batches = append(batches, batch)
		done += len(batch)
		for _, finished := range batch {
			for _, n := range g.nodes {
				if !contains(deps[n.ID], finished.ID) {
					continue
				}
				indegree[n.ID]--
				if indegree[n.ID] == 0 {
					ready = append(ready, n)
				}
			}
		}
	}
	if done != len(g.nodes) {
		return nil, &StructuralError{Check: "acyclic", Detail: "graph contains a dependency cycle"}
	}
	return batches, nil
}

// nextBatch takes the leading run of parallelizable nodes, or a single
// non-parallelizable node.
func nextBatch(ready []*Node) []*Node {
	var batch []*Node
	for _, n := range ready {
		if !n.Parallelizable {
			if len(batch) == 0 {
				return []*Node{n}
			}
			break
		}
		batch = append(batch, n)
	}
	return batch
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
