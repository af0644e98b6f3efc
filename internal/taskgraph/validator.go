package taskgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/openclaw/sentinel/internal/tools"
)

// StructuralError marks a graph defect found before execution. Structural
// errors are fatal; execution never starts on a graph that carries one.
type StructuralError struct {
	Check  string
	Detail string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error (%s): %s", e.Check, e.Detail)
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// ToolResolver answers tool existence and schema lookups. The tool catalog
// satisfies this.
type ToolResolver interface {
	Has(name string) bool
	GetSchema(name string) (tools.Schema, bool)
}

// Validator runs the structural checks a graph must pass before it can be
// simulated or executed. Checks run in a fixed order and stop at the
// first failure.
type Validator struct {
	tools ToolResolver
}

// NewValidator creates a validator backed by the given tool resolver.
func NewValidator(tools ToolResolver) *Validator {
	return &Validator{tools: tools}
}

// Validate checks, in order: the graph is non-empty, node IDs are unique,
// each artifact has exactly one producer, every requirement is produced by
// some node or named in availableInputs, the dependency relation is
// acyclic, every referenced tool exists with schema metadata, and node
// args carry every field the tool's schema marks required. availableInputs
// names artifacts the caller supplies from outside the graph.
func (v *Validator) Validate(g *Graph, availableInputs ...string) error {
	if g == nil || g.Len() == 0 {
		return &StructuralError{Check: "non_empty", Detail: "graph has no nodes"}
	}
	// Uniqueness of IDs is enforced at Add time; re-check defensively for
	// graphs assembled outside this package.
	seen := make(map[string]bool, g.Len())
	for _, n := range g.Nodes() {
		if seen[n.ID] {
			return &StructuralError{Check: "node_id", Detail: fmt.Sprintf("duplicate node ID %q", n.ID)}
		}
		seen[n.ID] = true
	}
	if _, err := g.ProducerMap(); err != nil {
		return err
	}
	if err := checkRequirements(g, availableInputs); err != nil {
		return err
	}
	if err := v.checkAcyclic(g); err != nil {
		return err
	}
	if err := v.checkTools(g); err != nil {
		return err
	}
	return v.checkRequiredArgs(g)
}

// checkRequirements resolves every requirement against the union of all
// produced artifacts and the caller-supplied inputs.
func checkRequirements(g *Graph, availableInputs []string) error {
	resolved := make(map[string]bool, len(availableInputs))
	for _, input := range availableInputs {
		resolved[input] = true
	}
	for _, n := range g.Nodes() {
		for _, artifact := range n.Produces {
			resolved[artifact] = true
		}
	}
	for _, n := range g.Nodes() {
		for _, req := range n.Requires {
			if !resolved[req] {
				return &StructuralError{
					Check:  "dangling_requirement",
					Detail: fmt.Sprintf("node %q requires %q which nothing produces", n.ID, req),
				}
			}
		}
	}
	return nil
}

// checkTools requires every referenced tool to be cataloged with schema
// metadata.
func (v *Validator) checkTools(g *Graph) error {
	for _, n := range g.Nodes() {
		if n.Tool == "" {
			continue
		}
		if v.tools == nil || !v.tools.Has(n.Tool) {
			return &StructuralError{
				Check:  "tool_exists",
				Detail: fmt.Sprintf("node %q references unknown tool %q", n.ID, n.Tool),
			}
		}
		if _, ok := v.tools.GetSchema(n.Tool); !ok {
			return &StructuralError{
				Check:  "tool_metadata",
				Detail: fmt.Sprintf("tool %q is missing schema metadata", n.Tool),
			}
		}
	}
	return nil
}

// checkRequiredArgs rejects any node whose args lack a field the tool's
// input schema marks required. Args are not assumed to be filled in from
// artifacts at runtime.
func (v *Validator) checkRequiredArgs(g *Graph) error {
	for _, n := range g.Nodes() {
		if n.Tool == "" {
			continue
		}
		schema, ok := v.tools.GetSchema(n.Tool)
		if !ok {
			continue
		}
		fields := make([]string, 0, len(schema.InputSchema))
		for field := range schema.InputSchema {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			spec, ok := schema.InputSchema[field].(map[string]interface{})
			if !ok {
				continue
			}
			if required, _ := spec["required"].(bool); !required {
				continue
			}
			if _, present := n.Args[field]; !present {
				return &StructuralError{
					Check:  "required_arg",
					Detail: fmt.Sprintf("node %q missing required argument %q for tool %q", n.ID, field, n.Tool),
				}
			}
		}
	}
	return nil
}

// checkAcyclic runs a depth-first search with a recursion stack and
// reports the first node found on a cycle.
func (v *Validator) checkAcyclic(g *Graph) error {
	deps, err := g.DependencyMap()
	if err != nil {
		return err
	}
	visited := make(map[string]bool, g.Len())
	stack := make(map[string]bool, g.Len())

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		stack[id] = true
		for _, dep := range deps[id] {
			if stack[dep] {
				return &StructuralError{
					Check:  "acyclic",
					Detail: fmt.Sprintf("dependency cycle through node %q", dep),
				}
			}
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack[id] = false
		return nil
	}

	for _, n := range g.Nodes() {
		if visited[n.ID] {
			continue
		}
		if err := visit(n.ID); err != nil {
			return err
		}
	}
	return nil
}
