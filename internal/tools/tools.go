// Package tools provides the tool catalog: named capabilities with
// declarative schemas that plans bind to and the worker executes.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Tool is a single executable capability.
type Tool interface {
	Name() string
	Schema() Schema
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Schema declares a tool's contract. Permissions name what the tool is
// allowed to touch (read, analyze, search, generate, write, network).
// Deterministic tools may run in parallel batches; non-deterministic
// tools are serialized by policy.
type Schema struct {
	Name          string                 `json:"name"`
	Version       string                 `json:"version"`
	Description   string                 `json:"description"`
	InputSchema   map[string]interface{} `json:"input_schema"`
	OutputSchema  map[string]interface{} `json:"output_schema"`
	Permissions   []string               `json:"permissions"`
	Deterministic bool                   `json:"deterministic"`
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// validateSchema rejects schemas missing required declarations.
func validateSchema(s Schema) error {
	if s.Name == "" {
		return fmt.Errorf("tool schema must include a name")
	}
	if !semverPattern.MatchString(s.Version) {
		return fmt.Errorf("tool schema for %s must use a semver version, got %q", s.Name, s.Version)
	}
	if s.Description == "" {
		return fmt.Errorf("tool schema for %s missing description", s.Name)
	}
	if len(s.Permissions) == 0 {
		return fmt.Errorf("tool %s must declare permissions", s.Name)
	}
	return nil
}

// Catalog is a name-keyed tool registry. It is injected into the
// planner, validator, policy engine, and worker; there is no package
// level default.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]Tool)}
}

// Register adds a tool after validating its schema. The schema name must
// match the tool name; re-registering a name replaces the tool.
func (c *Catalog) Register(t Tool) error {
	schema := t.Schema()
	if err := validateSchema(schema); err != nil {
		return err
	}
	if schema.Name != t.Name() {
		return fmt.Errorf("tool schema name %s does not match tool name %s", schema.Name, t.Name())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[t.Name()] = t
	return nil
}

// Has reports whether a tool is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tools[name]
	return ok
}

// Get returns a registered tool.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// GetSchema returns the schema of a registered tool.
func (c *Catalog) GetSchema(name string) (Schema, bool) {
	t, ok := c.Get(name)
	if !ok {
		return Schema{}, false
	}
	return t.Schema(), true
}

// Call executes a registered tool by name.
func (c *Catalog) Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	t, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	return t.Execute(ctx, args)
}

// Names returns registered tool names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
