package controller

import (
	"context"

	"github.com/openclaw/sentinel/internal/taskgraph"
)

// Caller invokes cataloged tools by name.
type Caller interface {
	Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
}

// Worker executes a single node for real.
type Worker interface {
	ExecuteNode(ctx context.Context, node *taskgraph.Node, args map[string]interface{}) (interface{}, error)
}

// CatalogWorker executes nodes against a tool catalog. Nodes without a tool
// pass their resolved arguments through unchanged.
type CatalogWorker struct {
	catalog Caller
}

// NewCatalogWorker creates a worker over the given catalog.
func NewCatalogWorker(catalog Caller) *CatalogWorker {
	return &CatalogWorker{catalog: catalog}
}

// ExecuteNode runs the node's tool with the resolved arguments.
func (w *CatalogWorker) ExecuteNode(ctx context.Context, node *taskgraph.Node, args map[string]interface{}) (interface{}, error) {
	if node.Tool == "" {
		if len(args) > 0 {
			return args, nil
		}
		return node.Description, nil
	}
	return w.catalog.Call(ctx, node.Tool, args)
}
