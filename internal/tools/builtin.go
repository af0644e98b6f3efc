package tools

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// RegisterBuiltins installs the standard tool set. root scopes the file
// tools; an empty root uses the current directory.
func RegisterBuiltins(c *Catalog, root string) error {
	if root == "" {
		root = "."
	}
	builtins := []Tool{
		&echoTool{},
		&codeAnalyzerTool{},
		&microserviceBuilderTool{},
		&webSearchTool{},
		&internetExtractTool{client: &http.Client{Timeout: 15 * time.Second}},
		&readFileTool{root: root},
		&writeFileTool{root: root},
		&listDirTool{root: root},
	}
	for _, t := range builtins {
		if err := c.Register(t); err != nil {
			return fmt.Errorf("failed to register %s: %w", t.Name(), err)
		}
	}
	return nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// echoTool returns its message argument unchanged.
type echoTool struct{}

func (t *echoTool) Name() string { return "echo" }

func (t *echoTool) Schema() Schema {
	return Schema{
		Name:        "echo",
		Version:     "1.0.0",
		Description: "Echo the message argument back as output",
		InputSchema: map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		},
		OutputSchema:  map[string]interface{}{"echoed_message": map[string]interface{}{"type": "string"}},
		Permissions:   []string{"read"},
		Deterministic: true,
	}
}

func (t *echoTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"echoed_message": stringArg(args, "message")}, nil
}

// codeAnalyzerTool runs lightweight static checks over a code snippet.
type codeAnalyzerTool struct{}

func (t *codeAnalyzerTool) Name() string { return "code_analyzer" }

func (t *codeAnalyzerTool) Schema() Schema {
	return Schema{
		Name:        "code_analyzer",
		Version:     "1.2.0",
		Description: "Analyze code for risky constructs and report an assessment",
		InputSchema: map[string]interface{}{
			"code": map[string]interface{}{"type": "string", "required": true},
		},
		OutputSchema:  map[string]interface{}{"code_assessment": map[string]interface{}{"type": "object"}},
		Permissions:   []string{"analyze"},
		Deterministic: true,
	}
}

var riskyConstructs = []string{"os.system", "subprocess", "eval(", "exec(", "rm -rf"}

func (t *codeAnalyzerTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	code := stringArg(args, "code")
	var findings []string
	for _, construct := range riskyConstructs {
		if strings.Contains(code, construct) {
			findings = append(findings, fmt.Sprintf("found risky construct %q", construct))
		}
	}
	assessment := map[string]interface{}{
		"lines":    len(strings.Split(code, "\n")),
		"findings": findings,
		"safe":     len(findings) == 0,
	}
	return map[string]interface{}{"code_assessment": assessment}, nil
}

// microserviceBuilderTool emits a service specification from a
// description. It never starts anything; auto_start exists for parity
// with the planner's call shape and must stay false.
type microserviceBuilderTool struct{}

func (t *microserviceBuilderTool) Name() string { return "microservice_builder" }

func (t *microserviceBuilderTool) Schema() Schema {
	return Schema{
		Name:        "microservice_builder",
		Version:     "1.0.0",
		Description: "Generate a microservice specification from a description",
		InputSchema: map[string]interface{}{
			"description": map[string]interface{}{"type": "string", "required": true},
			"auto_start":  map[string]interface{}{"type": "boolean"},
		},
		OutputSchema:  map[string]interface{}{"service_spec": map[string]interface{}{"type": "object"}},
		Permissions:   []string{"generate"},
		Deterministic: true,
	}
}

func (t *microserviceBuilderTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	description := stringArg(args, "description")
	if autoStart, ok := args["auto_start"].(bool); ok && autoStart {
		return nil, fmt.Errorf("auto_start is not supported")
	}
	name := "service"
	for _, word := range strings.Fields(strings.ToLower(description)) {
		if len(word) > 3 && word != "build" && word != "with" {
			name = word
			break
		}
	}
	spec := map[string]interface{}{
		"name":        name,
		"description": description,
		"endpoints":   []string{"/health", "/" + name},
		"language":    "go",
	}
	return map[string]interface{}{"service_spec": spec}, nil
}

// webSearchTool answers queries from a small in-process index. Real
// search backends plug in by registering a replacement under the same
// name.
type webSearchTool struct{}

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) Schema() Schema {
	return Schema{
		Name:        "web_search",
		Version:     "1.1.0",
		Description: "Search for information sources matching a query",
		InputSchema: map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "required": true},
		},
		OutputSchema:  map[string]interface{}{"search_results": map[string]interface{}{"type": "array"}},
		Permissions:   []string{"search"},
		Deterministic: false,
	}
}

func (t *webSearchTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	terms := strings.Fields(strings.ToLower(query))
	sort.Strings(terms)
	var results []map[string]interface{}
	for i, term := range terms {
		if i >= 5 {
			break
		}
		results = append(results, map[string]interface{}{
			"title": fmt.Sprintf("Reference for %s", term),
			"url":   fmt.Sprintf("https://example.org/%s", term),
		})
	}
	return map[string]interface{}{"search_results": results}, nil
}

// internetExtractTool fetches a URL and extracts its title, links, and
// visible text.
type internetExtractTool struct {
	client *http.Client
}

func (t *internetExtractTool) Name() string { return "internet_extract" }

func (t *internetExtractTool) Schema() Schema {
	return Schema{
		Name:        "internet_extract",
		Version:     "1.0.0",
		Description: "Fetch a URL and extract title, links, and text content",
		InputSchema: map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "required": true},
		},
		OutputSchema:  map[string]interface{}{"extracted_content": map[string]interface{}{"type": "object"}},
		Permissions:   []string{"read", "search"},
		Deterministic: false,
	}
}

func (t *internetExtractTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := stringArg(args, "url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("url must be http or https, got %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	title, links, text := extractContent(doc)
	return map[string]interface{}{
		"extracted_content": map[string]interface{}{
			"url":   url,
			"title": title,
			"links": links,
			"text":  text,
		},
	}, nil
}

// extractContent walks the parse tree collecting the title, anchors, and
// visible text.
func extractContent(doc *html.Node) (string, []string, string) {
	var title string
	var links []string
	var text strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && n.Data == "title":
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
		case n.Type == html.ElementNode && n.Data == "a":
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.TextNode:
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				text.WriteString(trimmed)
				text.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title, links, strings.TrimSpace(text.String())
}

// readFileTool reads a file under its root.
type readFileTool struct {
	root string
}

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Schema() Schema {
	return Schema{
		Name:        "read_file",
		Version:     "1.0.0",
		Description: "Read a file relative to the workspace root",
		InputSchema: map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "required": true},
		},
		OutputSchema:  map[string]interface{}{"file_content": map[string]interface{}{"type": "string"}},
		Permissions:   []string{"read"},
		Deterministic: true,
	}
}

func (t *readFileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := resolveWithin(t.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return map[string]interface{}{"file_content": string(data)}, nil
}

// writeFileTool writes a file under its root. Its "write" permission is
// outside the default allow-list, so plans using it require an expanded
// policy.
type writeFileTool struct {
	root string
}

func (t *writeFileTool) Name() string { return "write_file" }

func (t *writeFileTool) Schema() Schema {
	return Schema{
		Name:        "write_file",
		Version:     "1.0.0",
		Description: "Write content to a file relative to the workspace root",
		InputSchema: map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "required": true},
			"content": map[string]interface{}{"type": "string", "required": true},
		},
		OutputSchema:  map[string]interface{}{"written_path": map[string]interface{}{"type": "string"}},
		Permissions:   []string{"write"},
		Deterministic: true,
	}
}

func (t *writeFileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := resolveWithin(t.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(stringArg(args, "content")), 0644); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	return map[string]interface{}{"written_path": path}, nil
}

// listDirTool lists directory entries under its root.
type listDirTool struct {
	root string
}

func (t *listDirTool) Name() string { return "list_dir" }

func (t *listDirTool) Schema() Schema {
	return Schema{
		Name:        "list_dir",
		Version:     "1.0.0",
		Description: "List directory entries relative to the workspace root",
		InputSchema: map[string]interface{}{
			"path": map[string]interface{}{"type": "string"},
		},
		OutputSchema:  map[string]interface{}{"entries": map[string]interface{}{"type": "array"}},
		Permissions:   []string{"read"},
		Deterministic: true,
	}
}

func (t *listDirTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := resolveWithin(t.root, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return map[string]interface{}{"entries": names}, nil
}

// resolveWithin joins rel onto root and rejects escapes.
func resolveWithin(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	joined := filepath.Join(root, rel)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", rel)
	}
	return absJoined, nil
}
