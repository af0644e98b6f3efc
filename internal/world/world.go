// Package world maintains a symbolic model of the operating environment:
// work domains, the resources goals tend to need, and the dependency
// relations between those resources.
package world

import (
	"sort"
	"strings"
	"sync"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
)

// Domain describes one area of work the system understands.
type Domain struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	TypicalGoals []string `json:"typical_goals"`
}

// Resource describes an environment resource goals may require.
type Resource struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Dependencies holds requires/produces edges between resources.
type Dependencies struct {
	Requires map[string][]string `json:"requires"`
	Produces map[string][]string `json:"produces"`
}

// Model is the world model. State survives restarts through the memory
// store under a single "state" fact in its namespace.
type Model struct {
	mu        sync.Mutex
	store     memory.Store
	namespace string
	log       *logging.Logger

	domains   map[string]Domain
	resources map[string]Resource
	deps      Dependencies
}

type persistedState struct {
	Domains      map[string]Domain   `json:"domains"`
	Resources    map[string]Resource `json:"resources"`
	Dependencies Dependencies        `json:"dependencies"`
}

// NewModel loads cached world state from the store, seeding defaults when
// none exists.
func NewModel(store memory.Store, log *logging.Logger) *Model {
	m := &Model{
		store:     store,
		namespace: "world_model",
		log:       log.WithComponent("world"),
		domains:   make(map[string]Domain),
		resources: make(map[string]Resource),
		deps:      Dependencies{Requires: map[string][]string{}, Produces: map[string][]string{}},
	}
	m.loadCachedState()
	if len(m.domains) == 0 {
		m.seedDefaults()
		m.persist()
	}
	return m
}

// RegisterDomain adds or replaces a domain profile.
func (m *Model) RegisterDomain(name string, capabilities, typicalGoals []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = Domain{Name: name, Capabilities: capabilities, TypicalGoals: typicalGoals}
	m.persist()
}

// DomainFor returns the name of the best-matching domain for a goal,
// falling back to automation when nothing scores.
func (m *Model) DomainFor(goal string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchDomain(goal).Name
}

// Capabilities lists what a domain can do. Unknown domains yield nil.
func (m *Model) Capabilities(domain string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.domains[domain]
	if !ok {
		return nil
	}
	return append([]string(nil), profile.Capabilities...)
}

// Domains lists registered domain names, sorted.
func (m *Model) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.domains))
	for name := range m.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredResources predicts the resource names a goal will need, in the
// domain's preferred order.
func (m *Model) RequiredResources(goal string) []string {
	resources := m.PredictResources(goal)
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		names = append(names, r.Name)
	}
	return names
}

// PredictResources resolves a goal to the resource descriptors its domain
// typically needs.
func (m *Model) PredictResources(goal string) []Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	domain := m.matchDomain(goal)
	var out []Resource
	for _, name := range resourcesForDomain(domain.Name) {
		if descriptor, ok := m.resources[name]; ok {
			out = append(out, descriptor)
		}
	}
	m.persist()
	return out
}

// PredictDependencies infers requires/produces edges between the resources
// a goal needs and folds them into the persistent dependency graph.
func (m *Model) PredictDependencies(goal string) Dependencies {
	resources := m.PredictResources(goal)

	m.mu.Lock()
	defer m.mu.Unlock()

	byType := make(map[string]string, len(resources))
	for _, r := range resources {
		byType[r.Type] = r.Name
	}

	if pipeline, ok := byType["pipeline"]; ok {
		if source, ok := byType["data_source"]; ok {
			addEdge(m.deps.Requires, pipeline, source)
		}
	}
	if code, ok := byType["code_artifact"]; ok {
		if file, ok := byType["file_resource"]; ok {
			addEdge(m.deps.Requires, code, file)
		}
	}
	if service, ok := byType["service"]; ok {
		if code, ok := byType["code_artifact"]; ok {
			addEdge(m.deps.Requires, service, code)
			addEdge(m.deps.Produces, code, service)
		}
	}
	if browser, ok := byType["browser_context"]; ok {
		if source, ok := byType["data_source"]; ok {
			addEdge(m.deps.Requires, browser, source)
		}
	}

	m.persist()
	return Dependencies{
		Requires: copyEdges(m.deps.Requires),
		Produces: copyEdges(m.deps.Produces),
	}
}

// matchDomain scores every domain against the goal. Callers hold the lock.
func (m *Model) matchDomain(goal string) Domain {
	normalized := strings.ToLower(goal)
	var best Domain
	bestScore := -1
	names := make([]string, 0, len(m.domains))
	for name := range m.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		domain := m.domains[name]
		if score := scoreDomain(domain, normalized); score > bestScore {
			best = domain
			bestScore = score
		}
	}
	if bestScore < 0 {
		if fallback, ok := m.domains["automation"]; ok {
			return fallback
		}
	}
	return best
}

// keyword overrides bias goals toward their obvious domain even when the
// seeded phrases miss.
var keywordOverrides = map[string]string{
	"microservice": "multi-service",
	"service":      "multi-service",
	"pipeline":     "pipelines",
	"deploy":       "devops",
	"scrape":       "web tasks",
	"scraper":      "web tasks",
	"optimize":     "optimization",
	"automation":   "automation",
	"browser":      "web tasks",
}

func scoreDomain(domain Domain, normalized string) int {
	score := 0
	for _, phrase := range domain.TypicalGoals {
		if strings.Contains(normalized, phrase) {
			score += 3
		}
	}
	for _, capability := range domain.Capabilities {
		if strings.Contains(normalized, capability) {
			score += 2
		}
	}
	for keyword, target := range keywordOverrides {
		if domain.Name == target && strings.Contains(normalized, keyword) {
			score += 4
			break
		}
	}
	if domain.Name == "optimization" && strings.Contains(normalized, "optimize") {
		score += 3
	}
	return score
}

func resourcesForDomain(name string) []string {
	switch name {
	case "coding":
		return []string{"file_resource", "code_artifact"}
	case "multi-service":
		return []string{"code_artifact", "service", "data_source"}
	case "pipelines":
		return []string{"data_source", "pipeline", "file_resource"}
	case "devops":
		return []string{"service", "pipeline", "code_artifact"}
	case "web tasks":
		return []string{"browser_context", "data_source", "code_artifact"}
	case "research":
		return []string{"data_source", "browser_context", "file_resource"}
	case "optimization":
		return []string{"code_artifact", "service", "pipeline", "file_resource"}
	case "automation":
		return []string{"service", "pipeline", "code_artifact", "data_source"}
	default:
		return []string{"file_resource", "data_source"}
	}
}

func addEdge(edges map[string][]string, from, to string) {
	for _, existing := range edges[from] {
		if existing == to {
			return
		}
	}
	edges[from] = append(edges[from], to)
	sort.Strings(edges[from])
}

func copyEdges(edges map[string][]string) map[string][]string {
	out := make(map[string][]string, len(edges))
	for from, targets := range edges {
		out[from] = append([]string(nil), targets...)
	}
	return out
}

func (m *Model) loadCachedState() {
	facts, err := m.store.Query(m.namespace, "state")
	if err != nil || len(facts) == 0 {
		return
	}
	state, ok := decodeState(facts[0].Value)
	if !ok {
		return
	}
	if len(state.Domains) > 0 {
		m.domains = state.Domains
	}
	if len(state.Resources) > 0 {
		m.resources = state.Resources
	}
	if state.Dependencies.Requires != nil {
		m.deps.Requires = state.Dependencies.Requires
	}
	if state.Dependencies.Produces != nil {
		m.deps.Produces = state.Dependencies.Produces
	}
}

// decodeState accepts both the typed payload written by persist and the
// generic map shape it takes after a JSON round trip through a file store.
func decodeState(value interface{}) (persistedState, bool) {
	switch v := value.(type) {
	case persistedState:
		return v, true
	case *persistedState:
		return *v, true
	case map[string]interface{}:
		state := persistedState{
			Domains:   map[string]Domain{},
			Resources: map[string]Resource{},
			Dependencies: Dependencies{
				Requires: map[string][]string{},
				Produces: map[string][]string{},
			},
		}
		if domains, ok := v["domains"].(map[string]interface{}); ok {
			for name, raw := range domains {
				if data, ok := raw.(map[string]interface{}); ok {
					state.Domains[name] = Domain{
						Name:         name,
						Capabilities: stringSlice(data["capabilities"]),
						TypicalGoals: stringSlice(data["typical_goals"]),
					}
				}
			}
		}
		if resources, ok := v["resources"].(map[string]interface{}); ok {
			for name, raw := range resources {
				if data, ok := raw.(map[string]interface{}); ok {
					resource := Resource{Name: name}
					if t, ok := data["type"].(string); ok {
						resource.Type = t
					}
					state.Resources[name] = resource
				}
			}
		}
		if deps, ok := v["dependencies"].(map[string]interface{}); ok {
			if requires, ok := deps["requires"].(map[string]interface{}); ok {
				for from, targets := range requires {
					state.Dependencies.Requires[from] = stringSlice(targets)
				}
			}
			if produces, ok := deps["produces"].(map[string]interface{}); ok {
				for from, targets := range produces {
					state.Dependencies.Produces[from] = stringSlice(targets)
				}
			}
		}
		return state, true
	}
	return persistedState{}, false
}

func stringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// persist writes the full state under one fact. Callers hold the lock.
func (m *Model) persist() {
	state := persistedState{
		Domains:      m.domains,
		Resources:    m.resources,
		Dependencies: m.deps,
	}
	if _, err := m.store.StoreFact(m.namespace, "state", state, map[string]interface{}{"source": "world_model"}); err != nil {
		m.log.Warn("failed to persist world state", map[string]interface{}{"error": err.Error()})
	}
}

func (m *Model) seedDefaults() {
	defaults := []Domain{
		{"coding", []string{"analysis", "debugging", "implementation", "testing"},
			[]string{"fix bug", "refactor", "build tool", "optimize scraper"}},
		{"multi-service", []string{"microservices", "api design", "service composition", "orchestration"},
			[]string{"build microservice", "compose services", "design api"}},
		{"pipelines", []string{"data ingestion", "transforms", "scheduling", "quality checks"},
			[]string{"design a data pipeline", "batch processing", "stream processing"}},
		{"devops", []string{"deployment", "monitoring", "infrastructure", "ci/cd"},
			[]string{"deploy service", "configure ci", "observability"}},
		{"web tasks", []string{"scraping", "extraction", "navigation", "session management"},
			[]string{"pull prices", "scrape website", "simulate browser", "collect links"}},
		{"research", []string{"literature review", "evidence collection", "summarization", "citation"},
			[]string{"investigate topic", "compare approaches", "gather references"}},
		{"optimization", []string{"profiling", "performance tuning", "efficiency", "coding"},
			[]string{"optimize the scraper", "reduce latency", "improve throughput"}},
		{"automation", []string{"workflow orchestration", "scheduling", "eventing", "integration"},
			[]string{"automate task", "connect systems", "schedule workflow"}},
	}
	for _, domain := range defaults {
		m.domains[domain.Name] = domain
	}
	for _, resource := range []Resource{
		{"file_resource", "file_resource", map[string]string{"description": "Local or remote files"}},
		{"code_artifact", "code_artifact", map[string]string{"description": "Source code or binaries"}},
		{"service", "service", map[string]string{"description": "APIs or microservices"}},
		{"pipeline", "pipeline", map[string]string{"description": "Data processing pipeline"}},
		{"browser_context", "browser_context", map[string]string{"description": "Automated browser session"}},
		{"data_source", "data_source", map[string]string{"description": "Databases, APIs, or web sources"}},
	} {
		m.resources[resource.Name] = resource
	}
	m.deps = Dependencies{Requires: map[string][]string{}, Produces: map[string][]string{}}
}
