package world

import (
	"io"
	"testing"

	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestModel(t *testing.T) (*Model, *memory.InMemoryStore) {
	t.Helper()
	store := memory.NewInMemoryStore()
	return NewModel(store, quietLogger()), store
}

func TestSeedsDefaultDomains(t *testing.T) {
	m, _ := newTestModel(t)

	domains := m.Domains()
	if len(domains) != 8 {
		t.Fatalf("domains = %d, want 8", len(domains))
	}
	caps := m.Capabilities("coding")
	if len(caps) == 0 || caps[0] != "analysis" {
		t.Errorf("coding capabilities = %v, want analysis first", caps)
	}
}

func TestDomainMatching(t *testing.T) {
	m, _ := newTestModel(t)

	cases := []struct {
		goal string
		want string
	}{
		{"fix bug in the login handler", "coding"},
		{"build microservice for billing", "multi-service"},
		{"design a data pipeline for events", "pipelines"},
		{"deploy service to staging", "devops"},
		{"scrape website for product prices", "web tasks"},
		{"investigate topic of caching strategies", "research"},
		{"optimize the scraper hot path", "optimization"},
		{"automate task handoff between systems", "automation"},
	}
	for _, tc := range cases {
		if got := m.DomainFor(tc.goal); got != tc.want {
			t.Errorf("DomainFor(%q) = %q, want %q", tc.goal, got, tc.want)
		}
	}
}

func TestKeywordOverridesBeatPhraseMatches(t *testing.T) {
	m, _ := newTestModel(t)

	if got := m.DomainFor("stand up a new service"); got != "multi-service" {
		t.Errorf("DomainFor(service goal) = %q, want multi-service", got)
	}
	if got := m.DomainFor("drive the browser through checkout"); got != "web tasks" {
		t.Errorf("DomainFor(browser goal) = %q, want web tasks", got)
	}
}

func TestPredictResourcesFollowsDomainOrder(t *testing.T) {
	m, _ := newTestModel(t)

	resources := m.PredictResources("scrape website for listings")
	if len(resources) != 3 {
		t.Fatalf("resources = %d, want 3", len(resources))
	}
	want := []string{"browser_context", "data_source", "code_artifact"}
	for i, name := range want {
		if resources[i].Name != name {
			t.Errorf("resources[%d] = %q, want %q", i, resources[i].Name, name)
		}
	}
}

func TestPredictDependenciesInfersEdges(t *testing.T) {
	m, _ := newTestModel(t)

	deps := m.PredictDependencies("build microservice for billing")
	requires, ok := deps.Requires["service"]
	if !ok || len(requires) == 0 || requires[0] != "code_artifact" {
		t.Errorf("requires[service] = %v, want [code_artifact]", requires)
	}
	produces, ok := deps.Produces["code_artifact"]
	if !ok || len(produces) == 0 || produces[0] != "service" {
		t.Errorf("produces[code_artifact] = %v, want [service]", produces)
	}

	// Browser goals add an edge without disturbing the earlier ones.
	deps = m.PredictDependencies("scrape website for listings")
	if got := deps.Requires["browser_context"]; len(got) == 0 || got[0] != "data_source" {
		t.Errorf("requires[browser_context] = %v, want [data_source]", got)
	}
	if got := deps.Requires["service"]; len(got) == 0 || got[0] != "code_artifact" {
		t.Errorf("requires[service] lost after second prediction: %v", got)
	}
}

func TestRegisterDomainWins(t *testing.T) {
	m, _ := newTestModel(t)

	m.RegisterDomain("embedded", []string{"firmware", "drivers"}, []string{"flash firmware"})
	if got := m.DomainFor("flash firmware to the sensor board"); got != "embedded" {
		t.Errorf("DomainFor(firmware goal) = %q, want embedded", got)
	}
	if caps := m.Capabilities("embedded"); len(caps) != 2 {
		t.Errorf("embedded capabilities = %v, want 2 entries", caps)
	}
}

func TestStateRoundTripsThroughStore(t *testing.T) {
	store := memory.NewInMemoryStore()
	first := NewModel(store, quietLogger())
	first.RegisterDomain("embedded", []string{"firmware"}, []string{"flash firmware"})

	second := NewModel(store, quietLogger())
	if got := second.DomainFor("flash firmware to the sensor board"); got != "embedded" {
		t.Errorf("reloaded model lost registered domain, DomainFor = %q", got)
	}
	if len(second.Domains()) != 9 {
		t.Errorf("reloaded domains = %d, want 9", len(second.Domains()))
	}
}
