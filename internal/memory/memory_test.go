package memory

import (
	"path/filepath"
	"testing"
)

func TestInMemoryStore_FactLifecycle(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	if _, err := store.StoreFact("plans", "plan-1", map[string]interface{}{"nodes": 3}, nil); err != nil {
		t.Fatalf("store fact: %v", err)
	}
	if _, err := store.StoreFact("plans", "plan-2", map[string]interface{}{"nodes": 5}, nil); err != nil {
		t.Fatalf("store fact: %v", err)
	}

	all, err := store.Query("plans", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(all))
	}
	// Newest first
	if all[0].Key != "plan-2" {
		t.Errorf("expected plan-2 first, got %s", all[0].Key)
	}

	keyed, err := store.Query("plans", "plan-1")
	if err != nil {
		t.Fatalf("query keyed: %v", err)
	}
	if len(keyed) != 1 || keyed[0].Key != "plan-1" {
		t.Errorf("expected single plan-1 fact, got %v", keyed)
	}
}

func TestInMemoryStore_RecallRecentLimit(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	for i := 0; i < 10; i++ {
		store.StoreFact("execution", "", map[string]interface{}{"n": i}, nil)
	}
	recent, err := store.RecallRecent("execution", 6)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recent) != 6 {
		t.Errorf("expected 6 facts, got %d", len(recent))
	}
}

func TestInMemoryStore_SearchRanksByTermCoverage(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	store.StoreText("generate code for the parser module", "plans", nil)
	store.StoreText("scrape website prices", "plans", nil)

	results, err := store.Search("generate parser code", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one hit")
	}
	if results[0].Text != "generate code for the parser module" {
		t.Errorf("expected parser text first, got %q", results[0].Text)
	}
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.db")

	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.StoreFact("simulations", "task_0", map[string]interface{}{"success": true}, nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	facts, err := reopened.Query("simulations", "task_0")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact after reopen, got %d", len(facts))
	}
	value, ok := facts[0].Value.(map[string]interface{})
	if !ok || value["success"] != true {
		t.Errorf("unexpected value: %v", facts[0].Value)
	}
}

func TestBoltStore_RecallRecentOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.db")
	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	store.StoreFact("execution", "a", "first", nil)
	store.StoreFact("execution", "b", "second", nil)
	store.StoreFact("execution", "c", "third", nil)

	recent, err := store.RecallRecent("execution", 2)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(recent))
	}
	if recent[0].Key != "c" || recent[1].Key != "b" {
		t.Errorf("expected newest-first [c b], got [%s %s]", recent[0].Key, recent[1].Key)
	}
}

func TestBleveStore_FullTextRecall(t *testing.T) {
	dir := t.TempDir()
	inner := NewInMemoryStore()
	store, err := NewBleveStore(inner, filepath.Join(dir, "recall.bleve"))
	if err != nil {
		t.Fatalf("open bleve: %v", err)
	}
	defer store.Close()

	if err := store.StoreText("microservice built with three endpoints", "execution", nil); err != nil {
		t.Fatalf("store text: %v", err)
	}
	if err := store.StoreText("scraped product prices from the catalog", "execution", nil); err != nil {
		t.Fatalf("store text: %v", err)
	}

	results, err := store.Search("build a microservice", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected hits for microservice query")
	}
	if results[0].Text != "microservice built with three endpoints" {
		t.Errorf("expected microservice doc first, got %q", results[0].Text)
	}
}
