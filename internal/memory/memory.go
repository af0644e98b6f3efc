// Package memory provides namespaced fact storage and full-text recall
// for plans, simulations, execution results, and reflections.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fact is a structured record inside a namespace. Key is optional; facts
// without a key are only reachable by namespace scans and recency.
type Fact struct {
	ID        string                 `json:"id"`
	Namespace string                 `json:"namespace"`
	Key       string                 `json:"key,omitempty"`
	Seq       uint64                 `json:"seq"`
	Value     interface{}            `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// TextResult is a full-text search hit.
type TextResult struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Namespace string                 `json:"namespace"`
	Score     float64                `json:"score"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Store is the persistence contract the planner, controller, sandbox, and
// reflection engine share.
type Store interface {
	// StoreFact records a structured fact. Key may be empty.
	StoreFact(namespace, key string, value interface{}, metadata map[string]interface{}) (*Fact, error)

	// Query returns facts in a namespace. An empty key returns all of
	// them; a non-empty key returns matching facts newest first.
	Query(namespace, key string) ([]Fact, error)

	// RecallRecent returns up to limit facts from a namespace, newest
	// first.
	RecallRecent(namespace string, limit int) ([]Fact, error)

	// StoreText records free text for full-text recall.
	StoreText(text, namespace string, metadata map[string]interface{}) error

	// Search runs a full-text query across stored text.
	Search(query string, limit int) ([]TextResult, error)

	Close() error
}

// InMemoryStore keeps everything in process memory. Used for tests and
// ephemeral runs; all data is lost when the process exits.
type InMemoryStore struct {
	mu    sync.RWMutex
	seq   uint64
	facts map[string][]Fact
	texts []TextResult
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{facts: make(map[string][]Fact)}
}

// StoreFact records a fact in the namespace.
func (s *InMemoryStore) StoreFact(namespace, key string, value interface{}, metadata map[string]interface{}) (*Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	fact := Fact{
		ID:        uuid.New().String(),
		Namespace: namespace,
		Key:       key,
		Seq:       s.seq,
		Value:     value,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	s.facts[namespace] = append(s.facts[namespace], fact)
	return &fact, nil
}

// Query returns facts in a namespace, newest first.
func (s *InMemoryStore) Query(namespace, key string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Fact
	stored := s.facts[namespace]
	for i := len(stored) - 1; i >= 0; i-- {
		if key != "" && stored[i].Key != key {
			continue
		}
		results = append(results, stored[i])
	}
	return results, nil
}

// RecallRecent returns up to limit facts, newest first.
func (s *InMemoryStore) RecallRecent(namespace string, limit int) ([]Fact, error) {
	results, err := s.Query(namespace, "")
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// StoreText records free text for substring search.
func (s *InMemoryStore) StoreText(text, namespace string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.texts = append(s.texts, TextResult{
		ID:        uuid.New().String(),
		Text:      text,
		Namespace: namespace,
		Metadata:  metadata,
	})
	return nil
}

// Search performs case-insensitive substring matching over stored text,
// scoring by the fraction of query terms present.
func (s *InMemoryStore) Search(query string, limit int) ([]TextResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := extractKeywords(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var results []TextResult
	for _, entry := range s.texts {
		lower := strings.ToLower(entry.Text)
		matched := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hit := entry
		hit.Score = float64(matched) / float64(len(terms))
		results = append(results, hit)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// stopWords are excluded from keyword extraction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "that": true, "this": true, "it": true, "as": true,
}

// extractKeywords tokenizes text into lowercase search terms, dropping
// stop words and single characters.
func extractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	var keywords []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
	}
	return keywords
}
