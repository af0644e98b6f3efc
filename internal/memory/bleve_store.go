package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
)

// BleveStore wraps another Store and indexes stored text in a Bleve
// full-text index, giving the planner BM25-ranked recall instead of
// substring matching. Facts pass straight through to the inner store.
type BleveStore struct {
	mu    sync.RWMutex
	inner Store
	index bleve.Index
}

// textDocument is the indexed form of stored text.
type textDocument struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBleveStore opens (or creates) the index at indexPath over the inner
// store.
func NewBleveStore(inner Store, indexPath string) (*BleveStore, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	var index bleve.Index
	var err error
	if _, statErr := os.Stat(indexPath); os.IsNotExist(statErr) {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve index: %w", err)
		}
	} else {
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bleve index: %w", err)
		}
	}
	return &BleveStore{inner: inner, index: index}, nil
}

// buildIndexMapping creates the Bleve index mapping for text documents.
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("namespace", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("created_at", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// StoreFact delegates to the inner store.
func (s *BleveStore) StoreFact(namespace, key string, value interface{}, metadata map[string]interface{}) (*Fact, error) {
	return s.inner.StoreFact(namespace, key, value, metadata)
}

// Query delegates to the inner store.
func (s *BleveStore) Query(namespace, key string) ([]Fact, error) {
	return s.inner.Query(namespace, key)
}

// RecallRecent delegates to the inner store.
func (s *BleveStore) RecallRecent(namespace string, limit int) ([]Fact, error) {
	return s.inner.RecallRecent(namespace, limit)
}

// StoreText persists the text in the inner store and indexes it.
func (s *BleveStore) StoreText(text, namespace string, metadata map[string]interface{}) error {
	if err := s.inner.StoreText(text, namespace, metadata); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := textDocument{
		ID:        uuid.New().String(),
		Text:      text,
		Namespace: namespace,
		CreatedAt: time.Now(),
	}
	if err := s.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index text: %w", err)
	}
	return nil
}

// Search runs a ranked full-text query over the index.
func (s *BleveStore) Search(queryText string, limit int) ([]TextResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	searchReq := bleve.NewSearchRequest(buildTermQuery(queryText))
	searchReq.Size = limit
	searchReq.Fields = []string{"text", "namespace"}

	searchResult, err := s.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var results []TextResult
	for _, hit := range searchResult.Hits {
		// Normalize BM25 scores above 1 into (0,1)
		score := hit.Score
		if score > 1 {
			score = 1 - (1 / (1 + score))
		}
		text, _ := hit.Fields["text"].(string)
		namespace, _ := hit.Fields["namespace"].(string)
		results = append(results, TextResult{
			ID:        hit.ID,
			Text:      text,
			Namespace: namespace,
			Score:     score,
		})
	}
	return results, nil
}

// buildTermQuery creates a disjunction over the query's keywords, falling
// back to a plain match query when no keywords survive filtering.
func buildTermQuery(queryText string) query.Query {
	terms := extractKeywords(queryText)
	if len(terms) == 0 {
		return bleve.NewMatchQuery(queryText)
	}
	var queries []query.Query
	for _, term := range terms {
		queries = append(queries, bleve.NewMatchQuery(term))
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Close closes the index, then the inner store.
func (s *BleveStore) Close() error {
	if err := s.index.Close(); err != nil {
		s.inner.Close()
		return err
	}
	return s.inner.Close()
}
