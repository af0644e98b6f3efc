package memory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const textBucket = "__text"

// BoltStore persists facts in a bbolt database, one bucket per namespace.
// Bucket keys are the per-namespace sequence numbers, so a cursor scan
// returns facts in write order.
type BoltStore struct {
	mu sync.RWMutex
	db *bolt.DB
}

// NewBoltStore opens (or creates) the fact database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open fact database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// StoreFact records a fact in the namespace bucket.
func (s *BoltStore) StoreFact(namespace, key string, value interface{}, metadata map[string]interface{}) (*Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fact := Fact{
		ID:        uuid.New().String(),
		Namespace: namespace,
		Key:       key,
		Value:     value,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		fact.Seq = seq
		data, err := json.Marshal(fact)
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(seq), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store fact in %s: %w", namespace, err)
	}
	return &fact, nil
}

// Query returns facts in a namespace, newest first, optionally filtered
// by key.
func (s *BoltStore) Query(namespace, key string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Fact
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			var fact Fact
			if err := json.Unmarshal(v, &fact); err != nil {
				return fmt.Errorf("corrupt fact in %s: %w", namespace, err)
			}
			if key != "" && fact.Key != key {
				continue
			}
			results = append(results, fact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RecallRecent returns up to limit facts from the namespace, newest first.
func (s *BoltStore) RecallRecent(namespace string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Fact
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if limit > 0 && len(results) >= limit {
				break
			}
			var fact Fact
			if err := json.Unmarshal(v, &fact); err != nil {
				return fmt.Errorf("corrupt fact in %s: %w", namespace, err)
			}
			results = append(results, fact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// textEntry is the stored form of free text in the text bucket.
type textEntry struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Namespace string                 `json:"namespace"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// StoreText records free text in the shared text bucket.
func (s *BoltStore) StoreText(text, namespace string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := textEntry{
		ID:        uuid.New().String(),
		Text:      text,
		Namespace: namespace,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(textBucket))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(seq), data)
	})
}

// Search performs term matching over the text bucket. Runs that need
// ranked full-text recall wrap this store in a BleveStore.
func (s *BoltStore) Search(query string, limit int) ([]TextResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := extractKeywords(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var results []TextResult
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(textBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var entry textEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			lower := strings.ToLower(entry.Text)
			matched := 0
			for _, term := range terms {
				if strings.Contains(lower, term) {
					matched++
				}
			}
			if matched == 0 {
				return nil
			}
			results = append(results, TextResult{
				ID:        entry.ID,
				Text:      entry.Text,
				Namespace: entry.Namespace,
				Score:     float64(matched) / float64(len(terms)),
				Metadata:  entry.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
