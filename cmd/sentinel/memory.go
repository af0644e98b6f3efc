package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// Run searches the full-text index.
func (c *MemorySearchCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	hits, err := rt.store.Search(c.Query, c.Limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, hit := range hits {
		fmt.Printf("  %.3f  %-12s %s\n", hit.Score, hit.Namespace, hit.Text)
	}
	return nil
}

// Run lists recent facts from a namespace.
func (c *MemoryRecentCmd) Run(g *Globals) error {
	rt, err := buildRuntime(g)
	if err != nil {
		return err
	}
	defer rt.Close()

	facts, err := rt.store.RecallRecent(c.Namespace, c.Limit)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		fmt.Printf("no facts in namespace %q\n", c.Namespace)
		return nil
	}
	for _, fact := range facts {
		value, err := json.Marshal(fact.Value)
		if err != nil {
			value = []byte(fmt.Sprintf("%v", fact.Value))
		}
		key := fact.Key
		if key == "" {
			key = "-"
		}
		fmt.Printf("  %s  %-20s %s\n", fact.CreatedAt.Format(time.RFC3339), key, value)
	}
	return nil
}
