// Package memstore implements the process-wide namespaced key/value store
// described in spec §6.2. The engine treats it as an opaque collaborator
// and exposes only get/has/list/getAll to routing and guard expressions
// (internal/expr); the full read/write surface is available to the
// memory check provider (internal/provider/memory).
package memstore

import (
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultNamespace = "default"

// Store is a process-wide namespaced key/value store.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]string // namespace -> JSON object document
}

// New constructs an empty Store.
func New() *Store {
	return &Store{namespaces: make(map[string]string)}
}

func nsOrDefault(ns string) string {
	if ns == "" {
		return defaultNamespace
	}
	return ns
}

func (s *Store) doc(ns string) string {
	if d, ok := s.namespaces[ns]; ok {
		return d
	}
	return "{}"
}

// Get returns the value stored at key in ns, or nil if absent.
func (s *Store) Get(key, ns string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns = nsOrDefault(ns)
	res := gjson.Get(s.doc(ns), gjsonPath(key))
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// Has reports whether key exists in ns.
func (s *Store) Has(key, ns string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns = nsOrDefault(ns)
	return gjson.Get(s.doc(ns), gjsonPath(key)).Exists()
}

// List returns the top-level keys present in ns.
func (s *Store) List(ns string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns = nsOrDefault(ns)
	var keys []string
	gjson.Parse(s.doc(ns)).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

// GetAll returns every key/value pair in ns.
func (s *Store) GetAll(ns string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns = nsOrDefault(ns)
	out := make(map[string]any)
	gjson.Parse(s.doc(ns)).ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.Value()
		return true
	})
	return out
}

// Set stores value at key in ns, overwriting any existing value.
func (s *Store) Set(key string, value any, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns = nsOrDefault(ns)
	updated, err := sjson.Set(s.doc(ns), gjsonPath(key), value)
	if err != nil {
		return err
	}
	s.namespaces[ns] = updated
	return nil
}

// Append appends value to the list stored at key in ns (creating it if
// absent), matching spec §6.2's "list append" semantics.
func (s *Store) Append(key string, value any, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns = nsOrDefault(ns)
	path := gjsonPath(key) + ".-1"
	updated, err := sjson.Set(s.doc(ns), path, value)
	if err != nil {
		return err
	}
	s.namespaces[ns] = updated
	return nil
}

// Increment adds delta to the numeric value at key in ns,
// creating it at delta if absent, and returns the new value.
func (s *Store) Increment(key string, delta float64, ns string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns = nsOrDefault(ns)

	current := float64(0)
	res := gjson.Get(s.doc(ns), gjsonPath(key))
	if res.Exists() {
		current = res.Float()
	}
	next := current + delta
	updated, err := sjson.Set(s.doc(ns), gjsonPath(key), next)
	if err != nil {
		return 0, err
	}
	s.namespaces[ns] = updated
	return next, nil
}

// Delete removes key from ns.
func (s *Store) Delete(key, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns = nsOrDefault(ns)
	updated, err := sjson.Delete(s.doc(ns), gjsonPath(key))
	if err != nil {
		return err
	}
	s.namespaces[ns] = updated
	return nil
}

// Clear empties ns entirely.
func (s *Store) Clear(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns = nsOrDefault(ns)
	s.namespaces[ns] = "{}"
}

// gjsonPath escapes a raw key into a gjson/sjson path segment. Keys in
// this store are flat identifiers (no dotted traversal), so the only
// transformation needed is none at all — kept as a named hook so provider
// code has one place to extend for structured keys later.
func gjsonPath(key string) string { return key }
