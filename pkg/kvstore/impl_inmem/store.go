// Package impl_inmem provides an in-memory kvstore.Store implementation.
// This is a test/demo collaborator only — the persistence vendor is
// never prescribed here, so production deployments supply
// their own kvstore.Store backed by whatever the host platform offers.
package impl_inmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"dscore/pkg/kvstore"
)

// Store implements kvstore.Store with an in-memory map guarded by a
// mutex, giving the linearizable single-key writes the interface
// requires for free.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get retrieves the value for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := append([]byte(nil), v...)
	return cp, true, nil
}

// Put writes value for key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), value...)
	s.data[key] = cp
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Iterate returns a stable, key-sorted snapshot of all pairs whose key
// has the given prefix.
func (s *Store) Iterate(ctx context.Context, prefix string) (kvstore.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, pair{key: k, value: append([]byte(nil), s.data[k]...)})
	}
	return &iterator{pairs: pairs, idx: -1}, nil
}

type pair struct {
	key   string
	value []byte
}

type iterator struct {
	pairs []pair
	idx   int
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *iterator) Key() string {
	if it.idx < 0 || it.idx >= len(it.pairs) {
		return ""
	}
	return it.pairs[it.idx].key
}

func (it *iterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.pairs) {
		return nil
	}
	return it.pairs[it.idx].value
}

func (it *iterator) Err() error {
	return nil
}

func (it *iterator) Close() error {
	return nil
}

var _ kvstore.Store = (*Store)(nil)
