package store

import (
	"context"
	"sync"

	"github.com/heysubinoy/keygate/pkg/kv"
)

// MemStore is an in-memory implementation of kv.Backend.
// It keeps the encoded documents in a map protected by a RWMutex.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Compile-time check to ensure MemStore implements kv.Backend.
var _ kv.Backend = (*MemStore)(nil)

// NewMemStore creates and returns a new MemStore instance.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
	}
}

// Get retrieves and decodes the document stored under key.
func (s *MemStore) Get(_ context.Context, key string) (kv.Value, bool, error) {
	if key == "" {
		return kv.Value{}, false, kv.ErrEmptyKey
	}

	s.mu.RLock()
	doc, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return kv.Value{}, false, nil
	}
	v, err := kv.Decode(doc)
	if err != nil {
		return kv.Value{}, false, err
	}
	return v, true, nil
}

// Set stores value under key.
func (s *MemStore) Set(_ context.Context, key, value string) error {
	doc, err := kv.StringValue(value).Encode()
	if err != nil {
		return err
	}
	return s.put(key, doc)
}

func (s *MemStore) put(key string, doc []byte) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = doc
	return nil
}

// snapshot returns a copy of every stored document.
func (s *MemStore) snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// replace swaps the whole data set, used when restoring from a snapshot.
func (s *MemStore) replace(data map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
}

// Close is a no-op; in-memory data is discarded with the process.
func (s *MemStore) Close() error { return nil }
