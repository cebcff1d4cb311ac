package store

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/heysubinoy/keygate/pkg/kv"
)

// CachedStore is a read-through LRU cache in front of a backend.
//
// No lock is held across a backend call. Every operation that reaches the
// backend registers itself in pending under its key; a write bumps the key's
// generation when it starts and again when it finishes, and a read only fills
// the cache if the generation it saw before the backend call is unchanged.
// A fill therefore never puts back a value that an overlapping write replaced.
type CachedStore struct {
	store kv.Backend
	cache *lru.Cache

	mu      sync.Mutex
	pending map[string]*keyGen
}

// keyGen lives only while some operation on its key is in flight.
type keyGen struct {
	gen  uint64
	refs int
}

var _ kv.Backend = (*CachedStore)(nil)

func NewCachedStore(store kv.Backend, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachedStore{store: store, cache: cache, pending: make(map[string]*keyGen)}, nil
}

func (s *CachedStore) Get(ctx context.Context, key string) (kv.Value, bool, error) {
	if v, ok := s.cache.Get(key); ok {
		return v.(kv.Value), true, nil
	}

	s.mu.Lock()
	g := s.acquire(key)
	seen := g.gen
	s.mu.Unlock()

	v, found, err := s.store.Get(ctx, key)

	s.mu.Lock()
	if err == nil && found && g.gen == seen {
		s.cache.Add(key, v)
	}
	s.release(key, g)
	s.mu.Unlock()

	return v, found, err
}

func (s *CachedStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	g := s.acquire(key)
	g.gen++
	s.cache.Remove(key)
	s.mu.Unlock()

	err := s.store.Set(ctx, key, value)

	// Drop the entry even on failure; the backend may have applied the write.
	s.mu.Lock()
	g.gen++
	s.cache.Remove(key)
	s.release(key, g)
	s.mu.Unlock()

	return err
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.store.Close()
}

// acquire and release must be called with mu held.
func (s *CachedStore) acquire(key string) *keyGen {
	g, ok := s.pending[key]
	if !ok {
		g = &keyGen{}
		s.pending[key] = g
	}
	g.refs++
	return g
}

func (s *CachedStore) release(key string, g *keyGen) {
	g.refs--
	if g.refs == 0 {
		delete(s.pending, key)
	}
}
