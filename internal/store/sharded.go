package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/heysubinoy/keygate/pkg/kv"
	"github.com/serialx/hashring"
)

// ShardedStore partitions keys across several backends with a consistent
// hash ring. Every key lives on exactly one shard.
type ShardedStore struct {
	ring   *hashring.HashRing
	shards map[string]kv.Backend
}

var _ kv.Backend = (*ShardedStore)(nil)

// NewShardedStore builds a ring over shards, keyed by shard name.
func NewShardedStore(shards map[string]kv.Backend) (*ShardedStore, error) {
	if len(shards) == 0 {
		return nil, errors.New("sharded store needs at least one shard")
	}

	names := make([]string, 0, len(shards))
	for name := range shards {
		names = append(names, name)
	}
	return &ShardedStore{ring: hashring.New(names), shards: shards}, nil
}

func (s *ShardedStore) shardFor(key string) (kv.Backend, error) {
	name, ok := s.ring.GetNode(key)
	if !ok {
		return nil, fmt.Errorf("no shard for key %q", key)
	}
	return s.shards[name], nil
}

func (s *ShardedStore) Get(ctx context.Context, key string) (kv.Value, bool, error) {
	if key == "" {
		return kv.Value{}, false, kv.ErrEmptyKey
	}
	shard, err := s.shardFor(key)
	if err != nil {
		return kv.Value{}, false, err
	}
	return shard.Get(ctx, key)
}

func (s *ShardedStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	shard, err := s.shardFor(key)
	if err != nil {
		return err
	}
	return shard.Set(ctx, key, value)
}

func (s *ShardedStore) Close() error {
	var errs []error
	for name, shard := range s.shards {
		if err := shard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shard %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
