package store

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/heysubinoy/keygate/pkg/kv"
)

// BoltStore persists documents in a single bucket of a bolt database file.
// Bolt allows one writer at a time, so concurrent sets are serialized by the file lock.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

var _ kv.Backend = (*BoltStore)(nil)

// OpenBolt opens (creating if needed) the bolt file at path and ensures the bucket exists.
func OpenBolt(path, bucket string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return &BoltStore{db: db, bucket: []byte(bucket)}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) (kv.Value, bool, error) {
	if key == "" {
		return kv.Value{}, false, kv.ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return kv.Value{}, false, err
	}

	var doc []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Bytes returned by Get are only valid for the life of the transaction.
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			doc = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return kv.Value{}, false, fmt.Errorf("bolt get %q: %w", key, err)
	}
	if doc == nil {
		return kv.Value{}, false, nil
	}

	v, err := kv.Decode(doc)
	if err != nil {
		return kv.Value{}, false, fmt.Errorf("bolt get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *BoltStore) Set(ctx context.Context, key, value string) error {
	doc, err := kv.StringValue(value).Encode()
	if err != nil {
		return err
	}
	return s.put(ctx, key, doc)
}

func (s *BoltStore) put(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), doc)
	})
	if err != nil {
		return fmt.Errorf("bolt set %q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
