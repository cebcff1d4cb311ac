package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/keygate/pkg/kv"
)

const (
	defaultRaftNodeID = "node-1"
	defaultRaftBind   = "127.0.0.1:7000"

	// shardPrefix introduces a whitespace separated list of shard URIs.
	// A single URI may legally contain commas (pgx multi-host URLs, file
	// paths), but never unescaped whitespace.
	shardPrefix = "shard:"
)

// Options are the backend settings that do not come from the URL itself.
type Options struct {
	// Table is the postgres table or bolt bucket holding the entries.
	Table  string
	Logger hclog.Logger
}

// Open connects to the backend described by uri:
//
//	postgres://... | postgresql://...   PostgresStore
//	bolt://<path>                       BoltStore
//	raft://<dir>?node_id=&bind=         RaftStore
//	mem://                              MemStore
//
//	shard: <uri> <uri> ...              ShardedStore over every listed URI
//
// Any other URI is passed to its backend unchanged, commas included.
func Open(ctx context.Context, uri string, opts Options) (kv.Backend, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Table == "" {
		opts.Table = "entries"
	}

	uri = strings.TrimSpace(uri)
	if list, ok := strings.CutPrefix(uri, shardPrefix); ok {
		return openSharded(ctx, strings.Fields(list), opts)
	}
	return openOne(ctx, uri, opts)
}

func openOne(ctx context.Context, uri string, opts Options) (kv.Backend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid store url: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return OpenPostgres(ctx, uri, opts.Table)

	case "bolt":
		path := u.Host + u.Path
		if path == "" {
			return nil, errors.New("bolt url needs a file path, e.g. bolt://entries.db")
		}
		return OpenBolt(path, opts.Table)

	case "raft":
		dir := u.Host + u.Path
		if dir == "" {
			return nil, errors.New("raft url needs a data directory, e.g. raft://./data")
		}
		q := u.Query()
		ropts := RaftOptions{
			Dir:      dir,
			NodeID:   q.Get("node_id"),
			BindAddr: q.Get("bind"),
			Logger:   opts.Logger.Named("raft"),
		}
		if ropts.NodeID == "" {
			ropts.NodeID = defaultRaftNodeID
		}
		if ropts.BindAddr == "" {
			ropts.BindAddr = defaultRaftBind
		}
		return OpenRaft(ctx, ropts)

	case "mem", "memory":
		return NewMemStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

func openSharded(ctx context.Context, uris []string, opts Options) (kv.Backend, error) {
	shards := make(map[string]kv.Backend, len(uris))
	closeAll := func() {
		for _, s := range shards {
			s.Close()
		}
	}

	for _, uri := range uris {
		if _, dup := shards[uri]; dup {
			closeAll()
			return nil, fmt.Errorf("duplicate shard %q", uri)
		}
		shard, err := openOne(ctx, uri, opts)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open shard %q: %w", uri, err)
		}
		shards[uri] = shard
	}

	s, err := NewShardedStore(shards)
	if err != nil {
		closeAll()
		return nil, err
	}
	return s, nil
}
