package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/heysubinoy/keygate/pkg/kv"
)

const (
	opSet = "set"

	defaultApplyTimeout = 10 * time.Second
	snapshotsRetained   = 2
	transportPoolSize   = 3
)

var msgpackHandle = &codec.MsgpackHandle{}

// ErrNotLeader is returned by Set when this node cannot accept writes.
var ErrNotLeader = errors.New("raft: node is not the leader")

// RaftCommand represents a write applied via the raft log.
type RaftCommand struct {
	Op  string
	Key string
	Doc []byte
}

// RaftOptions configures a raft backed store.
type RaftOptions struct {
	Dir      string
	NodeID   string
	BindAddr string
	Logger   hclog.Logger
}

// RaftStore applies writes through a raft log and serves reads from the local FSM state.
// The log and stable store live in raft-boltdb, so state survives restarts.
type RaftStore struct {
	store   *MemStore
	raft    *raft.Raft
	closers []io.Closer
}

var (
	_ kv.Backend = (*RaftStore)(nil)
	_ raft.FSM   = (*RaftStore)(nil)
)

// OpenRaft starts a raft node persisted under opts.Dir. A node with no
// existing state bootstraps itself as a single-server cluster.
func OpenRaft(ctx context.Context, opts RaftOptions) (*RaftStore, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create raft dir: %w", err)
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(opts.NodeID)
	conf.Logger = opts.Logger

	addr, err := net.ResolveTCPAddr("tcp", opts.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft bind address: %w", err)
	}
	// Port 0 binds an ephemeral port; let the transport advertise what it got.
	var advertise net.Addr
	if addr.Port != 0 {
		advertise = addr
	}
	transport, err := raft.NewTCPTransportWithLogger(opts.BindAddr, advertise, transportPoolSize, 10*time.Second, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(opts.Dir, snapshotsRetained, opts.Logger)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("raft snapshot store: %w", err)
	}

	boltDB, err := raftboltdb.NewBoltStore(filepath.Join(opts.Dir, "raft.db"))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("raft log store: %w", err)
	}

	rs, err := newRaftStore(conf, boltDB, boltDB, snapshots, transport, transport, boltDB)
	if err != nil {
		return nil, err
	}
	if err := rs.WaitForLeader(ctx); err != nil {
		rs.Close()
		return nil, err
	}
	return rs, nil
}

// newRaftStore starts raft over the given stores. closers are released by Close
// after raft has shut down.
func newRaftStore(conf *raft.Config, logs raft.LogStore, stable raft.StableStore,
	snaps raft.SnapshotStore, trans raft.Transport, closers ...io.Closer) (*RaftStore, error) {

	rs := &RaftStore{store: NewMemStore(), closers: closers}

	hasState, err := raft.HasExistingState(logs, stable, snaps)
	if err != nil {
		rs.closeAll()
		return nil, fmt.Errorf("raft state: %w", err)
	}

	r, err := raft.NewRaft(conf, rs, logs, stable, snaps, trans)
	if err != nil {
		rs.closeAll()
		return nil, fmt.Errorf("start raft: %w", err)
	}
	rs.raft = r

	if !hasState {
		bootstrap := raft.Configuration{
			Servers: []raft.Server{{ID: conf.LocalID, Address: trans.LocalAddr()}},
		}
		if err := r.BootstrapCluster(bootstrap).Error(); err != nil {
			rs.Close()
			return nil, fmt.Errorf("bootstrap raft: %w", err)
		}
	}
	return rs, nil
}

// WaitForLeader blocks until this node is leader and has applied every
// committed entry to the FSM, or ctx is done.
func (rs *RaftStore) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for rs.raft.State() != raft.Leader {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for raft leadership: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	if err := rs.raft.Barrier(defaultApplyTimeout).Error(); err != nil {
		return fmt.Errorf("raft barrier: %w", err)
	}
	return nil
}

// Apply applies a Raft log entry to the local store.
func (rs *RaftStore) Apply(log *raft.Log) interface{} {
	var cmd RaftCommand
	if err := codec.NewDecoderBytes(log.Data, msgpackHandle).Decode(&cmd); err != nil {
		return err
	}
	switch cmd.Op {
	case opSet:
		return rs.store.put(cmd.Key, cmd.Doc)
	default:
		return fmt.Errorf("raft: unknown op %q", cmd.Op)
	}
}

// Snapshot captures a copy of the FSM state.
func (rs *RaftStore) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: rs.store.snapshot()}, nil
}

// Restore replaces the FSM state with a persisted snapshot.
func (rs *RaftStore) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data map[string][]byte
	if err := codec.NewDecoder(rc, msgpackHandle).Decode(&data); err != nil {
		return fmt.Errorf("decode raft snapshot: %w", err)
	}
	if data == nil {
		data = make(map[string][]byte)
	}
	rs.store.replace(data)
	return nil
}

type fsmSnapshot struct {
	data map[string][]byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := codec.NewEncoder(sink, msgpackHandle).Encode(s.data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Set submits a set command to Raft and waits for it to be applied.
func (rs *RaftStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	doc, err := kv.StringValue(value).Encode()
	if err != nil {
		return err
	}

	var buf []byte
	cmd := RaftCommand{Op: opSet, Key: key, Doc: doc}
	if err := codec.NewEncoderBytes(&buf, msgpackHandle).Encode(cmd); err != nil {
		return fmt.Errorf("encode raft command: %w", err)
	}

	timeout := defaultApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f := rs.raft.Apply(buf, timeout)
	if err := f.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return ErrNotLeader
		}
		return fmt.Errorf("raft apply: %w", err)
	}
	if err, ok := f.Response().(error); ok && err != nil {
		return err
	}
	return nil
}

// Get reads directly from the local store.
func (rs *RaftStore) Get(ctx context.Context, key string) (kv.Value, bool, error) {
	return rs.store.Get(ctx, key)
}

// Close shuts raft down and releases the log, stable store and transport.
func (rs *RaftStore) Close() error {
	err := rs.raft.Shutdown().Error()
	if cerr := rs.closeAll(); err == nil {
		err = cerr
	}
	return err
}

func (rs *RaftStore) closeAll() error {
	var errs []error
	for _, c := range rs.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
