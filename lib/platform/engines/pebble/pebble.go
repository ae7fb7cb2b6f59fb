package pebble

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	cpebble "github.com/cockroachdb/pebble"
	"github.com/dylan-green/promise-idb/lib/codec"
	"github.com/dylan-green/promise-idb/lib/logging"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the tunable parameters for the pebble engine. Use functional
// Option values with Open rather than constructing a Config directly.
type Config struct {
	// Codec encodes documents for persistence. Defaults to JSON.
	Codec codec.ICodec

	// CacheSize is the shared block-cache capacity in bytes.
	CacheSize int64

	// MemTableSize is the size of a single memtable in bytes.
	MemTableSize uint64

	// MaxOpenFiles limits the open file descriptors pebble keeps.
	MaxOpenFiles int

	// SyncWrites syncs every write to stable storage. Off by default;
	// the WAL still makes committed writes recoverable after a crash of
	// the process (not of the machine).
	SyncWrites bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheSize:    32 << 20,
		MemTableSize: 16 << 20,
		MaxOpenFiles: 1024,
	}
}

// Option mutates a Config.
type Option func(*Config)

// WithCodec selects the document codec.
func WithCodec(c codec.ICodec) Option { return func(cfg *Config) { cfg.Codec = c } }

// WithCacheSize sets the block-cache capacity in bytes.
func WithCacheSize(n int64) Option { return func(cfg *Config) { cfg.CacheSize = n } }

// WithSyncWrites enables per-write syncing.
func WithSyncWrites(sync bool) Option { return func(cfg *Config) { cfg.SyncWrites = sync } }

// --------------------------------------------------------------------------
// Engine State
// --------------------------------------------------------------------------

// environment implements platform.Environment on top of a single pebble
// database. Stores, collections and indexes share the keyspace through
// disjoint key prefixes (see keys.go); per-store schema and version live in
// a JSON manifest under the store's meta key.
type environment struct {
	db        *cpebble.DB
	codec     codec.ICodec
	writeOpts *cpebble.WriteOptions
	stores    *xsync.MapOf[string, *storeState]
	closed    atomic.Bool
	log       *zap.SugaredLogger
}

// storeState is the in-process coordination state for one named store:
// the live handle set, the cached manifest and the blocked-open parking.
// upgrading is set while an upgrade routine runs; the routine executes
// without holding mu (its operations lock per call), so every other open
// waits on cond until the staged state commits or is discarded.
type storeState struct {
	mu        sync.Mutex
	cond      *sync.Cond
	name      string
	manifest  *manifest // nil until loaded from the db
	upgrading bool
	handles   map[*handleImpl]struct{}
}

// manifest is the persisted schema of one store.
type manifest struct {
	Version     uint64                    `json:"version"`
	Collections []platform.CollectionInfo `json:"collections"`
}

func (m *manifest) find(name string) *platform.CollectionInfo {
	for i := range m.Collections {
		if m.Collections[i].Name == name {
			return &m.Collections[i]
		}
	}
	return nil
}

func (m *manifest) clone() *manifest {
	out := &manifest{Version: m.Version, Collections: make([]platform.CollectionInfo, len(m.Collections))}
	for i, c := range m.Collections {
		c.Indexes = append([]platform.IndexSpec(nil), c.Indexes...)
		out.Collections[i] = c
	}
	return out
}

// readerWriter is the subset of pebble operations the collection accessor
// needs; both *pebble.DB and *pebble.Batch (indexed) satisfy it, which lets
// upgrade transactions run against an uncommitted batch.
type readerWriter interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *cpebble.IterOptions) (*cpebble.Iterator, error)
	Set(key, value []byte, opts *cpebble.WriteOptions) error
	Delete(key []byte, opts *cpebble.WriteOptions) error
	DeleteRange(start, end []byte, opts *cpebble.WriteOptions) error
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Open creates or opens a pebble-backed environment at path. The caller
// must call Close to release all resources.
func Open(path string, opts ...Option) (platform.Environment, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewJSONCodec()
	}

	log := logging.GetLogger("engine/pebble")

	cache := cpebble.NewCache(cfg.CacheSize)
	defer cache.Unref()

	db, err := cpebble.Open(path, &cpebble.Options{
		Cache:        cache,
		MemTableSize: cfg.MemTableSize,
		MaxOpenFiles: cfg.MaxOpenFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: failed to open %s: %w", path, err)
	}

	writeOpts := cpebble.NoSync
	if cfg.SyncWrites {
		writeOpts = cpebble.Sync
	}

	log.Infow("opened environment", "path", path, "codec", cfg.Codec.Name())

	return &environment{
		db:        db,
		codec:     cfg.Codec,
		writeOpts: writeOpts,
		stores:    xsync.NewMapOf[string, *storeState](),
		log:       log,
	}, nil
}

func (e *environment) getStore(name string) *storeState {
	st, _ := e.stores.LoadOrCompute(name, func() *storeState {
		s := &storeState{name: name, handles: make(map[*handleImpl]struct{})}
		s.cond = sync.NewCond(&s.mu)
		return s
	})
	return st
}

// loadManifest reads the store manifest, caching it on the state.
// Must be called with st.mu held.
func (e *environment) loadManifest(st *storeState) (*manifest, error) {
	if st.manifest != nil {
		return st.manifest, nil
	}

	b, closer, err := e.db.Get(metaKey(st.name))
	if err == cpebble.ErrNotFound {
		st.manifest = &manifest{}
		return st.manifest, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: read manifest for %q: %w", st.name, err)
	}
	defer closer.Close()

	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("pebble: decode manifest for %q: %w", st.name, err)
	}
	st.manifest = &m
	return st.manifest, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see platform.Environment)
// --------------------------------------------------------------------------

func (e *environment) Impl() platform.Implementation {
	return platform.ImplPebble
}

func (e *environment) Version(name string) uint64 {
	st := e.getStore(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	m, err := e.loadManifest(st)
	if err != nil {
		e.log.Warnw("manifest load failed", "store", name, "err", err)
		return 0
	}
	return m.Version
}

func (e *environment) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.stores.Range(func(_ string, st *storeState) bool {
		st.mu.Lock()
		for h := range st.handles {
			h.closed.Store(true)
		}
		st.handles = make(map[*handleImpl]struct{})
		st.cond.Broadcast()
		st.mu.Unlock()
		return true
	})

	if err := e.db.Flush(); err != nil {
		e.db.Close()
		return fmt.Errorf("pebble: flush on close: %w", err)
	}
	return e.db.Close()
}

func (e *environment) Open(name string, version uint64, cb platform.OpenCallbacks) {
	if e.closed.Load() {
		if cb.OnError != nil {
			cb.OnError(platform.ErrEnvClosed)
		}
		return
	}
	go e.open(name, version, cb)
}

func (e *environment) open(name string, version uint64, cb platform.OpenCallbacks) {
	st := e.getStore(name)

	st.mu.Lock()

	// A running upgrade holds staged, uncommitted state. Wait it out before
	// resolving versions against the store.
	for st.upgrading {
		st.cond.Wait()
	}

	man, err := e.loadManifest(st)
	if err != nil {
		st.mu.Unlock()
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return
	}

	var (
		target  uint64
		upgrade bool
	)
	switch {
	case version == 0 && man.Version == 0:
		target, upgrade = 1, true
	case version == 0:
		target = man.Version
	case version < man.Version:
		verr := fmt.Errorf("%w: requested %d, stored %d",
			platform.ErrVersionBelowCurrent, version, man.Version)
		st.mu.Unlock()
		if cb.OnError != nil {
			cb.OnError(verr)
		}
		return
	case version == man.Version:
		target = version
	default:
		target, upgrade = version, true
	}

	if upgrade && len(st.handles) > 0 {
		old := man.Version
		st.mu.Unlock()
		if cb.OnBlocked != nil {
			cb.OnBlocked(old)
		}
		st.mu.Lock()
		for len(st.handles) > 0 || st.upgrading {
			st.cond.Wait()
		}
		man = st.manifest
		if man.Version >= target {
			upgrade = false
			target = man.Version
		}
	}

	h := &handleImpl{env: e, store: st, version: target}

	if upgrade {
		if err := e.runUpgrade(st, h, man, target, cb); err != nil {
			st.mu.Unlock()
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}
	}

	st.handles[h] = struct{}{}
	st.mu.Unlock()

	if cb.OnSuccess != nil {
		cb.OnSuccess(h)
	}
}

// runUpgrade executes the upgrade transaction: schema mutations go into a
// staged manifest, data mutations into an indexed batch. Both commit
// atomically on success; an error from the routine discards everything.
// Must be called with st.mu held; the lock is released while the routine
// runs so that handle and collection calls — the routine's own or from
// goroutines it awaits — can lock per operation.
func (e *environment) runUpgrade(st *storeState, h *handleImpl, man *manifest, target uint64, cb platform.OpenCallbacks) error {
	old := man.Version
	staged := man.clone()
	staged.Version = target

	batch := e.db.NewIndexedBatch()
	defer batch.Close()

	if cb.OnUpgradeNeeded != nil {
		h.inUpgrade = true
		h.upgradeMan = staged
		h.upgradeRW = batch
		st.upgrading = true
		txn := &txnImpl{handle: h, mode: platform.ModeUpgrade, man: staged, rw: batch, shared: true}

		st.mu.Unlock()
		err := cb.OnUpgradeNeeded(platform.Upgrade{
			Handle:     h,
			Txn:        txn,
			OldVersion: old,
			NewVersion: target,
		})
		st.mu.Lock()
		txn.done = true
		h.inUpgrade = false
		h.upgradeMan = nil
		h.upgradeRW = nil
		st.upgrading = false
		st.cond.Broadcast()
		if err != nil {
			return err
		}
	}

	mb, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("pebble: encode manifest for %q: %w", st.name, err)
	}
	if err := batch.Set(metaKey(st.name), mb, nil); err != nil {
		return fmt.Errorf("pebble: stage manifest for %q: %w", st.name, err)
	}
	if err := batch.Commit(e.writeOpts); err != nil {
		return fmt.Errorf("pebble: commit upgrade for %q: %w", st.name, err)
	}

	st.manifest = staged
	e.log.Debugw("upgrade committed", "store", st.name, "from", old, "to", target)
	return nil
}
