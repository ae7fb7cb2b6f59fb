package memory

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dylan-green/promise-idb/lib/codec"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Engine State
// --------------------------------------------------------------------------

// environment implements platform.Environment fully in memory.
type environment struct {
	codec  codec.ICodec
	stores *xsync.MapOf[string, *storeState]
	closed atomic.Bool
}

// storeState holds everything the engine knows about one named store.
// All fields are guarded by mu; cond broadcasts on handle close and on
// upgrade completion so that parked opens can re-check their wait condition.
// upgrading is set while an upgrade routine runs: the routine executes
// without holding mu (its operations lock per call, which also lets it
// await work dispatched from other goroutines), so every other open has to
// wait for the staged state to commit or roll back.
type storeState struct {
	mu        sync.Mutex
	cond      *sync.Cond
	name      string
	version   uint64 // 0 = store does not exist yet
	upgrading bool
	colls     map[string]*collState
	handles   map[*handleImpl]struct{}
}

// collState is one collection: declared schema plus encoded records and
// index entries. Records are keyed by the ordered key encoding, so plain
// string sorting of the map keys yields key order.
type collState struct {
	info    platform.CollectionInfo
	records map[string][]byte
	// indexes maps index name -> index entry key -> encoded primary key.
	// The entry key is encodedIndexValue + 0x00 + encodedPrimaryKey.
	indexes map[string]map[string][]byte
}

// Options configures the memory engine.
type Options struct {
	Codec codec.ICodec // nil = JSON
}

// New creates a new in-memory engine. The codec is used both for
// persistence-shaped encoding and to isolate callers from internal state:
// every read decodes a fresh document.
func New(opts *Options) platform.Environment {
	c := codec.ICodec(nil)
	if opts != nil {
		c = opts.Codec
	}
	if c == nil {
		c = codec.NewJSONCodec()
	}
	return &environment{
		codec:  c,
		stores: xsync.NewMapOf[string, *storeState](),
	}
}

func (e *environment) getStore(name string) *storeState {
	st, _ := e.stores.LoadOrCompute(name, func() *storeState {
		s := &storeState{
			name:    name,
			colls:   make(map[string]*collState),
			handles: make(map[*handleImpl]struct{}),
		}
		s.cond = sync.NewCond(&s.mu)
		return s
	})
	return st
}

// --------------------------------------------------------------------------
// Interface Methods (docu see platform.Environment)
// --------------------------------------------------------------------------

func (e *environment) Impl() platform.Implementation {
	return platform.ImplMemory
}

func (e *environment) Version(name string) uint64 {
	st, ok := e.stores.Load(name)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.version
}

func (e *environment) Close() error {
	e.closed.Store(true)
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
	return nil
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

// open runs the full open/upgrade state progression for one request. It is
// always executed on its own goroutine so Open never blocks the caller.
func (e *environment) open(name string, version uint64, cb platform.OpenCallbacks) {
	st := e.getStore(name)

	st.mu.Lock()

	// A running upgrade holds staged, uncommitted state. Wait it out before
	// resolving versions against the store.
	for st.upgrading {
		st.cond.Wait()
	}

	// Resolve the target version.
	var (
		target  uint64
		upgrade bool
	)
	switch {
	case version == 0 && st.version == 0:
		target, upgrade = 1, true
	case version == 0:
		target = st.version
	case version < st.version:
		err := fmt.Errorf("%w: requested %d, stored %d",
			platform.ErrVersionBelowCurrent, version, st.version)
		st.mu.Unlock()
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return
	case version == st.version:
		target = version
	default:
		target, upgrade = version, true
	}

	// An upgrade must wait for every competing handle to close. The blocked
	// event fires once, then the open parks until the handle set drains.
	if upgrade && len(st.handles) > 0 {
		old := st.version
		st.mu.Unlock()
		if cb.OnBlocked != nil {
			cb.OnBlocked(old)
		}
		st.mu.Lock()
		for len(st.handles) > 0 || st.upgrading {
			st.cond.Wait()
		}
		// Re-resolve: the version may have moved while parked.
		if st.version >= target {
			upgrade = false
			target = st.version
		}
	}

	h := &handleImpl{env: e, store: st, version: target}

	if upgrade {
		snap := st.snapshot()
		old := st.version

		if cb.OnUpgradeNeeded != nil {
			// The routine runs without the store lock so that handle and
			// collection calls — its own or from goroutines it awaits — can
			// lock per operation. upgrading keeps every other open out until
			// the staged state commits or rolls back.
			st.upgrading = true
			txn := &txnImpl{handle: h, mode: platform.ModeUpgrade, scope: nil}
			st.mu.Unlock()
			err := cb.OnUpgradeNeeded(platform.Upgrade{
				Handle:     h,
				Txn:        txn,
				OldVersion: old,
				NewVersion: target,
			})
			st.mu.Lock()
			txn.done = true
			st.upgrading = false
			if err != nil {
				// The upgrade transaction does not commit on error: restore
				// the pre-upgrade state, version included.
				st.restore(snap)
				st.cond.Broadcast()
				st.mu.Unlock()
				if cb.OnError != nil {
					cb.OnError(err)
				}
				return
			}
		}

		st.version = target
		st.cond.Broadcast()
	}

	st.handles[h] = struct{}{}
	st.mu.Unlock()

	if cb.OnSuccess != nil {
		cb.OnSuccess(h)
	}
}

// --------------------------------------------------------------------------
// Snapshot / Restore (upgrade rollback)
// --------------------------------------------------------------------------

// snapshot copies the store's schema and record maps. Record values are
// treated as immutable byte slices, so a map-level copy is sufficient.
func (s *storeState) snapshot() *storeState {
	snap := &storeState{version: s.version, colls: make(map[string]*collState, len(s.colls))}
	for name, c := range s.colls {
		cc := &collState{
			info:    c.info,
			records: make(map[string][]byte, len(c.records)),
			indexes: make(map[string]map[string][]byte, len(c.indexes)),
		}
		cc.info.Indexes = append([]platform.IndexSpec(nil), c.info.Indexes...)
		for k, v := range c.records {
			cc.records[k] = v
		}
		for idx, entries := range c.indexes {
			m := make(map[string][]byte, len(entries))
			for k, v := range entries {
				m[k] = v
			}
			cc.indexes[idx] = m
		}
		snap.colls[name] = cc
	}
	return snap
}

func (s *storeState) restore(snap *storeState) {
	s.version = snap.version
	s.colls = snap.colls
}

// sortedKeys returns the encoded record keys in key order. Encoded keys are
// order-preserving, so bytewise string sorting is key ordering.
func (c *collState) sortedKeys() []string {
	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
