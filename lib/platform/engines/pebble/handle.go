package pebble

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// handleImpl is one live connection to a store. The upgrade fields are set
// while this handle's upgrade routine runs and are guarded, like every
// schema read through them, by the store mutex: concurrent callers see the
// staged manifest and write into the upgrade batch, so their effects commit
// or roll back with the upgrade.
type handleImpl struct {
	env     *environment
	store   *storeState
	version uint64
	closed  atomic.Bool

	// guarded by store.mu
	inUpgrade  bool
	upgradeMan *manifest
	upgradeRW  readerWriter
}

// schemaView returns the schema this handle observes: the staged manifest
// during an upgrade, the committed one otherwise. Must be called with
// store.mu held; the staged manifest may only be read or mutated under it.
func (h *handleImpl) schemaView() *manifest {
	if h.inUpgrade {
		return h.upgradeMan
	}
	if h.store.manifest == nil {
		return &manifest{}
	}
	return h.store.manifest
}

// --------------------------------------------------------------------------
// Interface Methods (docu see platform.Handle)
// --------------------------------------------------------------------------

func (h *handleImpl) Name() string {
	return h.store.name
}

func (h *handleImpl) Version() uint64 {
	return h.version
}

func (h *handleImpl) Collections() []string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	m := h.schemaView()
	names := make([]string, 0, len(m.Collections))
	for _, c := range m.Collections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func (h *handleImpl) HasCollection(name string) bool {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	return h.schemaView().find(name) != nil
}

func (h *handleImpl) Info(name string) (platform.CollectionInfo, bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	c := h.schemaView().find(name)
	if c == nil {
		return platform.CollectionInfo{}, false
	}
	info := *c
	info.Indexes = append([]platform.IndexSpec(nil), c.Indexes...)
	return info, true
}

func (h *handleImpl) Transaction(collections []string, mode platform.Mode) (platform.Txn, error) {
	if h.closed.Load() {
		return nil, platform.ErrHandleClosed
	}
	if mode == platform.ModeUpgrade {
		return nil, platform.ErrNotUpgradeTxn
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	m := h.schemaView()
	scope := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		if m.find(name) == nil {
			return nil, fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, name)
		}
		scope[name] = struct{}{}
	}

	// Transactions opened while the upgrade routine runs share its batch
	// and staged manifest, so their effects commit or roll back with the
	// upgrade.
	rw := readerWriter(h.env.db)
	shared := false
	if h.inUpgrade {
		rw = h.upgradeRW
		shared = true
	}
	return &txnImpl{handle: h, mode: mode, scope: scope, man: m, rw: rw, shared: shared}, nil
}

func (h *handleImpl) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.store.mu.Lock()
	delete(h.store.handles, h)
	h.store.cond.Broadcast()
	h.store.mu.Unlock()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// txnImpl scopes operations to a collection set and an access mode. For
// transactions sharing a running upgrade (shared set) man is the staged
// manifest and rw the indexed batch; otherwise they are the committed
// manifest and the database itself.
type txnImpl struct {
	handle *handleImpl
	mode   platform.Mode
	scope  map[string]struct{}
	man    *manifest
	rw     readerWriter
	shared bool
	done   bool
}

// lock serializes the operations of upgrade-shared transactions: neither
// the staged manifest nor the indexed batch tolerates concurrent access.
// Transactions against committed state read an immutable manifest and the
// database, which handles its own synchronization, so they skip the mutex.
func (t *txnImpl) lock() {
	if t.shared {
		t.handle.store.mu.Lock()
	}
}

func (t *txnImpl) unlock() {
	if t.shared {
		t.handle.store.mu.Unlock()
	}
}

func (t *txnImpl) Mode() platform.Mode {
	return t.mode
}

func (t *txnImpl) Collection(name string) (platform.Collection, error) {
	if t.handle.closed.Load() {
		return nil, platform.ErrHandleClosed
	}
	if t.scope != nil {
		if _, ok := t.scope[name]; !ok {
			return nil, fmt.Errorf("%w: %q", platform.ErrNotInScope, name)
		}
	}

	t.lock()
	defer t.unlock()

	if t.man.find(name) == nil {
		return nil, fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, name)
	}
	return &collImpl{txn: t, name: name}, nil
}

func (t *txnImpl) CreateCollection(name string, opts platform.CollectionOptions) (platform.Collection, error) {
	if t.mode != platform.ModeUpgrade || t.done {
		return nil, platform.ErrNotUpgradeTxn
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", platform.ErrCollectionNotFound)
	}

	t.lock()
	defer t.unlock()

	if t.man.find(name) != nil {
		return nil, fmt.Errorf("%w: %q", platform.ErrCollectionExists, name)
	}

	t.man.Collections = append(t.man.Collections, platform.CollectionInfo{
		Name:    name,
		KeyPath: opts.KeyPath,
	})
	return &collImpl{txn: t, name: name}, nil
}

func (t *txnImpl) DeleteCollection(name string) error {
	if t.mode != platform.ModeUpgrade || t.done {
		return platform.ErrNotUpgradeTxn
	}

	t.lock()
	defer t.unlock()

	if t.man.find(name) == nil {
		return fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, name)
	}

	for i := range t.man.Collections {
		if t.man.Collections[i].Name == name {
			t.man.Collections = append(t.man.Collections[:i], t.man.Collections[i+1:]...)
			break
		}
	}

	store := t.handle.store.name
	if err := t.clearPrefix(recordPrefix(store, name)); err != nil {
		return err
	}
	return t.clearPrefix(collIndexPrefix(store, name))
}

// clearPrefix removes every key under prefix through this transaction's
// reader/writer.
func (t *txnImpl) clearPrefix(prefix []byte) error {
	return t.rw.DeleteRange(prefix, prefixEnd(prefix), t.handle.env.writeOpts)
}
