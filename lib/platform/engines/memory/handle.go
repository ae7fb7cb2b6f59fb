package memory

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// handleImpl is one live connection to a store. Every method takes the
// store mutex for its own duration, so the handle stays safe to share
// across goroutines — including while it is the handle of a running
// upgrade, whose routine does not hold the mutex between operations.
type handleImpl struct {
	env     *environment
	store   *storeState
	version uint64
	closed  atomic.Bool
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

	names := make([]string, 0, len(h.store.colls))
	for name := range h.store.colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *handleImpl) HasCollection(name string) bool {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	_, ok := h.store.colls[name]
	return ok
}

func (h *handleImpl) Info(name string) (platform.CollectionInfo, bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	c, ok := h.store.colls[name]
	if !ok {
		return platform.CollectionInfo{}, false
	}
	info := c.info
	info.Indexes = append([]platform.IndexSpec(nil), c.info.Indexes...)
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

	scope := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		if _, ok := h.store.colls[name]; !ok {
			return nil, fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, name)
		}
		scope[name] = struct{}{}
	}

	return &txnImpl{handle: h, mode: mode, scope: scope}, nil
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

// txnImpl scopes operations to a collection set and an access mode.
// A nil scope means "all collections" and is only produced for the upgrade
// transaction.
type txnImpl struct {
	handle *handleImpl
	mode   platform.Mode
	scope  map[string]struct{}
	done   bool
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

	t.handle.store.mu.Lock()
	_, ok := t.handle.store.colls[name]
	t.handle.store.mu.Unlock()
	if !ok {
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

	st := t.handle.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.colls[name]; ok {
		return nil, fmt.Errorf("%w: %q", platform.ErrCollectionExists, name)
	}

	st.colls[name] = &collState{
		info:    platform.CollectionInfo{Name: name, KeyPath: opts.KeyPath},
		records: make(map[string][]byte),
		indexes: make(map[string]map[string][]byte),
	}
	return &collImpl{txn: t, name: name}, nil
}

func (t *txnImpl) DeleteCollection(name string) error {
	if t.mode != platform.ModeUpgrade || t.done {
		return platform.ErrNotUpgradeTxn
	}

	st := t.handle.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.colls[name]; !ok {
		return fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, name)
	}
	delete(st.colls, name)
	return nil
}
