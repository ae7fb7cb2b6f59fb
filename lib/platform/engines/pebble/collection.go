package pebble

import (
	"bytes"
	"fmt"

	cpebble "github.com/cockroachdb/pebble"
	"github.com/dylan-green/promise-idb/lib/platform"
)

// collImpl is the per-collection accessor for one transaction. Requests
// settle synchronously against the transaction's reader/writer (the
// database, or the upgrade batch).
type collImpl struct {
	txn  *txnImpl
	name string
}

func (c *collImpl) info() *platform.CollectionInfo {
	return c.txn.man.find(c.name)
}

func (c *collImpl) guard(req *platform.Request, write bool) (*platform.CollectionInfo, bool) {
	if c.txn.handle.closed.Load() {
		req.Fail(platform.ErrHandleClosed)
		return nil, false
	}
	if write && c.txn.mode == platform.ModeReadOnly {
		req.Fail(platform.ErrReadOnlyTxn)
		return nil, false
	}
	info := c.info()
	if info == nil {
		req.Fail(fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, c.name))
		return nil, false
	}
	return info, true
}

// getRaw reads the encoded document for an encoded key. The returned slice
// is a copy. ok is false when the key is absent.
func (c *collImpl) getRaw(encKey []byte) ([]byte, bool, error) {
	b, closer, err := c.txn.rw.Get(recordKey(c.txn.handle.store.name, c.name, encKey))
	if err == cpebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble: get: %w", err)
	}
	out := append([]byte(nil), b...)
	closer.Close()
	return out, true, nil
}

func (c *collImpl) Name() string {
	return c.name
}

func (c *collImpl) KeyPath() string {
	c.txn.lock()
	defer c.txn.unlock()

	if info := c.info(); info != nil {
		return info.KeyPath
	}
	return ""
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (c *collImpl) Add(key platform.Key, doc platform.Document) *platform.Request {
	return c.write(key, doc, false)
}

func (c *collImpl) Put(key platform.Key, doc platform.Document) *platform.Request {
	return c.write(key, doc, true)
}

func (c *collImpl) write(key platform.Key, doc platform.Document, overwrite bool) *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	info, ok := c.guard(req, true)
	if !ok {
		return req
	}

	norm, err := platform.NormalizeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}
	encKey, err := platform.EncodeKey(norm)
	if err != nil {
		req.Fail(err)
		return req
	}
	encoded, err := c.txn.handle.env.codec.Marshal(doc)
	if err != nil {
		req.Fail(err)
		return req
	}

	store := c.txn.handle.store.name

	old, exists, err := c.getRaw(encKey)
	if err != nil {
		req.Fail(err)
		return req
	}
	if exists && !overwrite {
		req.Fail(fmt.Errorf("%w: %v", platform.ErrKeyExists, norm))
		return req
	}

	// Unique constraint check before any mutation.
	for _, spec := range info.Indexes {
		if !spec.Unique {
			continue
		}
		for _, val := range platform.IndexValues(spec, doc) {
			conflict, err := c.indexConflict(spec.Name, val, encKey)
			if err != nil {
				req.Fail(err)
				return req
			}
			if conflict {
				req.Fail(fmt.Errorf("%w: index %q", platform.ErrConstraintViolation, spec.Name))
				return req
			}
		}
	}

	// Replace the old record's index entries.
	if exists {
		oldDoc, err := c.txn.handle.env.codec.Unmarshal(old)
		if err != nil {
			req.Fail(err)
			return req
		}
		if err := c.removeEntries(info, oldDoc, encKey); err != nil {
			req.Fail(err)
			return req
		}
	}

	if err := c.txn.rw.Set(recordKey(store, c.name, encKey), encoded, c.txn.handle.env.writeOpts); err != nil {
		req.Fail(fmt.Errorf("pebble: set: %w", err))
		return req
	}
	for _, spec := range info.Indexes {
		for _, val := range platform.IndexValues(spec, doc) {
			ek := indexEntryKey(store, c.name, spec.Name, val, encKey)
			if err := c.txn.rw.Set(ek, encKey, c.txn.handle.env.writeOpts); err != nil {
				req.Fail(fmt.Errorf("pebble: index set: %w", err))
				return req
			}
		}
	}

	req.Succeed(norm)
	return req
}

func (c *collImpl) Delete(key platform.Key) *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	info, ok := c.guard(req, true)
	if !ok {
		return req
	}
	encKey, err := platform.EncodeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}

	old, exists, err := c.getRaw(encKey)
	if err != nil {
		req.Fail(err)
		return req
	}
	if !exists {
		req.Succeed(nil)
		return req
	}

	oldDoc, err := c.txn.handle.env.codec.Unmarshal(old)
	if err != nil {
		req.Fail(err)
		return req
	}
	if err := c.removeEntries(info, oldDoc, encKey); err != nil {
		req.Fail(err)
		return req
	}
	if err := c.txn.rw.Delete(recordKey(c.txn.handle.store.name, c.name, encKey), c.txn.handle.env.writeOpts); err != nil {
		req.Fail(fmt.Errorf("pebble: delete: %w", err))
		return req
	}

	req.Succeed(nil)
	return req
}

func (c *collImpl) Clear() *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	if _, ok := c.guard(req, true); !ok {
		return req
	}

	store := c.txn.handle.store.name
	if err := c.txn.clearPrefix(recordPrefix(store, c.name)); err != nil {
		req.Fail(fmt.Errorf("pebble: clear: %w", err))
		return req
	}
	if err := c.txn.clearPrefix(collIndexPrefix(store, c.name)); err != nil {
		req.Fail(fmt.Errorf("pebble: clear indexes: %w", err))
		return req
	}

	req.Succeed(nil)
	return req
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (c *collImpl) Get(key platform.Key) *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	if _, ok := c.guard(req, false); !ok {
		return req
	}
	encKey, err := platform.EncodeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}

	b, exists, err := c.getRaw(encKey)
	if err != nil {
		req.Fail(err)
		return req
	}
	if !exists {
		req.Succeed(nil)
		return req
	}

	doc, err := c.txn.handle.env.codec.Unmarshal(b)
	if err != nil {
		req.Fail(err)
		return req
	}
	req.Succeed(doc)
	return req
}

func (c *collImpl) GetKey(key platform.Key) *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	if _, ok := c.guard(req, false); !ok {
		return req
	}
	norm, err := platform.NormalizeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}
	encKey, err := platform.EncodeKey(norm)
	if err != nil {
		req.Fail(err)
		return req
	}

	_, exists, err := c.getRaw(encKey)
	if err != nil {
		req.Fail(err)
		return req
	}
	if exists {
		req.Succeed(norm)
	} else {
		req.Succeed(nil)
	}
	return req
}

func (c *collImpl) Count() *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	if _, ok := c.guard(req, false); !ok {
		return req
	}

	var n uint64
	err := c.iterateRecords(0, func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		req.Fail(err)
		return req
	}
	req.Succeed(n)
	return req
}

func (c *collImpl) GetAll(limit int) *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	if _, ok := c.guard(req, false); !ok {
		return req
	}

	docs := make([]platform.Document, 0)
	err := c.iterateRecords(limit, func(_, value []byte) error {
		doc, err := c.txn.handle.env.codec.Unmarshal(value)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		req.Fail(err)
		return req
	}
	req.Succeed(docs)
	return req
}

func (c *collImpl) GetAllKeys(limit int) *platform.Request {
	req := platform.NewRequest()
	c.txn.lock()
	defer c.txn.unlock()

	if _, ok := c.guard(req, false); !ok {
		return req
	}

	keys := make([]platform.Key, 0)
	err := c.iterateRecords(limit, func(encKey, _ []byte) error {
		key, err := platform.DecodeKey(encKey)
		if err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		req.Fail(err)
		return req
	}
	req.Succeed(keys)
	return req
}

// iterateRecords walks the collection's records in key order, passing the
// encoded key (prefix stripped) and encoded document to fn. limit <= 0
// means no limit.
func (c *collImpl) iterateRecords(limit int, fn func(encKey, value []byte) error) error {
	prefix := recordPrefix(c.txn.handle.store.name, c.name)
	iter, err := c.txn.rw.NewIter(&cpebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return fmt.Errorf("pebble: iterator: %w", err)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && n >= limit {
			break
		}
		encKey := append([]byte(nil), iter.Key()[len(prefix):]...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(encKey, value); err != nil {
			return err
		}
		n++
	}
	return iter.Error()
}

// --------------------------------------------------------------------------
// Schema Operations (upgrade transaction only)
// --------------------------------------------------------------------------

func (c *collImpl) CreateIndex(spec platform.IndexSpec) *platform.Request {
	req := platform.NewRequest()
	if c.txn.mode != platform.ModeUpgrade || c.txn.done {
		req.Fail(platform.ErrNotUpgradeTxn)
		return req
	}

	c.txn.lock()
	defer c.txn.unlock()

	info, ok := c.guard(req, true)
	if !ok {
		return req
	}
	if spec.Name == "" || len(spec.KeyPaths) == 0 {
		req.Fail(fmt.Errorf("%w: index needs a name and at least one key path", platform.ErrIndexNotFound))
		return req
	}
	for _, existing := range info.Indexes {
		if existing.Name == spec.Name {
			req.Fail(fmt.Errorf("%w: %q", platform.ErrIndexExists, spec.Name))
			return req
		}
	}

	// Backfill over existing records. Uniqueness is checked against the
	// values staged so far; nothing commits unless the whole upgrade does.
	store := c.txn.handle.store.name
	seen := make(map[string][]byte)
	err := c.iterateRecords(0, func(encKey, value []byte) error {
		doc, err := c.txn.handle.env.codec.Unmarshal(value)
		if err != nil {
			return err
		}
		for _, val := range platform.IndexValues(spec, doc) {
			if spec.Unique {
				if owner, dup := seen[string(val)]; dup && !bytes.Equal(owner, encKey) {
					return fmt.Errorf("%w: index %q", platform.ErrConstraintViolation, spec.Name)
				}
				seen[string(val)] = encKey
			}
			ek := indexEntryKey(store, c.name, spec.Name, val, encKey)
			if err := c.txn.rw.Set(ek, encKey, c.txn.handle.env.writeOpts); err != nil {
				return fmt.Errorf("pebble: index backfill: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		req.Fail(err)
		return req
	}

	info.Indexes = append(info.Indexes, spec)
	req.Succeed(nil)
	return req
}

func (c *collImpl) DeleteIndex(name string) *platform.Request {
	req := platform.NewRequest()
	if c.txn.mode != platform.ModeUpgrade || c.txn.done {
		req.Fail(platform.ErrNotUpgradeTxn)
		return req
	}

	c.txn.lock()
	defer c.txn.unlock()

	info, ok := c.guard(req, true)
	if !ok {
		return req
	}

	found := false
	for i, spec := range info.Indexes {
		if spec.Name == name {
			info.Indexes = append(info.Indexes[:i], info.Indexes[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		req.Fail(fmt.Errorf("%w: %q", platform.ErrIndexNotFound, name))
		return req
	}

	if err := c.txn.clearPrefix(indexPrefix(c.txn.handle.store.name, c.name, name)); err != nil {
		req.Fail(fmt.Errorf("pebble: drop index: %w", err))
		return req
	}
	req.Succeed(nil)
	return req
}

// --------------------------------------------------------------------------
// Index Entry Helpers
// --------------------------------------------------------------------------

// indexConflict reports whether an index already maps val to a primary key
// other than encKey.
func (c *collImpl) indexConflict(idx string, val, encKey []byte) (bool, error) {
	prefix := indexValuePrefix(c.txn.handle.store.name, c.name, idx, val)
	iter, err := c.txn.rw.NewIter(&cpebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return false, fmt.Errorf("pebble: iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.Equal(iter.Value(), encKey) {
			return true, nil
		}
	}
	return false, iter.Error()
}

// removeEntries deletes the index entries a document contributed.
func (c *collImpl) removeEntries(info *platform.CollectionInfo, doc platform.Document, encKey []byte) error {
	store := c.txn.handle.store.name
	for _, spec := range info.Indexes {
		for _, val := range platform.IndexValues(spec, doc) {
			ek := indexEntryKey(store, c.name, spec.Name, val, encKey)
			if err := c.txn.rw.Delete(ek, c.txn.handle.env.writeOpts); err != nil {
				return fmt.Errorf("pebble: index delete: %w", err)
			}
		}
	}
	return nil
}
