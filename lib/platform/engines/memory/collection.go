package memory

import (
	"fmt"
	"strings"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// collImpl is the per-collection accessor for one transaction. All requests
// settle synchronously; the platform.Request buffering makes that safe for
// listeners attached later.
type collImpl struct {
	txn  *txnImpl
	name string
}

// withColl runs fn against the collection state under the store lock.
// The request is failed up front when the handle is closed or the
// collection has vanished.
func (c *collImpl) withColl(req *platform.Request, fn func(*collState)) *platform.Request {
	if c.txn.handle.closed.Load() {
		req.Fail(platform.ErrHandleClosed)
		return req
	}

	c.txn.handle.store.mu.Lock()
	defer c.txn.handle.store.mu.Unlock()

	coll, ok := c.txn.handle.store.colls[c.name]
	if !ok {
		req.Fail(fmt.Errorf("%w: %q", platform.ErrCollectionNotFound, c.name))
		return req
	}
	fn(coll)
	return req
}

func (c *collImpl) writable() error {
	if c.txn.mode == platform.ModeReadOnly {
		return platform.ErrReadOnlyTxn
	}
	return nil
}

func (c *collImpl) Name() string {
	return c.name
}

func (c *collImpl) KeyPath() string {
	info, ok := c.txn.handle.Info(c.name)
	if !ok {
		return ""
	}
	return info.KeyPath
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
	if err := c.writable(); err != nil {
		req.Fail(err)
		return req
	}

	norm, err := platform.NormalizeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}
	enc, err := platform.EncodeKey(norm)
	if err != nil {
		req.Fail(err)
		return req
	}
	encoded, err := c.txn.handle.env.codec.Marshal(doc)
	if err != nil {
		req.Fail(err)
		return req
	}

	return c.withColl(req, func(coll *collState) {
		pk := string(enc)
		if _, exists := coll.records[pk]; exists && !overwrite {
			req.Fail(fmt.Errorf("%w: %v", platform.ErrKeyExists, norm))
			return
		}

		// Stage index entries before touching anything, so a constraint
		// violation leaves the record and its old entries untouched.
		staged := make(map[string][][]byte, len(coll.info.Indexes))
		for _, spec := range coll.info.Indexes {
			vals := platform.IndexValues(spec, doc)
			if spec.Unique {
				for _, val := range vals {
					if conflict := findIndexConflict(coll.indexes[spec.Name], val, pk); conflict {
						req.Fail(fmt.Errorf("%w: index %q", platform.ErrConstraintViolation, spec.Name))
						return
					}
				}
			}
			staged[spec.Name] = vals
		}

		removeIndexEntries(coll, pk)
		coll.records[pk] = encoded
		for name, vals := range staged {
			insertIndexEntries(coll.indexes[name], vals, pk)
		}

		req.Succeed(norm)
	})
}

func (c *collImpl) Delete(key platform.Key) *platform.Request {
	req := platform.NewRequest()
	if err := c.writable(); err != nil {
		req.Fail(err)
		return req
	}
	enc, err := platform.EncodeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}

	return c.withColl(req, func(coll *collState) {
		pk := string(enc)
		removeIndexEntries(coll, pk)
		delete(coll.records, pk)
		req.Succeed(nil)
	})
}

func (c *collImpl) Clear() *platform.Request {
	req := platform.NewRequest()
	if err := c.writable(); err != nil {
		req.Fail(err)
		return req
	}

	return c.withColl(req, func(coll *collState) {
		coll.records = make(map[string][]byte)
		for name := range coll.indexes {
			coll.indexes[name] = make(map[string][]byte)
		}
		req.Succeed(nil)
	})
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (c *collImpl) Get(key platform.Key) *platform.Request {
	req := platform.NewRequest()
	enc, err := platform.EncodeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}

	return c.withColl(req, func(coll *collState) {
		b, ok := coll.records[string(enc)]
		if !ok {
			req.Succeed(nil)
			return
		}
		doc, err := c.txn.handle.env.codec.Unmarshal(b)
		if err != nil {
			req.Fail(err)
			return
		}
		req.Succeed(doc)
	})
}

func (c *collImpl) GetKey(key platform.Key) *platform.Request {
	req := platform.NewRequest()
	norm, err := platform.NormalizeKey(key)
	if err != nil {
		req.Fail(err)
		return req
	}
	enc, err := platform.EncodeKey(norm)
	if err != nil {
		req.Fail(err)
		return req
	}

	return c.withColl(req, func(coll *collState) {
		if _, ok := coll.records[string(enc)]; ok {
			req.Succeed(norm)
			return
		}
		req.Succeed(nil)
	})
}

func (c *collImpl) Count() *platform.Request {
	req := platform.NewRequest()
	return c.withColl(req, func(coll *collState) {
		req.Succeed(uint64(len(coll.records)))
	})
}

func (c *collImpl) GetAll(limit int) *platform.Request {
	req := platform.NewRequest()
	return c.withColl(req, func(coll *collState) {
		docs := make([]platform.Document, 0, len(coll.records))
		for _, k := range coll.sortedKeys() {
			if limit > 0 && len(docs) >= limit {
				break
			}
			doc, err := c.txn.handle.env.codec.Unmarshal(coll.records[k])
			if err != nil {
				req.Fail(err)
				return
			}
			docs = append(docs, doc)
		}
		req.Succeed(docs)
	})
}

func (c *collImpl) GetAllKeys(limit int) *platform.Request {
	req := platform.NewRequest()
	return c.withColl(req, func(coll *collState) {
		keys := make([]platform.Key, 0, len(coll.records))
		for _, k := range coll.sortedKeys() {
			if limit > 0 && len(keys) >= limit {
				break
			}
			key, err := platform.DecodeKey([]byte(k))
			if err != nil {
				req.Fail(err)
				return
			}
			keys = append(keys, key)
		}
		req.Succeed(keys)
	})
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
	if spec.Name == "" || len(spec.KeyPaths) == 0 {
		req.Fail(fmt.Errorf("%w: index needs a name and at least one key path", platform.ErrIndexNotFound))
		return req
	}

	return c.withColl(req, func(coll *collState) {
		if _, ok := coll.indexes[spec.Name]; ok {
			req.Fail(fmt.Errorf("%w: %q", platform.ErrIndexExists, spec.Name))
			return
		}

		// Backfill over existing records, checking uniqueness first.
		entries := make(map[string][]byte)
		for pk, b := range coll.records {
			doc, err := c.txn.handle.env.codec.Unmarshal(b)
			if err != nil {
				req.Fail(err)
				return
			}
			for _, val := range platform.IndexValues(spec, doc) {
				if spec.Unique && findIndexConflict(entries, val, pk) {
					req.Fail(fmt.Errorf("%w: index %q", platform.ErrConstraintViolation, spec.Name))
					return
				}
				entries[indexEntryKey(val, pk)] = []byte(pk)
			}
		}

		coll.indexes[spec.Name] = entries
		coll.info.Indexes = append(coll.info.Indexes, spec)
		req.Succeed(nil)
	})
}

func (c *collImpl) DeleteIndex(name string) *platform.Request {
	req := platform.NewRequest()
	if c.txn.mode != platform.ModeUpgrade || c.txn.done {
		req.Fail(platform.ErrNotUpgradeTxn)
		return req
	}

	return c.withColl(req, func(coll *collState) {
		if _, ok := coll.indexes[name]; !ok {
			req.Fail(fmt.Errorf("%w: %q", platform.ErrIndexNotFound, name))
			return
		}
		delete(coll.indexes, name)
		for i, spec := range coll.info.Indexes {
			if spec.Name == name {
				coll.info.Indexes = append(coll.info.Indexes[:i], coll.info.Indexes[i+1:]...)
				break
			}
		}
		req.Succeed(nil)
	})
}

// --------------------------------------------------------------------------
// Index Entry Helpers
// --------------------------------------------------------------------------

// indexEntryKey builds the map key for one index entry:
// encodedIndexValue + 0x00 + encodedPrimaryKey.
func indexEntryKey(val []byte, pk string) string {
	return string(val) + "\x00" + pk
}

// findIndexConflict reports whether entries contains the index value for a
// primary key other than pk.
func findIndexConflict(entries map[string][]byte, val []byte, pk string) bool {
	prefix := string(val) + "\x00"
	for k, owner := range entries {
		if strings.HasPrefix(k, prefix) && string(owner) != pk {
			return true
		}
	}
	return false
}

func insertIndexEntries(entries map[string][]byte, vals [][]byte, pk string) {
	if entries == nil {
		return
	}
	for _, val := range vals {
		entries[indexEntryKey(val, pk)] = []byte(pk)
	}
}

// removeIndexEntries drops every index entry owned by pk across all indexes
// of the collection.
func removeIndexEntries(coll *collState, pk string) {
	for _, entries := range coll.indexes {
		for k, owner := range entries {
			if string(owner) == pk {
				delete(entries, k)
			}
		}
	}
}
