package orchestrator

import (
	"github.com/dylan-green/promise-idb/lib/conncache"
	"github.com/dylan-green/promise-idb/lib/platform"
)

// OpenHooks are the optional user callbacks for one open request. They
// observe events; settlement always additionally flows through the
// returned Result.
type OpenHooks struct {
	// OnSuccess fires after the handle has been cached.
	OnSuccess func(h platform.Handle)
	// OnError fires before the result rejects.
	OnError func(err error)
	// OnBlocked fires when a competing lower-version connection prevents
	// the open. Not a terminal failure: the call stays pending until the
	// competing handles close — closing them is the caller's job, this
	// layer never force-closes.
	OnBlocked func(oldVersion uint64)
	// OnUpgrade is the upgrade routine. It runs inside the upgrade
	// transaction, after the new handle has been cached, so the routine
	// can observe and mutate collections through the same connection.
	// A non-nil error aborts the upgrade and rejects the open.
	OnUpgrade func(up platform.Upgrade) error
}

// IOrchestrator is the public call surface of the facade: connection and
// version orchestration plus operation dispatch against a cached
// connection. Every call returns a single-settlement Result; nothing
// streams multiple values and nothing is retried.
type IOrchestrator interface {
	// Open connects to the named store at the given version (0 = existing
	// version, or 1 on first creation) and caches the handle.
	Open(name string, version uint64, hooks OpenHooks) *Result[platform.Handle]

	// GetVersion resolves to the store's current version.
	GetVersion(name string) *Result[uint64]

	// CreateCollection bumps the store version by one and creates the
	// collection inside the upgrade transaction. Creating a collection
	// that already exists is a no-op that still bumps the version.
	CreateCollection(name, collection string, opts platform.CollectionOptions) *Result[platform.Handle]

	// DeleteCollection bumps the store version by one and removes the
	// collection with all its records. Missing collections are a no-op.
	DeleteCollection(name, collection string) *Result[platform.Handle]

	// CreateIndex bumps the store version by one and creates the given
	// indexes on the collection. Indexes that already exist are skipped.
	CreateIndex(name, collection string, specs ...platform.IndexSpec) *Result[platform.Handle]

	// DeleteIndex bumps the store version by one and drops the index.
	DeleteIndex(name, collection, index string) *Result[platform.Handle]

	// Add inserts a record; rejects if the key already exists. The key is
	// merged into the document under the collection's key path first.
	Add(name, collection string, key platform.Key, doc platform.Document) *Result[platform.Key]

	// Put inserts or replaces a record. Key inlining as for Add.
	Put(name, collection string, key platform.Key, doc platform.Document) *Result[platform.Key]

	// Get resolves to the document for key, or nil if absent (absence is
	// not an error).
	Get(name, collection string, key platform.Key) *Result[platform.Document]

	// GetKey resolves to the stored key equal to key, or nil if absent.
	GetKey(name, collection string, key platform.Key) *Result[platform.Key]

	// Delete removes a record. Deleting an absent key is not an error.
	Delete(name, collection string, key platform.Key) *Result[struct{}]

	// Clear removes every record in the collection.
	Clear(name, collection string) *Result[struct{}]

	// Count resolves to the number of records in the collection.
	Count(name, collection string) *Result[uint64]

	// GetAll resolves to every document in key order. limit <= 0: no limit.
	GetAll(name, collection string, limit int) *Result[[]platform.Document]

	// GetAllKeys resolves to every key in order. limit <= 0: no limit.
	GetAllKeys(name, collection string, limit int) *Result[[]platform.Key]

	// Cache exposes the connection cache (one live handle per store name).
	Cache() *conncache.Cache

	// Close closes every cached handle. The environment itself is owned
	// by the caller and stays open.
	Close() error
}
