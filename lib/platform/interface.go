package platform

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Implementation identifies an engine backing the platform contract.
type Implementation string

const (
	ImplMemory Implementation = "memory"
	ImplPebble Implementation = "pebble"
)

// Document is the unit of storage: a decoded record value. Engines are
// responsible for encoding documents for persistence (see lib/codec).
type Document = map[string]any

// Key is a record's primary key. Valid dynamic types are string and the
// numeric types (normalized to float64 for ordering). See ValidateKey.
type Key = any

// Mode selects the access mode of a transaction.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
	// ModeUpgrade is reserved for the transaction handed to an upgrade
	// routine. Schema mutations are only valid in this mode.
	ModeUpgrade
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "readonly"
	case ModeReadWrite:
		return "readwrite"
	case ModeUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// CollectionOptions configures a collection at creation time.
type CollectionOptions struct {
	// KeyPath is the dotted path inside a document under which the record's
	// primary key is stored (e.g. "id" or "meta.id"). Empty means documents
	// do not carry their key inline.
	KeyPath string
}

// IndexSpec defines a secondary index over one collection.
type IndexSpec struct {
	Name       string   // Index name, unique within its collection
	KeyPaths   []string // One or more dotted paths into the document
	Unique     bool     // Reject writes that would duplicate an indexed value
	MultiEntry bool     // Index each element of an array value separately
	Locale     string   // Collation hint, stored but not interpreted
}

// CollectionInfo describes a collection's declared schema.
type CollectionInfo struct {
	Name    string
	KeyPath string
	Indexes []IndexSpec
}

// --------------------------------------------------------------------------
// Environment Interface
// --------------------------------------------------------------------------

// OpenCallbacks carries the event handlers for one open request. All
// callbacks are optional; a nil callback is simply not invoked.
//
// Exactly one of OnSuccess/OnError fires per open. OnBlocked may fire
// before either when a competing lower-version handle is still live.
// OnUpgradeNeeded fires when the requested version exceeds the stored
// version (or the store does not yet exist); returning a non-nil error
// aborts the upgrade, leaves the store at its prior version and routes
// the open to OnError.
type OpenCallbacks struct {
	OnSuccess       func(h Handle)
	OnError         func(err error)
	OnBlocked       func(oldVersion uint64)
	OnUpgradeNeeded func(up Upgrade) error
}

// Upgrade is the state handed to an upgrade routine: a handle whose schema
// may be mutated through the attached upgrade transaction.
type Upgrade struct {
	Handle     Handle
	Txn        Txn
	OldVersion uint64
	NewVersion uint64
}

// Environment is the host side of the platform contract: a set of named,
// versioned stores. Implementations live under lib/platform/engines.
//
// All methods are safe for concurrent use.
type Environment interface {
	// Open requests a connection to the named store at the given version.
	// Version 0 means "whatever version currently exists, or 1 on first
	// creation". Events are delivered through cb; Open itself never blocks.
	Open(name string, version uint64, cb OpenCallbacks)

	// Version reports the currently stored version of the named store
	// without opening a connection. Returns 0 if the store does not exist.
	Version(name string) uint64

	// Impl identifies the backing engine.
	Impl() Implementation

	// Close releases all engine resources. Open handles become unusable.
	Close() error
}

// --------------------------------------------------------------------------
// Handle / Transaction / Collection Interfaces
// --------------------------------------------------------------------------

// Handle is one live connection to a named store.
type Handle interface {
	// Name returns the store name this handle is connected to.
	Name() string

	// Version returns the store version this handle was opened at.
	Version() uint64

	// Collections returns the names of all collections, sorted.
	Collections() []string

	// HasCollection reports whether a collection with the given name exists.
	HasCollection(name string) bool

	// Info returns the declared schema of a collection.
	Info(name string) (CollectionInfo, bool)

	// Transaction starts a transaction scoped to the given collections.
	// ModeUpgrade cannot be requested here; it is granted exclusively
	// through OnUpgradeNeeded.
	Transaction(collections []string, mode Mode) (Txn, error)

	// Close releases the connection. Closing an already closed handle is a
	// no-op. A pending higher-version open for the same store proceeds once
	// all competing handles are closed.
	Close()
}

// Txn is a transaction scoped to a set of collections. One transaction is
// short-lived: the facade above opens one per dispatched operation.
type Txn interface {
	// Mode returns the access mode of this transaction.
	Mode() Mode

	// Collection returns the accessor for a collection in scope.
	Collection(name string) (Collection, error)

	// CreateCollection creates a collection. Valid only in ModeUpgrade.
	// Creating a collection that already exists is an error; callers that
	// need idempotency check HasCollection first.
	CreateCollection(name string, opts CollectionOptions) (Collection, error)

	// DeleteCollection removes a collection and all its records.
	// Valid only in ModeUpgrade.
	DeleteCollection(name string) error
}

// Collection is the per-collection operation accessor. Every method issues
// one request that settles exactly once with success or error (see Request).
type Collection interface {
	// Name returns the collection name.
	Name() string

	// KeyPath returns the collection's declared key path ("" if none).
	KeyPath() string

	// Add inserts a record; fails if the key already exists.
	Add(key Key, doc Document) *Request
	// Put inserts or replaces a record.
	Put(key Key, doc Document) *Request
	// Get resolves to the Document for key, or nil if absent.
	Get(key Key) *Request
	// Delete removes a record. Deleting an absent key is not an error.
	Delete(key Key) *Request
	// Clear removes all records (index entries included).
	Clear() *Request
	// Count resolves to the number of records as uint64.
	Count() *Request
	// GetAll resolves to all documents in key order ([]Document).
	// limit <= 0 means no limit.
	GetAll(limit int) *Request
	// GetAllKeys resolves to all keys in order ([]Key). limit <= 0: no limit.
	GetAllKeys(limit int) *Request
	// GetKey resolves to the stored key equal to the given key, or nil.
	GetKey(key Key) *Request

	// CreateIndex defines a secondary index. Valid only in ModeUpgrade.
	CreateIndex(spec IndexSpec) *Request
	// DeleteIndex drops a secondary index. Valid only in ModeUpgrade.
	DeleteIndex(name string) *Request
}
