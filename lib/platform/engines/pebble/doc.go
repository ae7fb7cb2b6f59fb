// Package pebble provides a durable implementation of the
// platform.Environment interface on top of cockroachdb/pebble.
//
// One pebble database backs the whole environment. Named stores,
// collections and secondary indexes share the keyspace through disjoint
// NUL-separated prefixes (see keys.go); each store's schema and version are
// persisted as a JSON manifest under the store's meta key. Record keys use
// the order-preserving key encoding, so prefix iteration yields key order
// without any extra bookkeeping.
//
// Upgrade transactions run against an indexed batch plus a staged copy of
// the manifest: schema mutations, data writes and the new manifest commit
// in one atomic batch, and an error from the upgrade routine discards all
// of it, leaving the store at its prior version.
//
// The in-process open/blocked coordination (live handle sets, parked
// higher-version opens) mirrors the memory engine; pebble itself handles
// all storage-level synchronization.
package pebble
