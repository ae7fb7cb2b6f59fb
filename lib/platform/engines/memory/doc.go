// Package memory provides an in-memory implementation of the
// platform.Environment interface. Each named store lives in a concurrent
// map; per-store state (version, collections, records, index entries) is
// guarded by a single mutex with a condition variable that releases parked
// higher-version opens when competing handles close.
//
// Characteristics:
//   - Opens always run on their own goroutine, so Open never blocks and
//     the blocked/upgrade-needed/success events fire in host order.
//   - Upgrade routines run against the live state under the store lock;
//     a routine error restores a pre-upgrade snapshot, version included.
//   - Records are stored codec-encoded, which doubles as copy isolation:
//     every read decodes a fresh document.
//   - Record maps are keyed by the order-preserving key encoding, so
//     sorted map keys equal key order.
//
// The engine is intended for tests and ephemeral workloads; nothing is
// persisted. For durable storage see the pebble engine.
package memory
