// Package platform defines the contract for the versioned, schema-mutating
// embedded store that the facade in lib/orchestrator drives. It plays the
// role of the host database layer: opens are event-driven, schema changes
// are only valid inside the special transaction granted by a
// version-incrementing open, and every operation settles through a request
// object that fires exactly one success or error event.
//
// The package focuses on:
//   - A unified Environment interface over named, versioned stores
//   - Event-callback open semantics (success/error/blocked/upgrade-needed)
//   - Single-settlement Request objects for all collection operations
//   - Shared key validation, ordered key encoding and key-path helpers
//
// Key Components:
//
//   - Environment: the engine entry point. Open(name, version, callbacks)
//     connects to a named store; version 0 means "existing version, or 1 on
//     first creation". Opening at a higher version than stored triggers the
//     upgrade-needed event with a handle and an upgrade transaction; schema
//     mutations (collection and index create/delete) are valid only there.
//
//   - Handle: one live connection. It exposes the collection set and creates
//     short-lived read-only or read-write transactions. A pending
//     higher-version open for the same store fires the blocked event until
//     every competing handle is closed; the platform never force-closes.
//
//   - Request: the single-settlement primitive. Engines settle each request
//     exactly once; listeners attached after settlement receive the buffered
//     outcome. Double settlement attempts are dropped, which shields callers
//     from engines that report the same failure on more than one path.
//
//   - Key encoding: keys are strings or numbers. EncodeKey produces an
//     order-preserving byte form (numbers before strings) used by engines
//     for iteration order and index layout.
//
// Implementations:
//
//	Two engines implement the Environment interface:
//
//	- Memory (engines/memory): a concurrent in-memory engine built on
//	  xsync maps. Suited for tests and ephemeral workloads.
//
//	- Pebble (engines/pebble): a durable engine built on cockroachdb/pebble
//	  with key-prefix separation between stores, collections and indexes.
package platform
