// Package orchestrator is the asynchronous facade over the platform layer:
// it owns the connection cache, walks the open/upgrade state machine and
// dispatches data operations over short-lived transactions.
//
// Every public call returns a single-settlement Result future. Failures are
// classified by RetCode (see errors.go); notably, dispatching against a
// collection that does not exist rejects with RetCCollectionNotFound rather
// than hanging.
//
// Schema mutations (create/delete collection, create/delete index) close
// the cached connection, bump the store version by one and reopen through
// an upgrade transaction. Bumps for the same store are serialized.
//
// Usage:
//
//	env := memory.New(nil)
//	orch := orchestrator.New(env)
//	defer orch.Close()
//
//	orch.CreateCollection("todo-db", "todos", platform.CollectionOptions{KeyPath: "id"}).Await(ctx)
//	orch.Put("todo-db", "todos", "t1", platform.Document{"title": "ship it"}).Await(ctx)
//	doc, err := orch.Get("todo-db", "todos", "t1").Await(ctx)
package orchestrator
