package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/dylan-green/promise-idb/lib/platform/engines/memory"
)

func newTestOrchestrator() IOrchestrator {
	return New(memory.New(nil))
}

// await unwraps a result with a test-scoped timeout.
func await[T any](t *testing.T, res *Result[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := res.Await(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("result did not settle")
	}
	return v, err
}

func mustResolve[T any](t *testing.T, res *Result[T]) T {
	t.Helper()
	v, err := await(t, res)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	return v
}

func mustReject[T any](t *testing.T, res *Result[T], code RetCode) {
	t.Helper()
	_, err := await(t, res)
	if err == nil {
		t.Fatalf("expected rejection with %s", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected code %s, got %s (%v)", code, got, err)
	}
}

// --------------------------------------------------------------------------
// Guards
// --------------------------------------------------------------------------

func TestNilEnvironment(t *testing.T) {
	orch := New(nil)
	defer orch.Close()

	mustReject(t, orch.Open("db", 0, OpenHooks{}), RetCPlatformUnavailable)
	mustReject(t, orch.Put("db", "c", "k", platform.Document{}), RetCPlatformUnavailable)
	mustReject(t, orch.GetVersion("db"), RetCPlatformUnavailable)
	mustReject(t, orch.CreateCollection("db", "c", platform.CollectionOptions{}), RetCPlatformUnavailable)
}

func TestMissingName(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustReject(t, orch.Open("", 0, OpenHooks{}), RetCMissingName)
	mustReject(t, orch.Get("", "c", "k"), RetCMissingName)
	mustReject(t, orch.Get("db", "", "k"), RetCMissingName)
}

// --------------------------------------------------------------------------
// Open / Version
// --------------------------------------------------------------------------

func TestOpenCreatesAndCaches(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	var upgraded bool
	h := mustResolve(t, orch.Open("db", 0, OpenHooks{
		OnUpgrade: func(up platform.Upgrade) error {
			upgraded = true
			return nil
		},
	}))
	if !upgraded {
		t.Errorf("first open must create the store through an upgrade")
	}
	if h.Version() != 1 {
		t.Errorf("expected version 1, got %d", h.Version())
	}

	cached, ok := orch.Cache().Resolve("db")
	if !ok || cached != h {
		t.Errorf("open must cache the handle it resolves with")
	}
	if v := mustResolve(t, orch.GetVersion("db")); v != 1 {
		t.Errorf("expected stored version 1, got %d", v)
	}
}

func TestGetVersionMissingStore(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	if v := mustResolve(t, orch.GetVersion("nope")); v != 0 {
		t.Errorf("expected version 0 for a nonexistent store, got %d", v)
	}
}

func TestOpenUpgradeAbort(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "keep", platform.CollectionOptions{}))

	boom := fmt.Errorf("routine failed")
	var sawError bool
	_, err := await(t, orch.Open("db", 5, OpenHooks{
		OnError:   func(error) { sawError = true },
		OnUpgrade: func(up platform.Upgrade) error { return boom },
	}))
	if err == nil {
		t.Fatalf("expected the aborted upgrade to reject the open")
	}
	if !sawError {
		t.Errorf("OnError hook must fire on rejection")
	}

	if v := mustResolve(t, orch.GetVersion("db")); v != 1 {
		t.Errorf("aborted upgrade must not change the version, got %d", v)
	}
	// The store still works through a fresh connection.
	mustResolve(t, orch.Put("db", "keep", "k", platform.Document{"v": float64(1)}))
}

func TestOpenBlockedByExternalHandle(t *testing.T) {
	env := memory.New(nil)
	orch := New(env)
	defer orch.Close()

	// A competing connection this orchestrator does not own.
	extCh := make(chan platform.Handle, 1)
	env.Open("db", 1, platform.OpenCallbacks{
		OnSuccess:       func(h platform.Handle) { extCh <- h },
		OnUpgradeNeeded: func(platform.Upgrade) error { return nil },
	})
	var ext platform.Handle
	select {
	case ext = <-extCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("external open did not settle")
	}

	blocked := make(chan uint64, 1)
	res := orch.Open("db", 2, OpenHooks{
		OnBlocked: func(old uint64) { blocked <- old },
	})

	select {
	case old := <-blocked:
		if old != 1 {
			t.Errorf("expected the blocked hook to report version 1, got %d", old)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the blocked hook to fire while the external handle is live")
	}
	if res.Settled() {
		t.Fatalf("the open must stay pending while the external handle is live")
	}

	// Closing the competing handle is what releases the open.
	ext.Close()
	h := mustResolve(t, res)
	if h.Version() != 2 {
		t.Errorf("expected version 2 after the external handle closed, got %d", h.Version())
	}
}

func TestCloseClosesCachedHandles(t *testing.T) {
	orch := newTestOrchestrator()

	mustResolve(t, orch.CreateCollection("db", "docs", platform.CollectionOptions{}))
	h, ok := orch.Cache().Resolve("db")
	if !ok {
		t.Fatalf("expected a cached connection")
	}

	if err := orch.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if n := orch.Cache().Len(); n != 0 {
		t.Errorf("close must empty the connection cache, got %d entries", n)
	}
	if _, err := h.Transaction([]string{"docs"}, platform.ModeReadWrite); err == nil {
		t.Errorf("close must close the cached handles")
	}
}

// --------------------------------------------------------------------------
// Schema Operations
// --------------------------------------------------------------------------

func TestCreateCollectionIdempotent(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	h := mustResolve(t, orch.CreateCollection("db", "todos", platform.CollectionOptions{KeyPath: "id"}))
	if h.Version() != 1 {
		t.Errorf("expected version 1 after first creation, got %d", h.Version())
	}
	if !h.HasCollection("todos") {
		t.Errorf("collection must exist after creation")
	}

	// Second creation is a no-op on the schema but still bumps the version.
	h = mustResolve(t, orch.CreateCollection("db", "todos", platform.CollectionOptions{KeyPath: "id"}))
	if h.Version() != 2 {
		t.Errorf("expected version 2 after idempotent re-creation, got %d", h.Version())
	}
	info, _ := h.Info("todos")
	if info.KeyPath != "id" {
		t.Errorf("re-creation must not alter the schema, got %+v", info)
	}
}

func TestDeleteCollection(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "temp", platform.CollectionOptions{}))
	mustResolve(t, orch.Put("db", "temp", "k", platform.Document{}))

	h := mustResolve(t, orch.DeleteCollection("db", "temp"))
	if h.HasCollection("temp") {
		t.Errorf("collection must be gone after deletion")
	}

	// Deleting a missing collection is a no-op that bumps the version.
	h = mustResolve(t, orch.DeleteCollection("db", "temp"))
	if h.Version() != 3 {
		t.Errorf("expected version 3, got %d", h.Version())
	}
}

func TestCreateIndex(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "users", platform.CollectionOptions{}))
	h := mustResolve(t, orch.CreateIndex("db", "users",
		platform.IndexSpec{Name: "by-email", KeyPaths: []string{"email"}, Unique: true}))

	info, _ := h.Info("users")
	if len(info.Indexes) != 1 || info.Indexes[0].Name != "by-email" {
		t.Errorf("expected the index to be declared, got %+v", info.Indexes)
	}

	// Re-creating an existing index is skipped, the version still bumps.
	h = mustResolve(t, orch.CreateIndex("db", "users",
		platform.IndexSpec{Name: "by-email", KeyPaths: []string{"email"}}))
	info, _ = h.Info("users")
	if len(info.Indexes) != 1 || !info.Indexes[0].Unique {
		t.Errorf("existing index must not be redefined, got %+v", info.Indexes)
	}

	mustReject(t, orch.CreateIndex("db", "ghosts",
		platform.IndexSpec{Name: "x", KeyPaths: []string{"x"}}), RetCCollectionNotFound)

	mustResolve(t, orch.Put("db", "users", "u1", platform.Document{"email": "a@example.com"}))
	mustReject(t, orch.Put("db", "users", "u2", platform.Document{"email": "a@example.com"}),
		RetCOperationError)
}

func TestDeleteIndex(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "users", platform.CollectionOptions{}))
	mustResolve(t, orch.CreateIndex("db", "users",
		platform.IndexSpec{Name: "by-email", KeyPaths: []string{"email"}}))

	h := mustResolve(t, orch.DeleteIndex("db", "users", "by-email"))
	info, _ := h.Info("users")
	if len(info.Indexes) != 0 {
		t.Errorf("expected no indexes after deletion, got %+v", info.Indexes)
	}

	// Deleting a missing index is a no-op.
	mustResolve(t, orch.DeleteIndex("db", "users", "by-email"))
	mustReject(t, orch.DeleteIndex("db", "ghosts", "x"), RetCCollectionNotFound)
}

func TestSchemaMutationsSerialize(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	numColls := 8
	var wg sync.WaitGroup
	errs := make([]error, numColls)
	for i := 0; i < numColls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, errs[i] = orch.CreateCollection("db",
				fmt.Sprintf("coll-%d", i), platform.CollectionOptions{}).Await(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("creation %d failed: %v", i, err)
		}
	}
	if v := mustResolve(t, orch.GetVersion("db")); v != uint64(numColls) {
		t.Errorf("expected %d version bumps, got %d", numColls, v)
	}
	h, _ := orch.Cache().Resolve("db")
	if got := len(h.Collections()); got != numColls {
		t.Errorf("expected %d collections, got %d", numColls, got)
	}
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

func TestDispatchUnknownCollectionRejects(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "real", platform.CollectionOptions{}))

	// Dispatching against a collection that does not exist must reject
	// promptly, not hang.
	mustReject(t, orch.Put("db", "ghost", "k", platform.Document{}), RetCCollectionNotFound)
	mustReject(t, orch.Get("db", "ghost", "k"), RetCCollectionNotFound)
	mustReject(t, orch.Count("db", "ghost"), RetCCollectionNotFound)
}

func TestAddPutGetDelete(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "docs", platform.CollectionOptions{}))

	if key := mustResolve(t, orch.Add("db", "docs", "k1", platform.Document{"n": float64(1)})); key != "k1" {
		t.Errorf("Add must resolve to the record key, got %v", key)
	}
	mustReject(t, orch.Add("db", "docs", "k1", platform.Document{}), RetCOperationError)

	mustResolve(t, orch.Put("db", "docs", "k1", platform.Document{"n": float64(2)}))
	doc := mustResolve(t, orch.Get("db", "docs", "k1"))
	if doc["n"] != float64(2) {
		t.Errorf("expected replaced document, got %v", doc)
	}

	if doc := mustResolve(t, orch.Get("db", "docs", "missing")); doc != nil {
		t.Errorf("Get on an absent key must resolve to nil, got %v", doc)
	}
	if key := mustResolve(t, orch.GetKey("db", "docs", "k1")); key != "k1" {
		t.Errorf("expected stored key k1, got %v", key)
	}

	mustResolve(t, orch.Delete("db", "docs", "k1"))
	// Deleting an absent record resolves.
	mustResolve(t, orch.Delete("db", "docs", "k1"))

	mustReject(t, orch.Put("db", "docs", nil, platform.Document{}), RetCOperationError)
}

func TestKeyInlining(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "todos", platform.CollectionOptions{KeyPath: "meta.id"}))

	given := platform.Document{"title": "write tests"}
	mustResolve(t, orch.Put("db", "todos", "t1", given))

	doc := mustResolve(t, orch.Get("db", "todos", "t1"))
	v, ok := platform.ExtractPath(doc, "meta.id")
	if !ok || v != "t1" {
		t.Errorf("expected the key inlined under meta.id, got %v", doc)
	}
	if doc["title"] != "write tests" {
		t.Errorf("inlining must preserve the document fields, got %v", doc)
	}
	// The caller's map stays untouched.
	if _, ok := given["meta"]; ok {
		t.Errorf("inlining must not mutate the caller's document")
	}

	// Numeric keys inline in their normalized form.
	mustResolve(t, orch.Put("db", "todos", 7, platform.Document{}))
	doc = mustResolve(t, orch.Get("db", "todos", 7))
	if v, _ := platform.ExtractPath(doc, "meta.id"); v != float64(7) {
		t.Errorf("expected normalized key inlined, got %v", v)
	}
}

func TestClearCountGetAll(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "docs", platform.CollectionOptions{}))
	for i := 0; i < 5; i++ {
		mustResolve(t, orch.Put("db", "docs", fmt.Sprintf("k%d", i), platform.Document{"i": float64(i)}))
	}

	if n := mustResolve(t, orch.Count("db", "docs")); n != 5 {
		t.Errorf("expected count 5, got %d", n)
	}

	docs := mustResolve(t, orch.GetAll("db", "docs", 0))
	if len(docs) != 5 || docs[0]["i"] != float64(0) {
		t.Errorf("expected 5 documents in key order, got %v", docs)
	}
	keys := mustResolve(t, orch.GetAllKeys("db", "docs", 3))
	if len(keys) != 3 || keys[0] != "k0" {
		t.Errorf("expected limited keys [k0 k1 k2], got %v", keys)
	}

	mustResolve(t, orch.Clear("db", "docs"))
	if n := mustResolve(t, orch.Count("db", "docs")); n != 0 {
		t.Errorf("expected count 0 after clear, got %d", n)
	}
}

func TestDispatchReusesCachedConnection(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "docs", platform.CollectionOptions{}))
	h1, _ := orch.Cache().Resolve("db")

	for i := 0; i < 10; i++ {
		mustResolve(t, orch.Put("db", "docs", fmt.Sprintf("k%d", i), platform.Document{}))
	}

	h2, _ := orch.Cache().Resolve("db")
	if h1 != h2 {
		t.Errorf("dispatch must reuse the cached connection")
	}
	if orch.Cache().Len() != 1 {
		t.Errorf("expected one cached connection, got %d", orch.Cache().Len())
	}
}

func TestWritePrometheus(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("db", "docs", platform.CollectionOptions{}))
	mustResolve(t, orch.Put("db", "docs", "k", platform.Document{}))

	var buf bytes.Buffer
	WritePrometheus(&buf)
	if !strings.Contains(buf.String(), "pidb_ops_total") {
		t.Errorf("expected operation counters in the exposition output, got %q", buf.String())
	}
}

// --------------------------------------------------------------------------
// Result semantics
// --------------------------------------------------------------------------

func TestResultSingleSettlement(t *testing.T) {
	res := newResult[int]()
	if !res.resolve(1) {
		t.Errorf("first settlement must win")
	}
	if res.resolve(2) || res.reject(fmt.Errorf("late")) {
		t.Errorf("later settlements must be dropped")
	}
	v, err := res.Await(context.Background())
	if v != 1 || err != nil {
		t.Errorf("expected (1, nil), got (%v, %v)", v, err)
	}
}

func TestResultAwaitContext(t *testing.T) {
	res := newResult[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := res.Await(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if res.Settled() {
		t.Errorf("an abandoned wait must not settle the result")
	}

	res.resolve(7)
	v, err := res.Await(context.Background())
	if v != 7 || err != nil {
		t.Errorf("expected (7, nil) after late settlement, got (%v, %v)", v, err)
	}
}

// --------------------------------------------------------------------------
// Realistic usage
// --------------------------------------------------------------------------

func TestTodoWorkflow(t *testing.T) {
	orch := newTestOrchestrator()
	defer orch.Close()

	mustResolve(t, orch.CreateCollection("todo-db", "todos", platform.CollectionOptions{KeyPath: "id"}))

	for i := 0; i < 4; i++ {
		mustResolve(t, orch.Add("todo-db", "todos", fmt.Sprintf("t%d", i), platform.Document{
			"title": fmt.Sprintf("task %d", i),
			"done":  false,
		}))
	}

	doc := mustResolve(t, orch.Get("todo-db", "todos", "t2"))
	doc["done"] = true
	mustResolve(t, orch.Put("todo-db", "todos", "t2", doc))

	doc = mustResolve(t, orch.Get("todo-db", "todos", "t2"))
	if doc["done"] != true || doc["id"] != "t2" {
		t.Errorf("expected completed todo with inlined id, got %v", doc)
	}

	mustResolve(t, orch.Delete("todo-db", "todos", "t0"))
	if n := mustResolve(t, orch.Count("todo-db", "todos")); n != 3 {
		t.Errorf("expected 3 todos, got %d", n)
	}

	docs := mustResolve(t, orch.GetAll("todo-db", "todos", 0))
	if len(docs) != 3 || docs[0]["id"] != "t1" {
		t.Errorf("expected todos t1..t3 in key order, got %v", docs)
	}
}
