package testing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// EnvFactory is a function that creates a fresh instance of an Environment
// implementation. Every invocation must yield an empty environment.
type EnvFactory func() platform.Environment

// RunEnvironmentTests runs a conformance test suite against an Environment
// implementation.
func RunEnvironmentTests(t *testing.T, name string, factory EnvFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenCreates", func(t *testing.T) {
			testOpenCreates(t, factory())
		})

		t.Run("VersionResolution", func(t *testing.T) {
			testVersionResolution(t, factory())
		})

		t.Run("UpgradeRollback", func(t *testing.T) {
			testUpgradeRollback(t, factory())
		})

		t.Run("BlockedOpen", func(t *testing.T) {
			testBlockedOpen(t, factory())
		})

		t.Run("UpgradeConcurrentAccess", func(t *testing.T) {
			testUpgradeConcurrentAccess(t, factory())
		})

		t.Run("CollectionLifecycle", func(t *testing.T) {
			testCollectionLifecycle(t, factory())
		})

		t.Run("AddPutGet", func(t *testing.T) {
			testAddPutGet(t, factory())
		})

		t.Run("DeleteClearCount", func(t *testing.T) {
			testDeleteClearCount(t, factory())
		})

		t.Run("KeyOrdering", func(t *testing.T) {
			testKeyOrdering(t, factory())
		})

		t.Run("GetKey", func(t *testing.T) {
			testGetKey(t, factory())
		})

		t.Run("TxnScope", func(t *testing.T) {
			testTxnScope(t, factory())
		})

		t.Run("UniqueIndex", func(t *testing.T) {
			testUniqueIndex(t, factory())
		})

		t.Run("MultiEntryIndex", func(t *testing.T) {
			testMultiEntryIndex(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// MustOpen opens a store synchronously, running upgrade (may be nil) inside
// the upgrade transaction, and fails the test on any open error.
func MustOpen(t testing.TB, env platform.Environment, name string, version uint64, upgrade func(up platform.Upgrade) error) platform.Handle {
	t.Helper()
	h, err := Open(env, name, version, upgrade)
	if err != nil {
		t.Fatalf("open %s@%d failed: %v", name, version, err)
	}
	return h
}

// Open opens a store synchronously and returns the handle or the open error.
func Open(env platform.Environment, name string, version uint64, upgrade func(up platform.Upgrade) error) (platform.Handle, error) {
	type outcome struct {
		h   platform.Handle
		err error
	}
	ch := make(chan outcome, 1)
	env.Open(name, version, platform.OpenCallbacks{
		OnSuccess:       func(h platform.Handle) { ch <- outcome{h: h} },
		OnError:         func(err error) { ch <- outcome{err: err} },
		OnUpgradeNeeded: upgrade,
	})
	select {
	case out := <-ch:
		return out.h, out.err
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("open %s@%d did not settle", name, version)
	}
}

// Await drains a request synchronously.
func Await(t testing.TB, req *platform.Request) (any, error) {
	t.Helper()
	type outcome struct {
		v   any
		err error
	}
	ch := make(chan outcome, 1)
	req.Listen(
		func(v any) { ch <- outcome{v: v} },
		func(err error) { ch <- outcome{err: err} },
	)
	select {
	case out := <-ch:
		return out.v, out.err
	case <-time.After(5 * time.Second):
		t.Fatalf("request did not settle")
		return nil, nil
	}
}

// MustSucceed drains a request and fails the test if it rejected.
func MustSucceed(t testing.TB, req *platform.Request) any {
	t.Helper()
	v, err := Await(t, req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return v
}

// withCollection creates a store with one collection and returns a handle.
func withCollection(t testing.TB, env platform.Environment, store, coll string, opts platform.CollectionOptions, specs ...platform.IndexSpec) platform.Handle {
	t.Helper()
	return MustOpen(t, env, store, 1, func(up platform.Upgrade) error {
		c, err := up.Txn.CreateCollection(coll, opts)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			if _, err := Await(t, c.CreateIndex(spec)); err != nil {
				return err
			}
		}
		return nil
	})
}

// rwTxn opens a read-write transaction over one collection.
func rwTxn(t testing.TB, h platform.Handle, coll string) platform.Collection {
	t.Helper()
	txn, err := h.Transaction([]string{coll}, platform.ModeReadWrite)
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	c, err := txn.Collection(coll)
	if err != nil {
		t.Fatalf("collection accessor failed: %v", err)
	}
	return c
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenCreates(t *testing.T, env platform.Environment) {
	defer env.Close()

	if v := env.Version("fresh"); v != 0 {
		t.Errorf("expected version 0 for nonexistent store, got %d", v)
	}

	upgraded := false
	h := MustOpen(t, env, "fresh", 0, func(up platform.Upgrade) error {
		upgraded = true
		if up.OldVersion != 0 || up.NewVersion != 1 {
			t.Errorf("expected upgrade 0->1, got %d->%d", up.OldVersion, up.NewVersion)
		}
		return nil
	})
	defer h.Close()

	if !upgraded {
		t.Errorf("first open at version 0 should create the store via upgrade")
	}
	if h.Version() != 1 {
		t.Errorf("expected handle version 1, got %d", h.Version())
	}
	if h.Name() != "fresh" {
		t.Errorf("expected handle name 'fresh', got %s", h.Name())
	}
	if v := env.Version("fresh"); v != 1 {
		t.Errorf("expected stored version 1, got %d", v)
	}
}

func testVersionResolution(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := MustOpen(t, env, "versions", 3, nil)
	h.Close()

	// Version 0 re-opens at the stored version, no upgrade.
	h = MustOpen(t, env, "versions", 0, func(platform.Upgrade) error {
		t.Errorf("open at version 0 of an existing store must not upgrade")
		return nil
	})
	if h.Version() != 3 {
		t.Errorf("expected version 3, got %d", h.Version())
	}
	h.Close()

	// Equal version: plain open.
	h = MustOpen(t, env, "versions", 3, nil)
	h.Close()

	// Lower version: error.
	if _, err := Open(env, "versions", 2, nil); err == nil {
		t.Errorf("open below the stored version should fail")
	}
	if v := env.Version("versions"); v != 3 {
		t.Errorf("failed open must not change the version, got %d", v)
	}
}

func testUpgradeRollback(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "rollback", "stable", platform.CollectionOptions{})
	c := rwTxn(t, h, "stable")
	MustSucceed(t, c.Put("k", platform.Document{"v": "original"}))
	h.Close()

	boom := fmt.Errorf("upgrade routine failed")
	_, err := Open(env, "rollback", 2, func(up platform.Upgrade) error {
		if _, err := up.Txn.CreateCollection("doomed", platform.CollectionOptions{}); err != nil {
			return err
		}
		c, err := up.Txn.Collection("stable")
		if err != nil {
			return err
		}
		if _, err := Await(t, c.Put("k", platform.Document{"v": "mutated"})); err != nil {
			return err
		}
		return boom
	})
	if err == nil {
		t.Fatalf("expected the aborted upgrade to fail the open")
	}

	if v := env.Version("rollback"); v != 1 {
		t.Errorf("aborted upgrade must leave the version at 1, got %d", v)
	}

	h = MustOpen(t, env, "rollback", 0, nil)
	defer h.Close()
	if h.HasCollection("doomed") {
		t.Errorf("aborted upgrade must roll back schema changes")
	}
	c = rwTxn(t, h, "stable")
	v := MustSucceed(t, c.Get("k"))
	doc, ok := v.(platform.Document)
	if !ok || doc["v"] != "original" {
		t.Errorf("aborted upgrade must roll back data writes, got %v", v)
	}
}

func testBlockedOpen(t *testing.T, env platform.Environment) {
	defer env.Close()

	h1 := MustOpen(t, env, "blocked", 1, nil)

	blocked := make(chan uint64, 1)
	done := make(chan platform.Handle, 1)
	env.Open("blocked", 2, platform.OpenCallbacks{
		OnSuccess: func(h platform.Handle) { done <- h },
		OnError:   func(err error) { t.Errorf("blocked open failed: %v", err); close(done) },
		OnBlocked: func(oldVersion uint64) { blocked <- oldVersion },
	})

	select {
	case old := <-blocked:
		if old != 1 {
			t.Errorf("expected blocked event to report version 1, got %d", old)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected a blocked event while the old handle is live")
	}

	select {
	case <-done:
		t.Fatalf("open must not complete while the old handle is live")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Close()

	select {
	case h2 := <-done:
		if h2 == nil {
			t.Fatalf("blocked open settled without a handle")
		}
		if h2.Version() != 2 {
			t.Errorf("expected version 2 after unblock, got %d", h2.Version())
		}
		h2.Close()
	case <-time.After(5 * time.Second):
		t.Fatalf("open must proceed once the blocking handle closes")
	}
}

func testUpgradeConcurrentAccess(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := MustOpen(t, env, "concurrent", 1, func(up platform.Upgrade) error {
		// Other goroutines share the upgrade handle while the routine
		// mutates the schema, the way callers resolving the connection
		// mid-upgrade do. Schema reads must stay consistent throughout.
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				up.Handle.Collections()
				up.Handle.HasCollection("c5")
			}
		}()

		for i := 0; i < 10; i++ {
			if _, err := up.Txn.CreateCollection(fmt.Sprintf("c%d", i), platform.CollectionOptions{}); err != nil {
				close(stop)
				wg.Wait()
				return err
			}
		}

		// A write dispatched from another goroutine lands in the upgrade
		// and commits with it.
		done := make(chan error, 1)
		go func() {
			txn, err := up.Handle.Transaction([]string{"c0"}, platform.ModeReadWrite)
			if err != nil {
				done <- err
				return
			}
			c, err := txn.Collection("c0")
			if err != nil {
				done <- err
				return
			}
			ch := make(chan error, 1)
			c.Put("k", platform.Document{"v": "staged"}).Listen(
				func(any) { ch <- nil },
				func(err error) { ch <- err },
			)
			done <- <-ch
		}()
		err := <-done

		close(stop)
		wg.Wait()
		return err
	})
	defer h.Close()

	if got := len(h.Collections()); got != 10 {
		t.Errorf("expected 10 collections after the upgrade, got %d", got)
	}
	c := rwTxn(t, h, "c0")
	v := MustSucceed(t, c.Get("k"))
	doc, ok := v.(platform.Document)
	if !ok || doc["v"] != "staged" {
		t.Errorf("expected the mid-upgrade write to commit, got %v", v)
	}
}

func testCollectionLifecycle(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := MustOpen(t, env, "lifecycle", 1, func(up platform.Upgrade) error {
		if _, err := up.Txn.CreateCollection("a", platform.CollectionOptions{KeyPath: "id"}); err != nil {
			return err
		}
		if _, err := up.Txn.CreateCollection("b", platform.CollectionOptions{}); err != nil {
			return err
		}
		// Duplicate creation is an engine-level error.
		if _, err := up.Txn.CreateCollection("a", platform.CollectionOptions{}); err == nil {
			return fmt.Errorf("expected duplicate collection creation to fail")
		}
		return nil
	})

	colls := h.Collections()
	if len(colls) != 2 || colls[0] != "a" || colls[1] != "b" {
		t.Errorf("expected sorted collections [a b], got %v", colls)
	}
	info, ok := h.Info("a")
	if !ok || info.KeyPath != "id" {
		t.Errorf("expected key path 'id' for collection a, got %+v", info)
	}

	// Schema mutations outside an upgrade must fail.
	txn, err := h.Transaction([]string{"a"}, platform.ModeReadWrite)
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if _, err := txn.CreateCollection("c", platform.CollectionOptions{}); err == nil {
		t.Errorf("CreateCollection outside an upgrade should fail")
	}
	h.Close()

	h = MustOpen(t, env, "lifecycle", 2, func(up platform.Upgrade) error {
		return up.Txn.DeleteCollection("b")
	})
	defer h.Close()
	if h.HasCollection("b") {
		t.Errorf("collection b should be gone after deletion")
	}
	if !h.HasCollection("a") {
		t.Errorf("collection a should survive the second upgrade")
	}
}

func testAddPutGet(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "crud", "docs", platform.CollectionOptions{})
	defer h.Close()
	c := rwTxn(t, h, "docs")

	key := MustSucceed(t, c.Add("k1", platform.Document{"n": float64(1)}))
	if key != "k1" {
		t.Errorf("expected Add to resolve to the key, got %v", key)
	}

	if _, err := Await(t, c.Add("k1", platform.Document{"n": float64(2)})); err == nil {
		t.Errorf("Add on an existing key should fail")
	}

	MustSucceed(t, c.Put("k1", platform.Document{"n": float64(2)}))
	v := MustSucceed(t, c.Get("k1"))
	doc, ok := v.(platform.Document)
	if !ok || doc["n"] != float64(2) {
		t.Errorf("expected Put to replace the record, got %v", v)
	}

	if v := MustSucceed(t, c.Get("missing")); v != nil {
		t.Errorf("Get on an absent key should resolve to nil, got %v", v)
	}

	// Numeric keys normalize: int 7 and float64 7 address the same record.
	MustSucceed(t, c.Put(7, platform.Document{"n": float64(7)}))
	v = MustSucceed(t, c.Get(float64(7)))
	if v == nil {
		t.Errorf("int and float64 forms of the same key must address one record")
	}

	if _, err := Await(t, c.Put(nil, platform.Document{})); err == nil {
		t.Errorf("nil keys should be rejected")
	}

	ro, err := h.Transaction([]string{"docs"}, platform.ModeReadOnly)
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	roc, err := ro.Collection("docs")
	if err != nil {
		t.Fatalf("collection accessor failed: %v", err)
	}
	if _, err := Await(t, roc.Put("x", platform.Document{})); err == nil {
		t.Errorf("writes in a read-only transaction should fail")
	}
}

func testDeleteClearCount(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "dcc", "docs", platform.CollectionOptions{})
	defer h.Close()
	c := rwTxn(t, h, "docs")

	for i := 0; i < 10; i++ {
		MustSucceed(t, c.Put(fmt.Sprintf("k%02d", i), platform.Document{"i": float64(i)}))
	}

	if n := MustSucceed(t, c.Count()); n != uint64(10) {
		t.Errorf("expected count 10, got %v", n)
	}

	MustSucceed(t, c.Delete("k00"))
	// Deleting an absent key is not an error.
	MustSucceed(t, c.Delete("k00"))

	if n := MustSucceed(t, c.Count()); n != uint64(9) {
		t.Errorf("expected count 9 after delete, got %v", n)
	}

	MustSucceed(t, c.Clear())
	if n := MustSucceed(t, c.Count()); n != uint64(0) {
		t.Errorf("expected count 0 after clear, got %v", n)
	}
}

func testKeyOrdering(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "order", "docs", platform.CollectionOptions{})
	defer h.Close()
	c := rwTxn(t, h, "docs")

	// Inserted out of order on purpose; numbers sort before strings.
	for _, k := range []platform.Key{"b", float64(10), "a", float64(-3), float64(2)} {
		MustSucceed(t, c.Put(k, platform.Document{}))
	}

	v := MustSucceed(t, c.GetAllKeys(0))
	keys, ok := v.([]platform.Key)
	if !ok {
		t.Fatalf("expected []Key, got %T", v)
	}
	want := []platform.Key{float64(-3), float64(2), float64(10), "a", "b"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key order mismatch at %d: expected %v, got %v", i, want[i], keys[i])
		}
	}

	v = MustSucceed(t, c.GetAllKeys(2))
	keys, _ = v.([]platform.Key)
	if len(keys) != 2 || keys[0] != float64(-3) || keys[1] != float64(2) {
		t.Errorf("expected limited key slice [-3 2], got %v", keys)
	}

	v = MustSucceed(t, c.GetAll(0))
	docs, ok := v.([]platform.Document)
	if !ok || len(docs) != 5 {
		t.Errorf("expected 5 documents, got %v", v)
	}
}

func testGetKey(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "getkey", "docs", platform.CollectionOptions{})
	defer h.Close()
	c := rwTxn(t, h, "docs")

	MustSucceed(t, c.Put(42, platform.Document{}))

	if v := MustSucceed(t, c.GetKey(42)); v != float64(42) {
		t.Errorf("expected the stored (normalized) key 42, got %v", v)
	}
	if v := MustSucceed(t, c.GetKey("missing")); v != nil {
		t.Errorf("GetKey on an absent key should resolve to nil, got %v", v)
	}
}

func testTxnScope(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := MustOpen(t, env, "scope", 1, func(up platform.Upgrade) error {
		if _, err := up.Txn.CreateCollection("in", platform.CollectionOptions{}); err != nil {
			return err
		}
		_, err := up.Txn.CreateCollection("out", platform.CollectionOptions{})
		return err
	})
	defer h.Close()

	txn, err := h.Transaction([]string{"in"}, platform.ModeReadOnly)
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if _, err := txn.Collection("out"); err == nil {
		t.Errorf("accessing a collection outside the transaction scope should fail")
	}
	if _, err := h.Transaction([]string{"nope"}, platform.ModeReadOnly); err == nil {
		t.Errorf("opening a transaction over an unknown collection should fail")
	}
	if _, err := h.Transaction([]string{"in"}, platform.ModeUpgrade); err == nil {
		t.Errorf("requesting an upgrade transaction outside open should fail")
	}
}

func testUniqueIndex(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "unique", "users", platform.CollectionOptions{},
		platform.IndexSpec{Name: "by-email", KeyPaths: []string{"email"}, Unique: true})
	defer h.Close()
	c := rwTxn(t, h, "users")

	MustSucceed(t, c.Put("u1", platform.Document{"email": "a@example.com"}))
	MustSucceed(t, c.Put("u2", platform.Document{"email": "b@example.com"}))

	if _, err := Await(t, c.Put("u3", platform.Document{"email": "a@example.com"})); err == nil {
		t.Errorf("duplicate value under a unique index should be rejected")
	}
	// The failed write must not have landed.
	if v := MustSucceed(t, c.Get("u3")); v != nil {
		t.Errorf("rejected write must not persist, got %v", v)
	}

	// Replacing the record that owns the value is fine.
	MustSucceed(t, c.Put("u1", platform.Document{"email": "a@example.com"}))
	// And freeing the value makes it claimable.
	MustSucceed(t, c.Put("u1", platform.Document{"email": "c@example.com"}))
	MustSucceed(t, c.Put("u3", platform.Document{"email": "a@example.com"}))
}

func testMultiEntryIndex(t *testing.T, env platform.Environment) {
	defer env.Close()

	h := withCollection(t, env, "multi", "posts", platform.CollectionOptions{},
		platform.IndexSpec{Name: "by-tag", KeyPaths: []string{"tags"}, MultiEntry: true, Unique: true})
	defer h.Close()
	c := rwTxn(t, h, "posts")

	MustSucceed(t, c.Put("p1", platform.Document{"tags": []any{"go", "db"}}))

	// "go" is taken by p1 through the multi-entry expansion.
	if _, err := Await(t, c.Put("p2", platform.Document{"tags": []any{"go"}})); err == nil {
		t.Errorf("duplicate multi-entry value under a unique index should be rejected")
	}

	// Documents without the indexed path are simply not indexed.
	MustSucceed(t, c.Put("p3", platform.Document{"title": "untagged"}))
	MustSucceed(t, c.Put("p4", platform.Document{"title": "untagged too"}))
}
