package pebble

import (
	"testing"

	"github.com/dylan-green/promise-idb/lib/platform"
	envtesting "github.com/dylan-green/promise-idb/lib/platform/testing"
)

func Test(t *testing.T) {
	envtesting.RunEnvironmentTests(t, "Pebble", func() platform.Environment {
		env, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("failed to open pebble environment: %v", err)
		}
		return env
	})
}

func Benchmark(b *testing.B) {
	envtesting.RunEnvironmentBenchmarks(b, "Pebble", func() platform.Environment {
		env, err := Open(b.TempDir())
		if err != nil {
			b.Fatalf("failed to open pebble environment: %v", err)
		}
		return env
	})
}

// Reopen covers what the in-memory engine cannot: schema and records must
// survive a close/open cycle of the whole environment.
func TestReopen(t *testing.T) {
	dir := t.TempDir()

	env, err := Open(dir)
	if err != nil {
		t.Fatalf("failed to open pebble environment: %v", err)
	}

	h := envtesting.MustOpen(t, env, "persist", 2, func(up platform.Upgrade) error {
		c, err := up.Txn.CreateCollection("docs", platform.CollectionOptions{KeyPath: "id"})
		if err != nil {
			return err
		}
		_, err = envtesting.Await(t, c.Put("k1", platform.Document{"id": "k1", "n": float64(1)}))
		return err
	})
	h.Close()
	if err := env.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	env, err = Open(dir)
	if err != nil {
		t.Fatalf("failed to reopen pebble environment: %v", err)
	}
	defer env.Close()

	if v := env.Version("persist"); v != 2 {
		t.Errorf("expected persisted version 2, got %d", v)
	}

	h = envtesting.MustOpen(t, env, "persist", 0, nil)
	defer h.Close()

	info, ok := h.Info("docs")
	if !ok || info.KeyPath != "id" {
		t.Errorf("expected persisted key path 'id', got %+v", info)
	}

	txn, err := h.Transaction([]string{"docs"}, platform.ModeReadOnly)
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	c, err := txn.Collection("docs")
	if err != nil {
		t.Fatalf("collection accessor failed: %v", err)
	}
	v := envtesting.MustSucceed(t, c.Get("k1"))
	doc, ok := v.(platform.Document)
	if !ok || doc["n"] != float64(1) {
		t.Errorf("expected persisted record, got %v", v)
	}
}
