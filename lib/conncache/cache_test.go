package conncache

import (
	"sync"
	"testing"

	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/dylan-green/promise-idb/lib/platform/engines/memory"
)

func TestResolveOpensOnce(t *testing.T) {
	env := memory.New(nil)
	defer env.Close()
	cache := New(env)

	h1, ok := cache.Resolve("todo-db")
	if !ok || h1 == nil {
		t.Fatalf("expected resolve to open a connection")
	}
	if h1.Version() != 1 {
		t.Errorf("first resolve should create the store at version 1, got %d", h1.Version())
	}

	h2, ok := cache.Resolve("todo-db")
	if !ok || h2 != h1 {
		t.Errorf("second resolve must return the cached handle")
	}
	if cache.Len() != 1 {
		t.Errorf("expected one cached entry, got %d", cache.Len())
	}
}

func TestResolveNeverFailsCaller(t *testing.T) {
	env := memory.New(nil)
	env.Close()
	cache := New(env)

	h, ok := cache.Resolve("dead")
	if ok || h != nil {
		t.Errorf("resolve against a closed environment must report (nil, false), got %v", h)
	}
	if cache.Len() != 0 {
		t.Errorf("failed resolves must not cache anything")
	}
}

func TestSetAndDrop(t *testing.T) {
	env := memory.New(nil)
	defer env.Close()
	cache := New(env)

	h1, _ := cache.Resolve("store")

	h2, err := openAt(env, "store", 0)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	cache.Set("store", h2)

	got, ok := cache.Resolve("store")
	if !ok || got != h2 {
		t.Errorf("Set must replace the cached handle")
	}
	h1.Close()

	dropped, ok := cache.Drop("store")
	if !ok || dropped != h2 {
		t.Errorf("Drop must return the cached handle")
	}
	if _, ok := cache.Drop("store"); ok {
		t.Errorf("second Drop must report absence")
	}
	dropped.Close()
}

func TestResolveConcurrent(t *testing.T) {
	env := memory.New(nil)
	defer env.Close()
	cache := New(env)

	handles := make([]platform.Handle, 16)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, ok := cache.Resolve("shared")
			if !ok {
				t.Errorf("concurrent resolve failed")
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(handles); i++ {
		if handles[i] != handles[0] {
			t.Errorf("all concurrent resolves must converge on one handle")
		}
	}
	if cache.Len() != 1 {
		t.Errorf("expected one cached entry, got %d", cache.Len())
	}
}

// openAt opens a handle synchronously, bypassing the cache.
func openAt(env platform.Environment, name string, version uint64) (platform.Handle, error) {
	type outcome struct {
		h   platform.Handle
		err error
	}
	ch := make(chan outcome, 1)
	env.Open(name, version, platform.OpenCallbacks{
		OnSuccess: func(h platform.Handle) { ch <- outcome{h: h} },
		OnError:   func(err error) { ch <- outcome{err: err} },
	})
	out := <-ch
	return out.h, out.err
}
