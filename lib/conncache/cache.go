// Package conncache is the single source of truth for "the current live
// connection for store name N". It caches one handle per name for the
// lifetime of the process: no eviction, no TTL, no capacity bound. Callers
// that use many distinct names own the growth; Drop exists for explicit
// release.
package conncache

import (
	"github.com/dylan-green/promise-idb/lib/logging"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Cache maps store name to the live connection handle.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	env     platform.Environment
	entries *xsync.MapOf[string, platform.Handle]
	log     *zap.SugaredLogger
}

// New creates an empty cache bound to one environment.
func New(env platform.Environment) *Cache {
	return &Cache{
		env:     env,
		entries: xsync.NewMapOf[string, platform.Handle](),
		log:     logging.GetLogger("conncache"),
	}
}

// Resolve returns the cached handle for name, opening one at the store's
// existing version on first use. This operation never fails the caller: any
// open failure resolves to (nil, false) and the caller produces its own
// domain error. A dead store therefore cannot poison call sites that merely
// probe for existence.
func (c *Cache) Resolve(name string) (platform.Handle, bool) {
	if h, ok := c.entries.Load(name); ok {
		return h, true
	}

	type outcome struct {
		h   platform.Handle
		err error
	}
	ch := make(chan outcome, 1)
	c.env.Open(name, 0, platform.OpenCallbacks{
		OnSuccess: func(h platform.Handle) { ch <- outcome{h: h} },
		OnError:   func(err error) { ch <- outcome{err: err} },
	})

	out := <-ch
	if out.err != nil {
		c.log.Debugw("resolve failed", "store", name, "err", out.err)
		return nil, false
	}

	// Two concurrent resolves can both open; keep the first, close ours.
	if actual, loaded := c.entries.LoadOrStore(name, out.h); loaded {
		out.h.Close()
		return actual, true
	}
	return out.h, true
}

// Set replaces the cached entry unconditionally (last write wins). Called
// after every successful open, upgrade opens included.
func (c *Cache) Set(name string, h platform.Handle) {
	c.entries.Store(name, h)
}

// Drop removes and returns the cached entry, if any. The caller owns
// closing the returned handle.
func (c *Cache) Drop(name string) (platform.Handle, bool) {
	return c.entries.LoadAndDelete(name)
}

// Len returns the number of cached connections.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Range calls fn for every cached entry until fn returns false.
func (c *Cache) Range(fn func(name string, h platform.Handle) bool) {
	c.entries.Range(fn)
}
