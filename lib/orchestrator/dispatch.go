package orchestrator

import (
	"github.com/dylan-green/promise-idb/lib/platform"
)

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// dispatch runs one data operation against the cached connection for name:
// resolve the connection, verify the collection exists, open a short-lived
// single-collection transaction and issue the operation through fn.
//
// The collection existence check is explicit and happens before the
// transaction opens; dispatching against an unknown collection rejects with
// RetCCollectionNotFound instead of leaving the result pending forever.
func dispatch[T any](o *orchestratorImpl, name, collection, op string, mode platform.Mode, fn func(c platform.Collection) *platform.Request) *Result[T] {
	if err := o.guard(name); err != nil {
		countOp(op, err)
		return rejected[T](err)
	}
	if collection == "" {
		err := NewError(RetCMissingName, "collection name is required")
		countOp(op, err)
		return rejected[T](err)
	}

	res := newResult[T]()
	go func() {
		reject := func(err *Error) {
			countOp(op, err)
			res.reject(err)
		}

		h, ok := o.cache.Resolve(name)
		if !ok {
			reject(NewError(RetCNoConnection, "could not resolve a connection to store '"+name+"'"))
			return
		}
		if !h.HasCollection(collection) {
			reject(NewError(RetCCollectionNotFound,
				"collection '"+collection+"' does not exist in store '"+name+"'"))
			return
		}

		txn, err := h.Transaction([]string{collection}, mode)
		if err != nil {
			reject(fromPlatform(err))
			return
		}
		coll, err := txn.Collection(collection)
		if err != nil {
			reject(fromPlatform(err))
			return
		}

		fn(coll).Listen(
			func(v any) {
				countOp(op, nil)
				res.resolve(convert[T](v))
			},
			func(err error) {
				reject(fromPlatform(err))
			},
		)
	}()
	return res
}

// convert narrows an engine result to the operation's value type. A nil
// engine result (absent record) becomes the zero value.
func convert[T any](v any) T {
	var zero T
	if v == nil {
		return zero
	}
	if t, ok := v.(T); ok {
		return t
	}
	return zero
}

// inlineKey merges the primary key into the document under the collection's
// key path, on a shallow top-level copy so the caller's map stays untouched.
// Collections without a key path store the document as given.
func inlineKey(c platform.Collection, key platform.Key, doc platform.Document) (platform.Document, error) {
	path := c.KeyPath()
	if path == "" || doc == nil {
		return doc, nil
	}
	norm, err := platform.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	merged := make(platform.Document, len(doc)+1)
	for k, v := range doc {
		merged[k] = v
	}
	platform.MergePath(merged, path, norm)
	return merged, nil
}

// --------------------------------------------------------------------------
// Data Operations
// --------------------------------------------------------------------------

func (o *orchestratorImpl) Add(name, collection string, key platform.Key, doc platform.Document) *Result[platform.Key] {
	return dispatch[platform.Key](o, name, collection, "add", platform.ModeReadWrite,
		func(c platform.Collection) *platform.Request {
			d, err := inlineKey(c, key, doc)
			if err != nil {
				return platform.FailedRequest(err)
			}
			return c.Add(key, d)
		})
}

func (o *orchestratorImpl) Put(name, collection string, key platform.Key, doc platform.Document) *Result[platform.Key] {
	return dispatch[platform.Key](o, name, collection, "put", platform.ModeReadWrite,
		func(c platform.Collection) *platform.Request {
			d, err := inlineKey(c, key, doc)
			if err != nil {
				return platform.FailedRequest(err)
			}
			return c.Put(key, d)
		})
}

func (o *orchestratorImpl) Get(name, collection string, key platform.Key) *Result[platform.Document] {
	return dispatch[platform.Document](o, name, collection, "get", platform.ModeReadOnly,
		func(c platform.Collection) *platform.Request {
			return c.Get(key)
		})
}

func (o *orchestratorImpl) GetKey(name, collection string, key platform.Key) *Result[platform.Key] {
	return dispatch[platform.Key](o, name, collection, "get-key", platform.ModeReadOnly,
		func(c platform.Collection) *platform.Request {
			return c.GetKey(key)
		})
}

func (o *orchestratorImpl) Delete(name, collection string, key platform.Key) *Result[struct{}] {
	return dispatch[struct{}](o, name, collection, "delete", platform.ModeReadWrite,
		func(c platform.Collection) *platform.Request {
			return c.Delete(key)
		})
}

func (o *orchestratorImpl) Clear(name, collection string) *Result[struct{}] {
	return dispatch[struct{}](o, name, collection, "clear", platform.ModeReadWrite,
		func(c platform.Collection) *platform.Request {
			return c.Clear()
		})
}

func (o *orchestratorImpl) Count(name, collection string) *Result[uint64] {
	return dispatch[uint64](o, name, collection, "count", platform.ModeReadOnly,
		func(c platform.Collection) *platform.Request {
			return c.Count()
		})
}

func (o *orchestratorImpl) GetAll(name, collection string, limit int) *Result[[]platform.Document] {
	return dispatch[[]platform.Document](o, name, collection, "get-all", platform.ModeReadOnly,
		func(c platform.Collection) *platform.Request {
			return c.GetAll(limit)
		})
}

func (o *orchestratorImpl) GetAllKeys(name, collection string, limit int) *Result[[]platform.Key] {
	return dispatch[[]platform.Key](o, name, collection, "get-all-keys", platform.ModeReadOnly,
		func(c platform.Collection) *platform.Request {
			return c.GetAllKeys(limit)
		})
}
