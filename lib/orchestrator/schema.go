package orchestrator

import (
	"github.com/dylan-green/promise-idb/lib/platform"
)

// mutateSchema implements the shared shape of every schema operation: close
// the cached connection (schema mutations require a fresh upgrade open),
// reopen at current version + 1 and run the mutation inside the upgrade
// transaction. Bumps for the same store are serialized through the per-name
// schema lock so concurrent mutations cannot race to the same version.
func (o *orchestratorImpl) mutateSchema(name, op string, routine func(up platform.Upgrade) error) *Result[platform.Handle] {
	if err := o.guard(name); err != nil {
		countOp(op, err)
		return rejected[platform.Handle](err)
	}

	res := newResult[platform.Handle]()
	go func() {
		unlock := o.lockSchema(name)
		go func() {
			<-res.Done()
			res.mu.Lock()
			err := res.err
			res.mu.Unlock()
			countOp(op, err)
			unlock()
		}()

		// The cached handle would block its own upgrade; close it first.
		var cur uint64
		if h, ok := o.cache.Drop(name); ok {
			cur = h.Version()
			h.Close()
		} else {
			cur = o.env.Version(name)
		}

		o.openAt(name, cur+1, OpenHooks{OnUpgrade: routine}, res)
	}()
	return res
}

// awaitUpgradeReq drains a request issued inside an upgrade routine.
// Engines settle upgrade-scoped requests before returning, so this never
// parks for long.
func awaitUpgradeReq(req *platform.Request) error {
	errCh := make(chan error, 1)
	req.Listen(
		func(any) { errCh <- nil },
		func(err error) { errCh <- err },
	)
	return <-errCh
}

func hasIndex(info platform.CollectionInfo, name string) bool {
	for _, spec := range info.Indexes {
		if spec.Name == name {
			return true
		}
	}
	return false
}

func (o *orchestratorImpl) CreateCollection(name, collection string, opts platform.CollectionOptions) *Result[platform.Handle] {
	return o.mutateSchema(name, "create-collection", func(up platform.Upgrade) error {
		if up.Handle.HasCollection(collection) {
			// Idempotent: the version still bumps, the schema is untouched.
			return nil
		}
		_, err := up.Txn.CreateCollection(collection, opts)
		return err
	})
}

func (o *orchestratorImpl) DeleteCollection(name, collection string) *Result[platform.Handle] {
	return o.mutateSchema(name, "delete-collection", func(up platform.Upgrade) error {
		if !up.Handle.HasCollection(collection) {
			return nil
		}
		return up.Txn.DeleteCollection(collection)
	})
}

func (o *orchestratorImpl) CreateIndex(name, collection string, specs ...platform.IndexSpec) *Result[platform.Handle] {
	return o.mutateSchema(name, "create-index", func(up platform.Upgrade) error {
		if !up.Handle.HasCollection(collection) {
			return NewError(RetCCollectionNotFound,
				"collection '"+collection+"' does not exist in store '"+name+"'")
		}
		coll, err := up.Txn.Collection(collection)
		if err != nil {
			return err
		}
		info, _ := up.Handle.Info(collection)
		for _, spec := range specs {
			if hasIndex(info, spec.Name) {
				continue
			}
			if err := awaitUpgradeReq(coll.CreateIndex(spec)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *orchestratorImpl) DeleteIndex(name, collection, index string) *Result[platform.Handle] {
	return o.mutateSchema(name, "delete-index", func(up platform.Upgrade) error {
		if !up.Handle.HasCollection(collection) {
			return NewError(RetCCollectionNotFound,
				"collection '"+collection+"' does not exist in store '"+name+"'")
		}
		info, _ := up.Handle.Info(collection)
		if !hasIndex(info, index) {
			return nil
		}
		coll, err := up.Txn.Collection(collection)
		if err != nil {
			return err
		}
		return awaitUpgradeReq(coll.DeleteIndex(index))
	})
}
