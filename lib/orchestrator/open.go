package orchestrator

import (
	"errors"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// Open connects to the named store and caches the resulting handle, making
// it the connection every later dispatch for that name resolves to.
//
// The call walks the engine's open state machine: it may park while a
// competing lower-version connection is live (reported through
// hooks.OnBlocked), it may pass through an upgrade transaction (running
// hooks.OnUpgrade), and it terminally settles exactly once.
func (o *orchestratorImpl) Open(name string, version uint64, hooks OpenHooks) *Result[platform.Handle] {
	if err := o.guard(name); err != nil {
		countOp("open", err)
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
		return rejected[platform.Handle](err)
	}
	res := newResult[platform.Handle]()
	go func() {
		// A cached connection at a lower version would block its own
		// upgrade; release it first. External handles still block, that
		// is surfaced through OnBlocked.
		if version > 0 {
			if h, ok := o.cache.Drop(name); ok {
				if h.Version() < version {
					h.Close()
				} else {
					o.cache.Set(name, h)
				}
			}
		}
		o.openAt(name, version, hooks, res)
	}()
	return res
}

// openAt issues the engine open and bridges its callbacks onto the result.
// The handle is cached inside OnUpgradeNeeded, before the upgrade routine
// runs, so that dispatches issued by the routine itself (through this
// orchestrator) already resolve to the connection under upgrade.
func (o *orchestratorImpl) openAt(name string, version uint64, hooks OpenHooks, res *Result[platform.Handle]) {
	var upgradeHandle platform.Handle

	o.env.Open(name, version, platform.OpenCallbacks{
		OnBlocked: func(oldVersion uint64) {
			o.log.Infow("open blocked by live connection",
				"store", name, "liveVersion", oldVersion, "wantVersion", version)
			if hooks.OnBlocked != nil {
				hooks.OnBlocked(oldVersion)
			}
		},
		OnUpgradeNeeded: func(up platform.Upgrade) error {
			o.log.Infow("upgrading store",
				"store", name, "oldVersion", up.OldVersion, "newVersion", up.NewVersion)
			upgradeHandle = up.Handle
			o.cache.Set(name, up.Handle)
			if hooks.OnUpgrade != nil {
				return hooks.OnUpgrade(up)
			}
			return nil
		},
		OnSuccess: func(h platform.Handle) {
			o.cache.Set(name, h)
			countOp("open", nil)
			if hooks.OnSuccess != nil {
				hooks.OnSuccess(h)
			}
			res.resolve(h)
		},
		OnError: func(err error) {
			// An aborted upgrade must not leave its rolled-back handle as
			// the cached connection. A concurrently re-cached good handle
			// stays.
			if upgradeHandle != nil {
				if h, ok := o.cache.Drop(name); ok && h != upgradeHandle {
					o.cache.Set(name, h)
				}
			}
			// Errors the upgrade routine raised from this taxonomy pass
			// through unchanged; engine failures become NoConnection.
			var werr *Error
			if !errors.As(err, &werr) {
				werr = WrapError(RetCNoConnection, "could not open store '"+name+"'", err)
			}
			countOp("open", werr)
			o.log.Warnw("open failed", "store", name, "err", err)
			if hooks.OnError != nil {
				hooks.OnError(werr)
			}
			res.reject(werr)
		},
	})
}

// GetVersion resolves to the currently stored version of the named store,
// 0 if the store does not exist. No connection is opened or cached.
func (o *orchestratorImpl) GetVersion(name string) *Result[uint64] {
	if err := o.guard(name); err != nil {
		countOp("get-version", err)
		return rejected[uint64](err)
	}
	res := newResult[uint64]()
	res.resolve(o.env.Version(name))
	countOp("get-version", nil)
	return res
}
