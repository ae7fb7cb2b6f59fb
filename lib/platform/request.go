package platform

import "sync"

// Request is the settlement side of one dispatched operation. An engine
// settles a request exactly once via Succeed or Fail; later settlements are
// dropped. This mirrors the host contract where a request object emits one
// success or one error event, never both.
//
// Listeners attached after settlement are invoked immediately with the
// buffered outcome, so attaching and settling may race freely.
//
// Thread-safety: all methods are safe for concurrent use.
type Request struct {
	mu        sync.Mutex
	settled   bool
	result    any
	err       error
	onSuccess func(any)
	onError   func(error)
}

// NewRequest creates an unsettled request. Used by engine implementations.
func NewRequest() *Request {
	return &Request{}
}

// Listen attaches the success and error handlers. Either handler may be nil.
// If the request has already settled, the matching handler fires before
// Listen returns.
func (r *Request) Listen(onSuccess func(any), onError func(error)) {
	r.mu.Lock()
	if !r.settled {
		r.onSuccess = onSuccess
		r.onError = onError
		r.mu.Unlock()
		return
	}
	result, err := r.result, r.err
	r.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else if onSuccess != nil {
		onSuccess(result)
	}
}

// Succeed settles the request with a result value. Returns false if the
// request was already settled.
func (r *Request) Succeed(result any) bool {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return false
	}
	r.settled = true
	r.result = result
	cb := r.onSuccess
	r.mu.Unlock()

	if cb != nil {
		cb(result)
	}
	return true
}

// Fail settles the request with an error. Returns false if the request was
// already settled.
func (r *Request) Fail(err error) bool {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return false
	}
	r.settled = true
	r.err = err
	cb := r.onError
	r.mu.Unlock()

	if cb != nil {
		cb(err)
	}
	return true
}

// failed creates an already settled request. Engines use this for
// validation errors detected before the operation is scheduled.
func failed(err error) *Request {
	return &Request{settled: true, err: err}
}

// FailedRequest returns a request that is already settled with err.
func FailedRequest(err error) *Request {
	return failed(err)
}
