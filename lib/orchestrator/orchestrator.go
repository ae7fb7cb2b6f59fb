package orchestrator

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/dylan-green/promise-idb/lib/conncache"
	"github.com/dylan-green/promise-idb/lib/logging"
	"github.com/dylan-green/promise-idb/lib/platform"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

// Option configures an orchestrator at construction time.
type Option func(*orchestratorImpl)

// WithCache installs a pre-built connection cache instead of a fresh one.
// The cache must be bound to the same environment.
func WithCache(c *conncache.Cache) Option {
	return func(o *orchestratorImpl) {
		o.cache = c
	}
}

// orchestratorImpl implements IOrchestrator on top of one platform
// environment and one connection cache.
type orchestratorImpl struct {
	env   platform.Environment
	cache *conncache.Cache

	// schemaLocks serializes version bumps per store name so two concurrent
	// schema mutations cannot race each other to the same version.
	schemaLocks *xsync.MapOf[string, chan struct{}]

	log *zap.SugaredLogger
}

// New creates an orchestrator bound to the given environment. A nil
// environment is legal and models a host without the store capability:
// every call then rejects with RetCPlatformUnavailable.
func New(env platform.Environment, opts ...Option) IOrchestrator {
	o := &orchestratorImpl{
		env:         env,
		schemaLocks: xsync.NewMapOf[string, chan struct{}](),
		log:         logging.GetLogger("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil && env != nil {
		o.cache = conncache.New(env)
	}
	return o
}

func (o *orchestratorImpl) Cache() *conncache.Cache {
	return o.cache
}

// Close closes every cached handle and empties the cache.
func (o *orchestratorImpl) Close() error {
	if o.cache == nil {
		return nil
	}
	var names []string
	o.cache.Range(func(name string, _ platform.Handle) bool {
		names = append(names, name)
		return true
	})
	for _, name := range names {
		if h, ok := o.cache.Drop(name); ok {
			h.Close()
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Guards
// --------------------------------------------------------------------------

// guard validates the ambient preconditions shared by every call. A nil
// error means the environment is usable and the name is present.
func (o *orchestratorImpl) guard(name string) *Error {
	if o.env == nil {
		return NewError(RetCPlatformUnavailable, "no store environment available")
	}
	if name == "" {
		return NewError(RetCMissingName, "store name is required")
	}
	return nil
}

// lockSchema acquires the per-store schema mutation lock. The returned
// function releases it; safe to call from any goroutine.
func (o *orchestratorImpl) lockSchema(name string) func() {
	sem, _ := o.schemaLocks.LoadOrStore(name, make(chan struct{}, 1))
	sem <- struct{}{}
	return func() { <-sem }
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

func countOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "err"
	}
	metrics.GetOrCreateCounter(
		fmt.Sprintf(`pidb_ops_total{op=%q,outcome=%q}`, op, outcome),
	).Inc()
}

// WritePrometheus writes all operation counters to w in Prometheus text
// exposition format, for callers wiring them onto a scrape endpoint.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
