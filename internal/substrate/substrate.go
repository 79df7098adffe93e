// Package substrate implements the memoization framework the engine
// consumes: a generic, invalidatable DAG cache offering get(key) ->
// future<result>, with at-most-one concurrent execution per key. spec.md
// treats this as an external collaborator ("the memoization framework...
// is treated as a substrate"); a runnable Go module still needs a concrete
// implementation, kept deliberately minimal since the hard part this
// exercise cares about is Select/Task semantics in internal/engine.
package substrate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dagrule/engine/internal/engine"
	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/trace"
	"github.com/dagrule/engine/internal/watch"
	"github.com/dagrule/engine/internal/workunit"
)

// cacheEntry is what the Graph caches per NodeKey: the last good result, or
// the fact that the node is currently invalidated and must be recomputed.
type cacheEntry struct {
	result      result.NodeResult
	invalidated bool
}

// Graph is a map-backed cache guarded by a mutex, plus a singleflight.Group
// for in-flight deduplication, satisfying engine.Substrate. Invalidation
// events fed by internal/watch mark cached entries stale without evicting
// them outright, so the next Get recomputes exactly once.
type Graph struct {
	rt *engine.Runtime

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	flight     singleflight.Group
	watcher    *watch.Watcher
	retryLimit int

	// workunits is the span-scoped telemetry store (§4.I) wrapped around
	// every node's actual execution. nil disables instrumentation (e.g. in
	// tests against fakes), matching the session's "elects to handle
	// workunits" opt-in.
	workunits *workunit.Store

	// tracer records a Panel per actual node execution (§4.H), so a real
	// evaluation's memoization graph is inspectable after the fact instead
	// of internal/trace only ever exercising itself in its own unit tests.
	// nil disables trace recording.
	tracer *trace.Tracer
}

var _ engine.Substrate = (*Graph)(nil)

// New constructs a Graph bound to rt (the Runtime every NodeKey.Run call
// receives). watcher may be nil if no filesystem invalidation is wired
// (e.g. in tests against fakes); workunits may be nil to disable span
// instrumentation, and tracer may be nil to disable trace recording.
func New(rt *engine.Runtime, watcher *watch.Watcher, workunits *workunit.Store, tracer *trace.Tracer) *Graph {
	g := &Graph{
		rt:         rt,
		cache:      make(map[string]*cacheEntry),
		watcher:    watcher,
		retryLimit: 3,
		workunits:  workunits,
		tracer:     tracer,
	}
	rt.Substrate = g
	return g
}

// pathKey is the context key under which Get tracks the chain of CacheKeys
// currently being resolved on this call path, used for cycle detection
// (testable property 7) — re-entering a key already on the path means the
// rule graph describes a cycle.
type pathKey struct{}

func callPath(ctx context.Context) []string {
	p, _ := ctx.Value(pathKey{}).([]string)
	return p
}

func withCallPath(ctx context.Context, ck string) context.Context {
	p := append(append([]string{}, callPath(ctx)...), ck)
	return context.WithValue(ctx, pathKey{}, p)
}

// Get runs key exactly once per distinct CacheKey concurrently in flight
// (testable property 6), sharing the result with every other caller
// requesting the same key (§3's read-only sharing of NodeResult).
func (g *Graph) Get(ctx context.Context, key engine.NodeKey) (result.NodeResult, error) {
	ck := key.CacheKey()

	path := callPath(ctx)
	for i, p := range path {
		if p == ck {
			return result.NodeResult{}, failure.Cyclic(path[i:])
		}
	}

	if key.Cacheable() {
		g.mu.RLock()
		e, ok := g.cache[ck]
		g.mu.RUnlock()
		if ok && !e.invalidated {
			return e.result, nil
		}
	}

	runCtx := withCallPath(ctx, ck)
	v, err, _ := g.flight.Do(ck, func() (interface{}, error) {
		if err := g.preflight(key); err != nil {
			return nil, err
		}
		return g.runInstrumented(runCtx, key)
	})
	if err != nil {
		return result.NodeResult{}, err
	}
	res := v.(result.NodeResult)

	if key.Cacheable() {
		g.mu.Lock()
		g.cache[ck] = &cacheEntry{result: res}
		g.mu.Unlock()
	}
	return res, nil
}

// preflight registers a filesystem watch for nodes with an FsSubject (§4.G):
// DigestFile, ReadLink, Scandir. A relative subject path is resolved against
// the VFS build root before it is watched. A registration failure becomes the
// node's failure — no watch, no run.
func (g *Graph) preflight(key engine.NodeKey) error {
	if g.watcher == nil {
		return nil
	}
	path, ok := key.FsSubject()
	if !ok {
		return nil
	}
	if !filepath.IsAbs(path) && g.rt.VFS != nil {
		path = filepath.Join(g.rt.VFS.BuildRoot(), path)
	}
	ck := key.CacheKey()
	return g.watcher.Register(path, func() { g.invalidate(ck) })
}

func (g *Graph) invalidate(cacheKey string) {
	g.mu.Lock()
	if e, ok := g.cache[cacheKey]; ok {
		e.invalidated = true
	}
	g.mu.Unlock()
}

// runInstrumented wraps a single actual execution of key in a workunit span
// (§4.I): allocate a span id inheriting ctx's current parent, set it as the
// new parent for the duration, and complete it exactly once regardless of
// outcome. Display is eligible only when the node reports a user-facing
// name; a nil g.workunits (instrumentation disabled) runs key directly.
func (g *Graph) runInstrumented(ctx context.Context, key engine.NodeKey) (result.NodeResult, error) {
	runCtx := ctx
	var wu *workunit.Workunit
	if g.workunits != nil {
		name := key.UserFacingName()
		wu, runCtx = g.workunits.Start(ctx, key.Kind(), name, name != "")
	}

	res, err := g.runWithRetry(runCtx, key)

	if g.workunits != nil {
		g.workunits.Complete(wu, err)
	}
	if g.tracer != nil {
		g.record(key, err)
	}
	return res, err
}

// record appends a trace.Panel for key's just-finished execution, deriving
// NodeMetadata from whichever identity Select/Task expose beyond the
// common NodeKey surface (product/params/entry kind), and leaving those
// fields blank for the leaf catalog, which has no such notion.
func (g *Graph) record(key engine.NodeKey, err error) {
	meta := trace.NodeMetadata{
		Kind:      key.Kind(),
		CacheKey:  key.CacheKey(),
		Cacheable: key.Cacheable(),
	}
	switch n := key.(type) {
	case *engine.Select:
		meta.Product = n.Product.String()
		meta.Params = n.Params.String()
		meta.EntryKind = fmt.Sprintf("%d", n.Entry.Kind)
	case *engine.Task:
		meta.Product = n.Product.String()
		meta.Params = n.Params.String()
		meta.EntryKind = fmt.Sprintf("%d", n.Entry.Kind)
	}

	state, excMsg, traceback := traceState(err)
	g.tracer.Record(meta, state, excMsg, traceback)
}

// traceState maps a node's run outcome to the trace package's State enum
// plus the exception message/traceback RenderState needs for a Throw.
func traceState(err error) (trace.State, string, string) {
	switch e := err.(type) {
	case nil:
		return trace.StateOk, "", ""
	case failure.Invalidated:
		return trace.StateInvalidated, "", ""
	case *failure.Throw:
		return trace.StateThrow, e.Error(), e.Traceback
	default:
		return trace.StateThrow, e.Error(), ""
	}
}

// runWithRetry executes key. Uncacheable nodes that keep observing
// Invalidated failures beyond retryLimit surface as ExhaustedRetries (§5);
// cacheable nodes run exactly once and let the caller retry through a fresh
// top-level request instead.
func (g *Graph) runWithRetry(ctx context.Context, key engine.NodeKey) (result.NodeResult, error) {
	if key.Cacheable() {
		return key.Run(ctx, g.rt)
	}

	attempts := 0
	for {
		res, err := key.Run(ctx, g.rt)
		if err == nil {
			return res, nil
		}
		if _, ok := err.(failure.Invalidated); !ok {
			return result.NodeResult{}, err
		}
		attempts++
		if attempts > g.retryLimit {
			return result.NodeResult{}, failure.ExhaustedRetries()
		}
	}
}
