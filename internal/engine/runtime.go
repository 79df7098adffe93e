// Package engine implements the rule-graph-directed node evaluator: Select
// (resolving a product request against the rule graph), Task (evaluating a
// user rule body, including its generator dialogue), and the closed NodeKey
// sum type the memoization substrate dispatches on. It is the "hard part"
// described in spec §4.E-§4.G.
package engine

import (
	"context"

	"github.com/dagrule/engine/internal/leaf"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/rulegraph"
	"github.com/dagrule/engine/internal/value"
)

// Substrate is the narrow contract the engine needs from the memoization
// framework: at-most-one concurrent execution per NodeKey, shared read-only
// results. The concrete implementation (internal/substrate) depends on this
// package for the NodeKey type rather than the other way around, so no
// import cycle is introduced by this package needing to recurse through it.
type Substrate interface {
	Get(ctx context.Context, key NodeKey) (result.NodeResult, error)
}

// IntrinsicFunc builds the result for an Inner(Intrinsic(...)) entry once
// its declared inputs have all resolved, dispatching to the appropriate
// leaf-node request (DigestFile, Scandir, Snapshot, ...) keyed by the
// intrinsic's declared product type.
type IntrinsicFunc func(ctx context.Context, inputs []value.Value, rt *Runtime) (result.NodeResult, error)

// Runtime bundles every external service Select/Task/NodeKey evaluation
// needs, per spec §6's consumed-interfaces list.
type Runtime struct {
	Graph      rulegraph.Graph
	Bridge     *value.Bridge
	VFS        leaf.VFS
	Store      leaf.Store
	HTTP       leaf.HTTPGetter
	Runner     leaf.CommandRunner
	Substrate  Substrate
	Intrinsics map[string]IntrinsicFunc

	// UnionRegistry fetches the host registry value for a declared union
	// type, used to ask the host for a non_member_error_message when a
	// generator's Get names a subject that isn't a member of the union it
	// declared (§4.F "Resolving a Get").
	UnionRegistry func(value.TypeId) (value.Value, bool)
}

// RegisterIntrinsic installs fn as the handler for product's Inner(Intrinsic)
// entries. Called during engine wiring (cmd/engine) once per built-in leaf
// kind the rule graph can select.
func (rt *Runtime) RegisterIntrinsic(product value.TypeId, fn IntrinsicFunc) {
	if rt.Intrinsics == nil {
		rt.Intrinsics = map[string]IntrinsicFunc{}
	}
	rt.Intrinsics[product.String()] = fn
}
