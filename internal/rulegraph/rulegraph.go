// Package rulegraph defines the consumed view of the precomputed rule
// graph: the engine never builds this graph (the planner that selects one
// rule per product for each parameter set is explicitly out of scope), it
// only walks the edges the planner already computed.
package rulegraph

import (
	"fmt"

	"github.com/dagrule/engine/internal/value"
)

type TypeId = value.TypeId

// RuleKind distinguishes a user-authored Task from an engine-provided
// Intrinsic.
type RuleKind int

const (
	KindTask RuleKind = iota
	KindIntrinsic
)

// GetDecl is a declared Get a Task's generator body may issue, known to
// the planner ahead of time so it can pre-wire the corresponding edge.
type GetDecl struct {
	Product TypeId
	Subject TypeId
}

// Rule is the tagged union described in the data model: a Task invoked
// through the host bridge, or an engine-provided Intrinsic.
type Rule struct {
	Kind RuleKind

	// Task fields.
	Func       value.Value
	Clause     []TypeId
	Product    TypeId
	Gets       []GetDecl
	Cacheable  bool
	DisplayInfo string

	// Intrinsic fields.
	Inputs []TypeId
}

// DependencyKey identifies one outgoing edge from an Entry: either a bare
// selection for a product, or a Get issued from inside a generator body
// for a (product, subject type) pair.
type DependencyKey struct {
	Product TypeId
	Subject TypeId // zero value for JustSelect
	isGet   bool
}

func JustSelect(product TypeId) DependencyKey {
	return DependencyKey{Product: product}
}

func JustGet(product, subject TypeId) DependencyKey {
	return DependencyKey{Product: product, Subject: subject, isGet: true}
}

func (k DependencyKey) IsGet() bool { return k.isGet }

// EntryKind distinguishes the three Entry shapes.
type EntryKind int

const (
	EntryParam EntryKind = iota
	EntryInner
	EntryRoot
)

// Entry is a node in the precomputed rule graph identifying how a
// particular product is produced for a particular parameter set.
type Entry struct {
	Kind EntryKind
	// EntryParam
	ParamType TypeId
	// EntryInner
	Rule Rule
}

// EdgeSet is the precomputed map from DependencyKey to successor Entry for
// one rule-graph entry.
type EdgeSet map[DependencyKey]Entry

// Identity returns a stable string identifying this Rule within a NodeKey
// cache key: enough to distinguish distinct rules without requiring Rule
// itself to be comparable (its Func field is a host Value).
func (r Rule) Identity() string {
	switch r.Kind {
	case KindTask:
		return fmt.Sprintf("Task(%s<-%v/%s)", r.Product, r.Clause, r.DisplayInfo)
	case KindIntrinsic:
		return fmt.Sprintf("Intrinsic(%s<-%v)", r.Product, r.Inputs)
	default:
		return "Rule(?)"
	}
}

// Identity returns a stable string identifying this Entry, used to build
// Select/Task cache keys (§3's "Uniqueness for memoization").
func (e Entry) Identity() string {
	switch e.Kind {
	case EntryParam:
		return "Param(" + e.ParamType.String() + ")"
	case EntryInner:
		return "Inner(" + e.Rule.Identity() + ")"
	case EntryRoot:
		return "Root"
	default:
		return "Entry(?)"
	}
}

// Graph is the narrow interface the engine requires from the rule-graph
// subsystem. Missing edges are programmer errors the planner should have
// caught; the engine reports them as Throw rather than panicking.
type Graph interface {
	EdgesFor(entry Entry) (EdgeSet, bool)
	EntryFor(edges EdgeSet, dep DependencyKey) (Entry, bool)
}
