// Package params implements the TypeId-keyed parameter bag carried through
// a Select/Task subgraph evaluation. Keys are kept sorted by TypeId so
// equality, hashing, and Display are all deterministic and O(n), which is
// what makes Params usable as part of a memoization key (see
// internal/engine's Select identity).
package params

import (
	"sort"
	"strings"

	"github.com/dagrule/engine/internal/value"
)

// Key pairs a Value with the TypeId it's filed under — at most one Key per
// TypeId may exist in a Params at a time.
type Key struct {
	Type TypeId
	Val  value.Value
}

// TypeId re-exported for readability at call sites; identical to value.TypeId.
type TypeId = value.TypeId

// Params is an ordered-by-TypeId set of Keys.
type Params struct {
	keys []Key
}

// New builds a Params from an arbitrary list of keys, applying put
// semantics (later entries with the same TypeId replace earlier ones) and
// establishing sorted order.
func New(keys ...Key) *Params {
	p := &Params{}
	for _, k := range keys {
		p.Put(k)
	}
	return p
}

func (p *Params) indexOf(t TypeId) (int, bool) {
	i := sort.Search(len(p.keys), func(i int) bool {
		return p.keys[i].Type.String() >= t.String()
	})
	if i < len(p.keys) && p.keys[i].Type == t {
		return i, true
	}
	return i, false
}

// Put replaces any existing key of the same TypeId and keeps keys sorted.
func (p *Params) Put(k Key) {
	i, found := p.indexOf(k.Type)
	if found {
		p.keys[i] = k
		return
	}
	p.keys = append(p.keys, Key{})
	copy(p.keys[i+1:], p.keys[i:])
	p.keys[i] = k
}

// Find is O(log n) via binary search over the sorted key slice.
func (p *Params) Find(t TypeId) (value.Value, bool) {
	i, found := p.indexOf(t)
	if !found {
		return value.Value{}, false
	}
	return p.keys[i].Val, true
}

// Retain drops keys whose TypeId does not satisfy keep, preserving the
// relative order of the remainder (already sorted, so this is a filter).
func (p *Params) Retain(keep func(TypeId) bool) {
	out := p.keys[:0]
	for _, k := range p.keys {
		if keep(k.Type) {
			out = append(out, k)
		}
	}
	p.keys = out
}

// RetainTypes narrows to exactly the given set of types — the operation
// Select::new performs against a Param(T) or Inner(rule) entry.
func (p *Params) RetainTypes(types []TypeId) {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t.String()] = struct{}{}
	}
	p.Retain(func(t TypeId) bool {
		_, ok := allowed[t.String()]
		return ok
	})
}

// Clone returns an independent copy; Params are conceptually immutable
// once handed to a Select, so mutating callers should always clone first.
func (p *Params) Clone() *Params {
	c := &Params{keys: make([]Key, len(p.keys))}
	copy(c.keys, p.keys)
	return c
}

// Len reports how many distinct TypeIds are present.
func (p *Params) Len() int { return len(p.keys) }

// Equal reports whether two Params carry the same set of (TypeId, Value)
// pairs — the identity check Select's NodeKey equality depends on.
func (p *Params) Equal(o *Params) bool {
	if len(p.keys) != len(o.keys) {
		return false
	}
	for i := range p.keys {
		if p.keys[i].Type != o.keys[i].Type {
			return false
		}
		if p.keys[i].Val.String() != o.keys[i].Val.String() {
			return false
		}
	}
	return true
}

// String lists the carried types, matching the teacher's convention of a
// terse Display for debug/trace output (see internal/trace). This is a
// types-only form per spec.md §3 ("Display form lists types") — it must
// never be used as a memoization key, since two Params with the same types
// but different values are a different identity (see Identity).
func (p *Params) String() string {
	names := make([]string, len(p.keys))
	for i, k := range p.keys {
		names[i] = k.Type.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Identity renders the full (TypeId, Value) payload of every key, sorted by
// TypeId (the slice is already kept in that order). Unlike String, this is
// value-aware and is what Select/Task use to build their CacheKey, so that
// two NodeKeys differing only in a parameter's value never collide in the
// memoization substrate (spec.md §4.G: "Identity... over its full
// payload"; Testable Property 2).
func (p *Params) Identity() string {
	parts := make([]string, len(p.keys))
	for i, k := range p.keys {
		parts[i] = k.Type.String() + "=" + k.Val.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
