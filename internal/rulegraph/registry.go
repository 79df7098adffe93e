package rulegraph

import (
	"fmt"
	"sync"
)

// MemGraph is a minimal, in-memory Graph built by registering one Rule per
// product type, matching a single Entry to each (no planner-side
// parameter-combination search). The planner that selects one rule per
// product *for each distinct parameter set* is explicitly out of scope
// (§4.E); MemGraph is the simplest Graph a host program can build by hand
// to exercise the engine end to end, grounded on the rule-chain engine's
// RuleComponentRegistry registration pattern.
type MemGraph struct {
	mu      sync.RWMutex
	entries map[TypeId]Entry
	edges   map[TypeId]EdgeSet
}

func NewMemGraph() *MemGraph {
	return &MemGraph{entries: map[TypeId]Entry{}, edges: map[TypeId]EdgeSet{}}
}

// RegisterTask registers a user rule as the sole provider of its product
// type, wiring the declared Gets it can issue as outgoing edges keyed by
// (product, subject).
func (g *MemGraph) RegisterTask(r Rule) error {
	if r.Kind != KindTask {
		return fmt.Errorf("RegisterTask requires a KindTask rule, got %v", r.Kind)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.entries[r.Product]; exists {
		return fmt.Errorf("a rule already provides product %s", r.Product)
	}
	entry := Entry{Kind: EntryInner, Rule: r}
	g.entries[r.Product] = entry

	edges := EdgeSet{}
	for _, ct := range r.Clause {
		if dep, ok := g.entries[ct]; ok {
			edges[JustSelect(ct)] = dep
		} else {
			edges[JustSelect(ct)] = Entry{Kind: EntryParam, ParamType: ct}
		}
	}
	for _, get := range r.Gets {
		if dep, ok := g.entries[get.Product]; ok {
			edges[JustGet(get.Product, get.Subject)] = dep
		}
	}
	g.edges[r.Product] = edges
	return nil
}

// RegisterIntrinsic registers an engine-provided intrinsic as the sole
// provider of product, declaring the input product types it needs.
func (g *MemGraph) RegisterIntrinsic(product TypeId, inputs []TypeId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := Rule{Kind: KindIntrinsic, Product: product, Inputs: inputs}
	entry := Entry{Kind: EntryInner, Rule: r}
	g.entries[product] = entry

	edges := EdgeSet{}
	for _, it := range inputs {
		if dep, ok := g.entries[it]; ok {
			edges[JustSelect(it)] = dep
		} else {
			edges[JustSelect(it)] = Entry{Kind: EntryParam, ParamType: it}
		}
	}
	g.edges[product] = edges
}

// RegisterParam registers product as satisfiable directly from the
// request's Params, with no rule producing it.
func (g *MemGraph) RegisterParam(product TypeId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[product] = Entry{Kind: EntryParam, ParamType: product}
	g.edges[product] = EdgeSet{}
}

func (g *MemGraph) EdgesFor(entry Entry) (EdgeSet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if entry.Kind != EntryInner {
		return nil, false
	}
	e, ok := g.edges[entry.Rule.Product]
	return e, ok
}

func (g *MemGraph) EntryFor(edges EdgeSet, dep DependencyKey) (Entry, bool) {
	e, ok := edges[dep]
	return e, ok
}

// EntryForProduct returns the registered top-level Entry for product, used
// by a host program to build the root Select for a request.
func (g *MemGraph) EntryForProduct(product TypeId) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[product]
	return e, ok
}

var _ Graph = (*MemGraph)(nil)
