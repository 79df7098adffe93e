package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/params"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/rulegraph"
	"github.com/dagrule/engine/internal/value"
)

// Select resolves a product request through the rule graph to a parameter,
// an intrinsic, or a task. Constructing one narrows its Params to the
// minimal set the Entry can actually use — the uniqueness principle that
// keeps memoization keys minimal (§4.E, property 1).
type Select struct {
	Params  *params.Params
	Product rulegraph.TypeId
	Entry   rulegraph.Entry
}

// NewSelect builds a Select, narrowing params per Entry.Kind: only the
// target param type survives for a Param entry, only the rule's declared
// parameter set survives for an Inner entry.
func NewSelect(p *params.Params, product rulegraph.TypeId, entry rulegraph.Entry) *Select {
	narrowed := p.Clone()
	switch entry.Kind {
	case rulegraph.EntryParam:
		narrowed.RetainTypes([]rulegraph.TypeId{entry.ParamType})
	case rulegraph.EntryInner:
		narrowed.RetainTypes(declaredParamTypes(entry.Rule))
	case rulegraph.EntryRoot:
		narrowed.RetainTypes(nil)
	}
	return &Select{Params: narrowed, Product: product, Entry: entry}
}

func declaredParamTypes(r rulegraph.Rule) []rulegraph.TypeId {
	switch r.Kind {
	case rulegraph.KindTask:
		return r.Clause
	case rulegraph.KindIntrinsic:
		return r.Inputs
	default:
		return nil
	}
}

// NewSelectFromEdges looks up the successor Entry for JustSelect(product) in
// edges and constructs the narrowed child Select, per §4.E.
func NewSelectFromEdges(p *params.Params, product rulegraph.TypeId, edges rulegraph.EdgeSet, rt *Runtime) (*Select, error) {
	entry, ok := rt.Graph.EntryFor(edges, rulegraph.JustSelect(product))
	if !ok {
		return nil, failure.NewThrow(fmt.Sprintf("no rule-graph edge for JustSelect(%s)", product))
	}
	return NewSelect(p, product, entry), nil
}

func (s *Select) isNodeKey()           {}
func (s *Select) Cacheable() bool      { return true }
func (s *Select) FsSubject() (string, bool) { return "", false }
func (s *Select) UserFacingName() string    { return "" }
func (s *Select) Kind() string              { return "Select" }
func (s *Select) CacheKey() string {
	return "Select(" + s.Product.String() + ";" + s.Params.Identity() + ";" + s.Entry.Identity() + ")"
}

// Run dispatches by Entry variant, per the WrappedNode contract in §4.E.
func (s *Select) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	switch s.Entry.Kind {
	case rulegraph.EntryParam:
		v, ok := s.Params.Find(s.Entry.ParamType)
		if !ok {
			return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("Expected a Param of type %s to be present.", s.Entry.ParamType))
		}
		return result.OfValue(v), nil

	case rulegraph.EntryInner:
		switch s.Entry.Rule.Kind {
		case rulegraph.KindTask:
			task := &Task{Params: s.Params.Clone(), Product: s.Product, Rule: s.Entry.Rule, Entry: s.Entry}
			return rt.Substrate.Get(ctx, task)
		case rulegraph.KindIntrinsic:
			return s.runIntrinsic(ctx, rt)
		default:
			return result.NodeResult{}, failure.NewThrow("unrecognized rule kind")
		}

	case rulegraph.EntryRoot:
		return result.NodeResult{}, failure.NewThrow("Root entry is not executable")

	default:
		return result.NodeResult{}, failure.NewThrow("unrecognized entry kind")
	}
}

// runIntrinsic resolves every declared input in parallel (fan-out/join,
// first-error-wins per §5's ordering guarantees) and dispatches to the
// registered IntrinsicFunc for this Select's product.
func (s *Select) runIntrinsic(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	edges, ok := rt.Graph.EdgesFor(s.Entry)
	if !ok {
		return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("no edges for entry producing %s", s.Product))
	}

	inputs := s.Entry.Rule.Inputs
	results := make([]result.NodeResult, len(inputs))
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, inputType := range inputs {
		wg.Add(1)
		go func(i int, inputType rulegraph.TypeId) {
			defer wg.Done()
			child, err := NewSelectFromEdges(s.Params, inputType, edges, rt)
			if err != nil {
				errs[i] = err
				return
			}
			res, err := rt.Substrate.Get(ctx, child)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = res
		}(i, inputType)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return result.NodeResult{}, e
		}
	}

	values := make([]value.Value, len(results))
	for i, r := range results {
		values[i] = r.Value
	}

	fn, ok := rt.Intrinsics[s.Product.String()]
	if !ok {
		return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("no intrinsic registered for product %s", s.Product))
	}
	return fn(ctx, values, rt)
}
