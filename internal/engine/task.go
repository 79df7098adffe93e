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

// Task evaluates a user rule: resolve its clause, call its function, and —
// if the function's body is a generator — drive the Get/GetMulti/Break
// dialogue to completion (§4.F).
type Task struct {
	Params  *params.Params
	Product rulegraph.TypeId
	Rule    rulegraph.Rule
	Entry   rulegraph.Entry
}

func (t *Task) isNodeKey()           {}
func (t *Task) Cacheable() bool      { return t.Rule.Cacheable }
func (t *Task) FsSubject() (string, bool) { return "", false }
func (t *Task) UserFacingName() string {
	return t.Rule.DisplayInfo
}
func (t *Task) Kind() string { return "Task" }
func (t *Task) CacheKey() string {
	return "Task(" + t.Product.String() + ";" + t.Params.Identity() + ";" + t.Entry.Identity() + ")"
}

// Run resolves the task's clause in parallel, invokes its body, and either
// returns the result directly or drives the generator loop.
func (t *Task) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	edges, ok := rt.Graph.EdgesFor(t.Entry)
	if !ok {
		return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("no edges for task producing %s", t.Product))
	}

	inputs := make([]value.Value, len(t.Rule.Clause))
	errs := make([]error, len(t.Rule.Clause))
	var wg sync.WaitGroup
	for i, ct := range t.Rule.Clause {
		wg.Add(1)
		go func(i int, ct rulegraph.TypeId) {
			defer wg.Done()
			child, err := NewSelectFromEdges(t.Params, ct, edges, rt)
			if err != nil {
				errs[i] = err
				return
			}
			res, err := rt.Substrate.Get(ctx, child)
			if err != nil {
				errs[i] = err
				return
			}
			inputs[i] = res.Value
		}(i, ct)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return result.NodeResult{}, e
		}
	}

	ret, err := rt.Bridge.CallAsFunction(t.Rule.Func, inputs, t.Product)
	if err != nil {
		return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("calling rule body for %s: %s", t.Product, err))
	}

	if rt.Bridge.IsGeneratorInstance(ret) {
		return t.runGenerator(ctx, rt, edges, ret)
	}

	if ret.TypeId() != t.Product {
		return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("%s returned a result value that did not satisfy its constraints", t.Rule.DisplayInfo))
	}
	return result.OfValue(ret), nil
}

// runGenerator drives the Get/GetMulti/Break dialogue: send the previous
// value in, interpret the yield, repeat until Break.
func (t *Task) runGenerator(ctx context.Context, rt *Runtime, edges rulegraph.EdgeSet, genInstance value.Value) (result.NodeResult, error) {
	gen, err := value.NewGeneratorFromInstance(rt.Bridge, genInstance)
	if err != nil {
		return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("starting generator body for %s: %s", t.Product, err))
	}

	next := value.None()
	for {
		resp, err := gen.Send(next)
		if err != nil {
			return result.NodeResult{}, failure.NewThrow(fmt.Sprintf("generator body for %s failed: %s", t.Product, err))
		}

		switch resp.Kind {
		case value.KindBreak:
			// A generator's final value carries no TypeId of its own (decodeYield
			// and Send have no way to know the task's declared product), so it's
			// tagged here rather than checked against t.Product.
			return result.OfValue(value.NewValue(t.Product, resp.Break.Raw())), nil

		case value.KindGet:
			v, err := t.resolveGet(ctx, rt, edges, resp.Get)
			if err != nil {
				return result.NodeResult{}, err
			}
			next = v

		case value.KindGetMulti:
			vals := make([]value.Value, len(resp.Multi))
			errs := make([]error, len(resp.Multi))
			var wg sync.WaitGroup
			for i, g := range resp.Multi {
				wg.Add(1)
				go func(i int, g value.Get) {
					defer wg.Done()
					v, err := t.resolveGet(ctx, rt, edges, g)
					if err != nil {
						errs[i] = err
						return
					}
					vals[i] = v
				}(i, g)
			}
			wg.Wait()
			for _, e := range errs {
				if e != nil {
					return result.NodeResult{}, e
				}
			}
			next = rt.Bridge.ConstructTuple(value.NewTypeId("tuple"), vals)

		default:
			return result.NodeResult{}, failure.NewThrow("generator yielded an unrecognized response kind")
		}
	}
}

// resolveGet looks up the edge for a Get's (product, subject type) pair,
// widens the task's params with the Get's subject, and runs a fresh Select
// against the looked-up entry — the mechanism by which generators
// substitute their parameter context for sub-requests (§4.F, property 3).
func (t *Task) resolveGet(ctx context.Context, rt *Runtime, edges rulegraph.EdgeSet, g value.Get) (value.Value, error) {
	subjectType := g.Subject.TypeId()
	depKey := rulegraph.JustGet(g.Product, subjectType)

	entry, ok := rt.Graph.EntryFor(edges, depKey)
	if !ok {
		if !g.DeclaredSubject.IsZero() {
			if rt.UnionRegistry != nil {
				if unionVal, uok := rt.UnionRegistry(g.DeclaredSubject); uok {
					msgVal, err := rt.Bridge.InvokeMethod(unionVal, "non_member_error_message", []value.Value{g.Subject}, value.NewTypeId("str"))
					if err == nil {
						return value.Value{}, failure.NewThrow(msgVal.String())
					}
				}
			}
			return value.Value{}, failure.NewThrow(fmt.Sprintf("Type %s is not a member of the %s @union", subjectType, g.DeclaredSubject))
		}
		return value.Value{}, failure.NewThrow(fmt.Sprintf("%s did not declare a dependency on Get(%s, %s)", t.Entry.Identity(), g.Product, subjectType))
	}

	widened := t.Params.Clone()
	widened.Put(params.Key{Type: subjectType, Val: g.Subject})

	child := NewSelect(widened, g.Product, entry)
	res, err := rt.Substrate.Get(ctx, child)
	if err != nil {
		return value.Value{}, err
	}
	return res.Value, nil
}
