package engine

import (
	"context"
	"testing"

	"github.com/dagrule/engine/internal/params"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/rulegraph"
	"github.com/dagrule/engine/internal/value"
)

// fakeSubstrate runs a NodeKey directly with no memoization; these tests
// exercise Select/Task resolution logic, not the substrate's caching or
// concurrency guarantees (see internal/substrate's own tests for those).
type fakeSubstrate struct{ rt *Runtime }

func (f *fakeSubstrate) Get(ctx context.Context, key NodeKey) (result.NodeResult, error) {
	return key.Run(ctx, f.rt)
}

// fakeGraph is a hand-built rulegraph.Graph keyed by Entry.Identity(), used
// to wire a fixed edge set per test instead of exercising the full planner
// (explicitly out of scope for this module).
type fakeGraph struct {
	edges map[string]rulegraph.EdgeSet
}

func newFakeGraph() *fakeGraph { return &fakeGraph{edges: map[string]rulegraph.EdgeSet{}} }

func (g *fakeGraph) set(entry rulegraph.Entry, edges rulegraph.EdgeSet) {
	g.edges[entry.Identity()] = edges
}

func (g *fakeGraph) EdgesFor(entry rulegraph.Entry) (rulegraph.EdgeSet, bool) {
	e, ok := g.edges[entry.Identity()]
	return e, ok
}

func (g *fakeGraph) EntryFor(edges rulegraph.EdgeSet, dep rulegraph.DependencyKey) (rulegraph.Entry, bool) {
	e, ok := edges[dep]
	return e, ok
}

func newTestRuntime(graph *fakeGraph) *Runtime {
	rt := &Runtime{
		Graph:  graph,
		Bridge: value.NewBridge(),
	}
	rt.Substrate = &fakeSubstrate{rt: rt}
	return rt
}

// --- Select parameter narrowing (property 1) ---

func TestSelectNarrowsParamsForParamEntry(t *testing.T) {
	strType := value.NewTypeId("Str")
	intType := value.NewTypeId("Int")
	p := params.New(
		params.Key{Type: strType, Val: value.None()},
		params.Key{Type: intType, Val: value.None()},
	)
	entry := rulegraph.Entry{Kind: rulegraph.EntryParam, ParamType: strType}
	sel := NewSelect(p, strType, entry)

	if sel.Params.Len() != 1 {
		t.Fatalf("Params.Len() = %d, want 1", sel.Params.Len())
	}
	if _, ok := sel.Params.Find(strType); !ok {
		t.Fatal("expected Str to survive narrowing for a Param entry")
	}
	if _, ok := sel.Params.Find(intType); ok {
		t.Fatal("expected Int to be dropped for a Param entry narrowed to Str")
	}
}

func TestSelectNarrowsParamsForInnerTaskEntry(t *testing.T) {
	strType := value.NewTypeId("Str")
	intType := value.NewTypeId("Int")
	boolType := value.NewTypeId("Bool")
	p := params.New(
		params.Key{Type: strType, Val: value.None()},
		params.Key{Type: intType, Val: value.None()},
		params.Key{Type: boolType, Val: value.None()},
	)
	rule := rulegraph.Rule{Kind: rulegraph.KindTask, Clause: []rulegraph.TypeId{strType, intType}}
	entry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: rule}
	sel := NewSelect(p, value.NewTypeId("Combined"), entry)

	if sel.Params.Len() != 2 {
		t.Fatalf("Params.Len() = %d, want 2", sel.Params.Len())
	}
	if _, ok := sel.Params.Find(boolType); ok {
		t.Fatal("expected Bool to be dropped: the task's clause never declared it")
	}
}

// Two Selects built from Params supersets that differ only in an
// undeclared extra param must produce the same CacheKey, since narrowing
// is what keeps memoization keys minimal (§3's uniqueness principle).
func TestSelectCacheKeyStableAcrossExtraneousParams(t *testing.T) {
	strType := value.NewTypeId("Str")
	extraType := value.NewTypeId("Extra")
	rule := rulegraph.Rule{Kind: rulegraph.KindTask, Product: value.NewTypeId("Combined"), Clause: []rulegraph.TypeId{strType}, DisplayInfo: "combine"}
	entry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: rule}

	p1 := params.New(params.Key{Type: strType, Val: value.None()})
	p2 := params.New(params.Key{Type: strType, Val: value.None()}, params.Key{Type: extraType, Val: value.None()})

	sel1 := NewSelect(p1, value.NewTypeId("Combined"), entry)
	sel2 := NewSelect(p2, value.NewTypeId("Combined"), entry)

	if sel1.CacheKey() != sel2.CacheKey() {
		t.Fatalf("CacheKey differed across an extraneous param: %q vs %q", sel1.CacheKey(), sel2.CacheKey())
	}
}

// TestSelectCacheKeyDiffersAcrossParamValues guards against CacheKey ever
// regressing to a types-only identity (property 2): two Selects with the
// same declared types but different parameter values must not collide in
// the memoization substrate, or the second call would silently return the
// first call's cached result.
func TestSelectCacheKeyDiffersAcrossParamValues(t *testing.T) {
	rt := newTestRuntime(newFakeGraph())
	strType := value.NewTypeId("Str")
	rule := rulegraph.Rule{Kind: rulegraph.KindTask, Product: value.NewTypeId("Combined"), Clause: []rulegraph.TypeId{strType}, DisplayInfo: "combine"}
	entry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: rule}

	v3 := value.NewValue(strType, rt.Bridge.Runtime().ToValue(3))
	v4 := value.NewValue(strType, rt.Bridge.Runtime().ToValue(4))

	sel1 := NewSelect(params.New(params.Key{Type: strType, Val: v3}), value.NewTypeId("Combined"), entry)
	sel2 := NewSelect(params.New(params.Key{Type: strType, Val: v4}), value.NewTypeId("Combined"), entry)

	if sel1.CacheKey() == sel2.CacheKey() {
		t.Fatalf("CacheKey collided across differing param values: %q", sel1.CacheKey())
	}
}

func TestSelectRootEntryIsNotExecutable(t *testing.T) {
	rt := newTestRuntime(newFakeGraph())
	sel := &Select{Params: params.New(), Product: value.NewTypeId("X"), Entry: rulegraph.Entry{Kind: rulegraph.EntryRoot}}
	if _, err := sel.Run(context.Background(), rt); err == nil {
		t.Fatal("expected running a Root entry to fail")
	}
}

func TestSelectParamEntryMissingValueThrows(t *testing.T) {
	rt := newTestRuntime(newFakeGraph())
	sel := &Select{Params: params.New(), Product: value.NewTypeId("Str"), Entry: rulegraph.Entry{Kind: rulegraph.EntryParam, ParamType: value.NewTypeId("Str")}}
	if _, err := sel.Run(context.Background(), rt); err == nil {
		t.Fatal("expected a missing Param to Throw")
	}
}

// --- Task generator dialogue, driven through a real goja VM ---

// buildFn compiles src (an expression yielding a callable, e.g. a function
// or generator literal) and wraps it as a value.Value via the bridge.
func buildFn(t *testing.T, b *value.Bridge, id value.TypeId, src string) value.Value {
	t.Helper()
	v, err := b.Runtime().RunString(src)
	if err != nil {
		t.Fatalf("compiling %q: %v", src, err)
	}
	return value.NewValue(id, v)
}

// TestTaskGeneratorDialogue exercises a two-level rule graph: a generator
// task "combine" issues a Get for "Upper", resolved by a nested, non-
// generator task "upper" that itself resolves a Str param — covering
// parameter-narrowing across the Get boundary (property 3) and the
// Get/Break dialogue end to end.
func TestTaskGeneratorDialogue(t *testing.T) {
	strType := value.NewTypeId("Str")
	upperType := value.NewTypeId("Upper")
	combinedType := value.NewTypeId("Combined")

	graph := newFakeGraph()
	rt := newTestRuntime(graph)

	upperRule := rulegraph.Rule{
		Kind:        rulegraph.KindTask,
		Product:     upperType,
		Clause:      []rulegraph.TypeId{strType},
		Cacheable:   true,
		DisplayInfo: "upper",
		Func:        buildFn(t, rt.Bridge, upperType, `(function(s){ return s.toUpperCase(); })`),
	}
	upperEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: upperRule}
	graph.set(upperEntry, rulegraph.EdgeSet{
		rulegraph.JustSelect(strType): {Kind: rulegraph.EntryParam, ParamType: strType},
	})

	combineRule := rulegraph.Rule{
		Kind:        rulegraph.KindTask,
		Product:     combinedType,
		Clause:      []rulegraph.TypeId{strType},
		Cacheable:   true,
		DisplayInfo: "combine",
		Gets:        []rulegraph.GetDecl{{Product: upperType, Subject: strType}},
		Func: buildFn(t, rt.Bridge, combinedType, `(function*(s){
			var up = yield {kind: "get", get: {product: "Upper", subject_type: "Str", subject: s}};
			return up + "!";
		})`),
	}
	combineEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: combineRule}
	graph.set(combineEntry, rulegraph.EdgeSet{
		rulegraph.JustSelect(strType):         {Kind: rulegraph.EntryParam, ParamType: strType},
		rulegraph.JustGet(upperType, strType): upperEntry,
	})

	subjectVM := rt.Bridge.Runtime()
	strVal := value.NewValue(strType, subjectVM.ToValue("hello"))
	taskParams := params.New(params.Key{Type: strType, Val: strVal})

	task := &Task{Params: taskParams, Product: combinedType, Rule: combineRule, Entry: combineEntry}
	res, err := task.Run(context.Background(), rt)
	if err != nil {
		t.Fatalf("Task.Run: %v", err)
	}
	if res.Kind != result.KindValue {
		t.Fatalf("result.Kind = %v, want KindValue", res.Kind)
	}
	if got := res.Value.String(); got != "HELLO!" {
		t.Fatalf("result value = %q, want %q", got, "HELLO!")
	}
	if res.Value.TypeId() != combinedType {
		t.Fatalf("result TypeId = %v, want %v", res.Value.TypeId(), combinedType)
	}
}

// TestTaskGeneratorGetMultiFansOut exercises the GetMulti branch: two Gets
// resolved in parallel, then joined into a tuple sent back into the
// generator as a single value.
func TestTaskGeneratorGetMultiFansOut(t *testing.T) {
	strType := value.NewTypeId("Str")
	upperType := value.NewTypeId("Upper")
	lowerType := value.NewTypeId("Lower")
	combinedType := value.NewTypeId("Combined")

	graph := newFakeGraph()
	rt := newTestRuntime(graph)

	upperRule := rulegraph.Rule{Kind: rulegraph.KindTask, Product: upperType, Clause: []rulegraph.TypeId{strType}, Cacheable: true, DisplayInfo: "upper",
		Func: buildFn(t, rt.Bridge, upperType, `(function(s){ return s.toUpperCase(); })`)}
	upperEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: upperRule}
	graph.set(upperEntry, rulegraph.EdgeSet{rulegraph.JustSelect(strType): {Kind: rulegraph.EntryParam, ParamType: strType}})

	lowerRule := rulegraph.Rule{Kind: rulegraph.KindTask, Product: lowerType, Clause: []rulegraph.TypeId{strType}, Cacheable: true, DisplayInfo: "lower",
		Func: buildFn(t, rt.Bridge, lowerType, `(function(s){ return s.toLowerCase(); })`)}
	lowerEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: lowerRule}
	graph.set(lowerEntry, rulegraph.EdgeSet{rulegraph.JustSelect(strType): {Kind: rulegraph.EntryParam, ParamType: strType}})

	combineRule := rulegraph.Rule{
		Kind: rulegraph.KindTask, Product: combinedType, Clause: []rulegraph.TypeId{strType}, Cacheable: true, DisplayInfo: "combine",
		Func: buildFn(t, rt.Bridge, combinedType, `(function*(s){
			var both = yield {kind: "get_multi", gets: [
				{kind: "get", get: {product: "Upper", subject_type: "Str", subject: s}},
				{kind: "get", get: {product: "Lower", subject_type: "Str", subject: s}},
			]};
			return both[0] + "/" + both[1];
		})`),
	}
	combineEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: combineRule}
	graph.set(combineEntry, rulegraph.EdgeSet{
		rulegraph.JustSelect(strType):         {Kind: rulegraph.EntryParam, ParamType: strType},
		rulegraph.JustGet(upperType, strType): upperEntry,
		rulegraph.JustGet(lowerType, strType): lowerEntry,
	})

	strVal := value.NewValue(strType, rt.Bridge.Runtime().ToValue("Hello"))
	task := &Task{Params: params.New(params.Key{Type: strType, Val: strVal}), Product: combinedType, Rule: combineRule, Entry: combineEntry}

	res, err := task.Run(context.Background(), rt)
	if err != nil {
		t.Fatalf("Task.Run: %v", err)
	}
	if got := res.Value.String(); got != "HELLO/hello" {
		t.Fatalf("result value = %q, want %q", got, "HELLO/hello")
	}
}

// TestTaskGeneratorUnresolvedGetThrows exercises the failure path when a
// generator issues a Get the rule graph never declared an edge for.
func TestTaskGeneratorUnresolvedGetThrows(t *testing.T) {
	strType := value.NewTypeId("Str")
	combinedType := value.NewTypeId("Combined")

	graph := newFakeGraph()
	rt := newTestRuntime(graph)

	combineRule := rulegraph.Rule{
		Kind: rulegraph.KindTask, Product: combinedType, Clause: []rulegraph.TypeId{strType}, Cacheable: true, DisplayInfo: "combine",
		Func: buildFn(t, rt.Bridge, combinedType, `(function*(s){
			var up = yield {kind: "get", get: {product: "Upper", subject_type: "Str", subject: s}};
			return up;
		})`),
	}
	combineEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: combineRule}
	graph.set(combineEntry, rulegraph.EdgeSet{
		rulegraph.JustSelect(strType): {Kind: rulegraph.EntryParam, ParamType: strType},
		// deliberately no edge for JustGet(Upper, Str)
	})

	strVal := value.NewValue(strType, rt.Bridge.Runtime().ToValue("hello"))
	task := &Task{Params: params.New(params.Key{Type: strType, Val: strVal}), Product: combinedType, Rule: combineRule, Entry: combineEntry}

	if _, err := task.Run(context.Background(), rt); err == nil {
		t.Fatal("expected an undeclared Get to Throw")
	}
}

// TestTaskNonGeneratorDirectReturn exercises the non-generator path: a
// plain function's return value becomes the result directly.
func TestTaskNonGeneratorDirectReturn(t *testing.T) {
	strType := value.NewTypeId("Str")
	upperType := value.NewTypeId("Upper")

	graph := newFakeGraph()
	rt := newTestRuntime(graph)

	upperRule := rulegraph.Rule{Kind: rulegraph.KindTask, Product: upperType, Clause: []rulegraph.TypeId{strType}, Cacheable: true, DisplayInfo: "upper",
		Func: buildFn(t, rt.Bridge, upperType, `(function(s){ return s.toUpperCase(); })`)}
	upperEntry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: upperRule}
	graph.set(upperEntry, rulegraph.EdgeSet{rulegraph.JustSelect(strType): {Kind: rulegraph.EntryParam, ParamType: strType}})

	strVal := value.NewValue(strType, rt.Bridge.Runtime().ToValue("world"))
	task := &Task{Params: params.New(params.Key{Type: strType, Val: strVal}), Product: upperType, Rule: upperRule, Entry: upperEntry}

	res, err := task.Run(context.Background(), rt)
	if err != nil {
		t.Fatalf("Task.Run: %v", err)
	}
	if got := res.Value.String(); got != "WORLD" {
		t.Fatalf("result value = %q, want WORLD", got)
	}
}

// --- Select fan-out over an Intrinsic's declared inputs (first-error-wins) ---

func TestSelectIntrinsicFanOutFirstErrorWins(t *testing.T) {
	aType := value.NewTypeId("A")
	bType := value.NewTypeId("B")
	productType := value.NewTypeId("Product")

	graph := newFakeGraph()
	rt := newTestRuntime(graph)
	rt.Intrinsics = map[string]IntrinsicFunc{
		productType.String(): func(ctx context.Context, inputs []value.Value, rt *Runtime) (result.NodeResult, error) {
			t.Fatal("intrinsic should not run when an input Select fails")
			return result.NodeResult{}, nil
		},
	}

	rule := rulegraph.Rule{Kind: rulegraph.KindIntrinsic, Product: productType, Inputs: []rulegraph.TypeId{aType, bType}}
	entry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: rule}
	graph.set(entry, rulegraph.EdgeSet{
		rulegraph.JustSelect(aType): {Kind: rulegraph.EntryParam, ParamType: aType},
		// no edge for B: its Select will fail to resolve
	})

	sel := &Select{Params: params.New(), Product: productType, Entry: entry}
	if _, err := sel.Run(context.Background(), rt); err == nil {
		t.Fatal("expected an unresolved input Select to fail the intrinsic fan-out")
	}
}

func TestSelectIntrinsicResolvesAllInputs(t *testing.T) {
	aType := value.NewTypeId("A")
	bType := value.NewTypeId("B")
	productType := value.NewTypeId("Product")

	graph := newFakeGraph()
	rt := newTestRuntime(graph)
	rt.Intrinsics = map[string]IntrinsicFunc{
		productType.String(): func(ctx context.Context, inputs []value.Value, rt *Runtime) (result.NodeResult, error) {
			if len(inputs) != 2 {
				t.Fatalf("intrinsic saw %d inputs, want 2", len(inputs))
			}
			return result.OfValue(value.NewValue(productType, inputs[0].Raw())), nil
		},
	}

	rule := rulegraph.Rule{Kind: rulegraph.KindIntrinsic, Product: productType, Inputs: []rulegraph.TypeId{aType, bType}}
	entry := rulegraph.Entry{Kind: rulegraph.EntryInner, Rule: rule}
	graph.set(entry, rulegraph.EdgeSet{
		rulegraph.JustSelect(aType): {Kind: rulegraph.EntryParam, ParamType: aType},
		rulegraph.JustSelect(bType): {Kind: rulegraph.EntryParam, ParamType: bType},
	})

	aVal := value.NewValue(aType, rt.Bridge.Runtime().ToValue("a-val"))
	bVal := value.NewValue(bType, rt.Bridge.Runtime().ToValue("b-val"))
	p := params.New(params.Key{Type: aType, Val: aVal}, params.Key{Type: bType, Val: bVal})

	sel := &Select{Params: p, Product: productType, Entry: entry}
	res, err := sel.Run(context.Background(), rt)
	if err != nil {
		t.Fatalf("Select.Run: %v", err)
	}
	if got := res.Value.String(); got != "a-val" {
		t.Fatalf("result value = %q, want a-val", got)
	}
}
