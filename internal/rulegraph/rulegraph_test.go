package rulegraph

import (
	"testing"

	"github.com/dagrule/engine/internal/value"
)

func NewTestTypeId(name string) TypeId { return value.NewTypeId(name) }

func TestEntryIdentityDistinguishesParamVsInner(t *testing.T) {
	paramEntry := Entry{Kind: EntryParam, ParamType: NewTestTypeId("A")}
	rootEntry := Entry{Kind: EntryRoot}
	if paramEntry.Identity() == rootEntry.Identity() {
		t.Fatal("distinct entry kinds produced the same identity")
	}
}

func TestRuleIdentityStableAcrossEqualInputs(t *testing.T) {
	r1 := Rule{Kind: KindTask, Product: NewTestTypeId("P"), Clause: []TypeId{NewTestTypeId("A"), NewTestTypeId("B")}, DisplayInfo: "my_rule"}
	r2 := Rule{Kind: KindTask, Product: NewTestTypeId("P"), Clause: []TypeId{NewTestTypeId("A"), NewTestTypeId("B")}, DisplayInfo: "my_rule"}
	if r1.Identity() != r2.Identity() {
		t.Fatalf("identical rules produced different identities: %q vs %q", r1.Identity(), r2.Identity())
	}
}

func TestRuleIdentityDiffersOnProduct(t *testing.T) {
	r1 := Rule{Kind: KindTask, Product: NewTestTypeId("P1"), DisplayInfo: "r"}
	r2 := Rule{Kind: KindTask, Product: NewTestTypeId("P2"), DisplayInfo: "r"}
	if r1.Identity() == r2.Identity() {
		t.Fatal("rules with different products produced the same identity")
	}
}

func TestMemGraphRegisterAndLookup(t *testing.T) {
	g := NewMemGraph()
	g.RegisterParam(NewTestTypeId("Str"))
	g.RegisterIntrinsic(NewTestTypeId("Digest"), []TypeId{NewTestTypeId("Str")})

	entry, ok := g.EntryForProduct(NewTestTypeId("Digest"))
	if !ok {
		t.Fatal("expected Digest entry to be registered")
	}
	edges, ok := g.EdgesFor(entry)
	if !ok {
		t.Fatal("expected edges for Digest entry")
	}
	dep, ok := g.EntryFor(edges, JustSelect(NewTestTypeId("Str")))
	if !ok {
		t.Fatal("expected an edge for JustSelect(Str)")
	}
	if dep.Kind != EntryParam {
		t.Fatalf("expected Str to resolve as a Param entry, got %v", dep.Kind)
	}
}

func TestMemGraphRegisterTaskRejectsDuplicateProduct(t *testing.T) {
	g := NewMemGraph()
	r := Rule{Kind: KindTask, Product: NewTestTypeId("P")}
	if err := g.RegisterTask(r); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := g.RegisterTask(r); err == nil {
		t.Fatal("expected duplicate product registration to fail")
	}
}
