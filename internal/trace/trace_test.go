package trace

import (
	"strconv"
	"strings"
	"testing"
)

func TestColorForWrapsAfter12DistinctProducts(t *testing.T) {
	c := NewColors()
	for i := 0; i < 12; i++ {
		got := c.ColorFor("product" + strconv.Itoa(i))
		if got != strconv.Itoa(i+1) {
			t.Fatalf("ColorFor(product%d) = %q, want %q", i, got, strconv.Itoa(i+1))
		}
	}
	// the 13th distinct product wraps back to the first palette slot.
	if got := c.ColorFor("product12"); got != "1" {
		t.Fatalf("ColorFor(product12) = %q, want wraparound to 1", got)
	}
}

func TestColorForIsStableForRepeatedProduct(t *testing.T) {
	c := NewColors()
	first := c.ColorFor("A")
	c.ColorFor("B")
	c.ColorFor("C")
	second := c.ColorFor("A")
	if first != second {
		t.Fatalf("ColorFor(A) changed across calls: %q vs %q", first, second)
	}
}

func TestIsBottom(t *testing.T) {
	cases := []struct {
		s    State
		want bool
	}{
		{StateOk, true},
		{StateThrow, true},
		{StateNone, true},
		{StateInvalidated, false},
	}
	for _, c := range cases {
		if got := IsBottom(c.s); got != c.want {
			t.Errorf("IsBottom(%v) = %v, want %v", c.s, got, c.want)
		}
	}
}

func TestRenderState(t *testing.T) {
	if got := RenderState(StateOk, "", ""); got != "Ok" {
		t.Errorf("RenderState(StateOk) = %q, want Ok", got)
	}
	if got := RenderState(StateNone, "", ""); got != "None" {
		t.Errorf("RenderState(StateNone) = %q, want None", got)
	}
	if got := RenderState(StateInvalidated, "", ""); got != "Invalidated" {
		t.Errorf("RenderState(StateInvalidated) = %q, want Invalidated", got)
	}
	got := RenderState(StateThrow, "boom", "line1\nline2")
	if !strings.HasPrefix(got, "Throw(boom)\n") {
		t.Fatalf("RenderState(StateThrow) = %q, want a Throw(boom) header", got)
	}
	if !strings.Contains(got, "    line1\n") || !strings.Contains(got, "    line2\n") {
		t.Fatalf("RenderState(StateThrow) = %q, want indented traceback lines", got)
	}
}

func TestStateColor(t *testing.T) {
	if got := StateColor(StateThrow, "7"); got != "4" {
		t.Errorf("StateColor(Throw) = %q, want 4", got)
	}
	if got := StateColor(StateInvalidated, "7"); got != "12" {
		t.Errorf("StateColor(Invalidated) = %q, want 12", got)
	}
	if got := StateColor(StateNone, "7"); got != NonePeekColor() {
		t.Errorf("StateColor(None) = %q, want peek color", got)
	}
	if got := StateColor(StateOk, "7"); got != "7" {
		t.Errorf("StateColor(Ok) = %q, want the product's own color", got)
	}
}

func TestTracerRecordAndDump(t *testing.T) {
	tr := NewTracer()
	tr.Record(NodeMetadata{Kind: "Task", CacheKey: "Task(X)", Product: "X"}, StateOk, "", "")
	tr.Record(NodeMetadata{Kind: "Select", CacheKey: "Select(Y)", Product: "Y"}, StateThrow, "bad input", "trace line")

	panels := tr.Panels()
	if len(panels) != 2 {
		t.Fatalf("len(Panels()) = %d, want 2", len(panels))
	}
	if panels[0].State != "Ok" {
		t.Errorf("panels[0].State = %q, want Ok", panels[0].State)
	}
	if panels[0].Metadata["CacheKey"] != "Task(X)" {
		t.Errorf("panels[0].Metadata[CacheKey] = %v, want Task(X)", panels[0].Metadata["CacheKey"])
	}
	if panels[1].Color != "4" {
		t.Errorf("panels[1].Color = %q, want 4 (Throw)", panels[1].Color)
	}

	dump := tr.Dump()
	if !strings.Contains(dump, "Ok") || !strings.Contains(dump, "Throw(bad input)") {
		t.Fatalf("Dump() = %q, missing expected state renderings", dump)
	}
}

func TestTracerPanelsReturnsACopy(t *testing.T) {
	tr := NewTracer()
	tr.Record(NodeMetadata{Product: "X"}, StateOk, "", "")
	panels := tr.Panels()
	panels[0].State = "mutated"
	if tr.Panels()[0].State == "mutated" {
		t.Fatal("Panels() leaked internal slice: mutation through the returned copy affected the tracer")
	}
}
