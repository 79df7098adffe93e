// Package trace implements the memoization-graph inspection tools described
// in spec §4.H: a stable per-product color assignment for visualization, and
// a "bottom" predicate distinguishing leaf states (not worth expanding) from
// expandable ones, plus textual state rendering for tracebacks.
package trace

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/structs"
)

// palette is the fixed 12-color trace palette (set312-style), assigned to
// distinct product strings on first encounter and stable for the life of a
// visualization run, per the "Visualizer color assignment" supplement.
var palette = [12]string{
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12",
}

// Colors assigns colors from the fixed 12-slot palette to distinct
// product_str() values, wrapping around with modulo once more than 12
// distinct products have appeared. Not safe for concurrent use — the
// visualizer's color table is single-threaded, used post-hoc for rendering
// (§5's shared-resource policy).
type Colors struct {
	assigned map[string]string
	order    []string
}

func NewColors() *Colors {
	return &Colors{assigned: make(map[string]string)}
}

// ColorFor returns the color for productStr, assigning the next palette
// slot on first encounter.
func (c *Colors) ColorFor(productStr string) string {
	if col, ok := c.assigned[productStr]; ok {
		return col
	}
	idx := len(c.order) % len(palette)
	col := palette[idx]
	c.assigned[productStr] = col
	c.order = append(c.order, productStr)
	return col
}

// NonePeekColor is the fixed color for a node that hasn't completed yet.
func NonePeekColor() string { return "white" }

// State mirrors the outcome shapes a node's memoized entry can be in for
// trace rendering purposes.
type State int

const (
	StateNone State = iota
	StateOk
	StateThrow
	StateInvalidated
)

// IsBottom reports whether a node in this state is a leaf of the trace —
// not useful to expand further. Per spec §4.H's literal text, Ok/Throw/None
// are bottom; only Invalidated is expandable (see DESIGN.md's Open Question
// contrasting this with the original implementation's is_bottom(), which
// treats Throw as expandable — this package follows spec.md, the
// authoritative requirements document here).
func IsBottom(s State) bool {
	return s != StateInvalidated
}

// RenderState produces the textual form of a node's state for a trace
// dump: "Ok", "None", "Invalidated", or "Throw" with an indented message
// and traceback.
func RenderState(s State, excMsg, traceback string) string {
	switch s {
	case StateOk:
		return "Ok"
	case StateNone:
		return "None"
	case StateInvalidated:
		return "Invalidated"
	case StateThrow:
		var b strings.Builder
		b.WriteString("Throw(")
		b.WriteString(excMsg)
		b.WriteString(")\n")
		for _, line := range strings.Split(traceback, "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		return b.String()
	default:
		return "?"
	}
}

// StateColor renders the color code a visualization panel uses for a node
// in this state: "4" for Throw, "12" for Invalidated, the peek color for
// None/not-yet-run, or the product's own color for Ok.
func StateColor(s State, productColor string) string {
	switch s {
	case StateThrow:
		return "4"
	case StateInvalidated:
		return "12"
	case StateNone:
		return NonePeekColor()
	default:
		return productColor
	}
}

// NodeMetadata is a debug-oriented projection of a traced node, flattened
// into a map for panel rendering via fatih/structs — adopted from the
// teacher's direct dependency, given a home here since its original DSL
// layer that used it is dropped in this engine.
type NodeMetadata struct {
	Kind       string
	CacheKey   string
	Cacheable  bool
	Product    string
	Params     string
	EntryKind  string
}

// Flatten renders m as a string-keyed map suitable for a trace panel.
func (m NodeMetadata) Flatten() map[string]interface{} {
	return structs.Map(m)
}

// Panel assembles one visualization panel: a node's flattened metadata plus
// its rendered state and color, for a trace-rendering front end.
type Panel struct {
	Metadata map[string]interface{}
	State    string
	Color    string
}

// Tracer accumulates panels for every node visited during one evaluation,
// assigning colors lazily through a single Colors table so repeated
// products across the run share a color.
type Tracer struct {
	mu     sync.Mutex
	colors *Colors
	panels []Panel
}

func NewTracer() *Tracer {
	return &Tracer{colors: NewColors()}
}

// Record appends a panel for one traced node.
func (t *Tracer) Record(meta NodeMetadata, state State, excMsg, traceback string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	color := StateColor(state, t.colors.ColorFor(meta.Product))
	t.panels = append(t.panels, Panel{
		Metadata: meta.Flatten(),
		State:    RenderState(state, excMsg, traceback),
		Color:    color,
	})
}

// Panels returns every panel recorded so far, in recording order.
func (t *Tracer) Panels() []Panel {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Panel, len(t.panels))
	copy(out, t.panels)
	return out
}

// Dump renders every recorded panel as a human-readable trace listing.
func (t *Tracer) Dump() string {
	var b strings.Builder
	for _, p := range t.Panels() {
		fmt.Fprintf(&b, "[%s] %v -> %s\n", p.Color, p.Metadata, p.State)
	}
	return b.String()
}
