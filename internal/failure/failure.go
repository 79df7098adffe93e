// Package failure implements the two-kind error taxonomy the engine uses to
// propagate errors out of node evaluation: a user-visible Throw and a
// retryable Invalidated signal from the memoization substrate.
package failure

import (
	"strings"

	"github.com/dagrule/engine/internal/value"
)

// Failure is the sum type every node evaluation error satisfies.
type Failure interface {
	error
	isFailure()
}

// Throw is a semantic error: a missing param, a missing rule edge, a result
// that didn't satisfy its declared type, an external-service error, a
// malformed host value, a cycle, or exhausted retries. Always user-visible.
type Throw struct {
	Val       value.Value
	Traceback string
}

const nativeTraceback = "<native internals>"

// NewThrow builds a Throw from a plain message, using the engine's static
// "native internals" traceback for errors that originate inside the engine
// itself rather than in a user rule body.
func NewThrow(msg string) *Throw {
	return &Throw{Val: value.NewException(msg), Traceback: nativeTraceback}
}

func (t *Throw) Error() string { return t.Val.String() }
func (t *Throw) isFailure()    {}

// Invalidated signals that one of this node's dependencies was invalidated
// mid-flight by the substrate; requesters retry.
type Invalidated struct{}

func (Invalidated) Error() string { return "invalidated" }
func (Invalidated) isFailure()    {}

// ExhaustedRetries is the Throw an uncacheable node surfaces once it has
// observed more invalidations than its retry threshold tolerates.
func ExhaustedRetries() *Throw {
	return NewThrow("Exhausted retries for uncacheable node. The filesystem was changing too much.")
}

// FormatCycle renders a cycle path the way the substrate's cycle detector
// does: entries joined by "\n  ", with the first and last entries suffixed
// with " <-" to mark where the path closes on itself.
func FormatCycle(path []string) string {
	if len(path) == 0 {
		return "Dep graph contained a cycle:\n  "
	}
	decorated := make([]string, len(path))
	copy(decorated, path)
	decorated[0] = decorated[0] + " <-"
	last := len(decorated) - 1
	if last != 0 {
		decorated[last] = decorated[last] + " <-"
	}
	return "Dep graph contained a cycle:\n  " + strings.Join(decorated, "\n  ")
}

// Cyclic builds the Throw for a detected cycle.
func Cyclic(path []string) *Throw {
	return NewThrow(FormatCycle(path))
}
