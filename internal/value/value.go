// Package value implements the host-value bridge: a narrow, synchronous
// protocol the engine uses to project fields out of, and construct, values
// that live in the host language runtime (embedded as a goja VM), the same
// role utils/js.GojaJsEngine played for the rule-chain engine this module
// descends from.
package value

import (
	"fmt"

	"github.com/dop251/goja"
)

// TypeId is an opaque, comparable identifier for a host-language type.
type TypeId struct {
	name string
}

func NewTypeId(name string) TypeId { return TypeId{name: name} }
func (t TypeId) String() string    { return t.name }
func (t TypeId) IsZero() bool      { return t.name == "" }

// Value is a reference-counted-by-convention handle to a host value: the
// underlying goja.Value plus the TypeId the engine believes it carries.
// Values are cheap to copy (they hold only a pointer and a small struct).
type Value struct {
	id  TypeId
	raw goja.Value
	// msg holds a plain-Go message for values constructed without a VM
	// (exceptions built internally by the engine, e.g. via NewException).
	msg string
}

func NewValue(id TypeId, raw goja.Value) Value { return Value{id: id, raw: raw} }
func (v Value) TypeId() TypeId                 { return v.id }
func (v Value) Raw() goja.Value                { return v.raw }
func (v Value) IsNone() bool                   { return v.raw == nil || goja.IsUndefined(v.raw) || goja.IsNull(v.raw) }
func (v Value) String() string {
	if v.raw == nil {
		if v.msg != "" {
			return v.msg
		}
		return "<none>"
	}
	return v.raw.String()
}

// None is the sentinel value sent into a freshly-started generator before
// its first yield.
func None() Value { return Value{id: NewTypeId("__none__")} }

// Bridge wraps a goja.Runtime and exposes the small enumerated set of
// operations §4.A of the engine's design allows against host values.
// Every method is synchronous and must not suspend, matching the
// constraint that host interop never blocks the scheduler.
type Bridge struct {
	vm *goja.Runtime
}

func NewBridge() *Bridge {
	return &Bridge{vm: goja.New()}
}

func (b *Bridge) Runtime() *goja.Runtime { return b.vm }

// ProjectScalar reads a named field off v and returns it as a Go scalar
// (string, bool, or int64). Projection of a missing field is a programmer
// error and panics, matching the spec's framing that the host schema is
// assumed stable for the session.
func (b *Bridge) ProjectScalar(v Value, field string) interface{} {
	obj := v.raw.ToObject(b.vm)
	fv := obj.Get(field)
	if fv == nil {
		panic(fmt.Sprintf("host value missing field %q", field))
	}
	return fv.Export()
}

// ProjectValue reads a named field and wraps it as a Value of the given
// TypeId, for nested-object projection.
func (b *Bridge) ProjectValue(v Value, field string, id TypeId) Value {
	obj := v.raw.ToObject(b.vm)
	return NewValue(id, obj.Get(field))
}

// ProjectRepeated reads a named field, expected to be an array-like, as a
// slice of Values all of the given element TypeId.
func (b *Bridge) ProjectRepeated(v Value, field string, elemId TypeId) []Value {
	obj := v.raw.ToObject(b.vm)
	arr := obj.Get(field)
	if arr == nil || goja.IsUndefined(arr) {
		return nil
	}
	arrObj := arr.ToObject(b.vm)
	length := int(arrObj.Get("length").ToInteger())
	out := make([]Value, length)
	for i := 0; i < length; i++ {
		out[i] = NewValue(elemId, arrObj.Get(fmt.Sprintf("%d", i)))
	}
	return out
}

// ConstructTuple builds a tuple-shaped Value out of an ordered list of
// Values, used to wrap a GetMulti's results before sending them back into
// a generator as a single input.
func (b *Bridge) ConstructTuple(id TypeId, elems []Value) Value {
	arr := b.vm.NewArray()
	for i, e := range elems {
		_ = arr.Set(fmt.Sprintf("%d", i), e.raw)
	}
	return NewValue(id, arr)
}

// CallAsFunction invokes v as a callable with the given positional
// arguments, returning its result wrapped with resultId.
func (b *Bridge) CallAsFunction(v Value, args []Value, resultId TypeId) (Value, error) {
	fn, ok := goja.AssertFunction(v.raw)
	if !ok {
		return Value{}, fmt.Errorf("host value of type %s is not callable", v.id)
	}
	callArgs := make([]goja.Value, len(args))
	for i, a := range args {
		callArgs[i] = a.raw
	}
	res, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return Value{}, err
	}
	return NewValue(resultId, res), nil
}

// IsGeneratorInstance reports whether v's underlying host value is a
// generator object (exposes a callable "next" method), the signal a Task
// uses to decide whether to drive the Get/GetMulti/Break dialogue instead
// of treating v as the rule's final result. A TypeId tag can't carry this
// signal through CallAsFunction, which always stamps its result with the
// caller-supplied resultId — so this checks the value's actual shape.
func (b *Bridge) IsGeneratorInstance(v Value) (ok bool) {
	if v.raw == nil || goja.IsUndefined(v.raw) || goja.IsNull(v.raw) {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	obj := v.raw.ToObject(b.vm)
	_, ok = goja.AssertFunction(obj.Get("next"))
	return ok
}

// InvokeMethod calls a named method on v.
func (b *Bridge) InvokeMethod(v Value, method string, args []Value, resultId TypeId) (Value, error) {
	obj := v.raw.ToObject(b.vm)
	m, ok := goja.AssertFunction(obj.Get(method))
	if !ok {
		return Value{}, fmt.Errorf("host value of type %s has no method %q", v.id, method)
	}
	callArgs := make([]goja.Value, len(args))
	for i, a := range args {
		callArgs[i] = a.raw
	}
	res, err := m(v.raw, callArgs...)
	if err != nil {
		return Value{}, err
	}
	return NewValue(resultId, res), nil
}

// NewException builds the host "exception" value the engine attaches to a
// Throw, mirroring the original's externs::create_exception(msg).
func NewException(msg string) Value {
	return Value{id: NewTypeId("__exception__"), msg: msg}
}
