package value

import (
	"fmt"

	"github.com/dop251/goja"
)

// ResponseKind distinguishes the three shapes a generator body can yield,
// per the generator dialogue described for Task evaluation: Get (one
// dependency), GetMulti (a parallel batch), or Break (the final result).
type ResponseKind int

const (
	KindGet ResponseKind = iota
	KindGetMulti
	KindBreak
)

// Get is a single intra-rule dependency request: "give me a Product for
// this Subject", optionally declaring the Subject's union supertype so a
// missing edge can be reported against the union rather than the concrete
// type.
type Get struct {
	DeclaredSubject TypeId // zero value means "no declared union type"
	Product         TypeId
	Subject         Value
}

// GeneratorResponse is what advancing a generator body yields.
type GeneratorResponse struct {
	Kind    ResponseKind
	Get     Get   // valid when Kind == KindGet
	Multi   []Get // valid when Kind == KindGetMulti
	Break   Value // valid when Kind == KindBreak
}

// Generator drives a single goja generator-function instance across
// multiple yields, by calling its exported next()/throw() methods the
// same way utils/js.GojaJsEngine calls an exported function via
// goja.AssertFunction.
type Generator struct {
	vm   *goja.Runtime
	obj  *goja.Object
	next goja.Callable
}

// NewGenerator instantiates fn as a generator (fn must be a goja function
// compiled from a `function*` body) with the given initial arguments, and
// returns a Generator ready to be advanced with Send.
func NewGenerator(b *Bridge, fn goja.Value, args []Value) (*Generator, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("rule body is not callable")
	}
	callArgs := make([]goja.Value, len(args))
	for i, a := range args {
		callArgs[i] = a.raw
	}
	inst, err := callable(goja.Undefined(), callArgs...)
	if err != nil {
		return nil, err
	}
	return NewGeneratorFromInstance(b, NewValue(TypeId{}, inst))
}

// NewGeneratorFromInstance wraps an already-instantiated generator object
// (e.g. the Value a Task's rule body returned from calling it once, recognized
// as a generator by its shape) so the Task generator loop can drive it with Send without
// re-invoking the rule function.
func NewGeneratorFromInstance(b *Bridge, inst Value) (*Generator, error) {
	obj := inst.raw.ToObject(b.vm)
	nextFn, ok := goja.AssertFunction(obj.Get("next"))
	if !ok {
		return nil, fmt.Errorf("rule body did not return a generator")
	}
	return &Generator{vm: b.vm, obj: obj, next: nextFn}, nil
}

// Send advances the generator with prev as the value of the previous
// yield expression, and decodes the { value, done } result into a
// GeneratorResponse. When done is true, the yielded value is always
// treated as a Break.
func (g *Generator) Send(prev Value) (GeneratorResponse, error) {
	res, err := g.next(g.obj, prev.raw)
	if err != nil {
		return GeneratorResponse{}, err
	}
	resObj := res.ToObject(g.vm)
	done := resObj.Get("done").ToBoolean()
	yielded := resObj.Get("value")

	if done {
		return GeneratorResponse{Kind: KindBreak, Break: NewValue(TypeId{}, yielded)}, nil
	}
	return decodeYield(g.vm, yielded)
}

// decodeYield interprets a yielded object's "kind" discriminant field
// ("get", "get_multi", "break") the way a thin JS shim around user rule
// bodies is expected to tag its yields.
func decodeYield(vm *goja.Runtime, yielded goja.Value) (GeneratorResponse, error) {
	obj := yielded.ToObject(vm)
	kind := obj.Get("kind")
	if kind == nil {
		return GeneratorResponse{}, fmt.Errorf("generator yielded a value with no kind discriminant")
	}
	switch kind.String() {
	case "get":
		return GeneratorResponse{Kind: KindGet, Get: decodeGet(vm, obj.Get("get"))}, nil
	case "get_multi":
		arr := obj.Get("gets").ToObject(vm)
		length := int(arr.Get("length").ToInteger())
		gets := make([]Get, length)
		for i := 0; i < length; i++ {
			gets[i] = decodeGet(vm, arr.Get(fmt.Sprintf("%d", i)))
		}
		return GeneratorResponse{Kind: KindGetMulti, Multi: gets}, nil
	case "break":
		return GeneratorResponse{Kind: KindBreak, Break: NewValue(TypeId{}, obj.Get("value"))}, nil
	default:
		return GeneratorResponse{}, fmt.Errorf("unrecognized generator yield kind %q", kind.String())
	}
}

func decodeGet(vm *goja.Runtime, raw goja.Value) Get {
	obj := raw.ToObject(vm)
	product := NewTypeId(obj.Get("product").String())
	var declared TypeId
	if d := obj.Get("declared_subject"); d != nil && !goja.IsUndefined(d) {
		declared = NewTypeId(d.String())
	}
	subjectType := NewTypeId(obj.Get("subject_type").String())
	return Get{
		DeclaredSubject: declared,
		Product:         product,
		Subject:         NewValue(subjectType, obj.Get("subject")),
	}
}
