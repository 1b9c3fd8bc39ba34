package graphbin

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// CBOR tags used by the bridge.
const (
	cborTagObject = 27  // serialised object: [class name, {fields}]
	cborTagSet    = 258 // finite set
	cborTagMap    = 259 // map with arbitrary keys
)

// RFC 8746 typed-array tags, little-endian forms.
var viewToCBORTag = map[ViewKind]uint64{
	ViewUint8:   64,
	ViewInt8:    72,
	ViewUint16:  69,
	ViewUint32:  70,
	ViewUint64:  71,
	ViewInt16:   77,
	ViewInt32:   78,
	ViewInt64:   79,
	ViewFloat32: 85,
	ViewFloat64: 86,
}

var cborTagToView = func() map[uint64]ViewKind {
	m := make(map[uint64]ViewKind, len(viewToCBORTag))
	for k, tag := range viewToCBORTag {
		m[tag] = k
	}
	return m
}()

var cborUndefined = cbor.RawMessage{0xf7}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// BigInts stay bignums even when they would fit an integer, so they
	// come back as BigInt.
	encOptions.BigIntConvert = cbor.BigIntConvertNone
	cborEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("graphbin: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{
		BigIntDec: cbor.BigIntDecodePointer,
	}.DecMode()
	if err != nil {
		panic("graphbin: CBOR decoder initialization failed: " + err.Error())
	}
}

// ============================================================
// ToCBOR
// ============================================================

// ToCBOR converts a value tree to deterministic CBOR (RFC 8949 core
// deterministic encoding, so map and record keys come out sorted).
//
// BigInts become bignums, buffers byte strings, views RFC 8746 typed
// arrays, sets tag 258, maps tag 259 and instances of classes
// registered in ctx tag 27 holding [name, {fields}]. Undefined, tokens
// and callables become CBOR undefined. Shared nodes are duplicated and
// cycles fail with ErrCycle.
func ToCBOR(ctx *Context, v *Value) ([]byte, error) {
	c := &cborBuilder{ctx: ctx, guard: make(pathGuard)}
	tree, err := c.build(v)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(tree)
}

type cborBuilder struct {
	ctx   *Context
	guard pathGuard
}

func (c *cborBuilder) build(v *Value) (any, error) {
	if v.Kind().composite() {
		if err := c.guard.enter(v); err != nil {
			return nil, err
		}
		defer c.guard.leave(v)
	}

	switch v.Kind() {
	case KindNull:
		return nil, nil

	case KindUndefined, KindToken, KindFunc:
		return cborUndefined, nil

	case KindBool:
		return v.boolVal, nil

	case KindInt:
		return v.intVal, nil

	case KindFloat:
		return v.floatVal, nil

	case KindBigInt:
		return new(big.Int).Set(v.bigVal), nil

	case KindString:
		return v.strVal, nil

	case KindList:
		return c.items(v.items)

	case KindSet:
		items, err := c.items(v.items)
		if err != nil {
			return nil, err
		}
		return cbor.Tag{Number: cborTagSet, Content: items}, nil

	case KindRecord:
		return c.fields(v.fields)

	case KindInstance:
		id, ok := c.ctx.ClassID(v.class)
		if !ok {
			return c.fields(v.fields)
		}
		plain := v
		if v.class.serialize != nil {
			var err error
			if plain, err = v.class.serialize(v); err != nil {
				return nil, fmt.Errorf("graphbin: serialize %s: %w", id, err)
			}
			if plain.Kind() != KindRecord && plain.Kind() != KindInstance {
				return nil, fmt.Errorf("graphbin: %w: serializer of %s returned %s", ErrUnsupportedValue, id, plain.Kind())
			}
		}
		fields, err := c.fields(plain.fields)
		if err != nil {
			return nil, err
		}
		return cbor.Tag{Number: cborTagObject, Content: []any{id, fields}}, nil

	case KindMap:
		m := make(map[any]any, len(v.entries))
		for _, e := range v.entries {
			key, err := cborKey(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := c.build(e.Value)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return cbor.Tag{Number: cborTagMap, Content: m}, nil

	case KindBuffer:
		return v.bytesVal, nil

	case KindView:
		b, err := v.ViewBytes()
		if err != nil {
			return nil, err
		}
		return cbor.Tag{Number: viewToCBORTag[v.view.kind], Content: b}, nil

	default:
		return nil, fmt.Errorf("graphbin: %w: %s in CBOR", ErrUnsupportedValue, v.kind)
	}
}

func (c *cborBuilder) items(values []*Value) ([]any, error) {
	out := make([]any, 0, len(values))
	for i, item := range values {
		x, err := c.build(item)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		out = append(out, x)
	}
	return out, nil
}

func (c *cborBuilder) fields(fields []Field) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		x, err := c.build(f.Value)
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", f.Name, err)
		}
		out[f.Name] = x
	}
	return out, nil
}

// cborKey converts a map key to a comparable Go value. Only scalar keys
// are supported.
func cborKey(v *Value) (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolVal, nil
	case KindInt:
		return v.intVal, nil
	case KindFloat:
		return v.floatVal, nil
	case KindString:
		return v.strVal, nil
	default:
		return nil, fmt.Errorf("graphbin: %w: %s map key in CBOR", ErrUnsupportedValue, v.Kind())
	}
}

// ============================================================
// FromCBOR
// ============================================================

// FromCBOR converts CBOR produced by ToCBOR (or any CBOR using the same
// tags) to a value tree. Maps with only text keys become records; tag 27
// objects are rebuilt through the classes registered in ctx. CBOR
// undefined decodes to null.
func FromCBOR(ctx *Context, data []byte) (*Value, error) {
	var tree any
	if err := cborDecMode.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("graphbin: CBOR: %w", err)
	}
	return fromCBORValue(ctx, tree)
}

func fromCBORValue(ctx *Context, x any) (*Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil

	case bool:
		return Bool(t), nil

	case uint64:
		if t > math.MaxInt64 {
			return BigInt(new(big.Int).SetUint64(t)), nil
		}
		return intOrBig(int64(t)), nil

	case int64:
		return intOrBig(t), nil

	case float32:
		return Float(float64(t)), nil

	case float64:
		return Float(t), nil

	case *big.Int:
		return BigInt(t), nil

	case big.Int:
		return BigInt(&t), nil

	case string:
		return Str(t), nil

	case []byte:
		return Buffer(t), nil

	case []any:
		list := List()
		for i, item := range t {
			v, err := fromCBORValue(ctx, item)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			list.Append(v)
		}
		return list, nil

	case map[any]any:
		return fromCBORMap(ctx, t)

	case cbor.Tag:
		return fromCBORTag(ctx, t)

	default:
		return nil, fmt.Errorf("graphbin: %w: CBOR item %T", ErrUnsupportedValue, x)
	}
}

// fromCBORMap turns a text-keyed map into a record with fields sorted
// by name, and any other map into a Map.
func fromCBORMap(ctx *Context, m map[any]any) (*Value, error) {
	names := make([]string, 0, len(m))
	for k := range m {
		s, ok := k.(string)
		if !ok {
			return fromCBORKeyed(ctx, m)
		}
		names = append(names, s)
	}
	sort.Strings(names)
	rec := Record()
	for _, name := range names {
		v, err := fromCBORValue(ctx, m[name])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", name, err)
		}
		rec.SetField(name, v)
	}
	return rec, nil
}

func fromCBORKeyed(ctx *Context, m map[any]any) (*Value, error) {
	type pair struct {
		key, val *Value
		sortKey  string
	}
	pairs := make([]pair, 0, len(m))
	for k, x := range m {
		key, err := fromCBORValue(ctx, k)
		if err != nil {
			return nil, err
		}
		val, err := fromCBORValue(ctx, x)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{key: key, val: val, sortKey: Sprint(key)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].sortKey < pairs[j].sortKey })
	out := Map()
	for _, p := range pairs {
		out.MapSet(p.key, p.val)
	}
	return out, nil
}

func fromCBORTag(ctx *Context, t cbor.Tag) (*Value, error) {
	if kind, ok := cborTagToView[t.Number]; ok {
		b, ok := t.Content.([]byte)
		if !ok {
			return nil, fmt.Errorf("graphbin: %w: typed array tag %d without byte string", ErrFormat, t.Number)
		}
		return ViewOf(kind, b), nil
	}

	switch t.Number {
	case cborTagSet:
		items, ok := t.Content.([]any)
		if !ok {
			return nil, fmt.Errorf("graphbin: %w: set tag without array", ErrFormat)
		}
		set := Set()
		for _, item := range items {
			v, err := fromCBORValue(ctx, item)
			if err != nil {
				return nil, err
			}
			set.SetAdd(v)
		}
		return set, nil

	case cborTagMap:
		m, ok := t.Content.(map[any]any)
		if !ok {
			return nil, fmt.Errorf("graphbin: %w: map tag without map", ErrFormat)
		}
		return fromCBORKeyed(ctx, m)

	case cborTagObject:
		parts, ok := t.Content.([]any)
		if !ok || len(parts) != 2 {
			return nil, fmt.Errorf("graphbin: %w: object tag without [name, fields]", ErrFormat)
		}
		name, ok := parts[0].(string)
		if !ok {
			return nil, fmt.Errorf("graphbin: %w: object tag name is %T", ErrFormat, parts[0])
		}
		class, ok := ctx.LookupClass(name)
		if !ok {
			return nil, fmt.Errorf("graphbin: %w: class %q", ErrUnregistered, name)
		}
		body, ok := parts[1].(map[any]any)
		if !ok {
			return nil, fmt.Errorf("graphbin: %w: object tag fields are %T", ErrFormat, parts[1])
		}
		rec, err := fromCBORMap(ctx, body)
		if err != nil {
			return nil, err
		}
		if rec.kind != KindRecord {
			return nil, fmt.Errorf("graphbin: %w: object fields with non-text keys", ErrFormat)
		}
		if class.deserialize != nil {
			inst, err := class.deserialize(rec)
			if err != nil {
				return nil, fmt.Errorf("graphbin: deserialize %s: %w", name, err)
			}
			return inst, nil
		}
		return class.New(rec.fields...), nil

	default:
		return nil, fmt.Errorf("graphbin: %w: CBOR tag %d", ErrUnsupportedValue, t.Number)
	}
}
