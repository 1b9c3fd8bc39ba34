package graphbin

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// EncodeOptions configures an Encoder.
type EncodeOptions struct {
	// ReferencePrimitives emits repeated strings and numbers as
	// back-references too. Without it only composites and tokens are
	// referenced.
	ReferencePrimitives bool
}

// DefaultEncodeOptions returns the default encoding options.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{}
}

// Encode encodes v using the registries in ctx. ctx may be nil when the
// graph holds no instances, callables or named tokens that need names.
func Encode(ctx *Context, v *Value) ([]byte, error) {
	return EncodeWithOptions(ctx, v, DefaultEncodeOptions())
}

// EncodeWithOptions encodes v with custom options.
func EncodeWithOptions(ctx *Context, v *Value, opts EncodeOptions) ([]byte, error) {
	return NewEncoder(ctx, opts).Encode(v)
}

// Encoder turns one value graph into bytes. It is not safe for
// concurrent use; create one per call.
type Encoder struct {
	ctx  *Context
	opts EncodeOptions
	out  writer

	// counter is the reference slot of the node being visited. Every
	// traversal step takes one slot, back-references included.
	counter int
	seen    map[any]int
}

// NewEncoder creates an encoder.
func NewEncoder(ctx *Context, opts EncodeOptions) *Encoder {
	return &Encoder{ctx: ctx, opts: opts}
}

// Encode encodes v and returns the bytes. Each call starts a fresh
// reference table.
func (e *Encoder) Encode(v *Value) ([]byte, error) {
	e.out = writer{}
	e.counter = -1
	e.seen = make(map[any]int)
	if err := e.traversal(v); err != nil {
		return nil, err
	}
	return e.out.bytes(), nil
}

// referable reports whether v may be emitted as a back-reference.
func (e *Encoder) referable(v *Value) bool {
	if v == nil {
		return false
	}
	switch v.kind {
	case KindToken:
		return true
	case KindString, KindInt, KindFloat, KindBigInt:
		return e.opts.ReferencePrimitives
	default:
		return v.kind.composite()
	}
}

// referenceKey identifies v among already-written nodes. Floats are
// keyed by their bit pattern so that -0 never aliases +0.
func referenceKey(v *Value) any {
	if v.kind == KindFloat {
		return primitiveKey{kind: KindFloat, i: int64(math.Float64bits(v.floatVal))}
	}
	return sameValueKey(v)
}

// traversal encodes one node. Built-in container codecs call it for
// nested values.
func (e *Encoder) traversal(v *Value) error {
	e.counter++
	referable := e.referable(v)
	if referable {
		key := referenceKey(v)
		if idx, ok := e.seen[key]; ok && idx < e.counter {
			e.out.push(byte(TagReference))
			e.out.pushVint(uint32(idx))
			return nil
		}
		e.seen[key] = e.counter
	}

	switch v.Kind() {
	case KindNull:
		e.out.push(byte(TagNull))

	case KindUndefined:
		e.out.push(byte(TagUndefined))

	case KindBool:
		if v.boolVal {
			e.out.push(byte(TagTrue))
		} else {
			e.out.push(byte(TagFalse))
		}

	case KindInt:
		e.out.push(byte(TagInt))
		e.out.pushVint(uint32(v.intVal))

	case KindFloat:
		e.out.push(byte(TagFloat))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.floatVal))
		e.out.pushBytes(b[:])

	case KindBigInt:
		e.encodeBigInt(v.bigVal)

	case KindString:
		e.out.push(byte(TagString))
		e.out.pushStr(v.strVal)

	case KindToken:
		if id, ok := e.ctx.TokenID(v); ok {
			e.out.push(byte(TagNamedToken))
			e.out.pushStr(id)
		} else {
			e.out.push(byte(TagToken))
			e.out.pushStr(v.strVal)
		}

	case KindList:
		e.out.push(byte(TagList))
		for _, item := range v.items {
			if err := e.traversal(item); err != nil {
				return err
			}
		}
		e.out.push(tagEnd)

	case KindRecord:
		return e.encodeRecord(v.fields)

	case KindInstance:
		return e.encodeInstance(v)

	case KindMap, KindSet, KindBuffer, KindView:
		bt := builtinFor(v)
		if bt == nil {
			return &EncodeError{Err: ErrUnsupportedValue, Reason: "no built-in codec for " + v.kind.String()}
		}
		e.out.push(byte(TagBuiltin))
		e.out.pushVint(bt.id)
		return bt.encode(e, v)

	case KindFunc:
		if id, ok := e.ctx.CallableID(v.fn); ok {
			e.out.push(byte(TagCallable))
			e.out.pushStr(id)
		} else {
			e.out.push(byte(TagUndefined))
		}

	default:
		return &EncodeError{Err: ErrUnsupportedValue, Reason: "cannot encode " + v.kind.String()}
	}
	return nil
}

func (e *Encoder) encodeFields(fields []Field) error {
	e.out.pushVint(uint32(len(fields)))
	for _, f := range fields {
		e.out.pushStr(f.Name)
		if err := e.traversal(f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeRecord(fields []Field) error {
	e.out.push(byte(TagRecord))
	return e.encodeFields(fields)
}

// encodeInstance writes a registered instance as tag 6. An instance of
// an unregistered class is written as a plain record.
func (e *Encoder) encodeInstance(v *Value) error {
	id, ok := e.ctx.ClassID(v.class)
	if !ok {
		return e.encodeRecord(v.fields)
	}
	e.out.push(byte(TagInstance))
	e.out.pushStr(id)

	fields := v.fields
	if v.class.serialize != nil {
		plain, err := v.class.serialize(v)
		if err != nil {
			return &EncodeError{Err: err, Reason: fmt.Sprintf("serialize %s", id)}
		}
		if plain == nil || (plain.kind != KindRecord && plain.kind != KindInstance) {
			return &EncodeError{
				Err:    ErrUnsupportedValue,
				Reason: fmt.Sprintf("serializer of %s returned %s, want record", id, plain.Kind()),
			}
		}
		fields = plain.fields
	}
	return e.encodeFields(fields)
}

// encodeBigInt writes the sign tag and the minimal little-endian
// magnitude. Zero has an empty magnitude.
func (e *Encoder) encodeBigInt(n *big.Int) {
	if n.Sign() < 0 {
		e.out.push(byte(TagBigIntNeg))
	} else {
		e.out.push(byte(TagBigIntPos))
	}
	mag := new(big.Int).Abs(n).Bytes()
	for i, j := 0, len(mag)-1; i < j; i, j = i+1, j-1 {
		mag[i], mag[j] = mag[j], mag[i]
	}
	e.out.pushVint(uint32(len(mag)))
	e.out.pushBytes(mag)
}
