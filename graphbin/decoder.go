package graphbin

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// DefaultMaxDepth bounds nesting when DecodeOptions.MaxDepth is unset.
const DefaultMaxDepth = 10000

// maxPrealloc caps capacity reserved from a count read off the wire.
// Larger containers grow as their members are actually decoded.
const maxPrealloc = 16

// DecodeOptions configures a Decoder.
type DecodeOptions struct {
	// MaxDepth is the deepest nesting accepted. Zero or negative means
	// DefaultMaxDepth.
	MaxDepth int

	// Strict rejects bytes left over after the root value.
	Strict bool
}

// DefaultDecodeOptions returns the default decoding options.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{MaxDepth: DefaultMaxDepth}
}

// Decode decodes data using the registries in ctx.
func Decode(ctx *Context, data []byte) (*Value, error) {
	return DecodeWithOptions(ctx, data, DefaultDecodeOptions())
}

// DecodeWithOptions decodes data with custom options.
func DecodeWithOptions(ctx *Context, data []byte, opts DecodeOptions) (*Value, error) {
	return NewDecoder(ctx, data, opts).Decode()
}

// Decoder rebuilds one value graph from bytes. It is single-use.
type Decoder struct {
	ctx  *Context
	opts DecodeOptions
	in   reader

	// refs holds one slot per decoded node in pre-order. Slot i denotes
	// the same node the encoder numbered i.
	refs  []*Value
	depth int
}

// NewDecoder creates a decoder over data. The decoded graph does not
// alias data.
func NewDecoder(ctx *Context, data []byte, opts DecodeOptions) *Decoder {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Decoder{ctx: ctx, opts: opts, in: reader{buf: data}}
}

// Decode decodes the root value.
func (d *Decoder) Decode() (*Value, error) {
	v, err := d.traversal()
	if err != nil {
		return nil, err
	}
	if d.opts.Strict && d.in.remaining() > 0 {
		return nil, d.in.fail(ErrFormat, fmt.Sprintf("%d trailing bytes", d.in.remaining()))
	}
	return v, nil
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.in.pos
}

func (d *Decoder) push(v *Value) {
	d.refs = append(d.refs, v)
}

// reserve appends an empty slot and returns its index.
func (d *Decoder) reserve() int {
	d.refs = append(d.refs, nil)
	return len(d.refs) - 1
}

// traversal decodes one node. Built-in container codecs call it for
// nested values.
func (d *Decoder) traversal() (*Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > d.opts.MaxDepth {
		return nil, d.in.fail(ErrFormat, fmt.Sprintf("nesting exceeds %d", d.opts.MaxDepth))
	}

	start := d.in.pos
	c, err := d.in.popByte()
	if err != nil {
		return nil, err
	}

	switch tag := Tag(c); tag {
	case TagInt:
		n, err := d.in.vint()
		if err != nil {
			return nil, err
		}
		return d.leaf(Int(int64(n))), nil

	case TagFloat:
		b, err := d.in.take(8)
		if err != nil {
			return nil, err
		}
		return d.leaf(Float(math.Float64frombits(binary.LittleEndian.Uint64(b)))), nil

	case TagString:
		s, err := d.in.str()
		if err != nil {
			return nil, err
		}
		return d.leaf(Str(s)), nil

	case TagRecord:
		n, err := d.in.length(2)
		if err != nil {
			return nil, err
		}
		rec := &Value{kind: KindRecord, fields: make([]Field, 0, min(n, maxPrealloc))}
		d.push(rec)
		if err := d.fields(rec, n); err != nil {
			return nil, err
		}
		return rec, nil

	case TagList:
		list := &Value{kind: KindList}
		d.push(list)
		for {
			c, err := d.in.peekByte()
			if err != nil {
				return nil, err
			}
			if c == tagEnd {
				d.in.pos++
				return list, nil
			}
			item, err := d.traversal()
			if err != nil {
				return nil, err
			}
			list.items = append(list.items, item)
		}

	case TagInstance:
		return d.instance(start)

	case TagUndefined:
		return d.leaf(Undefined()), nil

	case TagFalse:
		return d.leaf(Bool(false)), nil

	case TagTrue:
		return d.leaf(Bool(true)), nil

	case TagToken:
		label, err := d.in.str()
		if err != nil {
			return nil, err
		}
		return d.leaf(Token(label)), nil

	case TagNull:
		return d.leaf(Null()), nil

	case TagBigIntPos, TagBigIntNeg:
		n, err := d.in.length(1)
		if err != nil {
			return nil, err
		}
		le, err := d.in.take(n)
		if err != nil {
			return nil, err
		}
		be := make([]byte, n)
		for i, b := range le {
			be[n-1-i] = b
		}
		mag := new(big.Int).SetBytes(be)
		if tag == TagBigIntNeg {
			mag.Neg(mag)
		}
		return d.leaf(&Value{kind: KindBigInt, bigVal: mag}), nil

	case TagReference:
		idx, err := d.in.vint()
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(d.refs) {
			return nil, &DecodeError{
				Err:    ErrFormat,
				Reason: fmt.Sprintf("reference %d outside table of %d", idx, len(d.refs)),
				Offset: start,
			}
		}
		return d.leaf(d.refs[idx]), nil

	case TagBuiltin:
		id, err := d.in.vint()
		if err != nil {
			return nil, err
		}
		bt, ok := builtinByID[uint32(id)]
		if !ok {
			return nil, &DecodeError{Err: ErrFormat, Reason: fmt.Sprintf("unknown built-in type %d", uint32(id)), Offset: start}
		}
		return bt.decode(d, uint32(id))

	case TagFunctionCode:
		return nil, &DecodeError{Err: ErrUnsupportedFeature, Reason: "serialized function code", Offset: start}

	case TagCallable:
		name, err := d.in.str()
		if err != nil {
			return nil, err
		}
		fn, ok := d.ctx.LookupCallable(name)
		if !ok {
			return nil, &DecodeError{Err: ErrUnregistered, Reason: fmt.Sprintf("callable %q", name), Offset: start}
		}
		return d.leaf(Func(fn)), nil

	case TagNamedToken:
		name, err := d.in.str()
		if err != nil {
			return nil, err
		}
		tok, ok := d.ctx.LookupToken(name)
		if !ok {
			return nil, &DecodeError{Err: ErrUnregistered, Reason: fmt.Sprintf("token %q", name), Offset: start}
		}
		return d.leaf(tok), nil

	default:
		return nil, &DecodeError{Err: ErrFormat, Reason: fmt.Sprintf("unknown tag %d", c), Offset: start}
	}
}

// leaf records a node that has no children.
func (d *Decoder) leaf(v *Value) *Value {
	d.push(v)
	return v
}

// fields reads n (name, value) pairs into a record or instance.
func (d *Decoder) fields(dst *Value, n int) error {
	for i := 0; i < n; i++ {
		name, err := d.in.str()
		if err != nil {
			return err
		}
		val, err := d.traversal()
		if err != nil {
			return err
		}
		dst.SetField(name, val)
	}
	return nil
}

// instance decodes the body of tag 6. Without a Deserialize hook the
// instance is allocated, placed in its slot, then filled. With one, a
// stand-in record takes the slot while fields are read, and the slot is
// overwritten with the hook's result afterwards.
func (d *Decoder) instance(start int) (*Value, error) {
	name, err := d.in.str()
	if err != nil {
		return nil, err
	}
	class, ok := d.ctx.LookupClass(name)
	if !ok {
		return nil, &DecodeError{Err: ErrUnregistered, Reason: fmt.Sprintf("class %q", name), Offset: start}
	}
	n, err := d.in.length(2)
	if err != nil {
		return nil, err
	}

	if class.deserialize == nil {
		inst := &Value{kind: KindInstance, class: class, fields: make([]Field, 0, min(n, maxPrealloc))}
		d.push(inst)
		if err := d.fields(inst, n); err != nil {
			return nil, err
		}
		return inst, nil
	}

	slot := len(d.refs)
	plain := &Value{kind: KindRecord, fields: make([]Field, 0, min(n, maxPrealloc))}
	d.push(plain)
	if err := d.fields(plain, n); err != nil {
		return nil, err
	}
	inst, err := class.deserialize(plain)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("deserialize %s: %w", name, err), Reason: "hook failed", Offset: start}
	}
	d.refs[slot] = inst
	return inst, nil
}
