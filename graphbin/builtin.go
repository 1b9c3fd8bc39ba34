package graphbin

// builtinType is one entry of the built-in container registry. encode
// writes the payload that follows the type id; decode reads it and is
// responsible for taking the node's reference slot before any nested
// traversal.
type builtinType struct {
	id     uint32
	name   string
	kind   Kind
	encode func(e *Encoder, v *Value) error
	decode func(d *Decoder, id uint32) (*Value, error)
}

var (
	builtinByID   = make(map[uint32]*builtinType)
	builtinByKind = make(map[Kind]*builtinType)
)

func registerBuiltin(bt *builtinType) {
	builtinByID[bt.id] = bt
	if _, ok := builtinByKind[bt.kind]; !ok {
		builtinByKind[bt.kind] = bt
	}
}

func init() {
	registerBuiltin(&builtinType{id: BuiltinMap, name: "map", kind: KindMap, encode: encodeMap, decode: decodeMap})
	registerBuiltin(&builtinType{id: BuiltinSet, name: "set", kind: KindSet, encode: encodeSet, decode: decodeSet})
	registerBuiltin(&builtinType{id: BuiltinBuffer, name: "buffer", kind: KindBuffer, encode: encodeBuffer, decode: decodeBuffer})
	for k := ViewInt8; k <= ViewFloat64; k++ {
		registerBuiltin(&builtinType{id: uint32(k), name: k.String() + "-view", kind: KindView, encode: encodeView, decode: decodeView})
	}
}

// builtinFor returns the registry entry that encodes v.
func builtinFor(v *Value) *builtinType {
	if v.kind == KindView {
		return builtinByID[uint32(v.view.kind)]
	}
	return builtinByKind[v.kind]
}

// ============================================================
// Map: vint count, then (key, value)*
// ============================================================

func encodeMap(e *Encoder, v *Value) error {
	e.out.pushVint(uint32(len(v.entries)))
	for _, ent := range v.entries {
		if err := e.traversal(ent.Key); err != nil {
			return err
		}
		if err := e.traversal(ent.Value); err != nil {
			return err
		}
	}
	return nil
}

func decodeMap(d *Decoder, _ uint32) (*Value, error) {
	n, err := d.in.length(2)
	if err != nil {
		return nil, err
	}
	m := &Value{kind: KindMap, entries: make([]Entry, 0, min(n, maxPrealloc))}
	d.push(m)
	for i := 0; i < n; i++ {
		key, err := d.traversal()
		if err != nil {
			return nil, err
		}
		val, err := d.traversal()
		if err != nil {
			return nil, err
		}
		m.MapSet(key, val)
	}
	return m, nil
}

// ============================================================
// Set: element* 0x00
// ============================================================

func encodeSet(e *Encoder, v *Value) error {
	for _, item := range v.items {
		if err := e.traversal(item); err != nil {
			return err
		}
	}
	e.out.push(tagEnd)
	return nil
}

func decodeSet(d *Decoder, _ uint32) (*Value, error) {
	s := &Value{kind: KindSet}
	d.push(s)
	for {
		c, err := d.in.peekByte()
		if err != nil {
			return nil, err
		}
		if c == tagEnd {
			d.in.pos++
			return s, nil
		}
		item, err := d.traversal()
		if err != nil {
			return nil, err
		}
		s.SetAdd(item)
	}
}

// ============================================================
// Buffer: vint length, bytes
// ============================================================

func encodeBuffer(e *Encoder, v *Value) error {
	e.out.pushVint(uint32(len(v.bytesVal)))
	e.out.pushBytes(v.bytesVal)
	return nil
}

func decodeBuffer(d *Decoder, _ uint32) (*Value, error) {
	n, err := d.in.length(1)
	if err != nil {
		return nil, err
	}
	raw, err := d.in.take(n)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, raw)
	v := Buffer(b)
	d.push(v)
	return v, nil
}

// ============================================================
// Typed views: vint byte offset, vint element count, buffer
// ============================================================

func encodeView(e *Encoder, v *Value) error {
	vd := v.view
	if err := checkView(vd.kind, vd.buffer, vd.offset, vd.length); err != nil {
		return &EncodeError{Err: ErrUnsupportedValue, Reason: err.Error()}
	}
	e.out.pushVint(uint32(vd.offset))
	e.out.pushVint(uint32(vd.length))
	return e.traversal(vd.buffer)
}

func decodeView(d *Decoder, id uint32) (*Value, error) {
	slot := d.reserve()
	start := d.in.pos
	offset, err := d.in.length(0)
	if err != nil {
		return nil, err
	}
	count, err := d.in.length(0)
	if err != nil {
		return nil, err
	}
	buffer, err := d.traversal()
	if err != nil {
		return nil, err
	}
	kind := ViewKind(id)
	if err := checkView(kind, buffer, offset, count); err != nil {
		return nil, &DecodeError{Err: ErrFormat, Reason: err.Error(), Offset: start}
	}
	v := View(kind, buffer, offset, count)
	d.refs[slot] = v
	return v, nil
}
