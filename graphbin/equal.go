package graphbin

import "bytes"

// Equal reports whether two value graphs have the same shape and
// contents. Composite nodes and tokens are matched one-to-one as the
// walk proceeds: a node reached twice in a must correspond to a node
// reached twice in b, so sharing and cycles must agree and the walk
// always terminates.
//
// Record and instance fields are compared by name; list, map and set
// contents are compared in order. Primitives compare by SameValueZero.
func Equal(a, b *Value) bool {
	eq := &equalizer{
		fwd: make(map[*Value]*Value),
		rev: make(map[*Value]*Value),
	}
	return eq.equal(a, b)
}

type equalizer struct {
	fwd map[*Value]*Value
	rev map[*Value]*Value
}

func (q *equalizer) equal(a, b *Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	k := a.Kind()
	if k != KindToken && !k.composite() {
		switch k {
		case KindFunc:
			return a.fn == b.fn
		default:
			return sameValueKey(a) == sameValueKey(b)
		}
	}

	// Identity bijection.
	if m, ok := q.fwd[a]; ok {
		return m == b
	}
	if _, ok := q.rev[b]; ok {
		return false
	}
	q.fwd[a] = b
	q.rev[b] = a

	switch k {
	case KindToken:
		return a.strVal == b.strVal

	case KindList, KindSet:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !q.equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true

	case KindRecord, KindInstance:
		if a.class != b.class || len(a.fields) != len(b.fields) {
			return false
		}
		for _, f := range a.fields {
			j := b.fieldIndex(f.Name)
			if j < 0 || !q.equal(f.Value, b.fields[j].Value) {
				return false
			}
		}
		return true

	case KindMap:
		if len(a.entries) != len(b.entries) {
			return false
		}
		for i := range a.entries {
			if !q.equal(a.entries[i].Key, b.entries[i].Key) ||
				!q.equal(a.entries[i].Value, b.entries[i].Value) {
				return false
			}
		}
		return true

	case KindBuffer:
		return bytes.Equal(a.bytesVal, b.bytesVal)

	case KindView:
		va, vb := a.view, b.view
		return va.kind == vb.kind && va.offset == vb.offset && va.length == vb.length &&
			q.equal(va.buffer, vb.buffer)
	}
	return false
}
