package graphbin

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ViewKind is the element type of a typed numeric view. Its numeric
// value is the built-in type id used on the wire.
type ViewKind uint8

const (
	ViewInt8    ViewKind = 10
	ViewUint8   ViewKind = 11
	ViewInt16   ViewKind = 12
	ViewUint16  ViewKind = 13
	ViewInt32   ViewKind = 14
	ViewUint32  ViewKind = 15
	ViewInt64   ViewKind = 16
	ViewUint64  ViewKind = 17
	ViewFloat32 ViewKind = 18
	ViewFloat64 ViewKind = 19
)

// String returns the view kind name.
func (k ViewKind) String() string {
	switch k {
	case ViewInt8:
		return "int8"
	case ViewUint8:
		return "uint8"
	case ViewInt16:
		return "int16"
	case ViewUint16:
		return "uint16"
	case ViewInt32:
		return "int32"
	case ViewUint32:
		return "uint32"
	case ViewInt64:
		return "int64"
	case ViewUint64:
		return "uint64"
	case ViewFloat32:
		return "float32"
	case ViewFloat64:
		return "float64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the ten view kinds.
func (k ViewKind) Valid() bool {
	return k >= ViewInt8 && k <= ViewFloat64
}

// Width returns the element width in bytes.
func (k ViewKind) Width() int {
	switch k {
	case ViewInt8, ViewUint8:
		return 1
	case ViewInt16, ViewUint16:
		return 2
	case ViewInt32, ViewUint32, ViewFloat32:
		return 4
	case ViewInt64, ViewUint64, ViewFloat64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether elements are signed integers.
func (k ViewKind) Signed() bool {
	switch k {
	case ViewInt8, ViewInt16, ViewInt32, ViewInt64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether elements are IEEE-754 floats.
func (k ViewKind) IsFloat() bool {
	return k == ViewFloat32 || k == ViewFloat64
}

type viewData struct {
	kind   ViewKind
	buffer *Value
	offset int // byte offset into buffer
	length int // element count
}

// View creates a typed view of length elements starting offset bytes
// into buffer. Two views over the same buffer value share it on the wire.
func View(kind ViewKind, buffer *Value, offset, length int) *Value {
	return &Value{kind: KindView, view: &viewData{kind: kind, buffer: buffer, offset: offset, length: length}}
}

// ViewOf creates a view covering a fresh buffer holding data. Trailing
// bytes that do not fill an element are kept in the buffer but not
// covered by the view.
func ViewOf(kind ViewKind, data []byte) *Value {
	w := kind.Width()
	if w == 0 {
		panic("graphbin: invalid view kind " + kind.String())
	}
	return View(kind, Buffer(data), 0, len(data)/w)
}

// ViewInfo returns the view's element kind, backing buffer, byte offset
// and element count.
func (v *Value) ViewInfo() (kind ViewKind, buffer *Value, offset, length int, err error) {
	if err := v.expect(KindView); err != nil {
		return 0, nil, 0, 0, err
	}
	return v.view.kind, v.view.buffer, v.view.offset, v.view.length, nil
}

// ViewLen returns the element count of a view.
func (v *Value) ViewLen() (int, error) {
	if err := v.expect(KindView); err != nil {
		return 0, err
	}
	return v.view.length, nil
}

// checkView validates the view against its backing buffer.
func checkView(kind ViewKind, buffer *Value, offset, length int) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid view kind %d", uint8(kind))
	}
	if buffer == nil || buffer.kind != KindBuffer {
		return fmt.Errorf("view backing value is %s, not buffer", buffer.Kind())
	}
	if offset < 0 || length < 0 {
		return fmt.Errorf("negative view offset or length")
	}
	w := kind.Width()
	if offset%w != 0 {
		return fmt.Errorf("view offset %d not a multiple of element width %d", offset, w)
	}
	end := int64(offset) + int64(length)*int64(w)
	if end > int64(len(buffer.bytesVal)) {
		return fmt.Errorf("view [%d, %d) exceeds buffer length %d", offset, end, len(buffer.bytesVal))
	}
	return nil
}

// ViewBytes returns the bytes covered by the view, aliasing the buffer.
func (v *Value) ViewBytes() ([]byte, error) {
	if err := v.expect(KindView); err != nil {
		return nil, err
	}
	d := v.view
	if err := checkView(d.kind, d.buffer, d.offset, d.length); err != nil {
		return nil, fmt.Errorf("graphbin: %s", err)
	}
	return d.buffer.bytesVal[d.offset : d.offset+d.length*d.kind.Width()], nil
}

func (v *Value) element(i int) ([]byte, ViewKind, error) {
	b, err := v.ViewBytes()
	if err != nil {
		return nil, 0, err
	}
	if i < 0 || i >= v.view.length {
		return nil, 0, fmt.Errorf("graphbin: view index %d out of bounds (len=%d)", i, v.view.length)
	}
	w := v.view.kind.Width()
	return b[i*w : (i+1)*w], v.view.kind, nil
}

// ViewInt returns the i-th element of a signed or unsigned integer view
// as an int64. Unsigned 64-bit elements above MaxInt64 wrap.
func (v *Value) ViewInt(i int) (int64, error) {
	b, kind, err := v.element(i)
	if err != nil {
		return 0, err
	}
	switch kind {
	case ViewInt8:
		return int64(int8(b[0])), nil
	case ViewUint8:
		return int64(b[0]), nil
	case ViewInt16:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case ViewUint16:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case ViewInt32:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case ViewUint32:
		return int64(binary.LittleEndian.Uint32(b)), nil
	case ViewInt64, ViewUint64:
		return int64(binary.LittleEndian.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("graphbin: %s view has no integer elements", kind)
	}
}

// ViewUint returns the i-th element of an unsigned integer view.
func (v *Value) ViewUint(i int) (uint64, error) {
	b, kind, err := v.element(i)
	if err != nil {
		return 0, err
	}
	switch kind {
	case ViewUint8:
		return uint64(b[0]), nil
	case ViewUint16:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case ViewUint32:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case ViewUint64:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("graphbin: %s view has no unsigned elements", kind)
	}
}

// ViewFloat returns the i-th element of a float view.
func (v *Value) ViewFloat(i int) (float64, error) {
	b, kind, err := v.element(i)
	if err != nil {
		return 0, err
	}
	switch kind {
	case ViewFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case ViewFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("graphbin: %s view has no float elements", kind)
	}
}
