package graphbin

import (
	"strings"
	"unicode/utf8"
)

// ============================================================
// Byte sink
// ============================================================

const initialBufferSize = 128

// writer is an append-only byte sink that doubles its capacity on
// overflow.
type writer struct {
	buf []byte
	end int
}

func (w *writer) grow(n int) {
	if w.buf == nil {
		w.buf = make([]byte, initialBufferSize)
	}
	if w.end+n <= len(w.buf) {
		return
	}
	size := len(w.buf) * 2
	for w.end+n > size {
		size *= 2
	}
	grown := make([]byte, size)
	copy(grown, w.buf[:w.end])
	w.buf = grown
}

func (w *writer) push(c byte) {
	w.grow(1)
	w.buf[w.end] = c
	w.end++
}

func (w *writer) pushBytes(b []byte) {
	w.grow(len(b))
	copy(w.buf[w.end:], b)
	w.end += len(b)
}

// pushVint writes n as 7-bit groups, least significant first, with the
// high bit set on the final byte.
func (w *writer) pushVint(n uint32) {
	w.grow(5)
	w.end = len(AppendVint(w.buf[:w.end], n))
}

func (w *writer) pushStr(s string) {
	w.pushVint(uint32(len(s)))
	w.grow(len(s))
	copy(w.buf[w.end:], s)
	w.end += len(s)
}

// bytes returns a copy trimmed to the written length.
func (w *writer) bytes() []byte {
	out := make([]byte, w.end)
	copy(out, w.buf[:w.end])
	return out
}

// AppendVint appends the vint encoding of the low 32 bits of n to dst.
func AppendVint(dst []byte, n uint32) []byte {
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(dst, c|0x80)
		}
		dst = append(dst, c)
	}
}

// ============================================================
// Byte source
// ============================================================

// reader is a cursor over an encoded buffer. Every read is bounds
// checked and fails with ErrFormat.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) fail(err error, reason string) error {
	return &DecodeError{Err: err, Reason: reason, Offset: r.pos}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) peekByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.fail(ErrFormat, "unexpected end of input")
	}
	return r.buf[r.pos], nil
}

func (r *reader) popByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.fail(ErrFormat, "unexpected end of input")
	}
	c := r.buf[r.pos]
	r.pos++
	return c, nil
}

// take returns the next n bytes, aliasing the input.
func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, r.fail(ErrFormat, "length exceeds remaining input")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// vint reads a variable-length integer. Arithmetic is 32-bit: the
// result is the two's-complement reading of the accumulated bits.
func (r *reader) vint() (int32, error) {
	var ret uint32
	shift := uint(0)
	for {
		c, err := r.peekByte()
		if err != nil {
			return 0, err
		}
		if c&0x80 != 0 {
			break
		}
		r.pos++
		ret |= uint32(c) << shift
		shift += 7
		if shift > 32 {
			return 0, r.fail(ErrFormat, "vint exceeds 32 bits")
		}
	}
	c, _ := r.popByte()
	ret |= uint32(c&0x7f) << shift
	return int32(ret), nil
}

// length reads a non-negative vint that must not exceed the remaining
// input when each counted item occupies at least minBytes bytes.
func (r *reader) length(minBytes int) (int, error) {
	start := r.pos
	n, err := r.vint()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		r.pos = start
		return 0, r.fail(ErrFormat, "negative length")
	}
	if minBytes > 0 && int64(n)*int64(minBytes) > int64(r.remaining()) {
		r.pos = start
		return 0, r.fail(ErrFormat, "length exceeds remaining input")
	}
	return int(n), nil
}

// str reads a vint byte length followed by UTF-8 text. Invalid
// sequences are replaced with U+FFFD.
func (r *reader) str() (string, error) {
	n, err := r.length(1)
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return strings.ToValidUTF8(string(b), "\uFFFD"), nil
	}
	return string(b), nil
}

// ReadVint decodes a vint from the start of src and returns the value
// and the number of bytes consumed.
func ReadVint(src []byte) (int32, int, error) {
	r := reader{buf: src}
	n, err := r.vint()
	if err != nil {
		return 0, 0, err
	}
	return n, r.pos, nil
}
