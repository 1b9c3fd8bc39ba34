package graphbin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVint_Encoding(t *testing.T) {
	tests := []struct {
		n    uint32
		want []byte
	}{
		{0, []byte{0x80}},
		{1, []byte{0x81}},
		{127, []byte{0xff}},
		{128, []byte{0x00, 0x81}},
		{300, []byte{0x2c, 0x82}},
		{16383, []byte{0x7f, 0xff}},
		{16384, []byte{0x00, 0x00, 0x81}},
		{math.MaxInt32, []byte{0x7f, 0x7f, 0x7f, 0x7f, 0x87}},
		{math.MaxUint32, []byte{0x7f, 0x7f, 0x7f, 0x7f, 0x8f}},
	}

	for _, tt := range tests {
		got := AppendVint(nil, tt.n)
		assert.Equal(t, tt.want, got, "AppendVint(%d)", tt.n)

		var w writer
		w.pushVint(tt.n)
		assert.Equal(t, tt.want, w.bytes(), "pushVint(%d)", tt.n)

		n, size, err := ReadVint(got)
		require.NoError(t, err)
		assert.Equal(t, int32(tt.n), n, "ReadVint(%x)", got)
		assert.Equal(t, len(got), size)
	}
}

func TestVint_TooLong(t *testing.T) {
	// Five continuation groups push the shift past 32 bits.
	_, _, err := ReadVint([]byte{0x01, 0x01, 0x01, 0x01, 0x01, 0x81})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "vint exceeds 32 bits")
}

func TestVint_Truncated(t *testing.T) {
	for _, data := range [][]byte{nil, {0x01}, {0x7f, 0x7f}} {
		_, _, err := ReadVint(data)
		assert.ErrorIs(t, err, ErrFormat, "ReadVint(%x)", data)
	}
}

func TestVint_Negative(t *testing.T) {
	// The reader is 32-bit: all ones reads back as -1.
	n, _, err := ReadVint(AppendVint(nil, math.MaxUint32))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), n)

	// A length may not be negative.
	r := reader{buf: AppendVint(nil, math.MaxUint32)}
	_, err = r.length(0)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Equal(t, 0, r.pos, "failed length leaves the cursor in place")
}

func TestReader_Length(t *testing.T) {
	r := reader{buf: append(AppendVint(nil, 3), 'a', 'b', 'c')}
	n, err := r.length(1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	r = reader{buf: append(AppendVint(nil, 2), 'a', 'b', 'c')}
	_, err = r.length(2)
	assert.ErrorIs(t, err, ErrFormat, "2 items of 2 bytes exceed 3 bytes")

	r = reader{buf: AppendVint(nil, 1<<30)}
	_, err = r.length(1)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestReader_StrInvalidUTF8(t *testing.T) {
	r := reader{buf: append(AppendVint(nil, 3), 'a', 0xff, 'b')}
	s, err := r.str()
	require.NoError(t, err)
	assert.Equal(t, "a�b", s)
}

func TestWriter_Grows(t *testing.T) {
	var w writer
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	w.push(1)
	w.pushBytes(payload)
	w.pushStr("tail")

	got := w.bytes()
	require.Len(t, got, 1+1000+1+4)
	assert.Equal(t, byte(1), got[0])
	assert.Equal(t, payload, got[1:1001])
	assert.Equal(t, []byte{0x84, 't', 'a', 'i', 'l'}, got[1001:])
}

func TestWriter_VintAcrossGrowth(t *testing.T) {
	var w writer
	w.pushBytes(make([]byte, initialBufferSize-2))
	w.pushVint(math.MaxUint32)

	got := w.bytes()
	require.Len(t, got, initialBufferSize+3)
	assert.Equal(t, AppendVint(nil, math.MaxUint32), got[initialBufferSize-2:])
}
