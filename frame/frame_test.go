package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neumenon/graphbin/graphbin"
)

// ============================================================
// Writer / Reader round-trips
// ============================================================

func TestFrame_RoundTripCodecs(t *testing.T) {
	payload := []byte(strings.Repeat("graphbin frame payload ", 64))

	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, WithCompression(codec), WithCRC(), WithDigest())
			require.NoError(t, w.WriteFrame(&Frame{Kind: KindValue, SID: 7, Seq: 3, Payload: payload}))

			if codec != CodecNone {
				assert.Less(t, buf.Len(), len(payload), "repetitive payload should shrink")
			}

			r := NewReader(&buf)
			f, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, Version, f.Version)
			assert.Equal(t, KindValue, f.Kind)
			assert.Equal(t, uint64(7), f.SID)
			assert.Equal(t, uint64(3), f.Seq)
			assert.Equal(t, codec, f.Codec)
			assert.Equal(t, payload, f.Payload)
			assert.True(t, f.HasCRC())
			assert.True(t, f.HasDigest())
			assert.Equal(t, Digest(payload), *f.Digest)

			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestFrame_IncompressibleFallsBack(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithCompression(CodecZstd))
	require.NoError(t, w.WriteFrame(&Frame{Kind: KindErr, Payload: []byte("x")}))

	f, err := NewReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, CodecNone, f.Codec)
	assert.Equal(t, []byte("x"), f.Payload)
}

func TestFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithCRC())
	require.NoError(t, w.WriteAck(1, 2))

	f, err := NewReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, KindAck, f.Kind)
	assert.Nil(t, f.Payload)
	assert.Equal(t, ComputeCRC(nil), *f.CRC)
}

func TestFrame_FinalFlag(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFinal(4, 9, KindErr, []byte("done")))

	f, err := NewReader(&buf).Next()
	require.NoError(t, err)
	assert.True(t, f.Final)
	assert.Equal(t, KindErr, f.Kind)
}

func TestFrame_ReadAll(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WritePing(1, 0))
	require.NoError(t, w.WritePong(1, 1))
	require.NoError(t, w.WriteErr(1, 2, "boom"))

	frames, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, KindPing, frames[0].Kind)
	assert.Equal(t, KindPong, frames[1].Kind)
	assert.Equal(t, "boom", string(frames[2].Payload))
}

// ============================================================
// Value frames
// ============================================================

func TestFrame_ReadValue(t *testing.T) {
	ctx := graphbin.NewContext()
	v := graphbin.Record(
		graphbin.F("a", graphbin.Int(1)),
		graphbin.F("b", graphbin.Str("x")),
	)
	v.SetField("self", v)

	var buf bytes.Buffer
	w := NewWriter(&buf, WithCompression(CodecLZ4))
	require.NoError(t, w.WritePing(1, 0))
	require.NoError(t, w.WriteAck(1, 1))
	require.NoError(t, w.WriteValue(1, 2, ctx, v))
	require.NoError(t, w.WriteErr(1, 3, "gone"))

	r := NewReader(&buf)
	f, got, err := r.ReadValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)
	assert.True(t, graphbin.Equal(v, got))
	assert.Same(t, got, got.Get("self"))

	_, _, err = r.ReadValue(ctx)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "gone", remote.Message)
	assert.Equal(t, uint64(3), remote.Seq)

	_, _, err = r.ReadValue(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_ReadValueDecodeError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFrame(&Frame{Kind: KindValue, SID: 5, Seq: 1, Payload: []byte{0xff}}))

	_, _, err := NewReader(&buf).ReadValue(graphbin.NewContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, graphbin.ErrFormat)
	assert.Contains(t, err.Error(), "sid 5 seq 1")
}

func TestFrame_StrictDecodeOptions(t *testing.T) {
	payload := append(graphbin.AppendVint([]byte{byte(graphbin.TagInt)}, 5), 0x01)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteFrame(&Frame{Kind: KindValue, Payload: payload}))
	data := buf.Bytes()

	_, v, err := NewReader(bytes.NewReader(data)).ReadValue(nil)
	require.NoError(t, err)
	n, _ := v.AsInt()
	assert.Equal(t, int64(5), n)

	r := NewReader(bytes.NewReader(data), WithDecodeOptions(graphbin.DecodeOptions{Strict: true}))
	_, _, err = r.ReadValue(nil)
	assert.ErrorIs(t, err, graphbin.ErrFormat)
}

// ============================================================
// Integrity and malformed input
// ============================================================

func TestFrame_CRCMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, WithCRC()).WriteErr(0, 0, "payload"))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	_, err := NewReader(bytes.NewReader(data)).Next()
	var crcErr *CRCMismatchError
	require.True(t, errors.As(err, &crcErr), "got %v", err)
	assert.NotEqual(t, crcErr.Expected, crcErr.Got)

	f, err := NewReader(bytes.NewReader(data), WithCRCVerification(false)).Next()
	require.NoError(t, err)
	assert.Equal(t, "payloa", string(f.Payload[:6]))
}

func TestFrame_DigestMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, WithDigest()).WriteErr(0, 0, "payload"))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	_, err := NewReader(bytes.NewReader(data)).Next()
	var digestErr *DigestMismatchError
	require.True(t, errors.As(err, &digestErr), "got %v", err)
	assert.Contains(t, err.Error(), DigestHex(digestErr.Expected))
}

func TestFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, WithCRC(), WithDigest()).WriteErr(300, 70000, "truncate me"))
	data := buf.Bytes()

	for cut := 1; cut < len(data); cut++ {
		_, err := NewReader(bytes.NewReader(data[:cut])).Next()
		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr), "cut %d: got %v", cut, err)
		assert.Contains(t, parseErr.Reason, "truncated", "cut %d", cut)
	}
}

func TestFrame_BadMagic(t *testing.T) {
	_, err := NewReader(strings.NewReader("XX\x01\x00\x00\x00\x00\x00\x00\x00")).Next()
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "bad magic", parseErr.Reason)
	assert.Equal(t, int64(0), parseErr.Offset)
}

func TestFrame_BadVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteFrame(&Frame{Version: 9, Kind: KindPing}))

	_, err := NewReader(&buf).Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version 9")
}

func TestFrame_MaxPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteErr(0, 0, "0123456789"))

	_, err := NewReader(&buf, WithMaxPayload(4)).Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
}

func TestFrame_UnknownCodec(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf, WithCompression(Codec(9))).WriteErr(0, 0, "x")
	assert.Error(t, err)

	_, err = ParseCodec("brotli")
	assert.Error(t, err)
}

// ============================================================
// Names
// ============================================================

func TestKind_Parse(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"value", KindValue, true},
		{"ack", KindAck, true},
		{"err", KindErr, true},
		{"ping", KindPing, true},
		{"pong", KindPong, true},
		{"4", KindPong, true},
		{"200", Kind(200), true},
		{"nope", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "unknown(200)", Kind(200).String())
}

func TestCodec_Parse(t *testing.T) {
	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		got, err := ParseCodec(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}
