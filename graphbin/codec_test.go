package graphbin

import (
	"bytes"
	"errors"
	"math"
	"math/big"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip encodes v, decodes the bytes and checks the graphs agree.
func roundTrip(t *testing.T, ctx *Context, v *Value) *Value {
	t.Helper()
	data, err := Encode(ctx, v)
	require.NoError(t, err)
	got, err := DecodeWithOptions(ctx, data, DecodeOptions{Strict: true})
	require.NoError(t, err)
	require.True(t, Equal(v, got), "round trip changed the graph:\n  in:  %s\n  out: %s", Sprint(v), Sprint(got))
	return got
}

func mustEncode(t *testing.T, ctx *Context, v *Value) []byte {
	t.Helper()
	data, err := Encode(ctx, v)
	require.NoError(t, err)
	return data
}

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return n
}

// ============================================================
// Wire bytes
// ============================================================

func TestEncode_WireBytes(t *testing.T) {
	tests := []struct {
		name string
		v    *Value
		want []byte
	}{
		{"null", Null(), []byte{11}},
		{"nil", nil, []byte{11}},
		{"undefined", Undefined(), []byte{7}},
		{"true", Bool(true), []byte{9}},
		{"false", Bool(false), []byte{8}},
		{"int", Int(5), []byte{1, 0x85}},
		{"int 128", Int(128), []byte{1, 0x00, 0x81}},
		{"float", Float(1.5), []byte{2, 0, 0, 0, 0, 0, 0, 0xf8, 0x3f}},
		{"string", Str("hi"), []byte{3, 0x82, 'h', 'i'}},
		{"empty string", Str(""), []byte{3, 0x80}},
		{"token", Token("x"), []byte{10, 0x81, 'x'}},
		{"bigint zero", BigIntFromInt64(0), []byte{12, 0x80}},
		{"bigint 256", BigIntFromInt64(256), []byte{12, 0x82, 0x00, 0x01}},
		{"bigint -1", BigIntFromInt64(-1), []byte{13, 0x81, 0x01}},
		{"list", List(Int(1)), []byte{5, 1, 0x81, 0}},
		{"empty list", List(), []byte{5, 0}},
		{"record", Record(F("a", Int(1))), []byte{4, 0x81, 0x81, 'a', 1, 0x81}},
		{"empty record", Record(), []byte{4, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustEncode(t, nil, tt.v))
		})
	}
}

func TestEncode_RecordExample(t *testing.T) {
	v := Record(
		F("a", Int(1)),
		F("b", Str("x")),
		F("c", List(Int(1), Int(2), Int(3))),
	)
	want := []byte{
		4, 0x83,
		0x81, 'a', 1, 0x81,
		0x81, 'b', 3, 0x81, 'x',
		0x81, 'c', 5, 1, 0x81, 1, 0x82, 1, 0x83, 0,
	}
	assert.Equal(t, want, mustEncode(t, nil, v))

	got := roundTrip(t, nil, v)
	fields, err := got.AsFields()
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "a", fields[0].Name)
	assert.Equal(t, "b", fields[1].Name)
	assert.Equal(t, "c", fields[2].Name)
	assert.Equal(t, 3, got.Get("c").Len())
}

func TestEncode_SharedObjectOnce(t *testing.T) {
	obj := Record()
	data := mustEncode(t, nil, List(obj, obj))
	assert.Equal(t, []byte{5, 4, 0x80, 14, 0x81, 0}, data)
	assert.Equal(t, 1, bytes.Count(data, []byte{4}))
	assert.Equal(t, 1, bytes.Count(data, []byte{14}))

	got, err := Decode(nil, data)
	require.NoError(t, err)
	a, _ := got.Index(0)
	b, _ := got.Index(1)
	assert.Same(t, a, b)
}

func TestEncode_SlotsCountEveryNode(t *testing.T) {
	// The string takes slot 1, so the record is slot 2.
	obj := Record()
	data := mustEncode(t, nil, List(Str("x"), obj, obj))
	assert.Equal(t, []byte{5, 3, 0x81, 'x', 4, 0x80, 14, 0x82, 0}, data)

	// A back-reference takes a slot too: the second record is slot 4.
	other := Record()
	data = mustEncode(t, nil, List(obj, obj, Int(7), other, other))
	assert.Equal(t, []byte{5, 4, 0x80, 14, 0x81, 1, 0x87, 4, 0x80, 14, 0x84, 0}, data)

	got, err := Decode(nil, data)
	require.NoError(t, err)
	items, _ := got.AsList()
	assert.Same(t, items[0], items[1])
	assert.Same(t, items[3], items[4])
	assert.NotSame(t, items[0], items[3])
}

// ============================================================
// Round trips
// ============================================================

func TestRoundTrip_Primitives(t *testing.T) {
	tests := []struct {
		name string
		v    *Value
	}{
		{"null", Null()},
		{"undefined", Undefined()},
		{"true", Bool(true)},
		{"false", Bool(false)},
		{"zero", Int(0)},
		{"negative", Int(-1)},
		{"127", Int(127)},
		{"128", Int(128)},
		{"max int32", Int(math.MaxInt32)},
		{"min int32", Int(math.MinInt32)},
		{"float", Float(3.25)},
		{"integral float", Float(2)},
		{"negative zero", Float(math.Copysign(0, -1))},
		{"NaN", Float(math.NaN())},
		{"+Inf", Float(math.Inf(1))},
		{"-Inf", Float(math.Inf(-1))},
		{"tiny", Float(5e-324)},
		{"bigint zero", BigIntFromInt64(0)},
		{"bigint", BigInt(bigFromString(t, "123456789012345678901234567890"))},
		{"bigint negative", BigInt(bigFromString(t, "-98765432109876543210"))},
		{"string", Str("héllo, 世界")},
		{"long string", Str(strings.Repeat("graphbin", 1000))},
		{"token", Token("label")},
		{"unlabelled token", Token("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, nil, tt.v)
			assert.Equal(t, tt.v.Kind(), got.Kind())
		})
	}
}

func TestRoundTrip_FloatStaysFloat(t *testing.T) {
	got := roundTrip(t, nil, Float(2))
	f, err := got.AsFloat()
	require.NoError(t, err)
	assert.Equal(t, 2.0, f)

	got = roundTrip(t, nil, Float(math.Copysign(0, -1)))
	f, _ = got.AsFloat()
	assert.True(t, math.Signbit(f), "sign of zero survives")
}

func TestRoundTrip_IntCeiling(t *testing.T) {
	// The wire integer is 32 bits: wider values wrap.
	data := mustEncode(t, nil, Int(math.MaxInt32+1))
	got, err := Decode(nil, data)
	require.NoError(t, err)
	n, _ := got.AsInt()
	assert.Equal(t, int64(math.MinInt32), n)

	// Number keeps integral values as Int.
	assert.Equal(t, KindInt, Number(42).Kind())
	assert.Equal(t, KindFloat, Number(4.5).Kind())
	assert.Equal(t, KindFloat, Number(math.Inf(1)).Kind())
}

func TestRoundTrip_Nested(t *testing.T) {
	v := Record(
		F("name", Str("root")),
		F("tags", List(Str("a"), Str("b"))),
		F("meta", Record(
			F("count", Int(2)),
			F("ratio", Float(0.5)),
			F("missing", Undefined()),
			F("none", Null()),
		)),
		F("big", BigIntFromInt64(1<<40)),
		F("empty", List()),
	)
	got := roundTrip(t, nil, v)
	assert.Equal(t, "root", mustStr(t, got.Get("name")))
	assert.True(t, got.Get("meta").Get("missing").IsUndefined())
	assert.True(t, got.Get("meta").Get("none").IsNull())
}

func mustStr(t *testing.T, v *Value) string {
	t.Helper()
	s, err := v.AsStr()
	require.NoError(t, err)
	return s
}

func TestRoundTrip_SelfCycle(t *testing.T) {
	v := Record(F("name", Str("loop")))
	v.SetField("self", v)

	got := roundTrip(t, nil, v)
	assert.Same(t, got, got.Get("self"))
}

func TestRoundTrip_ListContainsItself(t *testing.T) {
	l := List(Int(1))
	l.Append(l)

	data := mustEncode(t, nil, l)
	assert.Equal(t, []byte{5, 1, 0x81, 14, 0x80, 0}, data)

	got := roundTrip(t, nil, l)
	inner, err := got.Index(1)
	require.NoError(t, err)
	assert.Same(t, got, inner)
}

func TestRoundTrip_MutualCycle(t *testing.T) {
	a := Record(F("name", Str("a")))
	b := Record(F("name", Str("b")))
	a.SetField("peer", b)
	b.SetField("peer", a)

	got := roundTrip(t, nil, List(a, b))
	ga, _ := got.Index(0)
	gb, _ := got.Index(1)
	assert.Same(t, gb, ga.Get("peer"))
	assert.Same(t, ga, gb.Get("peer"))
}

func TestRoundTrip_SharedSubtrees(t *testing.T) {
	shared := List(Str("s"))
	token := Token("t")
	v := Record(
		F("x", shared),
		F("y", Record(F("inner", shared), F("tok", token))),
		F("z", List(shared, token)),
	)

	got := roundTrip(t, nil, v)
	x := got.Get("x")
	assert.Same(t, x, got.Get("y").Get("inner"))
	z, _ := got.Get("z").Index(0)
	assert.Same(t, x, z)

	tok, _ := got.Get("z").Index(1)
	assert.Same(t, got.Get("y").Get("tok"), tok)
}

func TestRoundTrip_DistinctTokensStayDistinct(t *testing.T) {
	got := roundTrip(t, nil, List(Token("same"), Token("same")))
	a, _ := got.Index(0)
	b, _ := got.Index(1)
	assert.NotSame(t, a, b)
	assert.False(t, Equal(List(a, a), got), "sharing differs")
}

func TestRoundTrip_EqualPrimitivesNotShared(t *testing.T) {
	data := mustEncode(t, nil, List(Str("dup"), Str("dup")))
	assert.Equal(t, []byte{5, 3, 0x83, 'd', 'u', 'p', 3, 0x83, 'd', 'u', 'p', 0}, data)
}

func TestEncode_ReferencePrimitives(t *testing.T) {
	opts := EncodeOptions{ReferencePrimitives: true}

	data, err := EncodeWithOptions(nil, List(Str("x"), Str("x"), Int(9), Int(9)), opts)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 3, 0x81, 'x', 14, 0x81, 1, 0x89, 14, 0x83, 0}, data)

	got, err := Decode(nil, data)
	require.NoError(t, err)
	items, _ := got.AsList()
	assert.Equal(t, "x", mustStr(t, items[1]))
	n, _ := items[3].AsInt()
	assert.Equal(t, int64(9), n)

	// NaN is the same value as NaN.
	data, err = EncodeWithOptions(nil, List(Float(math.NaN()), Float(math.NaN())), opts)
	require.NoError(t, err)
	assert.Equal(t, byte(14), data[len(data)-3])

	// Int and Float never collapse into each other.
	data, err = EncodeWithOptions(nil, List(Int(1), Float(1)), opts)
	require.NoError(t, err)
	assert.NotContains(t, data, byte(14))
}

func TestEncode_ReferencePrimitivesKeepNegativeZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	data, err := EncodeWithOptions(nil, List(Float(0), Float(negZero), Float(negZero)), EncodeOptions{ReferencePrimitives: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		5,
		2, 0, 0, 0, 0, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0, 0, 0, 0x80,
		14, 0x82,
		0,
	}, data)

	got, err := Decode(nil, data)
	require.NoError(t, err)
	items, _ := got.AsList()
	require.Len(t, items, 3)
	f0, _ := items[0].AsFloat()
	f1, _ := items[1].AsFloat()
	f2, _ := items[2].AsFloat()
	assert.False(t, math.Signbit(f0))
	assert.True(t, math.Signbit(f1))
	assert.True(t, math.Signbit(f2))

	// Set membership still treats the zeros as one value.
	assert.Equal(t, 1, Set(Float(0), Float(negZero)).Len())
}

func TestEncoder_Reusable(t *testing.T) {
	obj := Record()
	v := List(obj, obj)

	enc := NewEncoder(nil, DefaultEncodeOptions())
	first, err := enc.Encode(v)
	require.NoError(t, err)
	second, err := enc.Encode(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestContext_EncodeDecodeMethods(t *testing.T) {
	ctx := NewContext()
	v := List(Int(1), Str("two"))

	data, err := ctx.Encode(v)
	require.NoError(t, err)
	got, err := ctx.Decode(data)
	require.NoError(t, err)
	assert.True(t, Equal(v, got))

	data, err = ctx.EncodeWithOptions(v, EncodeOptions{ReferencePrimitives: true})
	require.NoError(t, err)
	got, err = ctx.DecodeWithOptions(data, DecodeOptions{Strict: true})
	require.NoError(t, err)
	assert.True(t, Equal(v, got))
}

// ============================================================
// Malformed input
// ============================================================

func TestDecode_TruncatedAtEveryOffset(t *testing.T) {
	ctx := NewContext()
	point := NewClass("Point")
	ctx.RegisterClass("Point", point)
	eof := Token("EOF")
	ctx.RegisterToken("EOF", eof)

	shared := Record(F("k", Str("v")))
	v := Record(
		F("int", Int(300)),
		F("float", Float(1.25)),
		F("big", BigIntFromInt64(-1<<40)),
		F("str", Str("text")),
		F("list", List(shared, shared, Null(), Bool(true))),
		F("point", point.New(F("x", Int(1)))),
		F("map", Map(E(Str("a"), Int(1)))),
		F("set", Set(Int(1), Int(2))),
		F("view", ViewOf(ViewUint16, []byte{1, 0, 2, 0})),
		F("eof", eof),
		F("tok", Token("t")),
	)
	data := mustEncode(t, ctx, v)

	for cut := 0; cut < len(data); cut++ {
		_, err := Decode(ctx, data[:cut])
		require.Error(t, err, "prefix of %d bytes decoded", cut)
		require.ErrorIs(t, err, ErrFormat, "cut %d", cut)

		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.LessOrEqual(t, decErr.Offset, cut)
	}

	got, err := Decode(ctx, data)
	require.NoError(t, err)
	assert.True(t, Equal(v, got))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    error
		message string
	}{
		{"empty", nil, ErrFormat, "unexpected end of input"},
		{"unknown tag", []byte{19}, ErrFormat, "unknown tag 19"},
		{"zero tag", []byte{0}, ErrFormat, "unknown tag 0"},
		{"function code", []byte{16, 0x80}, ErrUnsupportedFeature, "serialized function code"},
		{"reference out of range", []byte{5, 14, 0x85, 0}, ErrFormat, "reference 5 outside table of 1"},
		{"reference to nothing", []byte{14, 0x80}, ErrFormat, "reference 0 outside table of 0"},
		{"unknown builtin", []byte{15, 0x83}, ErrFormat, "unknown built-in type 3"},
		{"record count too large", []byte{4, 0xff}, ErrFormat, "length exceeds remaining input"},
		{"string length too large", []byte{3, 0x85, 'a'}, ErrFormat, "length exceeds remaining input"},
		{"bigint length too large", []byte{12, 0x84, 1}, ErrFormat, "length exceeds remaining input"},
		{"float too short", []byte{2, 0, 0, 0}, ErrFormat, "length exceeds remaining input"},
		{"unterminated list", []byte{5, 1, 0x81}, ErrFormat, "unexpected end of input"},
		{"oversized vint", []byte{1, 0x01, 0x01, 0x01, 0x01, 0x01, 0x81}, ErrFormat, "vint exceeds 32 bits"},
		{"unregistered class", []byte{6, 0x81, 'P', 0x80}, ErrUnregistered, `class "P"`},
		{"unregistered callable", []byte{17, 0x81, 'f'}, ErrUnregistered, `callable "f"`},
		{"unregistered token", []byte{18, 0x81, 't'}, ErrUnregistered, `token "t"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode(NewContext(), tt.data)
			require.Error(t, err)
			assert.Nil(t, v)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestDecode_ZeroLengthBigIntAtEnd(t *testing.T) {
	got, err := Decode(nil, []byte{13, 0x80})
	require.NoError(t, err)
	n, err := got.AsBigInt()
	require.NoError(t, err)
	assert.Equal(t, 0, n.Sign())
}

func TestDecode_MaxDepth(t *testing.T) {
	nested := List()
	for i := 0; i < 4; i++ {
		nested = List(nested)
	}
	data := mustEncode(t, nil, nested) // five lists deep

	_, err := DecodeWithOptions(nil, data, DecodeOptions{MaxDepth: 5})
	require.NoError(t, err)

	_, err = DecodeWithOptions(nil, data, DecodeOptions{MaxDepth: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "nesting exceeds 4")
}

func TestDecode_DeepInputRejected(t *testing.T) {
	depth := DefaultMaxDepth + 10
	data := append(bytes.Repeat([]byte{5}, depth), bytes.Repeat([]byte{0}, depth)...)

	_, err := Decode(nil, data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Dump(data)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecode_AllocationBoundedByInput(t *testing.T) {
	// Nested record headers each claiming half the remaining input.
	const size = 1 << 20
	data := make([]byte, 0, size)
	for i := 0; i < 100; i++ {
		data = append(data, 4)
		data = AppendVint(data, size/4)
		data = append(data, 0x80)
	}
	data = append(data, make([]byte, size-len(data))...)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := Decode(nil, data)
	runtime.ReadMemStats(&after)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(4*size))
}

func TestDecode_Strict(t *testing.T) {
	data := []byte{1, 0x85, 0x00}

	got, err := Decode(nil, data)
	require.NoError(t, err)
	n, _ := got.AsInt()
	assert.Equal(t, int64(5), n)

	_, err = DecodeWithOptions(nil, data, DecodeOptions{Strict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "1 trailing bytes")

	dec := NewDecoder(nil, data, DefaultDecodeOptions())
	_, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Offset())
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	data := mustEncode(t, nil, List(Str("abc"), Buffer([]byte{1, 2, 3})))
	got, err := Decode(nil, data)
	require.NoError(t, err)

	for i := range data {
		data[i] = 0
	}
	s, _ := got.Index(0)
	assert.Equal(t, "abc", mustStr(t, s))
	buf, _ := got.Index(1)
	b, _ := buf.AsBytes()
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestDecode_InvalidUTF8Replaced(t *testing.T) {
	got, err := Decode(nil, []byte{3, 0x82, 'a', 0xc3})
	require.NoError(t, err)
	assert.Equal(t, "a�", mustStr(t, got))
}

func TestDecode_ReferenceToEnclosingRecord(t *testing.T) {
	// {self: <ref 0>}
	data := []byte{4, 0x81, 0x84, 's', 'e', 'l', 'f', 14, 0x80}
	got, err := Decode(nil, data)
	require.NoError(t, err)
	assert.Same(t, got, got.Get("self"))
}

func TestDecodeError_Format(t *testing.T) {
	_, err := Decode(nil, []byte{5, 1})
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, 2, decErr.Offset)
	assert.Equal(t, "graphbin: decode: wrong format: unexpected end of input at offset 2", err.Error())
}
