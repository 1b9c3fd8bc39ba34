// Package graphbin implements a compact binary codec for value graphs.
//
// Unlike tree formats such as JSON, graphbin preserves identity: a node
// reachable along several paths is written once and then referred to by
// index, and cycles round-trip. The format also carries values JSON
// cannot:
//   - arbitrary-precision integers
//   - unique tokens
//   - class instances with optional marshaling hooks
//   - maps with arbitrary keys, sets
//   - raw buffers and typed numeric views over them
//   - restricted callables, resolved by registered name
//
// # Data Model
//
// Scalars: null, undefined, bool, int, float, bigint, string
// Identity: token, list, record, instance, map, set, buffer, view
// Special: func (by name only)
//
// Values are *Value nodes built with constructors:
//
//	root := graphbin.Record(graphbin.F("name", graphbin.Str("root")))
//	root.SetField("self", root)
//
// # Wire Format
//
// Every value starts with a one-byte tag:
//
//	1 int        vint
//	2 float      8-byte little-endian double
//	3 string     vint length + UTF-8
//	4 record     vint count + (name, value)*
//	5 list       value* 0x00
//	6 instance   name + vint count + (name, value)*
//	7 undefined
//	8 false
//	9 true
//	10 token     label
//	11 null
//	12/13 bigint vint length + little-endian magnitude (positive/negative)
//	14 ref       vint slot
//	15 builtin   vint type id + payload (1 map, 2 set, 10-19 views, 20 buffer)
//	16 code      never accepted
//	17 callable  name
//	18 token     registered name
//
// A vint stores 7 bits per byte, least significant group first, and
// sets the high bit on its last byte. Arithmetic is 32-bit on both
// sides: integers outside the int32 range do not round-trip as Int, use
// BigInt for them.
//
// # References
//
// Encoder and Decoder number every node they visit in depth-first
// pre-order, back-references included, so slot i names the same node on
// both sides. Lists, records, instances, maps and sets take their slot
// before their children, which is what lets a child refer to an
// ancestor.
//
// An instance whose class has a Deserialize hook is decoded from a
// stand-in record. References to the instance from inside its own
// fields resolve to that record, not to the hook's result.
//
// # Registries
//
// A Context maps classes, callables and named tokens to the strings
// written on the wire. Both ends must register the same names:
//
//	ctx := graphbin.NewContext()
//	ctx.RegisterClass("Point", point)
//	data, err := ctx.Encode(v)
//	back, err := ctx.Decode(data)
//
// # Safety
//
// Decoding never reads past the input. Declared lengths and counts are
// checked against the remaining bytes before anything is allocated,
// nesting is bounded by DecodeOptions.MaxDepth, and serialized function
// code is always rejected.
package graphbin
