package graphbin

import "fmt"

// Tag is the leading byte of every encoded value.
//
// These values are the compatibility surface of the format; changing
// any of them breaks every existing stream.
type Tag uint8

const (
	TagInt          Tag = 1  // vint
	TagFloat        Tag = 2  // 8-byte little-endian double
	TagString       Tag = 3  // vint length + UTF-8
	TagRecord       Tag = 4  // vint count + (name, value)*
	TagList         Tag = 5  // value* 0x00
	TagInstance     Tag = 6  // name + vint count + (name, value)*
	TagUndefined    Tag = 7  // -
	TagFalse        Tag = 8  // -
	TagTrue         Tag = 9  // -
	TagToken        Tag = 10 // label
	TagNull         Tag = 11 // -
	TagBigIntPos    Tag = 12 // vint length + little-endian magnitude
	TagBigIntNeg    Tag = 13 // vint length + little-endian magnitude
	TagReference    Tag = 14 // vint slot index
	TagBuiltin      Tag = 15 // vint built-in type id + payload
	TagFunctionCode Tag = 16 // never accepted
	TagCallable     Tag = 17 // name
	TagNamedToken   Tag = 18 // name
)

// tagEnd terminates lists and sets. No real tag is zero.
const tagEnd = 0x00

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagString:
		return "string"
	case TagRecord:
		return "record"
	case TagList:
		return "list"
	case TagInstance:
		return "instance"
	case TagUndefined:
		return "undefined"
	case TagFalse:
		return "false"
	case TagTrue:
		return "true"
	case TagToken:
		return "token"
	case TagNull:
		return "null"
	case TagBigIntPos:
		return "bigint+"
	case TagBigIntNeg:
		return "bigint-"
	case TagReference:
		return "ref"
	case TagBuiltin:
		return "builtin"
	case TagFunctionCode:
		return "function"
	case TagCallable:
		return "callable"
	case TagNamedToken:
		return "named-token"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Built-in container type ids carried after TagBuiltin. Typed views use
// their ViewKind value (10 through 19).
const (
	BuiltinMap    uint32 = 1
	BuiltinSet    uint32 = 2
	BuiltinBuffer uint32 = 20
)

// builtinName returns a display name for a built-in type id.
func builtinName(id uint32) string {
	if bt, ok := builtinByID[id]; ok {
		return bt.name
	}
	return fmt.Sprintf("unknown(%d)", id)
}
