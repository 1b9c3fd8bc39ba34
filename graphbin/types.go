package graphbin

import (
	"fmt"
	"math"
	"math/big"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindUndefined
	KindBool
	KindInt
	KindFloat
	KindBigInt
	KindString
	KindToken
	KindList
	KindRecord
	KindInstance
	KindMap
	KindSet
	KindBuffer
	KindView
	KindFunc
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBigInt:
		return "bigint"
	case KindString:
		return "string"
	case KindToken:
		return "token"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	case KindInstance:
		return "instance"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindBuffer:
		return "buffer"
	case KindView:
		return "view"
	case KindFunc:
		return "func"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// composite reports whether values of this kind are compared by identity.
// Only these kinds (and tokens) are ever targeted by back-references.
func (k Kind) composite() bool {
	switch k {
	case KindList, KindRecord, KindInstance, KindMap, KindSet, KindBuffer, KindView:
		return true
	default:
		return false
	}
}

// Value is a node in a value graph. Composite values are identified by
// pointer: two fields holding the same *Value share one node, and a
// field may point back at one of its ancestors.
//
// A nil *Value is treated as null everywhere.
type Value struct {
	kind Kind

	// Scalar values (only one valid based on kind)
	boolVal  bool
	intVal   int64
	floatVal float64
	bigVal   *big.Int
	strVal   string // string payload or token label
	bytesVal []byte

	// Container values
	items   []*Value // list elements, set elements
	fields  []Field  // record and instance fields
	entries []Entry  // map entries
	class   *Class
	view    *viewData
	fn      *Callable

	// index maps a field name or SameValueZero key to its position.
	// Built lazily once a container grows past indexThreshold.
	index map[any]int
}

// Field is a named member of a record or class instance.
type Field struct {
	Name  string
	Value *Value
}

// Entry is a key/value pair of a map.
type Entry struct {
	Key   *Value
	Value *Value
}

// F creates a Field for use in Record and Instance construction.
func F(name string, value *Value) Field {
	return Field{Name: name, Value: value}
}

// E creates an Entry for use in Map construction.
func E(key, value *Value) Entry {
	return Entry{Key: key, Value: value}
}

// ============================================================
// Constructors
// ============================================================

// Null creates a null value.
func Null() *Value {
	return &Value{kind: KindNull}
}

// Undefined creates the absent marker, which is distinct from null.
func Undefined() *Value {
	return &Value{kind: KindUndefined}
}

// Bool creates a boolean value.
func Bool(v bool) *Value {
	return &Value{kind: KindBool, boolVal: v}
}

// Int creates an integer value. The wire format carries 32 bits; see
// the package documentation.
func Int(v int64) *Value {
	return &Value{kind: KindInt, intVal: v}
}

// intOrBig returns an Int when i fits the 32-bit wire integer and a
// BigInt otherwise.
func intOrBig(i int64) *Value {
	if i < math.MinInt32 || i > math.MaxInt32 {
		return BigIntFromInt64(i)
	}
	return Int(i)
}

// Float creates a float value. It is always encoded as a double, even
// when integral.
func Float(v float64) *Value {
	return &Value{kind: KindFloat, floatVal: v}
}

// Number creates an Int for finite integral values and a Float otherwise.
func Number(v float64) *Value {
	if !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) &&
		v >= math.MinInt64 && v < math.MaxInt64 {
		return Int(int64(v))
	}
	return Float(v)
}

// BigInt creates an arbitrary-precision integer value. The argument is
// copied.
func BigInt(v *big.Int) *Value {
	b := new(big.Int)
	if v != nil {
		b.Set(v)
	}
	return &Value{kind: KindBigInt, bigVal: b}
}

// BigIntFromInt64 creates an arbitrary-precision integer from an int64.
func BigIntFromInt64(v int64) *Value {
	return &Value{kind: KindBigInt, bigVal: big.NewInt(v)}
}

// Str creates a string value.
func Str(v string) *Value {
	return &Value{kind: KindString, strVal: v}
}

// Token creates a new unique token. Every call returns a distinct token,
// even for equal labels. An empty label means no label.
func Token(label string) *Value {
	return &Value{kind: KindToken, strVal: label}
}

// List creates a list value.
func List(values ...*Value) *Value {
	return &Value{kind: KindList, items: values}
}

// Record creates a keyed record. A repeated name overwrites the earlier
// value in place.
func Record(fields ...Field) *Value {
	v := &Value{kind: KindRecord, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v.SetField(f.Name, f.Value)
	}
	return v
}

// Instance creates an instance of class with the given fields.
func Instance(class *Class, fields ...Field) *Value {
	v := &Value{kind: KindInstance, class: class, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v.SetField(f.Name, f.Value)
	}
	return v
}

// Map creates a keyed collection whose keys may be any value. Keys are
// unique under SameValueZero; a repeated key overwrites in place.
func Map(entries ...Entry) *Value {
	v := &Value{kind: KindMap, entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		v.MapSet(e.Key, e.Value)
	}
	return v
}

// Set creates a unique-element collection. Duplicate elements under
// SameValueZero are dropped.
func Set(values ...*Value) *Value {
	v := &Value{kind: KindSet, items: make([]*Value, 0, len(values))}
	for _, e := range values {
		v.SetAdd(e)
	}
	return v
}

// Buffer creates a raw binary buffer. The slice is not copied.
func Buffer(b []byte) *Value {
	if b == nil {
		b = []byte{}
	}
	return &Value{kind: KindBuffer, bytesVal: b}
}

// Func creates a restricted callable reference.
func Func(c *Callable) *Value {
	return &Value{kind: KindFunc, fn: c}
}

// ============================================================
// Accessors
// ============================================================

// Kind returns the value kind.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull returns true if this is a null value.
func (v *Value) IsNull() bool {
	return v == nil || v.kind == KindNull
}

// IsUndefined returns true if this is the absent marker.
func (v *Value) IsUndefined() bool {
	return v != nil && v.kind == KindUndefined
}

func (v *Value) expect(k Kind) error {
	if v == nil {
		return fmt.Errorf("graphbin: nil value")
	}
	if v.kind != k {
		return fmt.Errorf("graphbin: expected %s, got %s", k, v.kind)
	}
	return nil
}

// AsBool returns the boolean value.
func (v *Value) AsBool() (bool, error) {
	if err := v.expect(KindBool); err != nil {
		return false, err
	}
	return v.boolVal, nil
}

// AsInt returns the integer value.
func (v *Value) AsInt() (int64, error) {
	if err := v.expect(KindInt); err != nil {
		return 0, err
	}
	return v.intVal, nil
}

// AsFloat returns the float value.
func (v *Value) AsFloat() (float64, error) {
	if err := v.expect(KindFloat); err != nil {
		return 0, err
	}
	return v.floatVal, nil
}

// AsBigInt returns a copy of the arbitrary-precision integer.
func (v *Value) AsBigInt() (*big.Int, error) {
	if err := v.expect(KindBigInt); err != nil {
		return nil, err
	}
	return new(big.Int).Set(v.bigVal), nil
}

// AsStr returns the string value.
func (v *Value) AsStr() (string, error) {
	if err := v.expect(KindString); err != nil {
		return "", err
	}
	return v.strVal, nil
}

// Label returns the token label.
func (v *Value) Label() (string, error) {
	if err := v.expect(KindToken); err != nil {
		return "", err
	}
	return v.strVal, nil
}

// AsList returns the list elements.
func (v *Value) AsList() ([]*Value, error) {
	if err := v.expect(KindList); err != nil {
		return nil, err
	}
	return v.items, nil
}

// AsFields returns the fields of a record or instance.
func (v *Value) AsFields() ([]Field, error) {
	if v == nil {
		return nil, fmt.Errorf("graphbin: nil value")
	}
	if v.kind != KindRecord && v.kind != KindInstance {
		return nil, fmt.Errorf("graphbin: expected record or instance, got %s", v.kind)
	}
	return v.fields, nil
}

// Class returns the class of an instance, or nil.
func (v *Value) Class() *Class {
	if v == nil || v.kind != KindInstance {
		return nil
	}
	return v.class
}

// AsEntries returns the entries of a map.
func (v *Value) AsEntries() ([]Entry, error) {
	if err := v.expect(KindMap); err != nil {
		return nil, err
	}
	return v.entries, nil
}

// AsSet returns the elements of a set in insertion order.
func (v *Value) AsSet() ([]*Value, error) {
	if err := v.expect(KindSet); err != nil {
		return nil, err
	}
	return v.items, nil
}

// AsBytes returns the contents of a buffer. The slice aliases the buffer.
func (v *Value) AsBytes() ([]byte, error) {
	if err := v.expect(KindBuffer); err != nil {
		return nil, err
	}
	return v.bytesVal, nil
}

// AsFunc returns the callable of a func value.
func (v *Value) AsFunc() (*Callable, error) {
	if err := v.expect(KindFunc); err != nil {
		return nil, err
	}
	return v.fn, nil
}

// Len returns the number of elements of a list, set or map, the number
// of fields of a record or instance, or the byte length of a buffer.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindList, KindSet:
		return len(v.items)
	case KindRecord, KindInstance:
		return len(v.fields)
	case KindMap:
		return len(v.entries)
	case KindBuffer:
		return len(v.bytesVal)
	case KindView:
		return v.view.length
	default:
		return 0
	}
}

// Get returns a field value by name from a record or instance.
func (v *Value) Get(name string) *Value {
	if v == nil || (v.kind != KindRecord && v.kind != KindInstance) {
		return nil
	}
	if i := v.fieldIndex(name); i >= 0 {
		return v.fields[i].Value
	}
	return nil
}

// Has reports whether a record or instance has the named field.
func (v *Value) Has(name string) bool {
	if v == nil || (v.kind != KindRecord && v.kind != KindInstance) {
		return false
	}
	return v.fieldIndex(name) >= 0
}

// MapGet returns the value stored under key in a map.
func (v *Value) MapGet(key *Value) (*Value, bool) {
	if v == nil || v.kind != KindMap {
		return nil, false
	}
	if i := v.entryIndex(key); i >= 0 {
		return v.entries[i].Value, true
	}
	return nil, false
}

// SetHas reports whether a set contains the element.
func (v *Value) SetHas(elem *Value) bool {
	if v == nil || v.kind != KindSet {
		return false
	}
	return v.itemIndex(elem) >= 0
}

// Index returns the i-th element of a list.
func (v *Value) Index(i int) (*Value, error) {
	if v == nil || v.kind != KindList {
		return nil, fmt.Errorf("graphbin: not a list")
	}
	if i < 0 || i >= len(v.items) {
		return nil, fmt.Errorf("graphbin: index %d out of bounds (len=%d)", i, len(v.items))
	}
	return v.items[i], nil
}

// ============================================================
// Mutators
// ============================================================

// SetField sets a field on a record or instance, keeping the position
// of an existing field.
func (v *Value) SetField(name string, val *Value) {
	if v.kind != KindRecord && v.kind != KindInstance {
		panic("graphbin: cannot set field on " + v.kind.String())
	}
	if i := v.fieldIndex(name); i >= 0 {
		v.fields[i].Value = val
		return
	}
	v.fields = append(v.fields, Field{Name: name, Value: val})
	if v.index != nil {
		v.index[name] = len(v.fields) - 1
	}
}

// Append adds a value to a list.
func (v *Value) Append(val *Value) {
	if v.kind != KindList {
		panic("graphbin: cannot append to " + v.kind.String())
	}
	v.items = append(v.items, val)
}

// MapSet stores val under key in a map.
func (v *Value) MapSet(key, val *Value) {
	if v.kind != KindMap {
		panic("graphbin: cannot map-set on " + v.kind.String())
	}
	if i := v.entryIndex(key); i >= 0 {
		v.entries[i].Value = val
		return
	}
	v.entries = append(v.entries, Entry{Key: key, Value: val})
	if v.index != nil {
		v.index[sameValueKey(key)] = len(v.entries) - 1
	}
}

// SetAdd adds an element to a set unless an equal element is present.
func (v *Value) SetAdd(elem *Value) {
	if v.kind != KindSet {
		panic("graphbin: cannot add to " + v.kind.String())
	}
	if v.itemIndex(elem) >= 0 {
		return
	}
	v.items = append(v.items, elem)
	if v.index != nil {
		v.index[sameValueKey(elem)] = len(v.items) - 1
	}
}

// ============================================================
// Lookup
// ============================================================

const indexThreshold = 8

func (v *Value) fieldIndex(name string) int {
	if v.index == nil && len(v.fields) > indexThreshold {
		v.index = make(map[any]int, len(v.fields))
		for i, f := range v.fields {
			v.index[f.Name] = i
		}
	}
	if v.index != nil {
		if i, ok := v.index[name]; ok {
			return i
		}
		return -1
	}
	for i, f := range v.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (v *Value) entryIndex(key *Value) int {
	k := sameValueKey(key)
	if v.index == nil && len(v.entries) > indexThreshold {
		v.index = make(map[any]int, len(v.entries))
		for i, e := range v.entries {
			v.index[sameValueKey(e.Key)] = i
		}
	}
	if v.index != nil {
		if i, ok := v.index[k]; ok {
			return i
		}
		return -1
	}
	for i, e := range v.entries {
		if sameValueKey(e.Key) == k {
			return i
		}
	}
	return -1
}

func (v *Value) itemIndex(elem *Value) int {
	k := sameValueKey(elem)
	if v.index == nil && len(v.items) > indexThreshold {
		v.index = make(map[any]int, len(v.items))
		for i, e := range v.items {
			v.index[sameValueKey(e)] = i
		}
	}
	if v.index != nil {
		if i, ok := v.index[k]; ok {
			return i
		}
		return -1
	}
	for i, e := range v.items {
		if sameValueKey(e) == k {
			return i
		}
	}
	return -1
}

// primitiveKey is the map key of a value compared by content.
type primitiveKey struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// sameValueKey returns a comparable key under which SameValueZero-equal
// values collide: primitives by content (NaN equals NaN, -0 equals +0),
// everything else by pointer.
func sameValueKey(v *Value) any {
	if v == nil {
		return primitiveKey{kind: KindNull}
	}
	switch v.kind {
	case KindNull, KindUndefined:
		return primitiveKey{kind: v.kind}
	case KindBool:
		if v.boolVal {
			return primitiveKey{kind: KindBool, i: 1}
		}
		return primitiveKey{kind: KindBool}
	case KindInt:
		return primitiveKey{kind: KindInt, i: v.intVal}
	case KindFloat:
		f := v.floatVal
		if math.IsNaN(f) {
			return primitiveKey{kind: KindFloat, s: "NaN"}
		}
		if f == 0 {
			f = 0
		}
		return primitiveKey{kind: KindFloat, f: f}
	case KindBigInt:
		return primitiveKey{kind: KindBigInt, s: v.bigVal.String()}
	case KindString:
		return primitiveKey{kind: KindString, s: v.strVal}
	default:
		return v
	}
}
