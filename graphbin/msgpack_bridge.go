package graphbin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// ToMsgpack converts plain data to MessagePack: null, undefined (as
// nil), booleans, numbers, BigInts that fit in 64 bits, strings,
// buffers, lists, sets (as arrays), and records and instances (as
// maps, in field order). Other kinds fail with ErrUnsupportedValue and
// cycles with ErrCycle.
func ToMsgpack(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	w := &msgpackWriter{enc: msgpack.NewEncoder(&buf), guard: make(pathGuard)}
	if err := w.write(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type msgpackWriter struct {
	enc   *msgpack.Encoder
	guard pathGuard
}

func (w *msgpackWriter) write(v *Value) error {
	if v.Kind().composite() {
		if err := w.guard.enter(v); err != nil {
			return err
		}
		defer w.guard.leave(v)
	}

	switch v.Kind() {
	case KindNull, KindUndefined:
		return w.enc.EncodeNil()

	case KindBool:
		return w.enc.EncodeBool(v.boolVal)

	case KindInt:
		return w.enc.EncodeInt(v.intVal)

	case KindFloat:
		return w.enc.EncodeFloat64(v.floatVal)

	case KindBigInt:
		if v.bigVal.IsInt64() {
			return w.enc.EncodeInt(v.bigVal.Int64())
		}
		if v.bigVal.IsUint64() {
			return w.enc.EncodeUint(v.bigVal.Uint64())
		}
		return fmt.Errorf("graphbin: %w: BigInt %s exceeds 64 bits in msgpack", ErrUnsupportedValue, v.bigVal)

	case KindString:
		return w.enc.EncodeString(v.strVal)

	case KindBuffer:
		return w.enc.EncodeBytes(v.bytesVal)

	case KindList, KindSet:
		if err := w.enc.EncodeArrayLen(len(v.items)); err != nil {
			return err
		}
		for i, item := range v.items {
			if err := w.write(item); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return nil

	case KindRecord, KindInstance:
		if err := w.enc.EncodeMapLen(len(v.fields)); err != nil {
			return err
		}
		for _, f := range v.fields {
			if err := w.enc.EncodeString(f.Name); err != nil {
				return err
			}
			if err := w.write(f.Value); err != nil {
				return fmt.Errorf("object[%q]: %w", f.Name, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("graphbin: %w: %s in msgpack", ErrUnsupportedValue, v.Kind())
	}
}

// FromMsgpack converts MessagePack to a value tree. Maps must have
// string keys and become records in wire order; integers become Int
// (or BigInt above MaxInt64) and floats Float.
func FromMsgpack(data []byte) (*Value, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	v, err := fromMsgpack(dec)
	if err != nil {
		return nil, fmt.Errorf("graphbin: msgpack: %w", err)
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return nil, errors.New("graphbin: msgpack: trailing data after value")
	}
	return v, nil
}

func fromMsgpack(dec *msgpack.Decoder) (*Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		list := List()
		for i := 0; i < n; i++ {
			item, err := fromMsgpack(dec)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			list.Append(item)
		}
		return list, nil

	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		rec := Record()
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, fmt.Errorf("map key: %w", err)
			}
			val, err := fromMsgpack(dec)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			rec.SetField(key, val)
		}
		return rec, nil

	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return Buffer(b), nil
	}

	x, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, err
	}
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int64:
		return intOrBig(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return BigInt(new(big.Int).SetUint64(t)), nil
		}
		return intOrBig(int64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return Str(t), nil
	default:
		return nil, fmt.Errorf("%w: msgpack item %T", ErrUnsupportedValue, x)
	}
}
