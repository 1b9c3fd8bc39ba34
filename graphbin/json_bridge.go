package graphbin

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ============================================================
// JSON Bridge
// ============================================================
//
// Converts between JSON text and value trees. JSON has no identity, so
// shared nodes are written once per occurrence and cycles fail with
// ErrCycle. Object member order is preserved in both directions.

// FromJSON converts JSON bytes to a value tree. Objects become records,
// arrays lists. Integral numbers within 32 bits become Int; every other
// number becomes Float.
func FromJSON(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := fromJSONStream(dec)
	if err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("JSON parse error: trailing data after value")
	}
	return v, nil
}

func fromJSONStream(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return fromJSONToken(dec, tok)
}

func fromJSONToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil

	case bool:
		return Bool(t), nil

	case json.Number:
		return fromJSONNumber(t)

	case string:
		return Str(t), nil

	case json.Delim:
		switch t {
		case '[':
			list := List()
			for dec.More() {
				item, err := fromJSONStream(dec)
				if err != nil {
					return nil, fmt.Errorf("array[%d]: %w", list.Len(), err)
				}
				list.Append(item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil

		case '{':
			rec := Record()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				val, err := fromJSONStream(dec)
				if err != nil {
					return nil, fmt.Errorf("object[%q]: %w", key, err)
				}
				rec.SetField(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func fromJSONNumber(n json.Number) (*Value, error) {
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		return Int(int64(f)), nil
	}
	return Float(f), nil
}

// ToJSON converts a value tree to JSON bytes.
//
// Records and instances become objects, lists and sets arrays, maps
// objects when every key is a string and arrays of [key, value] pairs
// otherwise. Buffers become base64 strings and views arrays of their
// elements. BigInts are written as bare integer literals. Undefined and
// callables become null, tokens their label. NaN and infinities are
// rejected.
func ToJSON(v *Value) ([]byte, error) {
	w := &jsonWriter{guard: make(pathGuard)}
	if err := w.write(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// pathGuard tracks the composites on the current path of a tree walk.
type pathGuard map[*Value]bool

func (g pathGuard) enter(v *Value) error {
	if g[v] {
		return fmt.Errorf("graphbin: %w at %s", ErrCycle, v.kind)
	}
	g[v] = true
	return nil
}

func (g pathGuard) leave(v *Value) {
	delete(g, v)
}

type jsonWriter struct {
	buf   bytes.Buffer
	guard pathGuard
}

func (w *jsonWriter) str(s string) {
	b, _ := json.Marshal(s)
	w.buf.Write(b)
}

func (w *jsonWriter) write(v *Value) error {
	if v.Kind().composite() {
		if err := w.guard.enter(v); err != nil {
			return err
		}
		defer w.guard.leave(v)
	}

	switch v.Kind() {
	case KindNull, KindUndefined, KindFunc:
		w.buf.WriteString("null")

	case KindBool:
		w.buf.WriteString(strconv.FormatBool(v.boolVal))

	case KindInt:
		w.buf.WriteString(strconv.FormatInt(v.intVal, 10))

	case KindFloat:
		if math.IsNaN(v.floatVal) || math.IsInf(v.floatVal, 0) {
			return errors.New("graphbin: NaN/Infinity not allowed in JSON")
		}
		b, _ := json.Marshal(v.floatVal)
		w.buf.Write(b)

	case KindBigInt:
		w.buf.WriteString(v.bigVal.String())

	case KindString:
		w.str(v.strVal)

	case KindToken:
		w.str(v.strVal)

	case KindList, KindSet:
		return w.array(v.items)

	case KindRecord, KindInstance:
		w.buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			w.str(f.Name)
			w.buf.WriteByte(':')
			if err := w.write(f.Value); err != nil {
				return fmt.Errorf("object[%q]: %w", f.Name, err)
			}
		}
		w.buf.WriteByte('}')

	case KindMap:
		return w.mapValue(v)

	case KindBuffer:
		w.str(base64.StdEncoding.EncodeToString(v.bytesVal))

	case KindView:
		return w.view(v)

	default:
		return fmt.Errorf("graphbin: %w: %s in JSON", ErrUnsupportedValue, v.kind)
	}
	return nil
}

func (w *jsonWriter) array(items []*Value) error {
	w.buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		if err := w.write(item); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	w.buf.WriteByte(']')
	return nil
}

func (w *jsonWriter) mapValue(v *Value) error {
	stringKeys := true
	for _, e := range v.entries {
		if e.Key.Kind() != KindString {
			stringKeys = false
			break
		}
	}
	if !stringKeys {
		w.buf.WriteByte('[')
		for i, e := range v.entries {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			w.buf.WriteByte('[')
			if err := w.write(e.Key); err != nil {
				return err
			}
			w.buf.WriteByte(',')
			if err := w.write(e.Value); err != nil {
				return err
			}
			w.buf.WriteByte(']')
		}
		w.buf.WriteByte(']')
		return nil
	}

	w.buf.WriteByte('{')
	for i, e := range v.entries {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.str(e.Key.strVal)
		w.buf.WriteByte(':')
		if err := w.write(e.Value); err != nil {
			return fmt.Errorf("map[%q]: %w", e.Key.strVal, err)
		}
	}
	w.buf.WriteByte('}')
	return nil
}

func (w *jsonWriter) view(v *Value) error {
	n, _ := v.ViewLen()
	kind := v.view.kind
	w.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		switch {
		case kind.IsFloat():
			f, err := v.ViewFloat(i)
			if err != nil {
				return err
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return errors.New("graphbin: NaN/Infinity not allowed in JSON")
			}
			b, _ := json.Marshal(f)
			w.buf.Write(b)
		case kind.Signed():
			x, err := v.ViewInt(i)
			if err != nil {
				return err
			}
			w.buf.WriteString(strconv.FormatInt(x, 10))
		default:
			x, err := v.ViewUint(i)
			if err != nil {
				return err
			}
			w.buf.WriteString(strconv.FormatUint(x, 10))
		}
	}
	w.buf.WriteByte(']')
	return nil
}
