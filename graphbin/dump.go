package graphbin

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Dump renders encoded bytes as a listing with one line per tag:
//
//	offset  #slot  tag  summary
//
// Nested values are indented under their container. Dump reads the
// stream the way the decoder does, without building values or
// resolving registered names, and fails on the same truncated or
// malformed framing. View bounds are not checked.
func Dump(data []byte) (string, error) {
	d := &dumper{in: reader{buf: data}}
	if err := d.node(0); err != nil {
		return d.sb.String(), err
	}
	if n := d.in.remaining(); n > 0 {
		fmt.Fprintf(&d.sb, "%06d        (%d trailing bytes)\n", d.in.pos, n)
	}
	return d.sb.String(), nil
}

type dumper struct {
	sb   strings.Builder
	in   reader
	slot int

	// field is the name prefixed to the next line.
	field string
}

func (d *dumper) line(offset, slot, depth int, tag, summary string) {
	fmt.Fprintf(&d.sb, "%06d  #%-4d %s", offset, slot, strings.Repeat("  ", depth))
	if d.field != "" {
		d.sb.WriteString(d.field)
		d.sb.WriteString(": ")
		d.field = ""
	}
	d.sb.WriteString(tag)
	if summary != "" {
		d.sb.WriteString(" ")
		d.sb.WriteString(summary)
	}
	d.sb.WriteString("\n")
}

func (d *dumper) node(depth int) error {
	if depth >= DefaultMaxDepth {
		return d.in.fail(ErrFormat, fmt.Sprintf("nesting exceeds %d", DefaultMaxDepth))
	}
	start := d.in.pos
	c, err := d.in.popByte()
	if err != nil {
		return err
	}
	tag := Tag(c)
	slot := d.slot
	d.slot++

	switch tag {
	case TagInt:
		n, err := d.in.vint()
		if err != nil {
			return err
		}
		d.line(start, slot, depth, tag.String(), strconv.FormatInt(int64(n), 10))

	case TagFloat:
		b, err := d.in.take(8)
		if err != nil {
			return err
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(b))
		d.line(start, slot, depth, tag.String(), strconv.FormatFloat(f, 'g', -1, 64))

	case TagString, TagToken, TagCallable, TagNamedToken:
		s, err := d.in.str()
		if err != nil {
			return err
		}
		d.line(start, slot, depth, tag.String(), strconv.Quote(s))

	case TagRecord:
		n, err := d.in.length(2)
		if err != nil {
			return err
		}
		d.line(start, slot, depth, tag.String(), fmt.Sprintf("fields=%d", n))
		return d.fields(n, depth+1)

	case TagInstance:
		name, err := d.in.str()
		if err != nil {
			return err
		}
		n, err := d.in.length(2)
		if err != nil {
			return err
		}
		d.line(start, slot, depth, tag.String(), fmt.Sprintf("%q fields=%d", name, n))
		return d.fields(n, depth+1)

	case TagList:
		d.line(start, slot, depth, tag.String(), "")
		return d.untilEnd(depth + 1)

	case TagUndefined, TagFalse, TagTrue, TagNull:
		d.line(start, slot, depth, tag.String(), "")

	case TagBigIntPos, TagBigIntNeg:
		n, err := d.in.length(1)
		if err != nil {
			return err
		}
		le, err := d.in.take(n)
		if err != nil {
			return err
		}
		be := make([]byte, n)
		for i, b := range le {
			be[n-1-i] = b
		}
		mag := new(big.Int).SetBytes(be)
		if tag == TagBigIntNeg {
			mag.Neg(mag)
		}
		d.line(start, slot, depth, tag.String(), mag.String())

	case TagReference:
		idx, err := d.in.vint()
		if err != nil {
			return err
		}
		if idx < 0 || int(idx) >= slot {
			return &DecodeError{Err: ErrFormat, Reason: fmt.Sprintf("reference %d outside table of %d", idx, slot), Offset: start}
		}
		d.line(start, slot, depth, tag.String(), fmt.Sprintf("-> #%d", idx))

	case TagBuiltin:
		id, err := d.in.vint()
		if err != nil {
			return err
		}
		return d.builtin(uint32(id), start, slot, depth)

	case TagFunctionCode:
		return &DecodeError{Err: ErrUnsupportedFeature, Reason: "serialized function code", Offset: start}

	default:
		return &DecodeError{Err: ErrFormat, Reason: fmt.Sprintf("unknown tag %d", c), Offset: start}
	}
	return nil
}

func (d *dumper) builtin(id uint32, start, slot, depth int) error {
	name := builtinName(id)
	switch {
	case id == BuiltinMap:
		n, err := d.in.length(2)
		if err != nil {
			return err
		}
		d.line(start, slot, depth, name, fmt.Sprintf("entries=%d", n))
		for i := 0; i < 2*n; i++ {
			if err := d.node(depth + 1); err != nil {
				return err
			}
		}
		return nil

	case id == BuiltinSet:
		d.line(start, slot, depth, name, "")
		return d.untilEnd(depth + 1)

	case id == BuiltinBuffer:
		n, err := d.in.length(1)
		if err != nil {
			return err
		}
		if _, err := d.in.take(n); err != nil {
			return err
		}
		d.line(start, slot, depth, name, fmt.Sprintf("len=%d", n))
		return nil

	case id <= 0xff && ViewKind(id).Valid():
		offset, err := d.in.length(0)
		if err != nil {
			return err
		}
		count, err := d.in.length(0)
		if err != nil {
			return err
		}
		d.line(start, slot, depth, name, fmt.Sprintf("offset=%d count=%d", offset, count))
		return d.node(depth + 1)

	default:
		return &DecodeError{Err: ErrFormat, Reason: fmt.Sprintf("unknown built-in type %d", id), Offset: start}
	}
}

func (d *dumper) fields(n, depth int) error {
	for i := 0; i < n; i++ {
		name, err := d.in.str()
		if err != nil {
			return err
		}
		d.field = name
		if err := d.node(depth); err != nil {
			return err
		}
	}
	return nil
}

func (d *dumper) untilEnd(depth int) error {
	for {
		c, err := d.in.peekByte()
		if err != nil {
			return err
		}
		if c == tagEnd {
			d.in.pos++
			return nil
		}
		if err := d.node(depth); err != nil {
			return err
		}
	}
}
