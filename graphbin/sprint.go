package graphbin

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
)

// Sprint renders a value graph as one line of text.
//
// A node reached more than once is labelled &N where it first appears
// and printed as *N afterwards, so shared and cyclic graphs render
// finitely:
//
//	&1 {name="root" self=*1}
func Sprint(v *Value) string {
	p := &printer{
		hits:    make(map[*Value]int),
		anchors: make(map[*Value]int),
	}
	p.count(v)
	p.emit(v)
	return p.sb.String()
}

type printer struct {
	sb      strings.Builder
	hits    map[*Value]int
	anchors map[*Value]int
	next    int
}

// count records how often each node is reached.
func (p *printer) count(v *Value) {
	if v == nil || (v.kind != KindToken && !v.kind.composite()) {
		return
	}
	p.hits[v]++
	if p.hits[v] > 1 {
		return
	}
	switch v.kind {
	case KindList, KindSet:
		for _, item := range v.items {
			p.count(item)
		}
	case KindRecord, KindInstance:
		for _, f := range v.fields {
			p.count(f.Value)
		}
	case KindMap:
		for _, e := range v.entries {
			p.count(e.Key)
			p.count(e.Value)
		}
	case KindView:
		p.count(v.view.buffer)
	}
}

func (p *printer) emit(v *Value) {
	if v == nil {
		p.sb.WriteString("null")
		return
	}
	if n, ok := p.anchors[v]; ok {
		p.sb.WriteString("*")
		p.sb.WriteString(strconv.Itoa(n))
		return
	}
	if p.hits[v] > 1 {
		p.next++
		p.anchors[v] = p.next
		p.sb.WriteString("&")
		p.sb.WriteString(strconv.Itoa(p.next))
		p.sb.WriteString(" ")
	}

	switch v.kind {
	case KindNull:
		p.sb.WriteString("null")

	case KindUndefined:
		p.sb.WriteString("undefined")

	case KindBool:
		p.sb.WriteString(strconv.FormatBool(v.boolVal))

	case KindInt:
		p.sb.WriteString(strconv.FormatInt(v.intVal, 10))

	case KindFloat:
		p.emitFloat(v.floatVal)

	case KindBigInt:
		p.sb.WriteString(v.bigVal.String())
		p.sb.WriteString("n")

	case KindString:
		p.sb.WriteString(strconv.Quote(v.strVal))

	case KindToken:
		p.sb.WriteString("@")
		p.sb.WriteString(v.strVal)

	case KindList:
		p.emitItems("[", v.items, "]")

	case KindSet:
		p.emitItems("Set[", v.items, "]")

	case KindRecord:
		p.emitFields("", v.fields)

	case KindInstance:
		p.emitFields(v.class.Name(), v.fields)

	case KindMap:
		p.sb.WriteString("Map{")
		for i, e := range v.entries {
			if i > 0 {
				p.sb.WriteString(" ")
			}
			p.emit(e.Key)
			p.sb.WriteString(":")
			p.emit(e.Value)
		}
		p.sb.WriteString("}")

	case KindBuffer:
		p.sb.WriteString("b64\"")
		p.sb.WriteString(base64.StdEncoding.EncodeToString(v.bytesVal))
		p.sb.WriteString("\"")

	case KindView:
		vd := v.view
		p.sb.WriteString(vd.kind.String())
		p.sb.WriteString("[")
		p.sb.WriteString(strconv.Itoa(vd.offset))
		p.sb.WriteString(":")
		p.sb.WriteString(strconv.Itoa(vd.length))
		p.sb.WriteString("](")
		p.emit(vd.buffer)
		p.sb.WriteString(")")

	case KindFunc:
		p.sb.WriteString("fn:")
		p.sb.WriteString(v.fn.Name())
	}
}

func (p *printer) emitItems(open string, items []*Value, close string) {
	p.sb.WriteString(open)
	for i, item := range items {
		if i > 0 {
			p.sb.WriteString(" ")
		}
		p.emit(item)
	}
	p.sb.WriteString(close)
}

func (p *printer) emitFields(typeName string, fields []Field) {
	p.sb.WriteString(typeName)
	p.sb.WriteString("{")
	for i, f := range fields {
		if i > 0 {
			p.sb.WriteString(" ")
		}
		p.sb.WriteString(f.Name)
		p.sb.WriteString("=")
		p.emit(f.Value)
	}
	p.sb.WriteString("}")
}

func (p *printer) emitFloat(f float64) {
	switch {
	case math.IsNaN(f):
		p.sb.WriteString("NaN")
		return
	case math.IsInf(f, 1):
		p.sb.WriteString("Inf")
		return
	case math.IsInf(f, -1):
		p.sb.WriteString("-Inf")
		return
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Keep floats distinguishable from ints.
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	p.sb.WriteString(s)
}
