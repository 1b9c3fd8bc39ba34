package graphbin

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromYAML converts a YAML document to a value graph.
//
// Unlike JSON, YAML can express sharing: an anchored node and every
// alias of it decode to the same *Value, so encoding the result keeps
// one copy plus back-references. Mappings with only string keys become
// records; other mappings become maps. Integers within 32 bits become
// Int and larger ones BigInt.
func FromYAML(data []byte) (*Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	y := &yamlConverter{anchors: make(map[*yaml.Node]*Value)}
	return y.convert(&root)
}

type yamlConverter struct {
	// anchors maps an anchored node to the value built for it.
	anchors map[*yaml.Node]*Value
}

func (y *yamlConverter) convert(n *yaml.Node) (*Value, error) {
	if v, ok := y.anchors[n]; ok {
		return v, nil
	}

	switch n.Kind {
	case 0:
		return Null(), nil

	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return y.convert(n.Content[0])

	case yaml.AliasNode:
		v, ok := y.anchors[n.Alias]
		if !ok {
			// An alias to a node converted elsewhere in the tree.
			return y.convert(n.Alias)
		}
		return v, nil

	case yaml.SequenceNode:
		list := List()
		y.remember(n, list)
		for i, child := range n.Content {
			item, err := y.convert(child)
			if err != nil {
				return nil, fmt.Errorf("line %d: array[%d]: %w", child.Line, i, err)
			}
			list.Append(item)
		}
		return list, nil

	case yaml.MappingNode:
		return y.mapping(n)

	case yaml.ScalarNode:
		v, err := yamlScalar(n)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		y.remember(n, v)
		return v, nil

	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func (y *yamlConverter) remember(n *yaml.Node, v *Value) {
	if n.Anchor != "" {
		y.anchors[n] = v
	}
}

func (y *yamlConverter) mapping(n *yaml.Node) (*Value, error) {
	stringKeys := true
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if k.Kind != yaml.ScalarNode || k.ShortTag() != "!!str" {
			stringKeys = false
			break
		}
	}

	if stringKeys {
		rec := Record()
		y.remember(n, rec)
		for i := 0; i+1 < len(n.Content); i += 2 {
			name := n.Content[i].Value
			val, err := y.convert(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", name, err)
			}
			rec.SetField(name, val)
		}
		return rec, nil
	}

	m := Map()
	y.remember(n, m)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, err := y.convert(n.Content[i])
		if err != nil {
			return nil, err
		}
		val, err := y.convert(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		m.MapSet(key, val)
	}
	return m, nil
}

func yamlScalar(n *yaml.Node) (*Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil

	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			// Beyond 64 bits.
			b, ok := new(big.Int).SetString(strings.ReplaceAll(n.Value, "_", ""), 0)
			if !ok {
				return nil, fmt.Errorf("invalid integer %q", n.Value)
			}
			return BigInt(b), nil
		}
		return intOrBig(i), nil

	case "!!float":
		// Plain integers too wide for int64 resolve as floats.
		if n.Style&yaml.TaggedStyle == 0 {
			if b, ok := new(big.Int).SetString(strings.ReplaceAll(n.Value, "_", ""), 0); ok {
				return BigInt(b), nil
			}
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return Float(f), nil

	case "!!binary":
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid binary: %w", err)
		}
		return Buffer(b), nil

	default:
		return Str(n.Value), nil
	}
}
