package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// dateKey marks a timestamp in extended JSON: {"$date": "2022-01-01T00:00:00Z"}.
const dateKey = "$date"

// ParseJSON decodes a JSON document into a Value, preserving object key order.
//
// Numbers without a fraction or exponent decode to Int; all others to
// Float. Integers beyond int64 range fall back to Float.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}

	// Reject trailing data such as `{} {}`
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return v, nil
}

// MustParseJSON is like ParseJSON but panics on error.
// Use only in tests or when input is known to be valid.
func MustParseJSON(s string) Value {
	v, err := ParseJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return parseNumber(string(t))
	case json.Delim:
		switch t {
		case '[':
			arr := Array{}
			for dec.More() {
				elem, err := decodeJSONValue(dec)
				if err != nil {
					return nil, fmt.Errorf("array[%d]: %w", len(arr), err)
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		case '{':
			obj := Object{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, expected string", keyTok)
				}
				elem, err := decodeJSONValue(dec)
				if err != nil {
					return nil, fmt.Errorf("object[%q]: %w", key, err)
				}
				obj = append(obj, Pair{Key: key, Value: elem})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return promoteDate(obj)
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// promoteDate turns {"$date": "..."} into a Time. Other objects pass through.
func promoteDate(obj Object) (Value, error) {
	if len(obj) != 1 || obj[0].Key != dateKey {
		return obj, nil
	}
	switch raw := obj[0].Value.(type) {
	case String:
		ts, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			// Date-only form, e.g. "2022-01-01"
			ts, err = time.Parse(time.DateOnly, string(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid $date %q: %w", string(raw), err)
			}
		}
		return Time(ts.UTC()), nil
	case Time:
		return raw, nil
	case Int:
		return Time(time.UnixMilli(int64(raw)).UTC()), nil
	default:
		return nil, fmt.Errorf("invalid $date value of type %T", raw)
	}
}

// FromYAML converts a yaml.v3 node tree into a Value, preserving mapping order.
func FromYAML(node *yaml.Node) (Value, error) {
	if node == nil {
		return Null{}, nil
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null{}, nil
		}
		return FromYAML(node.Content[0])

	case yaml.AliasNode:
		return FromYAML(node.Alias)

	case yaml.SequenceNode:
		arr := make(Array, 0, len(node.Content))
		for i, child := range node.Content {
			elem, err := FromYAML(child)
			if err != nil {
				return nil, fmt.Errorf("line %d: array[%d]: %w", child.Line, i, err)
			}
			arr = append(arr, elem)
		}
		return arr, nil

	case yaml.MappingNode:
		obj := make(Object, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			elem, err := FromYAML(valNode)
			if err != nil {
				return nil, fmt.Errorf("line %d: object[%q]: %w", valNode.Line, keyNode.Value, err)
			}
			obj = append(obj, Pair{Key: keyNode.Value, Value: elem})
		}
		return promoteDate(obj)

	case yaml.ScalarNode:
		return yamlScalar(node)
	}

	return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
}

func yamlScalar(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null{}, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return nil, err
		}
		return Int(n), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, err
		}
		return Float(f), nil
	case "!!timestamp":
		var ts time.Time
		if err := node.Decode(&ts); err != nil {
			return nil, err
		}
		return Time(ts.UTC()), nil
	default:
		return String(node.Value), nil
	}
}

// Document wraps a Value so it can be embedded in structs decoded by
// encoding/json or yaml.v3 without losing key order.
//
// A missing field leaves Value nil.
type Document struct {
	Value Value
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	d.Value = v
	return nil
}

// MarshalJSON implements json.Marshaler using canonical JSON.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.Value == nil {
		return []byte("null"), nil
	}
	return MarshalCanonical(d.Value)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	v, err := FromYAML(node)
	if err != nil {
		return err
	}
	d.Value = v
	return nil
}

// IsZero reports whether the document was absent.
func (d Document) IsZero() bool {
	return d.Value == nil
}
