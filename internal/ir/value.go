package ir

import (
	"strings"
	"time"
)

// Value is a sealed interface representing a document value.
// Only Null, String, Int, Float, Bool, Time, Array and Object implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null value.
// Using an explicit type ensures every Value satisfies the sealed interface.
type Null struct{}

func (Null) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integral number. Always int64.
type Int int64

func (Int) value() {}

// Float represents a number with a fractional part or an exponent.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Time represents a timestamp, written {"$date": "<RFC3339>"} in documents.
type Time time.Time

func (Time) value() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) value() {}

// Pair is one key/value entry of an Object.
type Pair struct {
	Key   string
	Value Value
}

// Object represents a document with ordered keys.
//
// Key order is preserved from the source document. Compilers iterate
// Objects in order because clause order and placeholder numbering follow
// it.
type Object []Pair

func (Object) value() {}

// O is a shorthand for Pair for ergonomic construction.
// Example: Obj(O("a", Int(3)), O("b", String("x")))
func O(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// Obj creates an Object from pairs, in order.
func Obj(pairs ...Pair) Object {
	if pairs == nil {
		return Object{}
	}
	return Object(pairs)
}

// Arr creates an Array from values.
func Arr(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// Get returns the value stored under key.
// Duplicate keys resolve to the last occurrence, as in JSON objects.
func (obj Object) Get(key string) (Value, bool) {
	for i := len(obj) - 1; i >= 0; i-- {
		if obj[i].Key == key {
			return obj[i].Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (obj Object) Has(key string) bool {
	_, ok := obj.Get(key)
	return ok
}

// Keys returns the keys in document order.
func (obj Object) Keys() []string {
	keys := make([]string, len(obj))
	for i, p := range obj {
		keys[i] = p.Key
	}
	return keys
}

// With returns a copy of obj with key set to v. An existing key keeps its
// position; a new key is appended. obj itself is never modified.
func (obj Object) With(key string, v Value) Object {
	out := make(Object, 0, len(obj)+1)
	replaced := false
	for _, p := range obj {
		if p.Key == key {
			out = append(out, Pair{Key: key, Value: v})
			replaced = true
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, Pair{Key: key, Value: v})
	}
	return out
}

// HasOperatorKey reports whether any key starts with "$".
func (obj Object) HasOperatorKey() bool {
	for _, p := range obj {
		if strings.HasPrefix(p.Key, "$") {
			return true
		}
	}
	return false
}

// IsNull reports whether v is absent or a JSON null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Truthy reports document truthiness: null, false, 0 and "" are false.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0
	case String:
		return val != ""
	default:
		return true
	}
}

// AsInt returns the integral value of an Int or an integral Float.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// AsFloat returns the numeric value of an Int or Float.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	}
	return 0, false
}

// Native converts a Value into plain Go values suitable for database/sql.
//
//	Null   → nil
//	String → string
//	Int    → int64
//	Float  → float64
//	Bool   → bool
//	Time   → time.Time
//	Array  → []any
//	Object → map[string]any
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Time:
		return time.Time(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for _, p := range val {
			out[p.Key] = Native(p.Value)
		}
		return out
	default:
		return nil
	}
}

// FromNative converts plain Go values back into a Value.
// It accepts the output of Native plus the common int/float widths.
func FromNative(v any) (Value, bool) {
	switch val := v.(type) {
	case nil:
		return Null{}, true
	case Value:
		return val, true
	case string:
		return String(val), true
	case int:
		return Int(val), true
	case int32:
		return Int(val), true
	case int64:
		return Int(val), true
	case float32:
		return Float(val), true
	case float64:
		return Float(val), true
	case bool:
		return Bool(val), true
	case time.Time:
		return Time(val), true
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, ok := FromNative(elem)
			if !ok {
				return nil, false
			}
			arr[i] = e
		}
		return arr, true
	default:
		return nil, false
	}
}
