package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Kind identifies the variant held by a [Value].
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name of k.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-shaped tagged union: null, bool, number, string, ordered
// list or ordered mapping. Tool arguments and input schemas travel between the
// tool provider, the model gateway and dispatch as Values so that key order
// and number text survive every hop inside the bot. Gateways whose SDK only
// takes untyped maps may lose object key order at their boundary.
//
// The zero Value is null. Values are immutable once built.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []Value
	fields []Field
}

// Field is one key/value pair of an object [Value].
type Field struct {
	Key   string
	Value Value
}

// ErrTrailingData is returned when a JSON document holds more than one value.
var ErrTrailingData = errors.New("types: trailing data after JSON value")

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value. NaN and infinities have no JSON form and
// become null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Int returns an integral numeric value.
func Int(i int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns an ordered list value.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value(nil), items...)}
}

// Object returns an ordered mapping value. When a key repeats, the later
// value replaces the earlier one in the earlier position.
func Object(fields ...Field) Value {
	out := Value{kind: KindObject, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		out.fields = setField(out.fields, f)
	}
	return out
}

func setField(fields []Field, f Field) []Field {
	for i := range fields {
		if fields[i].Key == f.Key {
			fields[i].Value = f.Value
			return fields
		}
	}
	return append(fields, f)
}

// Parse decodes a single JSON document into a Value.
func Parse(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

// FromAny converts an arbitrary JSON-marshalable Go value into a Value.
// Maps come out with their keys sorted, as encoding/json emits them.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case nil:
		return Null(), nil
	case json.RawMessage:
		return Parse(t)
	}
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("types: marshal %T: %w", x, err)
	}
	return Parse(data)
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number held by v in its original textual form.
func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == KindNumber }

// AsFloat returns the number held by v as a float64.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// Items returns the elements of an array value, or nil.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

// Fields returns the fields of an object value in order, or nil.
func (v Value) Fields() []Field {
	if v.kind != KindObject {
		return nil
	}
	return v.fields
}

// Get returns the value stored under key in an object value.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.Fields() {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of elements of an array or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	default:
		return 0
	}
}

// Text returns the raw string for string values and the compact JSON
// encoding for everything else.
func (v Value) Text() string {
	if v.kind == KindString {
		return v.str
	}
	return v.String()
}

// String returns the compact JSON encoding of v.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(b)
}

// Any converts v into the generic Go shape produced by encoding/json:
// map[string]any, []any, float64, string, bool or nil. Key order of objects
// is lost; use it only at boundaries that demand untyped maps.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		f, _ := v.num.Float64()
		return f
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			out[f.Key] = f.Value.Any()
		}
		return out
	default:
		return nil
	}
}

// Map returns v as a map[string]any when v is an object, or nil otherwise.
func (v Value) Map() map[string]any {
	if v.kind != KindObject {
		return nil
	}
	return v.Any().(map[string]any)
}

// MarshalJSON implements json.Marshaler. Object keys keep their order.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindNumber:
		if v.num == "" {
			return append(buf, '0'), nil
		}
		return append(buf, v.num...), nil
	case KindString:
		return appendString(buf, v.str)
	case KindArray:
		buf = append(buf, '[')
		for i, it := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = it.appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		buf = append(buf, '{')
		for i, f := range v.fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendString(buf, f.Key); err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			if buf, err = f.Value.appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("types: unknown value kind %d", v.kind)
	}
}

func appendString(buf []byte, s string) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(buf, b...), nil
}

// UnmarshalJSON implements json.Unmarshaler. Object keys keep document order
// and numbers keep their original text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return fmt.Errorf("types: decode value: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			out := Value{kind: KindArray, items: []Value{}}
			for dec.More() {
				it, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				out.items = append(out.items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		case '{':
			out := Value{kind: KindObject, fields: []Field{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				out.fields = setField(out.fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
