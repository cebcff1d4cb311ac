package kv

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidDocument is returned by Decode for bytes that are not a JSON document.
var ErrInvalidDocument = errors.New("kv: stored document is not valid JSON")

// Kind identifies which JSON shape a stored value has.
type Kind uint8

const (
	Null Kind = iota
	String
	Number
	Bool
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// Value is a stored document. Only the String kind carries a usable value;
// the raw document is kept for every other kind.
type Value struct {
	kind Kind
	str  string
	raw  []byte
}

// StringValue wraps s as a String value.
func StringValue(s string) Value {
	return Value{kind: String, str: s}
}

// Kind reports the shape of the value.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload and true only for String values.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// Encode returns the JSON document that represents v in a backend.
func (v Value) Encode() ([]byte, error) {
	if v.kind == String {
		return json.Marshal(v.str)
	}
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// Decode classifies a JSON document read from a backend.
func Decode(doc []byte) (Value, error) {
	if !gjson.ValidBytes(doc) {
		return Value{}, ErrInvalidDocument
	}

	res := gjson.ParseBytes(doc)
	raw := append([]byte(nil), doc...)
	switch res.Type {
	case gjson.String:
		return StringValue(res.Str), nil
	case gjson.Number:
		return Value{kind: Number, raw: raw}, nil
	case gjson.True, gjson.False:
		return Value{kind: Bool, raw: raw}, nil
	case gjson.JSON:
		if res.IsArray() {
			return Value{kind: Array, raw: raw}, nil
		}
		return Value{kind: Object, raw: raw}, nil
	default:
		return Value{kind: Null, raw: raw}, nil
	}
}
