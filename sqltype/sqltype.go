// Package sqltype describes the value types a UDF batch can declare as its
// return type, in the JSON schema format the host engine uses.
package sqltype

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DataType is a closed union of atomic and complex types.
type DataType interface {
	// TypeName is the lowercase type name ("integer", "struct", ...).
	TypeName() string
	// SimpleString is the compact form ("array<string>", "decimal(10,2)").
	SimpleString() string
	jsonValue() any
}

// AtomicKind names an atomic type.
type AtomicKind string

// Atomic kinds.
const (
	Null      AtomicKind = "null"
	String    AtomicKind = "string"
	Binary    AtomicKind = "binary"
	Boolean   AtomicKind = "boolean"
	Date      AtomicKind = "date"
	Timestamp AtomicKind = "timestamp"
	Double    AtomicKind = "double"
	Float     AtomicKind = "float"
	Byte      AtomicKind = "byte"
	Short     AtomicKind = "short"
	Integer   AtomicKind = "integer"
	Long      AtomicKind = "long"
)

var atomicKinds = map[AtomicKind]bool{
	Null: true, String: true, Binary: true, Boolean: true, Date: true, Timestamp: true,
	Double: true, Float: true, Byte: true, Short: true, Integer: true, Long: true,
}

// Atomic is a scalar type other than decimal.
type Atomic struct {
	Kind AtomicKind
}

// TypeName implements DataType.
func (a Atomic) TypeName() string { return string(a.Kind) }

// SimpleString implements DataType.
func (a Atomic) SimpleString() string { return string(a.Kind) }

func (a Atomic) jsonValue() any { return string(a.Kind) }

// Decimal is a fixed-point type. Precision and Scale are zero when unset.
type Decimal struct {
	Precision int
	Scale     int
	Fixed     bool
}

// TypeName implements DataType.
func (Decimal) TypeName() string { return "decimal" }

// SimpleString implements DataType.
func (d Decimal) SimpleString() string {
	if !d.Fixed {
		return "decimal"
	}
	return fmt.Sprintf("decimal(%d,%d)", d.Precision, d.Scale)
}

func (d Decimal) jsonValue() any { return d.SimpleString() }

// Array is a homogeneous list.
type Array struct {
	Element      DataType
	ContainsNull bool
}

// TypeName implements DataType.
func (Array) TypeName() string { return "array" }

// SimpleString implements DataType.
func (a Array) SimpleString() string { return fmt.Sprintf("array<%s>", a.Element.SimpleString()) }

func (a Array) jsonValue() any {
	return map[string]any{
		"type":         "array",
		"elementType":  a.Element.jsonValue(),
		"containsNull": a.ContainsNull,
	}
}

// Map is a string-keyed map; keys of decoded records are always strings.
type Map struct {
	Key               DataType
	Value             DataType
	ValueContainsNull bool
}

// TypeName implements DataType.
func (Map) TypeName() string { return "map" }

// SimpleString implements DataType.
func (m Map) SimpleString() string {
	return fmt.Sprintf("map<%s,%s>", m.Key.SimpleString(), m.Value.SimpleString())
}

func (m Map) jsonValue() any {
	return map[string]any{
		"type":              "map",
		"keyType":           m.Key.jsonValue(),
		"valueType":         m.Value.jsonValue(),
		"valueContainsNull": m.ValueContainsNull,
	}
}

// Field is one named column of a Struct.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
	Metadata map[string]any
}

// Struct is a row type.
type Struct struct {
	Fields []Field
}

// TypeName implements DataType.
func (Struct) TypeName() string { return "struct" }

// SimpleString implements DataType.
func (s Struct) SimpleString() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + f.Type.SimpleString()
	}
	return "struct<" + strings.Join(parts, ",") + ">"
}

func (s Struct) jsonValue() any {
	fields := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		md := f.Metadata
		if md == nil {
			md = map[string]any{}
		}
		fields[i] = map[string]any{
			"name":     f.Name,
			"type":     f.Type.jsonValue(),
			"nullable": f.Nullable,
			"metadata": md,
		}
	}
	return map[string]any{"type": "struct", "fields": fields}
}

// ErrParse is returned for schema strings that are not valid type JSON.
var ErrParse = errors.New("could not parse data type")

var fixedDecimal = regexp.MustCompile(`^decimal\s*\((\d+),\s*(\d+)\)$`)

// Parse reads a type from its JSON form. Atomic types may be given as a
// bare JSON string or as an unquoted name ("integer").
func Parse(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty schema", ErrParse)
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return parseAtomic(s)
	}
	return parseValue(v)
}

// MustParse is Parse for static schemas; it panics on error.
func MustParse(s string) DataType {
	dt, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return dt
}

// JSON renders dt in its JSON form. Object keys are sorted.
func JSON(dt DataType) (string, error) {
	b, err := json.Marshal(dt.jsonValue())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseValue(v any) (DataType, error) {
	switch x := v.(type) {
	case string:
		return parseAtomic(x)
	case map[string]any:
		typ, _ := x["type"].(string)
		switch typ {
		case "array":
			elem, err := parseField(x, "elementType")
			if err != nil {
				return nil, err
			}
			return Array{Element: elem, ContainsNull: boolField(x, "containsNull", true)}, nil
		case "map":
			key, err := parseField(x, "keyType")
			if err != nil {
				return nil, err
			}
			value, err := parseField(x, "valueType")
			if err != nil {
				return nil, err
			}
			return Map{Key: key, Value: value, ValueContainsNull: boolField(x, "valueContainsNull", true)}, nil
		case "struct":
			return parseStruct(x)
		case "udt":
			return nil, fmt.Errorf("%w: udt is not supported", ErrParse)
		default:
			return nil, fmt.Errorf("%w: %v", ErrParse, x["type"])
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrParse, v)
	}
}

func parseField(obj map[string]any, key string) (DataType, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrParse, key)
	}
	return parseValue(raw)
}

func boolField(obj map[string]any, key string, def bool) bool {
	if b, ok := obj[key].(bool); ok {
		return b
	}
	return def
}

func parseStruct(obj map[string]any) (DataType, error) {
	raw, ok := obj["fields"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: struct without fields", ErrParse)
	}
	fields := make([]Field, 0, len(raw))
	for i, rf := range raw {
		fo, ok := rf.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: field %d is not an object", ErrParse, i)
		}
		name, _ := fo["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("%w: field %d has no name", ErrParse, i)
		}
		ft, err := parseField(fo, "type")
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		md, _ := fo["metadata"].(map[string]any)
		fields = append(fields, Field{
			Name:     name,
			Type:     ft,
			Nullable: boolField(fo, "nullable", true),
			Metadata: md,
		})
	}
	return Struct{Fields: fields}, nil
}

func parseAtomic(name string) (DataType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if atomicKinds[AtomicKind(name)] {
		return Atomic{Kind: AtomicKind(name)}, nil
	}
	if name == "decimal" {
		return Decimal{}, nil
	}
	if m := fixedDecimal.FindStringSubmatch(name); m != nil {
		p, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		return Decimal{Precision: p, Scale: s, Fixed: true}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrParse, name)
}
