package sqltype

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrIncompatible is returned when a value cannot be converted to a type.
var ErrIncompatible = errors.New("incompatible value")

// Coerce converts a decoded record value to the Go representation of dt:
//
//	string -> string, binary -> []byte, boolean -> bool,
//	byte/short/integer/long -> int8/int16/int32/int64,
//	float/double -> float32/float64, date/timestamp -> time.Time (UTC),
//	decimal -> string with Scale fraction digits (fixed decimals),
//	array -> []any, map -> map[string]any, struct -> []any in field order.
//
// nil passes through unchanged; nullability is enforced for struct
// fields, array elements and map values.
func Coerce(dt DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := dt.(type) {
	case Atomic:
		return coerceAtomic(t.Kind, v)
	case Decimal:
		f, err := toFloat(v)
		if err != nil {
			return nil, incompatible(dt, v)
		}
		if !t.Fixed {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return strconv.FormatFloat(f, 'f', t.Scale, 64), nil
	case Array:
		items, ok := v.([]any)
		if !ok {
			return nil, incompatible(dt, v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			if item == nil && !t.ContainsNull {
				return nil, fmt.Errorf("%w: null element %d in %s", ErrIncompatible, i, dt.SimpleString())
			}
			c, err := Coerce(t.Element, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, incompatible(dt, v)
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			if item == nil && !t.ValueContainsNull {
				return nil, fmt.Errorf("%w: null value for key %q in %s", ErrIncompatible, k, dt.SimpleString())
			}
			c, err := Coerce(t.Value, item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case Struct:
		return coerceStruct(t, v)
	default:
		return nil, fmt.Errorf("%w: unknown type %T", ErrIncompatible, dt)
	}
}

func coerceStruct(t Struct, v any) (any, error) {
	var values []any
	switch x := v.(type) {
	case []any:
		if len(x) != len(t.Fields) {
			return nil, fmt.Errorf("%w: row has %d values, %s has %d fields", ErrIncompatible, len(x), t.SimpleString(), len(t.Fields))
		}
		values = x
	case map[string]any:
		values = make([]any, len(t.Fields))
		for i, f := range t.Fields {
			values[i] = x[f.Name]
		}
	default:
		return nil, incompatible(t, v)
	}
	row := make([]any, len(t.Fields))
	for i, f := range t.Fields {
		if values[i] == nil {
			if !f.Nullable {
				return nil, fmt.Errorf("%w: field %s is not nullable", ErrIncompatible, f.Name)
			}
			continue
		}
		c, err := Coerce(f.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		row[i] = c
	}
	return row, nil
}

func coerceAtomic(kind AtomicKind, v any) (any, error) {
	dt := Atomic{Kind: kind}
	switch kind {
	case Null:
		return nil, nil
	case String:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		default:
			return fmt.Sprint(v), nil
		}
	case Binary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	case Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if p, err := strconv.ParseBool(b); err == nil {
				return p, nil
			}
		}
	case Byte:
		return coerceInt(dt, v, math.MinInt8, math.MaxInt8, func(n int64) any { return int8(n) })
	case Short:
		return coerceInt(dt, v, math.MinInt16, math.MaxInt16, func(n int64) any { return int16(n) })
	case Integer:
		return coerceInt(dt, v, math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) })
	case Long:
		return coerceInt(dt, v, math.MinInt64, math.MaxInt64, func(n int64) any { return n })
	case Float:
		if f, err := toFloat(v); err == nil {
			return float32(f), nil
		}
	case Double:
		if f, err := toFloat(v); err == nil {
			return f, nil
		}
	case Date:
		if ts, ok := toTime(v, time.DateOnly); ok {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	case Timestamp:
		if ts, ok := toTime(v, time.RFC3339Nano); ok {
			return ts, nil
		}
	}
	return nil, incompatible(dt, v)
}

func coerceInt(dt DataType, v any, lo, hi int64, narrow func(int64) any) (any, error) {
	n, err := toInt(v)
	if err != nil || n < lo || n > hi {
		return nil, incompatible(dt, v)
	}
	return narrow(n), nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, ErrIncompatible
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, ErrIncompatible
		}
		return int64(n), nil
	case float32:
		return toInt(float64(n))
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, ErrIncompatible
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		i, err := toInt(v)
		return float64(i), err
	}
}

func toTime(v any, layout string) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		ts, err := time.Parse(layout, t)
		if err != nil {
			ts, err = time.Parse(time.RFC3339Nano, t)
		}
		return ts.UTC(), err == nil
	default:
		ms, err := toInt(v)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
}

func incompatible(dt DataType, v any) error {
	return fmt.Errorf("%w: %T %v as %s", ErrIncompatible, v, v, dt.SimpleString())
}
