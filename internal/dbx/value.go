package dbx

import (
	"strconv"
)

// Value is a tagged coercion wrapper around a single scanned column value.
// database/sql hands back driver-specific representations for numerics
// (notably MySQL returning []byte for what Postgres returns as int64/float64),
// so every accessor tolerates int64, float64, []byte, string, and nil.
type Value struct {
	v any
}

// Row is a single result row keyed by column name.
type Row map[string]Value

// NewValue wraps a raw scanned value.
func NewValue(v any) Value { return Value{v: v} }

// Raw returns the underlying value.
func (val Value) Raw() any { return val.v }

// IsNil reports whether the underlying value is nil.
func (val Value) IsNil() bool { return val.v == nil }

// Int64 coerces the value to int64, returning 0 on nil/unparseable input.
func (val Value) Int64() int64 {
	switch t := val.v.(type) {
	case nil:
		return 0
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(string(t), 64)
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return n
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Float64 coerces the value to float64, returning 0 on nil/unparseable input.
func (val Value) Float64() float64 {
	switch t := val.v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// String coerces the value to a string, returning "" on nil.
func (val Value) String() string {
	switch t := val.v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// Bytes coerces the value to a byte slice.
func (val Value) Bytes() []byte {
	switch t := val.v.(type) {
	case nil:
		return nil
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}

// Bool coerces the value to a bool using the same truthy rules as Int64.
func (val Value) Bool() bool {
	switch t := val.v.(type) {
	case bool:
		return t
	default:
		return val.Int64() != 0
	}
}
