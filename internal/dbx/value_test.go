package dbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueInt64Coercion(t *testing.T) {
	assert.Equal(t, int64(0), NewValue(nil).Int64())
	assert.Equal(t, int64(42), NewValue(int64(42)).Int64())
	assert.Equal(t, int64(42), NewValue(int32(42)).Int64())
	assert.Equal(t, int64(42), NewValue(42).Int64())
	assert.Equal(t, int64(42), NewValue(float64(42.9)).Int64())
	assert.Equal(t, int64(42), NewValue([]byte("42")).Int64())
	assert.Equal(t, int64(42), NewValue("42").Int64())
	assert.Equal(t, int64(1), NewValue(true).Int64())
	assert.Equal(t, int64(0), NewValue(false).Int64())
	assert.Equal(t, int64(0), NewValue("not-a-number").Int64())
	// MySQL sometimes hands back numeric-looking decimals as []byte.
	assert.Equal(t, int64(42), NewValue([]byte("42.5")).Int64())
}

func TestValueFloat64Coercion(t *testing.T) {
	assert.Equal(t, float64(0), NewValue(nil).Float64())
	assert.Equal(t, 42.5, NewValue(float64(42.5)).Float64())
	assert.Equal(t, 42.5, NewValue([]byte("42.5")).Float64())
	assert.Equal(t, 42.5, NewValue("42.5").Float64())
	assert.Equal(t, float64(42), NewValue(int64(42)).Float64())
	assert.Equal(t, float64(0), NewValue("nope").Float64())
}

func TestValueStringCoercion(t *testing.T) {
	assert.Equal(t, "", NewValue(nil).String())
	assert.Equal(t, "hi", NewValue("hi").String())
	assert.Equal(t, "hi", NewValue([]byte("hi")).String())
	assert.Equal(t, "42", NewValue(int64(42)).String())
}

func TestValueIsNil(t *testing.T) {
	assert.True(t, NewValue(nil).IsNil())
	assert.False(t, NewValue(0).IsNil())
}

func TestValueBool(t *testing.T) {
	assert.True(t, NewValue(true).Bool())
	assert.True(t, NewValue(int64(1)).Bool())
	assert.False(t, NewValue(int64(0)).Bool())
	assert.False(t, NewValue(nil).Bool())
}

func TestValueBytes(t *testing.T) {
	assert.Nil(t, NewValue(nil).Bytes())
	assert.Equal(t, []byte("abc"), NewValue("abc").Bytes())
	assert.Equal(t, []byte("abc"), NewValue([]byte("abc")).Bytes())
}
