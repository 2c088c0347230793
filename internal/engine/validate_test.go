package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureString(t *testing.T) {
	s, ok, err := EnsureString("  hello ", "bad")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok, err = EnsureString(nil, "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, v := range []any{"", "   ", 5.0, true, map[string]any{}} {
		_, _, err := EnsureString(v, "bad")
		require.Error(t, err, "value %v", v)
		assert.True(t, errmodel.IsKind(err, errmodel.KindValidation))
		assert.Equal(t, "bad", errmodel.From(err).Message)
	}
}

func TestRequireString_Absent(t *testing.T) {
	_, err := RequireString(nil, `Parameter "title" must be a non-empty string`)
	require.Error(t, err)
}

func TestEnsurePositiveNumber(t *testing.T) {
	for _, v := range []any{1.0, 123, int64(7), json.Number("42"), float32(0.5)} {
		n, err := EnsurePositiveNumber(v, "bad")
		require.NoError(t, err, "value %v", v)
		assert.Greater(t, n, 0.0)
	}
	for _, v := range []any{nil, 0.0, -1.0, math.NaN(), math.Inf(1), "123", true, json.Number("x")} {
		_, err := EnsurePositiveNumber(v, "bad")
		assert.Error(t, err, "value %v", v)
	}
}

func TestEnsureNumber(t *testing.T) {
	n, ok, err := EnsureNumber(0.0, "bad")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.0, n)

	_, ok, err = EnsureNumber(nil, "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = EnsureNumber("1", "bad")
	assert.Error(t, err)
	_, _, err = EnsureNumber(math.Inf(-1), "bad")
	assert.Error(t, err)
}

func TestEnsureObject(t *testing.T) {
	m, ok, err := EnsureObject(map[string]any{"A": 1}, "bad")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"A": 1}, m)

	_, ok, err = EnsureObject(nil, "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, v := range []any{[]any{1}, "x", 1.0} {
		_, _, err := EnsureObject(v, "bad")
		assert.Error(t, err, "value %v", v)
	}
}

func TestEnsureArray(t *testing.T) {
	a, ok, err := EnsureArray([]any{"ID"}, "bad")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{"ID"}, a)

	a, ok, err = EnsureArray([]string{"ID", "TITLE"}, "bad")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{"ID", "TITLE"}, a)

	_, ok, err = EnsureArray(nil, "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = EnsureArray(map[string]any{}, "bad")
	assert.Error(t, err)
}

func TestEnsureISODate(t *testing.T) {
	for _, v := range []string{"2024-01-15", "2024-01-15T10:30:00", "2024-01-15T10:30:00.123Z", "2024-01-15T10:30:00Z"} {
		got, ok, err := EnsureISODate(v, "bad")
		require.NoError(t, err, v)
		assert.True(t, ok)
		assert.Equal(t, v, got)
	}
	for _, v := range []any{"15.01.2024", "2024-1-15", "2024-01-15 10:30", 20240115} {
		_, _, err := EnsureISODate(v, "bad")
		assert.Error(t, err, "value %v", v)
	}
	_, ok, err := EnsureISODate(nil, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOptionalPositiveNumber(t *testing.T) {
	assert.Equal(t, 50.0, OptionalPositiveNumber(nil, 50))
	assert.Equal(t, 50.0, OptionalPositiveNumber(-3.0, 50))
	assert.Equal(t, 50.0, OptionalPositiveNumber("10", 50))
	assert.Equal(t, 10.0, OptionalPositiveNumber(10.0, 50))
}

func TestEnsureEntityType(t *testing.T) {
	got, err := EnsureEntityType("Deal")
	require.NoError(t, err)
	assert.Equal(t, "DEAL", got)

	for _, v := range []any{nil, "", "task", 1.0} {
		_, err := EnsureEntityType(v)
		assert.Error(t, err, "value %v", v)
	}
}

func TestNormalizeArgs(t *testing.T) {
	assert.Equal(t, map[string]any{}, NormalizeArgs(nil))
	assert.Equal(t, map[string]any{}, NormalizeArgs([]any{1, 2}))
	assert.Equal(t, map[string]any{}, NormalizeArgs("x"))
	assert.Equal(t, map[string]any{"id": 1.0}, NormalizeArgs(map[string]any{"id": 1.0}))
}
