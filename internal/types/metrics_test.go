package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAccessors(t *testing.T) {
	m := Metrics{
		"float":   float64(12.5),
		"int":     42,
		"int64":   int64(7),
		"number":  json.Number("99"),
		"decimal": decimal.RequireFromString("3.25"),
		"text":    "hello",
		"bool":    true,
	}

	f, ok := m.GetFloat("float")
	assert.True(t, ok)
	assert.Equal(t, 12.5, f)

	f, ok = m.GetFloat("int")
	assert.True(t, ok)
	assert.Equal(t, float64(42), f)

	f, ok = m.GetFloat("number")
	assert.True(t, ok)
	assert.Equal(t, float64(99), f)

	f, ok = m.GetFloat("decimal")
	assert.True(t, ok)
	assert.Equal(t, 3.25, f)

	_, ok = m.GetFloat("text")
	assert.False(t, ok)
	_, ok = m.GetFloat("bool")
	assert.False(t, ok)
	_, ok = m.GetFloat("missing")
	assert.False(t, ok)

	i, ok := m.GetInt("int64")
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	i, ok = m.GetInt("int")
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	// Fractional values are not integers.
	_, ok = m.GetInt("float")
	assert.False(t, ok)

	s, ok := m.GetString("text")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)
	_, ok = m.GetString("int")
	assert.False(t, ok)

	d, ok := m.GetDecimal("float")
	assert.True(t, ok)
	assert.Equal(t, "12.5", d.String())
}

func TestMetricsScanRoundTrip(t *testing.T) {
	m := Metrics{"input_tokens": float64(1500), "model_version": "v2"}

	value, err := m.Value()
	require.NoError(t, err)

	var scanned Metrics
	require.NoError(t, scanned.Scan(value))

	tokens, ok := scanned.GetInt("input_tokens")
	assert.True(t, ok)
	assert.Equal(t, int64(1500), tokens)

	version, ok := scanned.GetString("model_version")
	assert.True(t, ok)
	assert.Equal(t, "v2", version)
}

func TestMetricsNilValue(t *testing.T) {
	var m Metrics
	value, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), value)

	var scanned Metrics
	require.NoError(t, scanned.Scan(nil))
	assert.NotNil(t, scanned)
	assert.Empty(t, scanned)
}
