package warehouse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceValueNulls(t *testing.T) {
	assert.Nil(t, CoerceValue("character varying", nil))
	assert.Nil(t, CoerceValue("character varying", ""))
	assert.Nil(t, CoerceValue("bigint", ""))
	assert.Nil(t, CoerceValue("timestamp without time zone", ""))
}

func TestCoerceValueJSONCollections(t *testing.T) {
	got := CoerceValue("text", []any{"D_1", "D_2"})
	assert.Equal(t, `["D_1","D_2"]`, got)

	got = CoerceValue("text", map[string]any{"ru": "Сайт"})
	assert.Equal(t, `{"ru":"Сайт"}`, got)

	// no HTML escaping of URLs
	got = CoerceValue("text", []any{"https://example.com/?a=1&b=2"})
	assert.Equal(t, `["https://example.com/?a=1&b=2"]`, got)
}

func TestCoerceValueNumeric(t *testing.T) {
	got := CoerceValue("numeric", "1500.50")
	d, ok := got.(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, "1500.5", d.String())

	assert.Equal(t, 99.5, CoerceValue("double precision", 99.5))
	assert.Nil(t, CoerceValue("numeric", "not a number"))
}

func TestCoerceValueInteger(t *testing.T) {
	assert.Equal(t, int64(42), CoerceValue("bigint", "42"))
	assert.Equal(t, int64(7), CoerceValue("int", 7.0))
	assert.Nil(t, CoerceValue("bigint", "42abc"))
}

func TestCoerceValueTimestamp(t *testing.T) {
	got := CoerceValue("timestamp without time zone", "2024-01-15T10:00:00+03:00")
	tm, ok := got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), tm)

	got = CoerceValue("datetime", "2024-01-15T10:00:00Z")
	tm, ok = got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 10, tm.Hour())

	got = CoerceValue("date", "2024-01-15")
	_, ok = got.(time.Time)
	assert.True(t, ok)

	assert.Nil(t, CoerceValue("timestamp", "15.01.2024"))
}

func TestCoerceValuePassthrough(t *testing.T) {
	assert.Equal(t, "Y", CoerceValue("boolean", "Y"))
	assert.Equal(t, "hello", CoerceValue("character varying", "hello"))
}
