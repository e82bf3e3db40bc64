package warehouse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timestampLayouts are the accepted inbound formats. Bitrix normally sends
// ISO-8601 with a zone offset, but REST fields occasionally come back as
// bare dates.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceValue converts an API value to what the column's declared type can
// store. Unparseable values become NULL rather than failing the batch.
func CoerceValue(columnType string, value any) any {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok && s == "" {
		return nil
	}

	switch value.(type) {
	case []any, map[string]any, []string:
		return encodeJSON(value)
	}

	t := strings.ToLower(columnType)
	switch {
	case isTimeType(t):
		return coerceTime(value)
	case isIntegerType(t):
		return coerceInteger(value)
	case isNumericType(t):
		return coerceNumeric(value)
	default:
		return value
	}
}

func isTimeType(t string) bool {
	return strings.Contains(t, "timestamp") || strings.Contains(t, "datetime") || t == "date"
}

func isIntegerType(t string) bool {
	// bigint, int, integer, smallint, tinyint, mediumint
	return strings.Contains(t, "int")
}

func isNumericType(t string) bool {
	switch {
	case strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "double"), strings.Contains(t, "real"),
		strings.Contains(t, "float"):
		return true
	}
	return false
}

func coerceTime(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
		return nil
	default:
		return nil
	}
}

func coerceInteger(value any) any {
	switch v := value.(type) {
	case int, int32, int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return n
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}

func coerceNumeric(value any) any {
	switch v := value.(type) {
	case float64:
		return v
	case int, int32, int64:
		return v
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return d
	default:
		return nil
	}
}

// encodeJSON serializes multi-valued fields without HTML escaping so that
// URLs and markup survive round-trips through the warehouse.
func encodeJSON(value any) any {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil
	}
	return strings.TrimRight(buf.String(), "\n")
}
