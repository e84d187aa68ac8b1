package sqlstore

import (
	"strconv"
	"time"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// decodeValue normalises a scanned driver value to the Go type documented
// on types.Record for the column's field type.
func decodeValue(ft types.FieldType, raw any) any {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil
	}
	switch ft {
	case types.FieldInteger, types.FieldMoney:
		switch v := raw.(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	case types.FieldDecimal:
		switch v := raw.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case string:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		}
	case types.FieldBoolean:
		switch v := raw.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	case types.FieldTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC()
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t.UTC()
			}
		}
	}
	return raw
}

// decodeRecord converts a scanned row into a typed Record.
func decodeRecord(res types.Resource, row map[string]any) types.Record {
	rec := make(types.Record, len(row))
	for col, raw := range row {
		rec[col] = decodeValue(res.ColumnType(col), raw)
	}
	return rec
}
