package query

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Extract reduces a raw backend result to a Result. It is the only place
// that infers result shape, so both backends look identical to callers.
//
//   - no rows: scalar NULL
//   - one row, one column: that value, numeric text coerced to a number
//   - one row, several columns: the "value" column if present, else the first
//   - several rows: Rows, in order, and no scalar
func Extract(raw *RawResult) Result {
	res := Result{Success: true}
	if raw == nil {
		res.Shape = ShapeScalar
		return res
	}

	res.ConnectionID = raw.ConnectionID
	res.Partial = raw.Partial
	if len(raw.SkippedConditions) > 0 {
		res.SkippedConditions = append([]string(nil), raw.SkippedConditions...)
	}

	switch len(raw.Rows) {
	case 0:
		res.Shape = ShapeScalar
		res.Value = nil
	case 1:
		res.Shape = ShapeScalar
		res.Value = Coerce(pickScalar(raw.Columns, raw.Rows[0]))
	default:
		res.Shape = ShapeRows
		res.Rows = make([]Row, len(raw.Rows))
		for i, values := range raw.Rows {
			res.Rows[i] = Row{Columns: raw.Columns, Values: normalizeValues(values)}
		}
	}

	return res
}

// pickScalar chooses the column a chart reads from a single row.
func pickScalar(columns []string, row []interface{}) interface{} {
	if len(row) == 0 {
		return nil
	}
	if len(row) > 1 {
		for i, c := range columns {
			if i < len(row) && strings.EqualFold(c, "value") {
				return row[i]
			}
		}
	}
	return row[0]
}

// normalizeValues makes row cells JSON friendly. Unlike Coerce it leaves
// numeric-looking text alone.
func normalizeValues(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			out[i] = string(b)
			continue
		}
		if d, ok := v.(decimal.Decimal); ok {
			out[i] = decimalNumber(d)
			continue
		}
		out[i] = v
	}
	return out
}

// Coerce turns numeric-looking values into int64 or float64. Other values
// are returned as they are, with []byte converted to string.
func Coerce(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case decimal.Decimal:
		return decimalNumber(x)
	case []byte:
		return coerceText(string(x))
	case string:
		return coerceText(x)
	default:
		return v
	}
}

func coerceText(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return s
	}
	return decimalNumber(d)
}

func decimalNumber(d decimal.Decimal) interface{} {
	if d.IsInteger() && d.GreaterThanOrEqual(minInt64) && d.LessThanOrEqual(maxInt64) {
		return d.IntPart()
	}
	f, _ := d.Float64()
	return f
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)
