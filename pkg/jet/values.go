package jet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/dialect"
)

// Cells come from mdb-export as strings (nil for an empty field) or from
// in-memory providers as native Go values.

func isNull(v interface{}) bool {
	return v == nil
}

func text(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case decimal.Decimal:
		return x.String()
	}
	return fmt.Sprint(v)
}

func number(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	case decimal.Decimal:
		return x, true
	case bool:
		if x {
			return decimal.NewFromInt(-1), true
		}
		return decimal.Zero, true
	case string, []byte:
		s := strings.TrimSpace(text(x))
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

var cellDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/06 15:04:05",
	time.RFC3339,
}

func date(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string, []byte:
		return parseDate(text(x))
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return dialect.ParseJetDate(s)
}

// truthy interprets a Yes/No cell. Access stores True as -1; exports and
// other providers may use 1, "true" or "yes".
func truthy(v interface{}) bool {
	if n, ok := number(v); ok {
		return !n.IsZero()
	}
	switch strings.ToLower(strings.TrimSpace(text(v))) {
	case "true", "yes", "on":
		return true
	}
	return false
}
