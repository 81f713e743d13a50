package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnType is the type inferred from a column's values.
type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeNumber
	TypeText
	TypeDate
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumber:
		return "NUMBER"
	case TypeText:
		return "TEXT"
	case TypeDate:
		return "DATE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets the type appear by name in JSON.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ColumnSchema describes one column.
type ColumnSchema struct {
	Name            string     `json:"name"`
	Type            ColumnType `json:"type"`
	PrimaryKeyGuess bool       `json:"primaryKeyGuess"`
}

// TableSchema describes one table. Instances are never modified once stored
// in a catalog.
type TableSchema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

// Column returns the named column, matched case-insensitively.
func (s *TableSchema) Column(name string) (ColumnSchema, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// inferSchema derives column types from the loaded values. A column is
// NUMBER or DATE only if every non-empty value parses as one.
func inferSchema(data *TableData) *TableSchema {
	s := &TableSchema{Name: data.Name, Columns: make([]ColumnSchema, len(data.Columns))}
	pkFound := false

	for i, name := range data.Columns {
		col := ColumnSchema{Name: name, Type: inferColumnType(data.Rows, i)}
		if !pkFound && looksLikeKey(data.Name, name) && uniqueColumn(data.Rows, i) {
			col.PrimaryKeyGuess = true
			pkFound = true
		}
		s.Columns[i] = col
	}

	return s
}

func inferColumnType(rows [][]interface{}, idx int) ColumnType {
	result := TypeUnknown
	for _, row := range rows {
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		t := valueType(row[idx])
		if t == TypeUnknown {
			continue
		}
		if result == TypeUnknown {
			result = t
		} else if result != t {
			return TypeText
		}
	}
	return result
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/06 15:04:05",
	"01/02/2006",
	time.RFC3339,
}

func valueType(v interface{}) ColumnType {
	switch x := v.(type) {
	case int, int32, int64, float32, float64, decimal.Decimal:
		return TypeNumber
	case time.Time:
		return TypeDate
	case bool:
		return TypeNumber
	case []byte:
		return textType(string(x))
	case string:
		return textType(x)
	}
	return TypeUnknown
}

func textType(s string) ColumnType {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeUnknown
	}
	if _, err := decimal.NewFromString(s); err == nil {
		return TypeNumber
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return TypeDate
		}
	}
	return TypeText
}

// looksLikeKey reports whether a column name is a plausible surrogate key:
// "ID", "<table>ID" or "<table>_id".
func looksLikeKey(table, column string) bool {
	c := strings.ToLower(column)
	t := singular(strings.ToLower(table))
	switch c {
	case "id", t + "id", t + "_id", t + "no", t + "_no":
		return true
	}
	return false
}

func uniqueColumn(rows [][]interface{}, idx int) bool {
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if idx >= len(row) || row[idx] == nil {
			return false
		}
		key := toKey(row[idx])
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

func toKey(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(v)
	}
}
