package query

import "database/sql"

// ScanRows reads a full result set into a RawResult. It takes the
// QueryContext pair directly so callers can write
// ScanRows(conn.QueryContext(ctx, text)). Byte slices become strings.
func ScanRows(rows *sql.Rows, err error) (*RawResult, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	raw := &RawResult{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		raw.Rows = append(raw.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}
