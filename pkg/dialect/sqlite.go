package dialect

import "fmt"

var strftimeFormats = map[string]string{
	"year":   "%Y",
	"month":  "%m",
	"day":    "%d",
	"week":   "%W",
	"hour":   "%H",
	"minute": "%M",
	"second": "%S",
}

var sqliteModifiers = map[string]string{
	"year":   "years",
	"month":  "months",
	"day":    "days",
	"hour":   "hours",
	"minute": "minutes",
	"second": "seconds",
}

// sqliteDatePart extracts one date part as an integer.
func sqliteDatePart(u, d string) (string, bool) {
	if u == "quarter" {
		return fmt.Sprintf("((CAST(strftime('%%m', %s) AS INTEGER) + 2) / 3)", d), true
	}
	f, ok := strftimeFormats[u]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", f, d), true
}

// sqliteDateAdd shifts d by n units.
func sqliteDateAdd(u, n, d string) (string, bool) {
	switch u {
	case "quarter":
		u, n = "month", "("+n+") * 3"
	case "week":
		u, n = "day", "("+n+") * 7"
	}
	m, ok := sqliteModifiers[u]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("datetime(%s, (%s) || ' %s')", d, n, m), true
}

// sqliteDateDiff counts unit boundaries crossed between a and b.
func sqliteDateDiff(u, a, b string) (string, bool) {
	year := func(x string) string { return "CAST(strftime('%Y', " + x + ") AS INTEGER)" }
	month := func(x string) string { return "CAST(strftime('%m', " + x + ") AS INTEGER)" }

	switch u {
	case "year":
		return fmt.Sprintf("(%s - %s)", year(b), year(a)), true
	case "quarter":
		return fmt.Sprintf("((%s - %s) * 4 + (%s + 2) / 3 - (%s + 2) / 3)", year(b), year(a), month(b), month(a)), true
	case "month":
		return fmt.Sprintf("((%s - %s) * 12 + %s - %s)", year(b), year(a), month(b), month(a)), true
	case "week":
		return fmt.Sprintf("(CAST(julianday(date(%s)) - julianday(date(%s)) AS INTEGER) / 7)", b, a), true
	case "day":
		return fmt.Sprintf("CAST(julianday(date(%s)) - julianday(date(%s)) AS INTEGER)", b, a), true
	case "hour":
		return fmt.Sprintf("CAST((julianday(%s) - julianday(%s)) * 24 AS INTEGER)", b, a), true
	case "minute":
		return fmt.Sprintf("CAST((julianday(%s) - julianday(%s)) * 1440 AS INTEGER)", b, a), true
	case "second":
		return fmt.Sprintf("CAST((julianday(%s) - julianday(%s)) * 86400 AS INTEGER)", b, a), true
	}
	return "", false
}

// dateFunctionsToSQLite rewrites the date functions T-SQL and Jet share.
func dateFunctionsToSQLite(sql string) string {
	for _, name := range []string{"YEAR", "MONTH", "DAY"} {
		u := unit(name)
		sql = rewriteCalls(sql, name, func(args []string) (string, bool) {
			if len(args) != 1 {
				return "", false
			}
			return sqliteDatePart(u, args[0])
		})
	}
	sql = rewriteCalls(sql, "DATEPART", func(args []string) (string, bool) {
		if len(args) != 2 {
			return "", false
		}
		return sqliteDatePart(unit(args[0]), args[1])
	})
	sql = rewriteCalls(sql, "DATEADD", func(args []string) (string, bool) {
		if len(args) != 3 {
			return "", false
		}
		return sqliteDateAdd(unit(args[0]), args[1], args[2])
	})
	sql = rewriteCalls(sql, "DATEDIFF", func(args []string) (string, bool) {
		if len(args) < 3 {
			return "", false
		}
		return sqliteDateDiff(unit(args[0]), args[1], args[2])
	})
	return sql
}
