package dialect

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	jetDateLiteral = regexp.MustCompile(`#([^#\n]+)#`)
	jetLikePattern = regexp.MustCompile(`(?i)(\bLIKE\s+)'((?:[^']|'')*)'`)
	jetConcat      = regexp.MustCompile(`\s*&\s*`)
	jetTrue        = regexp.MustCompile(`(?i)\bTRUE\b`)
	jetFalse       = regexp.MustCompile(`(?i)\bFALSE\b`)
)

var jetDateLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseJetDate parses the body of a Jet #date# literal.
func ParseJetDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range jetDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func jetToSQLite(sql string) string {
	// #3/1/2024# -> '2024-03-01'
	sql = mapCode(sql, func(code string) string {
		return jetDateLiteral.ReplaceAllStringFunc(code, func(m string) string {
			t, ok := ParseJetDate(m[1 : len(m)-1])
			if !ok {
				return m
			}
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
				return "'" + t.Format("2006-01-02") + "'"
			}
			return "'" + t.Format("2006-01-02 15:04:05") + "'"
		})
	})

	// Jet LIKE wildcards are * and ?.
	sql = jetLikePattern.ReplaceAllStringFunc(sql, func(m string) string {
		parts := jetLikePattern.FindStringSubmatch(m)
		p := strings.NewReplacer("*", "%", "?", "_").Replace(parts[2])
		return parts[1] + "'" + p + "'"
	})

	sql = replaceNiladic(sql, "DATE", "date('now')")
	sql = replaceNiladic(sql, "NOW", "datetime('now')")
	sql = replaceNiladic(sql, "TIME", "time('now')")

	sql = rewriteCalls(sql, "NZ", func(args []string) (string, bool) {
		switch len(args) {
		case 1:
			return fmt.Sprintf("IFNULL(%s, 0)", args[0]), true
		case 2:
			return fmt.Sprintf("IFNULL(%s, %s)", args[0], args[1]), true
		}
		return "", false
	})
	sql = rewriteCalls(sql, "IIF", func(args []string) (string, bool) {
		if len(args) != 3 {
			return "", false
		}
		return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", args[0], args[1], args[2]), true
	})

	sql = renameFunction(sql, "LEN", "LENGTH")
	sql = renameFunction(sql, "UCASE", "UPPER")
	sql = renameFunction(sql, "LCASE", "LOWER")
	sql = renameFunction(sql, "MID", "SUBSTR")

	for name, target := range map[string]string{
		"CSTR": "TEXT",
		"CINT": "INTEGER",
		"CLNG": "INTEGER",
		"CDBL": "REAL",
		"CCUR": "REAL",
		"CSNG": "REAL",
	} {
		target := target
		sql = rewriteCalls(sql, name, func(args []string) (string, bool) {
			if len(args) != 1 {
				return "", false
			}
			return fmt.Sprintf("CAST(%s AS %s)", args[0], target), true
		})
	}
	sql = rewriteCalls(sql, "CDATE", func(args []string) (string, bool) {
		if len(args) != 1 {
			return "", false
		}
		return "datetime(" + args[0] + ")", true
	})

	sql = dateFunctionsToSQLite(sql)

	sql = mapCode(sql, func(code string) string {
		code = jetConcat.ReplaceAllString(code, " || ")
		code = jetTrue.ReplaceAllString(code, "1")
		return jetFalse.ReplaceAllString(code, "0")
	})

	return replaceTopWithLimit(sql)
}
