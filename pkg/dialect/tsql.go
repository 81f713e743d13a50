package dialect

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// [db].[schema].[table], db.schema.table, [dbo].[table] and dbo.table.
	bracketedThreePart = regexp.MustCompile(`\[[^\]]+\]\.\[[^\]]+\]\.(\[[^\]]+\])`)
	bareThreePart      = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*\.([A-Za-z_][A-Za-z0-9_]*)\b`)
	bracketedDbo       = regexp.MustCompile(`(?i)\[dbo\]\.`)
	bareDbo            = regexp.MustCompile(`(?i)\bdbo\.`)

	tableHintPattern = regexp.MustCompile(`(?i)\s+WITH\s*\(\s*(?:NOWAIT|NOLOCK|READUNCOMMITTED|READCOMMITTED|READPAST|ROWLOCK|PAGLOCK|TABLOCK|UPDLOCK|HOLDLOCK|FORCESEEK|FORCESCAN|INDEX\s*=\s*\w+)(?:\s*,\s*(?:NOWAIT|NOLOCK|READUNCOMMITTED|READCOMMITTED|READPAST|ROWLOCK|PAGLOCK|TABLOCK|UPDLOCK|HOLDLOCK|FORCESEEK|FORCESCAN|INDEX\s*=\s*\w+))*\s*\)`)

	castAsDate     = regexp.MustCompile(`(?is)^(.*)\s+AS\s+DATE$`)

	literalConcat = regexp.MustCompile(`('(?:[^']|'')*'|\))\s*\+\s*'`)
	concatLiteral = regexp.MustCompile(`'\s*\+\s*([A-Za-z_\[(])`)
)

// stripQualifiedTableNames reduces database and dbo-qualified names to the
// bare table name. Other schemas are kept.
func stripQualifiedTableNames(sql string) string {
	return mapCode(sql, func(code string) string {
		code = bareThreePart.ReplaceAllString(code, "$1")
		return bareDbo.ReplaceAllString(code, "")
	})
}

func stripBracketedQualifiers(sql string) string {
	sql = bracketedThreePart.ReplaceAllString(sql, "$1")
	return bracketedDbo.ReplaceAllString(sql, "")
}

func stripTableHints(sql string) string {
	return tableHintPattern.ReplaceAllString(sql, "")
}

// convertTarget maps a CONVERT/CAST target type onto a SQLite type.
func convertTarget(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "INT", "BIGINT", "SMALLINT", "TINYINT", "BIT":
		return "INTEGER"
	case "FLOAT", "REAL", "DECIMAL", "NUMERIC", "MONEY":
		return "REAL"
	case "VARCHAR", "NVARCHAR", "CHAR", "NCHAR", "TEXT":
		return "TEXT"
	case "DATE":
		return "DATE"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "DATETIME"
	}
	return ""
}

func tsqlToSQLite(sql string) string {
	sql = stripBracketedQualifiers(sql)
	sql = stripQualifiedTableNames(sql)
	sql = stripTableHints(sql)
	sql = stripNationalPrefix(sql)

	sql = replaceNiladic(sql, "GETDATE", "datetime('now')")
	sql = replaceNiladic(sql, "SYSDATETIME", "datetime('now')")
	sql = replaceNiladic(sql, "GETUTCDATE", "datetime('now', 'utc')")
	sql = replaceNiladic(sql, "NEWID", "lower(hex(randomblob(16)))")

	sql = renameFunction(sql, "ISNULL", "IFNULL")
	sql = renameFunction(sql, "LEN", "LENGTH")
	sql = renameFunction(sql, "DATALENGTH", "LENGTH")
	sql = renameFunction(sql, "SUBSTRING", "SUBSTR")

	// CHARINDEX(sub, str) -> INSTR(str, sub)
	sql = rewriteCalls(sql, "CHARINDEX", func(args []string) (string, bool) {
		if len(args) != 2 {
			return "", false
		}
		return fmt.Sprintf("INSTR(%s, %s)", args[1], args[0]), true
	})

	// CONVERT(type, value[, style]) -> CAST(value AS type)
	sql = rewriteCalls(sql, "CONVERT", func(args []string) (string, bool) {
		if len(args) < 2 {
			return "", false
		}
		return sqliteCast(args[1], convertTarget(args[0]))
	})

	sql = rewriteCalls(sql, "CAST", func(args []string) (string, bool) {
		if len(args) != 1 {
			return "", false
		}
		m := castAsDate.FindStringSubmatch(args[0])
		if m == nil {
			return "", false
		}
		return "date(" + strings.TrimSpace(m[1]) + ")", true
	})

	sql = dateFunctionsToSQLite(sql)
	sql = replaceStringConcat(sql)
	return replaceTopWithLimit(sql)
}

func sqliteCast(value, target string) (string, bool) {
	switch target {
	case "":
		return "", false
	case "DATE":
		return "date(" + value + ")", true
	case "DATETIME":
		return "datetime(" + value + ")", true
	}
	return fmt.Sprintf("CAST(%s AS %s)", value, target), true
}

// replaceStringConcat turns + into || where one side is a string literal.
// Numeric + cannot be told apart without types, so only the obvious cases
// are handled.
func replaceStringConcat(sql string) string {
	sql = literalConcat.ReplaceAllString(sql, "$1 || '")
	return concatLiteral.ReplaceAllString(sql, "' || $1")
}

func tsqlToPostgres(sql string) string {
	sql = stripTableHints(sql)
	sql = stripNationalPrefix(sql)

	sql = replaceNiladic(sql, "GETDATE", "NOW()")
	sql = replaceNiladic(sql, "SYSDATETIME", "NOW()")
	sql = replaceNiladic(sql, "GETUTCDATE", "(NOW() AT TIME ZONE 'UTC')")
	sql = replaceNiladic(sql, "NEWID", "gen_random_uuid()")

	sql = renameFunction(sql, "ISNULL", "COALESCE")
	sql = renameFunction(sql, "LEN", "LENGTH")
	sql = renameFunction(sql, "DATALENGTH", "OCTET_LENGTH")

	// CHARINDEX(sub, str) -> POSITION(sub IN str)
	sql = rewriteCalls(sql, "CHARINDEX", func(args []string) (string, bool) {
		if len(args) != 2 {
			return "", false
		}
		return fmt.Sprintf("POSITION(%s IN %s)", args[0], args[1]), true
	})

	for _, name := range []string{"YEAR", "MONTH", "DAY"} {
		field := name
		sql = rewriteCalls(sql, name, func(args []string) (string, bool) {
			if len(args) != 1 {
				return "", false
			}
			return fmt.Sprintf("CAST(EXTRACT(%s FROM %s) AS INTEGER)", field, args[0]), true
		})
	}

	sql = rewriteCalls(sql, "DATEADD", func(args []string) (string, bool) {
		if len(args) != 3 {
			return "", false
		}
		u := unit(args[0])
		if u == "" {
			return "", false
		}
		return fmt.Sprintf("(%s + (%s) * INTERVAL '1 %s')", args[2], args[1], u), true
	})

	sql = rewriteCalls(sql, "DATEDIFF", func(args []string) (string, bool) {
		if len(args) != 3 {
			return "", false
		}
		a, b := args[1], args[2]
		switch unit(args[0]) {
		case "day":
			return fmt.Sprintf("(CAST(%s AS DATE) - CAST(%s AS DATE))", b, a), true
		case "month":
			return fmt.Sprintf("CAST((EXTRACT(YEAR FROM %s) - EXTRACT(YEAR FROM %s)) * 12 + EXTRACT(MONTH FROM %s) - EXTRACT(MONTH FROM %s) AS INTEGER)", b, a, b, a), true
		case "year":
			return fmt.Sprintf("CAST(EXTRACT(YEAR FROM %s) - EXTRACT(YEAR FROM %s) AS INTEGER)", b, a), true
		}
		return "", false
	})

	sql = replaceStringConcat(sql)
	sql = replaceTopWithLimit(sql)
	return quoteBracketIdents(sql)
}

// quoteBracketIdents turns [name] into "name" outside string literals.
func quoteBracketIdents(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		switch sql[i] {
		case '\'', '"':
			end := skipQuoted(sql, i)
			b.WriteString(sql[i:end])
			i = end
		case '[':
			end := skipQuoted(sql, i)
			name := strings.TrimSuffix(sql[i+1:end], "]")
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(name, `"`, `""`))
			b.WriteByte('"')
			i = end
		default:
			b.WriteByte(sql[i])
			i++
		}
	}
	return b.String()
}

// stripNationalPrefix turns N'text' into 'text'.
func stripNationalPrefix(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '[':
			end := skipQuoted(sql, i)
			b.WriteString(sql[i:end])
			i = end
		case (c == 'N' || c == 'n') && i+1 < len(sql) && sql[i+1] == '\'' && (i == 0 || !isIdent(sql[i-1])):
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
