// Package guard enforces the read-only, single-statement policy applied to
// every stored query before it reaches a backend.
package guard

import (
	"regexp"
	"strings"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

// ForbiddenKeywords are rejected as whole words anywhere in the statement.
var ForbiddenKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "CREATE", "ALTER", "TRUNCATE",
	"EXEC", "EXECUTE", "MERGE", "GRANT", "REVOKE", "INTO",
}

var (
	forbiddenPattern = regexp.MustCompile(`\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)
	selectPrefix     = regexp.MustCompile(`^SELECT\b`)
)

// Validate returns an InvalidQuery error when sql is not a single read-only
// SELECT statement. Literal and bracketed identifier contents are ignored, so
// WHERE Action = 'DELETE' passes.
func Validate(sql string) error {
	text := strings.TrimSpace(strings.ToUpper(Sanitize(sql)))

	if text == "" {
		return kpiqerrors.InvalidQuery(kpiqerrors.ErrCodeEmptyQuery, "query is empty").Err()
	}

	if !selectPrefix.MatchString(text) {
		return kpiqerrors.InvalidQuery(kpiqerrors.ErrCodeNotSelect, "query must start with SELECT").Err()
	}

	if strings.Contains(text, ";") {
		return kpiqerrors.InvalidQuery(kpiqerrors.ErrCodeMultiStatement, "statement separator ';' is not allowed").Err()
	}

	if kw := forbiddenPattern.FindString(text); kw != "" {
		return kpiqerrors.InvalidQuery(kpiqerrors.ErrCodeForbiddenKeyword, "forbidden keyword "+kw).
			WithField("keyword", kw).
			Err()
	}

	return nil
}

// Sanitize strips comments and blanks out the contents of string literals
// and [bracketed] identifiers, leaving their delimiters in place.
func Sanitize(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
			if i < len(sql) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			b.WriteByte(' ')
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3 // closing '/'
			}
		case c == '\'' || c == '"':
			b.WriteByte(c)
			i = skipQuoted(sql, i, c, &b)
		case c == '[':
			b.WriteByte('[')
			for i+1 < len(sql) && sql[i+1] != ']' {
				i++
				b.WriteByte('_')
			}
			if i+1 < len(sql) {
				i++
				b.WriteByte(']')
			}
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// skipQuoted writes a blanked literal starting at sql[start] and returns the
// index of its closing quote. A doubled quote is an escaped quote.
func skipQuoted(sql string, start int, quote byte, b *strings.Builder) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				b.WriteString("__")
				i += 2
				continue
			}
			b.WriteByte(quote)
			return i
		}
		b.WriteByte('_')
		i++
	}
	return i
}
