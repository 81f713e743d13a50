package dialect

import (
	"regexp"
	"strings"
)

// rewriteCalls replaces every call to name outside string literals with the
// text fn builds from the call's top-level arguments. Arguments are rewritten
// first, so nested calls to the same function are handled. When fn returns
// false the call is kept, with its rewritten arguments.
func rewriteCalls(sql, name string, fn func(args []string) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		if c == '\'' || c == '"' || c == '[' {
			end := skipQuoted(sql, i)
			b.WriteString(sql[i:end])
			i = end
			continue
		}

		if !matchesName(sql, i, name) {
			b.WriteByte(c)
			i++
			continue
		}

		open := i + len(name)
		for open < len(sql) && isSpace(sql[open]) {
			open++
		}
		if open >= len(sql) || sql[open] != '(' {
			b.WriteString(sql[i : i+len(name)])
			i += len(name)
			continue
		}
		closeAt := matchParen(sql, open)
		if closeAt < 0 {
			b.WriteString(sql[i:])
			break
		}

		args := splitArgs(sql[open+1 : closeAt])
		for k := range args {
			args[k] = rewriteCalls(args[k], name, fn)
		}
		if out, ok := fn(args); ok {
			b.WriteString(out)
		} else {
			b.WriteString(sql[i:open])
			b.WriteByte('(')
			b.WriteString(strings.Join(args, ", "))
			b.WriteByte(')')
		}
		i = closeAt + 1
	}

	return b.String()
}

// matchesName reports whether a whole-word, case-insensitive occurrence of
// name starts at sql[i].
func matchesName(sql string, i int, name string) bool {
	if i+len(name) > len(sql) || !strings.EqualFold(sql[i:i+len(name)], name) {
		return false
	}
	if i > 0 && isIdent(sql[i-1]) {
		return false
	}
	if j := i + len(name); j < len(sql) && isIdent(sql[j]) {
		return false
	}
	return true
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1.
func matchParen(sql string, open int) int {
	depth := 0
	for i := open; i < len(sql); {
		switch sql[i] {
		case '\'', '"', '[':
			i = skipQuoted(sql, i)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// splitArgs splits an argument list at top-level commas and trims each
// argument. An empty list yields no arguments.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var args []string
	depth, start := 0, 0
	for i := 0; i < len(s); {
		switch s[i] {
		case '\'', '"', '[':
			i = skipQuoted(s, i)
			continue
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
		i++
	}
	return append(args, strings.TrimSpace(s[start:]))
}

// skipQuoted returns the index just past the quoted run starting at s[i].
// Doubled quote characters inside the run are escapes.
func skipQuoted(s string, i int) int {
	closer := s[i]
	if closer == '[' {
		closer = ']'
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] != closer {
			continue
		}
		if closer != ']' && j+1 < len(s) && s[j+1] == closer {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// mapCode applies fn to the parts of sql outside string literals and
// bracketed identifiers.
func mapCode(sql string, fn func(string) string) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(sql); {
		switch sql[i] {
		case '\'', '"', '[':
			b.WriteString(fn(sql[start:i]))
			end := skipQuoted(sql, i)
			b.WriteString(sql[i:end])
			i, start = end, end
			continue
		}
		i++
	}
	b.WriteString(fn(sql[start:]))
	return b.String()
}

// replaceCode replaces re matches outside string literals.
func replaceCode(sql string, re *regexp.Regexp, repl string) string {
	return mapCode(sql, func(code string) string {
		return re.ReplaceAllString(code, repl)
	})
}

// renameFunction renames calls to oldName, keeping the arguments.
func renameFunction(sql, oldName, newName string) string {
	return rewriteCalls(sql, oldName, func(args []string) (string, bool) {
		return newName + "(" + strings.Join(args, ", ") + ")", true
	})
}

// replaceNiladic replaces a call without arguments, such as GETDATE().
func replaceNiladic(sql, name, replacement string) string {
	return rewriteCalls(sql, name, func(args []string) (string, bool) {
		if len(args) != 0 {
			return "", false
		}
		return replacement, true
	})
}

func isIdent(c byte) bool {
	return c == '_' || c == '@' || c == '#' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

var topPattern = regexp.MustCompile(`(?i)\bSELECT(\s+DISTINCT)?\s+TOP\s+(\d+)\s+`)

// replaceTopWithLimit turns SELECT TOP n ... into SELECT ... LIMIT n.
func replaceTopWithLimit(sql string) string {
	m := topPattern.FindStringSubmatch(sql)
	if m == nil {
		return sql
	}
	sql = topPattern.ReplaceAllString(sql, "SELECT$1 ")
	if !strings.Contains(strings.ToUpper(sql), " LIMIT ") {
		sql = strings.TrimRight(sql, "; \t\n") + " LIMIT " + m[2]
	}
	return sql
}

// unit normalizes a date-part argument, bare (T-SQL) or quoted (Jet), to
// one of year, quarter, month, week, day, hour, minute or second.
func unit(arg string) string {
	u := strings.ToLower(strings.Trim(strings.TrimSpace(arg), `'"`))
	switch u {
	case "year", "yy", "yyyy":
		return "year"
	case "quarter", "qq", "q":
		return "quarter"
	case "month", "mm", "m":
		return "month"
	case "week", "wk", "ww":
		return "week"
	case "day", "dd", "d", "y", "w", "dy", "dayofyear", "weekday", "dw":
		return "day"
	case "hour", "hh", "h":
		return "hour"
	case "minute", "mi", "n":
		return "minute"
	case "second", "ss", "s":
		return "second"
	}
	return ""
}
