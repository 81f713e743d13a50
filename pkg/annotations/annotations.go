// Package annotations reads kpiq directives embedded in stored KPI SQL.
//
// Directives are SQL comments with a special prefix, so the text still runs
// unchanged on the backend:
//
//	-- @kpiq:table=Rentals
//	-- @kpiq:timeout=5s
//	SELECT Count(*) AS value FROM Rentals WHERE Status = 'Open'
//
// Syntax:
//   - `-- @kpiq:<key>` is a boolean flag (presence means true)
//   - `-- @kpiq:<key>=<value>` is a key-value setting
//   - only the comment block before the statement is read; a blank line
//     inside the block is allowed
package annotations

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Prefix identifies a kpiq directive.
const Prefix = "-- @kpiq:"

// Known directive keys.
const (
	KeyTable      = "table"
	KeyTimeout    = "timeout"
	KeyDeprecated = "deprecated"
)

// Known documents the accepted keys.
var Known = map[string]string{
	KeyTable:      "string: table the file-based backend resolves instead of the FROM table",
	KeyTimeout:    "duration: per-query timeout; only shortens the engine timeout",
	KeyDeprecated: "bool: log a warning whenever the query runs",
}

// Set holds the directives of one query.
type Set map[string]string

// Has returns true if the key is present.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Get returns the value for a key and whether it was found.
func (s Set) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// GetBool reports a flag. A bare key is true; explicit values accept
// "true", "1", "yes" and "on".
func (s Set) GetBool(key string) bool {
	v, ok := s[key]
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		}
		return false
	}
	return b
}

// GetDuration parses a value like "5s" or "250ms". Bare integers are
// seconds.
func (s Set) GetDuration(key string) (time.Duration, bool) {
	v, ok := s[key]
	if !ok || v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, n > 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// Unknown returns the keys not in Known, sorted.
func (s Set) Unknown() []string {
	var unknown []string
	for key := range s {
		if _, ok := Known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Parse reads the directives in the comment block leading sql. Parsing
// stops at the first line that is neither blank nor a comment.
func Parse(sql string) Set {
	set := make(Set)
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, Prefix):
			if key, value, ok := parseLine(trimmed); ok {
				set[key] = value
			}
		case trimmed == "" || strings.HasPrefix(trimmed, "--"):
			// ordinary comment
		default:
			return set
		}
	}
	return set
}

func parseLine(line string) (key, value string, ok bool) {
	content := strings.TrimSpace(strings.TrimPrefix(line, Prefix))
	if content == "" {
		return "", "", false
	}
	if idx := strings.Index(content, "="); idx > 0 {
		return strings.ToLower(strings.TrimSpace(content[:idx])), strings.TrimSpace(content[idx+1:]), true
	}
	return strings.ToLower(content), "", true
}

// Directives is the typed view of a Set.
type Directives struct {
	TableHint  string
	Timeout    time.Duration
	Deprecated bool
	Unknown    []string
}

// Directives converts the set; malformed values are treated as absent.
func (s Set) Directives() Directives {
	d := Directives{
		Deprecated: s.GetBool(KeyDeprecated),
		Unknown:    s.Unknown(),
	}
	if v, ok := s.Get(KeyTable); ok {
		d.TableHint = strings.Trim(v, "[]`\"")
	}
	if t, ok := s.GetDuration(KeyTimeout); ok {
		d.Timeout = t
	}
	return d
}

// Empty reports whether no directive was set.
func (d Directives) Empty() bool {
	return d.TableHint == "" && d.Timeout == 0 && !d.Deprecated && len(d.Unknown) == 0
}
