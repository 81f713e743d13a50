// Package query defines the request and result types shared by every
// backend of the query engine, and the normalizer that reduces raw backend
// output to a Result.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

// Backend identifies a logical data source.
type Backend string

const (
	// Networked is the P21 SQL-Server-class RDBMS.
	Networked Backend = "NETWORKED"
	// FileBased is the POR MS Access/Jet database file.
	FileBased Backend = "FILEBASED"
)

// ParseBackend accepts the canonical names and the dashboard's server names.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NETWORKED", "P21":
		return Networked, nil
	case "FILEBASED", "POR":
		return FileBased, nil
	default:
		return "", kpiqerrors.Newf(kpiqerrors.ErrCodeUnknownBackend, "unknown backend: %q", s).
			WithField("backend", s).
			Err()
	}
}

// Mode selects embedded fixture data or the real backend.
type Mode string

const (
	Test       Mode = "TEST"
	Production Mode = "PRODUCTION"
)

// ParseMode parses a run mode; an empty string means production.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TEST":
		return Test, nil
	case "PRODUCTION", "PROD", "":
		return Production, nil
	default:
		return "", kpiqerrors.Newf(kpiqerrors.ErrCodeUnknownMode, "unknown mode: %q", s).
			WithField("mode", s).
			Err()
	}
}

// Request is one query execution request. It is a value; nothing downstream
// mutates it.
type Request struct {
	Backend      Backend
	Mode         Mode
	SQL          string
	ConnectionID string // networked backend only; empty asks for a new session
	TableHint    string // file-based backend only; overrides the FROM table for resolution
}

// RawResult is what a backend hands back before normalization.
type RawResult struct {
	Columns []string
	Rows    [][]interface{}

	ConnectionID string

	// Partial is set when some WHERE conditions were not evaluated.
	Partial           bool
	SkippedConditions []string
}

// Shape tells which of Value / Rows a successful Result carries.
type Shape string

const (
	ShapeNone   Shape = "none"
	ShapeScalar Shape = "scalar"
	ShapeRows   Shape = "rows"
)

// Result is the canonical outcome of a request.
type Result struct {
	Success bool
	Shape   Shape

	// Value is the scalar when Shape is ShapeScalar; nil means SQL NULL.
	Value interface{}
	Rows  []Row

	ConnectionID string

	Kind    kpiqerrors.Kind
	Message string
	Details map[string]interface{}

	Partial           bool
	SkippedConditions []string
}

// Failure builds a failed Result from err.
func Failure(err error) Result {
	return Result{
		Success: false,
		Shape:   ShapeNone,
		Kind:    kpiqerrors.KindOf(err),
		Message: err.Error(),
		Details: kpiqerrors.GetFields(err),
	}
}

// Row is an ordered column to value mapping.
type Row struct {
	Columns []string
	Values  []interface{}
}

// Get returns the value of the named column, matched case-insensitively.
func (r Row) Get(column string) (interface{}, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
