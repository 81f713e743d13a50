// Package jet evaluates a restricted subset of Jet (MS Access) SQL against
// tables loaded into memory through a schema catalog. It exists for the
// file-based backend, which has no SQL engine the process can talk to.
package jet

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// cancelCheckInterval is how many rows are scanned between context checks.
const cancelCheckInterval = 1024

// Evaluator runs queries against one file-based database.
type Evaluator struct {
	catalog *catalog.Catalog
	logger  *log.Logger
}

// NewEvaluator creates an evaluator over cat.
func NewEvaluator(cat *catalog.Catalog, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Evaluator{catalog: cat, logger: logger}
}

// Catalog returns the evaluator's schema catalog.
func (e *Evaluator) Catalog() *catalog.Catalog {
	return e.catalog
}

// compiledCondition is a Condition bound to a column position.
type compiledCondition struct {
	Condition
	idx  int
	like *regexp.Regexp
}

// Execute parses sql, resolves its table (or tableHint when set) and
// evaluates it over the table's rows.
func (e *Evaluator) Execute(ctx context.Context, sql, tableHint string) (*query.RawResult, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}

	requested := stmt.Table
	if tableHint != "" {
		requested = tableHint
	}
	table, err := e.catalog.Resolve(ctx, requested)
	if err != nil {
		return nil, err
	}
	data, err := e.catalog.Rows(ctx, table)
	if err != nil {
		return nil, err
	}

	conds, err := compileConditions(data, stmt.Where)
	if err != nil {
		return nil, err
	}

	raw := &query.RawResult{
		Partial:           len(stmt.Skipped) > 0,
		SkippedConditions: stmt.Skipped,
	}
	if raw.Partial {
		e.logger.Execution().Ctx(ctx).Warn("date conditions not evaluated",
			"table", table,
			"skipped", strings.Join(stmt.Skipped, "; "),
		)
	}

	// COUNT(*) without conditions needs no scan.
	if stmt.CountOnly() && len(conds) == 0 {
		raw.Columns = []string{stmt.Items[0].Name(0)}
		raw.Rows = [][]interface{}{{int64(len(data.Rows))}}
		return raw, nil
	}

	matched, err := filterRows(ctx, data.Rows, conds)
	if err != nil {
		return nil, err
	}

	if stmt.IsAggregate() {
		row, err := aggregate(data, stmt.Items, matched)
		if err != nil {
			return nil, err
		}
		raw.Columns = make([]string, len(stmt.Items))
		for i, it := range stmt.Items {
			raw.Columns[i] = it.Name(i)
		}
		raw.Rows = [][]interface{}{row}
		return raw, nil
	}

	if err := orderRows(data, stmt.OrderBy, matched); err != nil {
		return nil, err
	}
	if stmt.HasTop && len(matched) > stmt.Top {
		matched = matched[:stmt.Top]
	}

	cols, idx, err := projection(data, stmt.Items)
	if err != nil {
		return nil, err
	}
	raw.Columns = cols
	raw.Rows = make([][]interface{}, len(matched))
	for i, row := range matched {
		out := make([]interface{}, len(idx))
		for j, k := range idx {
			if k < len(row) {
				out[j] = row[k]
			}
		}
		raw.Rows[i] = out
	}

	e.logger.Execution().Ctx(ctx).Debug("jet query evaluated",
		"table", table,
		"scanned", len(data.Rows),
		"returned", len(raw.Rows),
	)
	return raw, nil
}

func columnNotFound(data *catalog.TableData, column string) error {
	return kpiqerrors.ColumnNotFound(data.Name, column, data.Columns).
		WithOp("jet.Execute").
		Err()
}

func compileConditions(data *catalog.TableData, where []Condition) ([]compiledCondition, error) {
	out := make([]compiledCondition, 0, len(where))
	for _, c := range where {
		idx := data.ColumnIndex(c.Column)
		if idx < 0 {
			return nil, columnNotFound(data, c.Column)
		}
		cc := compiledCondition{Condition: c, idx: idx}
		if c.Op == OpLike {
			re, err := likePattern(c.Literal.Text)
			if err != nil {
				return nil, kpiqerrors.Unsupported("LIKE pattern " + c.Literal.Text).WithOp("jet.Execute").Err()
			}
			cc.like = re
		}
		out = append(out, cc)
	}
	return out, nil
}

// likePattern turns a LIKE pattern into an anchored, case-insensitive
// regular expression. Both ANSI (% _) and Jet (* ? #) wildcards are
// accepted.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?is)^`)
	for _, r := range pattern {
		switch r {
		case '%', '*':
			b.WriteString(`.*`)
		case '_', '?':
			b.WriteString(`.`)
		case '#':
			b.WriteString(`[0-9]`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

func filterRows(ctx context.Context, rows [][]interface{}, conds []compiledCondition) ([][]interface{}, error) {
	matched := make([][]interface{}, 0, len(rows))
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, kpiqerrors.Timeout("jet.Execute", err).Err()
			}
		}
		if matchRow(row, conds) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func matchRow(row []interface{}, conds []compiledCondition) bool {
	for _, c := range conds {
		var v interface{}
		if c.idx < len(row) {
			v = row[c.idx]
		}
		if !c.match(v) {
			return false
		}
	}
	return true
}

func (c *compiledCondition) match(v interface{}) bool {
	switch c.Op {
	case OpIsNull:
		return isNull(v)
	case OpNotNull:
		return !isNull(v)
	}
	if isNull(v) {
		return false
	}

	if c.Op == OpLike {
		return c.like.MatchString(text(v))
	}

	if c.Literal.Kind == LiteralBool && (c.Op == OpEQ || c.Op == OpNE) {
		return truthy(v) == c.Literal.Bool == (c.Op == OpEQ)
	}

	cmp := compareToLiteral(v, c.Literal)
	switch c.Op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpGT:
		return cmp > 0
	case OpLT:
		return cmp < 0
	case OpGE:
		return cmp >= 0
	case OpLE:
		return cmp <= 0
	}
	return false
}

// compareToLiteral compares a cell with a literal: numerically when both
// are numbers, chronologically when both are dates, else as text without
// regard to case.
func compareToLiteral(v interface{}, lit Literal) int {
	switch lit.Kind {
	case LiteralNumber, LiteralBool:
		if n, ok := number(v); ok {
			return n.Cmp(lit.Number)
		}
	case LiteralDate:
		if t, ok := date(v); ok {
			return compareTimes(t, lit.Time)
		}
	case LiteralString:
		if ln, err := decimal.NewFromString(strings.TrimSpace(lit.Text)); err == nil {
			if n, ok := number(v); ok {
				return n.Cmp(ln)
			}
		}
		if lt, ok := parseDate(lit.Text); ok {
			if t, ok := date(v); ok {
				return compareTimes(t, lt)
			}
		}
	}
	return strings.Compare(strings.ToLower(text(v)), strings.ToLower(lit.Text))
}

// compareValues orders two cells, nulls first.
func compareValues(a, b interface{}) int {
	switch {
	case isNull(a) && isNull(b):
		return 0
	case isNull(a):
		return -1
	case isNull(b):
		return 1
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x.Cmp(y)
		}
	}
	if x, ok := date(a); ok {
		if y, ok := date(b); ok {
			return compareTimes(x, y)
		}
	}
	return strings.Compare(strings.ToLower(text(a)), strings.ToLower(text(b)))
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func orderRows(data *catalog.TableData, order []OrderItem, rows [][]interface{}) error {
	if len(order) == 0 {
		return nil
	}
	idx := make([]int, len(order))
	for i, o := range order {
		if idx[i] = data.ColumnIndex(o.Column); idx[i] < 0 {
			return columnNotFound(data, o.Column)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, o := range order {
			c := compareValues(cell(rows[i], idx[k]), cell(rows[j], idx[k]))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func projection(data *catalog.TableData, items []SelectItem) ([]string, []int, error) {
	var cols []string
	var idx []int
	for i, it := range items {
		if it.Star {
			cols = append(cols, data.Columns...)
			for k := range data.Columns {
				idx = append(idx, k)
			}
			continue
		}
		k := data.ColumnIndex(it.Column)
		if k < 0 {
			return nil, nil, columnNotFound(data, it.Column)
		}
		name := it.Name(i)
		if it.Alias == "" {
			name = data.Columns[k]
		}
		cols = append(cols, name)
		idx = append(idx, k)
	}
	return cols, idx, nil
}

func aggregate(data *catalog.TableData, items []SelectItem, rows [][]interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(items))
	for i, it := range items {
		k := -1
		if !it.Star {
			if k = data.ColumnIndex(it.Column); k < 0 {
				return nil, columnNotFound(data, it.Column)
			}
		}

		var v interface{}
		switch it.Aggregate {
		case AggCount:
			v = countRows(rows, k)
		case AggSum, AggAvg:
			v = sumRows(rows, k, it.Aggregate == AggAvg)
		case AggMin, AggMax:
			v = extremeRow(rows, k, it.Aggregate == AggMax)
		}
		if v == nil && it.Default != nil {
			v = it.Default.Value()
		}
		out[i] = v
	}
	return out, nil
}

func countRows(rows [][]interface{}, k int) int64 {
	if k < 0 {
		return int64(len(rows))
	}
	var n int64
	for _, row := range rows {
		if !isNull(cell(row, k)) {
			n++
		}
	}
	return n
}

// sumRows sums the numeric cells of column k, or averages them. Non-numeric
// and null cells are ignored; with none left the result is null.
func sumRows(rows [][]interface{}, k int, avg bool) interface{} {
	sum := decimal.Zero
	var n int64
	for _, row := range rows {
		if d, ok := number(cell(row, k)); ok {
			sum = sum.Add(d)
			n++
		}
	}
	if n == 0 {
		return nil
	}
	if avg {
		return sum.Div(decimal.NewFromInt(n))
	}
	return sum
}

func extremeRow(rows [][]interface{}, k int, wantMax bool) interface{} {
	var best interface{}
	for _, row := range rows {
		v := cell(row, k)
		if isNull(v) {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		c := compareValues(v, best)
		if (wantMax && c > 0) || (!wantMax && c < 0) {
			best = v
		}
	}
	return best
}

func cell(row []interface{}, k int) interface{} {
	if k < 0 || k >= len(row) {
		return nil
	}
	return row[k]
}
