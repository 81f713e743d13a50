// Package catalog provides the per-backend schema catalog used by the
// file-based backend: table discovery, fuzzy table resolution, inferred
// column schemas and a lazily filled row cache.
//
// Schema entries are append-only. Row data may be invalidated (for example
// when the database file changes on disk) and is then reloaded on next use.
package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/singleflight"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
)

// Provider supplies table names and contents for one database. It is the
// engine's view of the file's internal table catalog.
type Provider interface {
	ListTables(ctx context.Context) ([]string, error)
	LoadTable(ctx context.Context, name string) (*TableData, error)
}

// TableData is a fully loaded table.
type TableData struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

// ColumnIndex returns the position of column, matched case-insensitively,
// or -1.
func (t *TableData) ColumnIndex(column string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, column) {
			return i
		}
	}
	return -1
}

// Stats counts underlying provider calls.
type Stats struct {
	TableListLoads int64
	TableLoads     int64
}

// Catalog caches table names, schemas and rows for one backend instance.
type Catalog struct {
	provider Provider
	logger   *log.Logger

	mu     sync.RWMutex
	order  []string          // table names in provider order, append-only
	byName map[string]string // lower-case name -> canonical name
	listed bool

	schemas map[string]*TableSchema // canonical name -> schema, never replaced
	rows    map[string]*TableData   // canonical name -> rows, dropped by Invalidate
	gen     uint64                  // bumped by Invalidate; loads started earlier are not cached

	flight singleflight.Group

	// OnLoad, if set, is called after every provider round trip ("tables" or "rows").
	OnLoad func(kind string)

	listLoads  int64
	tableLoads int64
}

// New creates an empty catalog backed by provider.
func New(provider Provider, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Discard()
	}
	return &Catalog{
		provider: provider,
		logger:   logger,
		byName:   make(map[string]string),
		schemas:  make(map[string]*TableSchema),
		rows:     make(map[string]*TableData),
	}
}

// Stats returns provider call counters.
func (c *Catalog) Stats() Stats {
	return Stats{
		TableListLoads: atomic.LoadInt64(&c.listLoads),
		TableLoads:     atomic.LoadInt64(&c.tableLoads),
	}
}

// Tables returns the known table names in catalog order, listing them from
// the provider on first use.
func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	if c.listed {
		out := append([]string(nil), c.order...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	_, err, _ := c.flight.Do("\x00tables", func() (interface{}, error) {
		c.mu.RLock()
		listed := c.listed
		c.mu.RUnlock()
		if listed {
			return nil, nil
		}
		return nil, c.refreshTables(ctx)
	})
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...), nil
}

// refreshTables lists tables from the provider and appends unseen names.
func (c *Catalog) refreshTables(ctx context.Context) error {
	names, err := c.provider.ListTables(ctx)
	atomic.AddInt64(&c.listLoads, 1)
	if c.OnLoad != nil {
		c.OnLoad("tables")
	}
	if err != nil {
		return kpiqerrors.Wrap(err, kpiqerrors.ErrCodeCatalogLoad, "failed to list tables").
			WithOp("Catalog.Tables").
			Err()
	}

	c.mu.Lock()
	added := 0
	for _, name := range names {
		key := strings.ToLower(name)
		if _, ok := c.byName[key]; ok {
			continue
		}
		c.byName[key] = name
		c.order = append(c.order, name)
		added++
	}
	c.listed = true
	c.mu.Unlock()

	c.logger.Catalog().Debug("tables listed", "count", len(names), "added", added)
	return nil
}

// Resolve maps a table reference from a query onto a catalog table.
//
// An exact case-insensitive match wins. Otherwise the first table in catalog
// order that contains the name, is contained by it, or equals it modulo a
// plural suffix is chosen. With no match a TableNotFound error lists the
// known tables and the closest names.
func (c *Catalog) Resolve(ctx context.Context, name string) (string, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		return "", err
	}

	want := strings.ToLower(strings.Trim(strings.TrimSpace(name), "[]`\""))
	if want == "" {
		return "", kpiqerrors.TableNotFound(name, tables, nil).Err()
	}

	for _, t := range tables {
		if strings.ToLower(t) == want {
			return t, nil
		}
	}

	for _, t := range tables {
		if fuzzyTableMatch(strings.ToLower(t), want) {
			c.logger.Catalog().Debug("table resolved by fuzzy match", "requested", name, "resolved", t)
			return t, nil
		}
	}

	return "", kpiqerrors.TableNotFound(name, tables, Suggest(name, tables)).
		WithOp("Catalog.Resolve").
		Err()
}

func fuzzyTableMatch(table, want string) bool {
	if strings.Contains(table, want) || strings.Contains(want, table) {
		return true
	}
	return singular(table) == singular(want)
}

// singular strips common English plural suffixes.
func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses") || strings.HasSuffix(s, "xes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	}
	return s
}

// Suggest returns up to five known tables that look like name, best first.
func Suggest(name string, tables []string) []string {
	const maxSuggestions = 5

	ranks := fuzzy.RankFindFold(name, tables)
	sort.Sort(ranks)

	seen := make(map[string]bool)
	var out []string
	for _, r := range ranks {
		if len(out) == maxSuggestions {
			return out
		}
		seen[r.Target] = true
		out = append(out, r.Target)
	}

	// Fall back to edit distance for typos the subsequence match misses.
	type scored struct {
		name string
		dist int
	}
	var close []scored
	lower := strings.ToLower(name)
	limit := len(lower)/3 + 1
	for _, t := range tables {
		if seen[t] {
			continue
		}
		if d := fuzzy.LevenshteinDistance(lower, strings.ToLower(t)); d <= limit {
			close = append(close, scored{t, d})
		}
	}
	sort.SliceStable(close, func(i, j int) bool { return close[i].dist < close[j].dist })
	for _, s := range close {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, s.name)
	}
	return out
}

// Rows returns the full contents of a catalog table, loading it on first
// use. Concurrent first accesses share a single provider load.
func (c *Catalog) Rows(ctx context.Context, table string) (*TableData, error) {
	c.mu.RLock()
	data, ok := c.rows[table]
	c.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, shared := c.flight.Do(table, func() (interface{}, error) {
		// Another flight may have finished between our miss and this call.
		c.mu.RLock()
		cached, ok := c.rows[table]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		return c.loadRows(ctx, table)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Catalog().Debug("joined in-flight table load", "table", table)
	}
	return v.(*TableData), nil
}

func (c *Catalog) loadRows(ctx context.Context, table string) (*TableData, error) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	data, err := c.provider.LoadTable(ctx, table)
	atomic.AddInt64(&c.tableLoads, 1)
	if c.OnLoad != nil {
		c.OnLoad("rows")
	}
	if err != nil {
		return nil, kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeCatalogLoad, "failed to load table %s", table).
			WithField("table", table).
			WithOp("Catalog.Rows").
			Err()
	}
	if data.Name == "" {
		data.Name = table
	}

	c.mu.Lock()
	stale := c.gen != gen
	if !stale {
		c.rows[table] = data
	}
	if _, ok := c.schemas[table]; !ok {
		c.schemas[table] = inferSchema(data)
	}
	c.mu.Unlock()

	c.logger.Catalog().Info("table loaded",
		"table", table,
		"columns", len(data.Columns),
		"rows", len(data.Rows),
		"stale", stale,
	)
	return data, nil
}

// Schema returns the inferred schema of a catalog table. The first call
// loads the table's rows.
func (c *Catalog) Schema(ctx context.Context, table string) (*TableSchema, error) {
	c.mu.RLock()
	s, ok := c.schemas[table]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	if _, err := c.Rows(ctx, table); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[table], nil
}

// Invalidate drops cached rows for the given tables, or for every table
// when none are named. Table names and schemas are kept; the table list is
// re-read on next use so new tables are picked up.
func (c *Catalog) Invalidate(tables ...string) {
	c.mu.Lock()
	c.gen++
	forget := tables
	if len(tables) == 0 {
		forget = append([]string(nil), c.order...)
		for t := range c.rows {
			forget = append(forget, t)
		}
		c.rows = make(map[string]*TableData)
		c.listed = false
	} else {
		for _, t := range tables {
			delete(c.rows, t)
		}
	}
	c.mu.Unlock()

	// Callers arriving after this point start a fresh load instead of
	// joining one that may return the old contents.
	for _, t := range forget {
		c.flight.Forget(t)
	}
	if len(tables) == 0 {
		c.flight.Forget("\x00tables")
	}

	c.logger.Catalog().Info("row cache invalidated", "tables", len(tables))
}
