package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StaticProvider serves tables held in memory, in insertion order.
type StaticProvider struct {
	mu     sync.RWMutex
	order  []string
	tables map[string]*TableData
}

// NewStaticProvider creates a provider serving the given tables.
func NewStaticProvider(tables ...*TableData) *StaticProvider {
	p := &StaticProvider{tables: make(map[string]*TableData)}
	for _, t := range tables {
		p.Put(t)
	}
	return p
}

// Put adds or replaces a table.
func (p *StaticProvider) Put(t *TableData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tables[t.Name]; !ok {
		p.order = append(p.order, t.Name)
	}
	p.tables[t.Name] = t
}

// ListTables implements Provider.
func (p *StaticProvider) ListTables(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...), nil
}

// LoadTable implements Provider. The returned table is a copy so callers
// cannot disturb the provider's data.
func (p *StaticProvider) LoadTable(ctx context.Context, name string) (*TableData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.tables[name]
	if !ok {
		for n, candidate := range p.tables {
			if strings.EqualFold(n, name) {
				t, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}

	out := &TableData{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]interface{}, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]interface{}(nil), row...)
	}
	return out, nil
}
