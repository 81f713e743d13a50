// Package fixture serves TEST-mode requests from embedded datasets loaded
// into in-memory SQLite, one database per backend. Stored query text is
// translated to SQLite from the backend's own dialect before it runs, so
// the same KPI definitions work unchanged in both modes.
package fixture

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/dialect"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

//go:embed seed/*.sql
var seedFS embed.FS

// Seeder fills a fresh database for one backend.
type Seeder interface {
	Seed(ctx context.Context, db *sql.DB, backend query.Backend) error
}

// ScriptSeeder runs one SQL script per backend.
type ScriptSeeder map[query.Backend]string

// Seed runs the script registered for backend, if any.
func (s ScriptSeeder) Seed(ctx context.Context, db *sql.DB, backend query.Backend) error {
	script, ok := s[backend]
	if !ok {
		return nil
	}
	_, err := db.ExecContext(ctx, script)
	return err
}

// DefaultSeeder returns the embedded dataset.
func DefaultSeeder() ScriptSeeder {
	return ScriptSeeder{
		query.Networked: mustReadSeed("seed/networked.sql"),
		query.FileBased: mustReadSeed("seed/filebased.sql"),
	}
}

func mustReadSeed(name string) string {
	b, err := seedFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("fixture: missing embedded seed %s: %v", name, err))
	}
	return string(b)
}

// sourceDialect is the dialect stored KPI text is written in per backend.
var sourceDialect = map[query.Backend]dialect.Dialect{
	query.Networked: dialect.TSQL,
	query.FileBased: dialect.Jet,
}

type database struct {
	db *sql.DB
	// keep pins one connection so the in-memory database outlives idle
	// connection churn.
	keep *sql.Conn
	tr   *dialect.Translator
}

// Executor runs queries against the test datasets.
type Executor struct {
	mu     sync.RWMutex
	dbs    map[query.Backend]*database
	logger *log.Logger
}

// New creates one seeded in-memory database per backend.
func New(ctx context.Context, seeder Seeder, logger *log.Logger) (*Executor, error) {
	if seeder == nil {
		seeder = DefaultSeeder()
	}
	if logger == nil {
		logger = log.Discard()
	}

	e := &Executor{
		dbs:    make(map[query.Backend]*database),
		logger: logger,
	}
	for backend, from := range sourceDialect {
		d, err := openDatabase(ctx, backend, seeder)
		if err != nil {
			e.Close()
			return nil, err
		}
		d.tr = dialect.NewTranslator(from, dialect.SQLite)
		e.dbs[backend] = d
	}

	logger.System().Info("test dataset ready", "backends", len(e.dbs))
	return e, nil
}

func openDatabase(ctx context.Context, backend query.Backend, seeder Seeder) (*database, error) {
	dsn := fmt.Sprintf("file:kpiq-%s-%s?mode=memory&cache=shared&_busy_timeout=5000",
		strings.ToLower(string(backend)), uuid.NewString())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	keep, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	if err := seeder.Seed(ctx, db, backend); err != nil {
		keep.Close()
		db.Close()
		return nil, kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeConfigInvalid, "seed %s test dataset", backend).
			WithField("backend", string(backend)).
			Err()
	}
	return &database{db: db, keep: keep}, nil
}

func (e *Executor) database(backend query.Backend) (*database, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.dbs[backend]
	if !ok {
		return nil, kpiqerrors.Newf(kpiqerrors.ErrCodeBackendDisabled, "no test dataset for backend %s", backend).
			WithField("backend", string(backend)).
			Err()
	}
	return d, nil
}

// Execute runs req.SQL against the dataset of req.Backend.
func (e *Executor) Execute(ctx context.Context, req query.Request) (*query.RawResult, error) {
	d, err := e.database(req.Backend)
	if err != nil {
		return nil, err
	}

	text := d.tr.Translate(req.SQL)
	if text != req.SQL {
		e.logger.Execution().Ctx(ctx).Debug("translated for test dataset",
			"backend", string(req.Backend), "sql", text)
	}

	raw, err := query.ScanRows(d.db.QueryContext(ctx, text))
	if err != nil {
		return nil, e.classify(ctx, req.Backend, err)
	}
	return raw, nil
}

// Tables lists the tables of a backend's dataset.
func (e *Executor) Tables(ctx context.Context, backend query.Backend) ([]string, error) {
	d, err := e.database(backend)
	if err != nil {
		return nil, err
	}
	raw, err := query.ScanRows(d.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"))
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		if name, ok := row[0].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// classify maps SQLite failures onto the error taxonomy.
func (e *Executor) classify(ctx context.Context, backend query.Backend, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return kpiqerrors.Timeout("fixture.Execute", err).Err()
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table: "):
		table := after(msg, "no such table: ")
		if i := strings.LastIndexByte(table, '.'); i >= 0 {
			table = table[i+1:]
		}
		known, _ := e.Tables(context.Background(), backend)
		return kpiqerrors.TableNotFound(table, known, catalog.Suggest(table, known)).
			WithOp("fixture.Execute").
			Err()
	case strings.Contains(msg, "no such column: "):
		return kpiqerrors.ColumnNotFound("", after(msg, "no such column: "), nil).
			WithField("backend", string(backend)).
			WithOp("fixture.Execute").
			Err()
	case strings.Contains(msg, "syntax error"):
		return kpiqerrors.Wrap(err, kpiqerrors.ErrCodeParseError, "test dataset could not parse the query").
			WithOp("fixture.Execute").
			WithField("backend", string(backend)).
			Err()
	}
	return kpiqerrors.Wrap(err, kpiqerrors.ErrCodeExecFailed, "test dataset query failed").
		WithOp("fixture.Execute").
		WithField("backend", string(backend)).
		Err()
}

func after(s, marker string) string {
	return strings.TrimSpace(s[strings.Index(s, marker)+len(marker):])
}

// Close releases every dataset.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for backend, d := range e.dbs {
		if d.keep != nil {
			d.keep.Close()
		}
		if err := d.db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(e.dbs, backend)
	}
	return errors.Join(errs...)
}
