package pool

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// Supported driver names.
const (
	DriverSQLServer = "sqlserver"
	DriverPgx       = "pgx"
)

// ServerConfig describes the networked backend.
type ServerConfig struct {
	Driver   string
	Host     string
	Port     int
	Instance string
	Database string
	User     string
	Password string

	// Params are appended to the connection URL (encrypt, sslmode, ...).
	Params map[string]string

	// DSN, when set, is used verbatim instead of the fields above.
	DSN string

	MaxOpenConns int
}

// ConnectionString builds the driver DSN.
func (c ServerConfig) ConnectionString() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	if c.Host == "" {
		return "", kpiqerrors.New(kpiqerrors.ErrCodeConfigInvalid, "networked backend host is not configured").Err()
	}

	u := url.URL{Host: c.Host}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}

	switch c.driver() {
	case DriverSQLServer:
		u.Scheme = "sqlserver"
		if c.Instance != "" {
			u.Path = "/" + c.Instance
		}
		if c.Database != "" {
			q.Set("database", c.Database)
		}
	case DriverPgx:
		u.Scheme = "postgres"
		if c.Database != "" {
			u.Path = "/" + c.Database
		}
	default:
		return "", kpiqerrors.Newf(kpiqerrors.ErrCodeConfigInvalid, "unsupported driver: %s", c.Driver).
			WithField("driver", c.Driver).
			Err()
	}
	if c.Port > 0 {
		u.Host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c ServerConfig) driver() string {
	if c.Driver == "" {
		return DriverSQLServer
	}
	return c.Driver
}

// SQLFactory hands out dedicated connections from one lazily opened
// *sql.DB.
type SQLFactory struct {
	mu  sync.RWMutex
	cfg ServerConfig
	db  *sql.DB
}

// NewSQLFactory creates a factory; nothing is dialled until Connect.
func NewSQLFactory(cfg ServerConfig) *SQLFactory {
	return &SQLFactory{cfg: cfg}
}

// Connect opens a dedicated session.
func (f *SQLFactory) Connect(ctx context.Context) (Session, error) {
	db, err := f.database(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlSession{conn: conn}, nil
}

func (f *SQLFactory) database(ctx context.Context) (*sql.DB, error) {
	f.mu.RLock()
	if f.db != nil {
		db := f.db
		f.mu.RUnlock()
		return db, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if f.db != nil {
		return f.db, nil
	}

	dsn, err := f.cfg.ConnectionString()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(f.cfg.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.cfg.driver(), err)
	}
	if f.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(f.cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", f.cfg.driver(), err)
	}

	f.db = db
	return db, nil
}

// Close closes the underlying database.
func (f *SQLFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db == nil {
		return nil
	}
	err := f.db.Close()
	f.db = nil
	return err
}

type sqlSession struct {
	conn *sql.Conn
}

func (s *sqlSession) Query(ctx context.Context, text string) (*query.RawResult, error) {
	return query.ScanRows(s.conn.QueryContext(ctx, text))
}

func (s *sqlSession) Close() error {
	return s.conn.Close()
}
