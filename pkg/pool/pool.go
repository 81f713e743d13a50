// Package pool keeps live sessions to the networked backend keyed by opaque
// connection IDs so that callers can reuse a session across requests.
package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// ProbeSQL is run on every new session before it is handed out.
const ProbeSQL = "SELECT 1"

// Session is one live backend session.
type Session interface {
	Query(ctx context.Context, sql string) (*query.RawResult, error)
	Close() error
}

// Factory opens sessions.
type Factory interface {
	Connect(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

// Connect calls f.
func (f FactoryFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Handle is a pooled session. Only the pool creates handles.
type Handle struct {
	ID string

	// mu serialises statements on the session.
	mu      sync.Mutex
	session Session

	healthy  atomic.Bool
	lastUsed atomic.Int64
	inUse    atomic.Int32
	created  time.Time
}

// Healthy reports whether the handle can still be used.
func (h *Handle) Healthy() bool {
	return h.healthy.Load()
}

// LastUsed returns when a statement last started or finished on the handle.
func (h *Handle) LastUsed() time.Time {
	return time.Unix(0, h.lastUsed.Load())
}

func (h *Handle) touch(now time.Time) {
	h.lastUsed.Store(now.UnixNano())
}

// Config holds pool settings.
type Config struct {
	// IdleTimeout evicts handles unused for longer; zero disables expiry.
	IdleTimeout time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{IdleTimeout: 10 * time.Minute}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Handles    int
	Created    int64
	Reconnects int64
	Evicted    int64
	Released   int64
}

// Pool maps connection IDs to handles.
type Pool struct {
	mu      sync.Mutex
	handles map[string]*Handle

	factory Factory
	cfg     Config
	logger  *log.Logger
	now     func() time.Time

	created    atomic.Int64
	reconnects atomic.Int64
	evicted    atomic.Int64
	released   atomic.Int64
}

// New creates a pool that opens sessions through factory.
func New(factory Factory, cfg Config, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.Discard()
	}
	return &Pool{
		handles: make(map[string]*Handle),
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Acquire returns the handle stored under id when it is still usable. When
// id is empty, unknown, unhealthy or idle-expired a new handle is created
// and returned with its fresh ID.
func (p *Pool) Acquire(ctx context.Context, id string) (*Handle, string, error) {
	if id != "" {
		if h := p.lookup(id); h != nil {
			h.touch(p.now())
			return h, h.ID, nil
		}
	}

	h, err := p.create(ctx)
	if err != nil {
		return nil, "", err
	}

	p.mu.Lock()
	p.handles[h.ID] = h
	count := len(p.handles)
	p.mu.Unlock()

	p.logger.Pool().Ctx(ctx).Info("connection created", "connection_id", h.ID, "handles", count)
	return h, h.ID, nil
}

// lookup returns a usable handle or evicts a stale one.
func (p *Pool) lookup(id string) *Handle {
	p.mu.Lock()
	h, ok := p.handles[id]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	reason := p.staleReason(h)
	if reason == "" {
		p.mu.Unlock()
		return h
	}
	delete(p.handles, id)
	p.mu.Unlock()

	p.evicted.Add(1)
	p.logger.Pool().Info("connection evicted", "connection_id", id, "reason", reason)
	p.closeHandle(h)
	return nil
}

func (p *Pool) staleReason(h *Handle) string {
	if !h.Healthy() {
		return "unhealthy"
	}
	if p.cfg.IdleTimeout > 0 && h.inUse.Load() == 0 && p.now().Sub(h.LastUsed()) > p.cfg.IdleTimeout {
		return "idle"
	}
	return ""
}

// create opens and probes a session, retrying once on failure.
func (p *Pool) create(ctx context.Context) (*Handle, error) {
	session, err := p.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.connectError(ctx, err)
		}
		p.reconnects.Add(1)
		p.logger.Pool().Ctx(ctx).Warn("connection attempt failed, retrying", "error", err.Error())
		session, err = p.connect(ctx)
		if err != nil {
			return nil, p.connectError(ctx, err)
		}
	}

	now := p.now()
	h := &Handle{
		ID:      uuid.NewString(),
		session: session,
		created: now,
	}
	h.healthy.Store(true)
	h.touch(now)
	p.created.Add(1)
	return h, nil
}

func (p *Pool) connect(ctx context.Context) (Session, error) {
	session, err := p.factory.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := session.Query(ctx, ProbeSQL); err != nil {
		session.Close()
		return nil, kpiqerrors.Wrap(err, kpiqerrors.ErrCodeConnectionProbe, "connection probe failed").
			WithOp("pool.connect").
			Err()
	}
	return session, nil
}

func (p *Pool) connectError(ctx context.Context, err error) error {
	if isDeadline(ctx, err) {
		return kpiqerrors.Timeout("connect", err).Err()
	}
	p.logger.Pool().Ctx(ctx).Error("connection failed", err)
	switch kpiqerrors.GetCode(err) {
	case kpiqerrors.ErrCodeConnectionProbe, kpiqerrors.ErrCodeConfigInvalid:
		return err
	}
	return kpiqerrors.Wrap(err, kpiqerrors.ErrCodeConnectionFailed, "connect to networked backend").
		WithOp("pool.Acquire").
		Err()
}

// Execute runs sql on the handle. Statements on one handle never overlap.
// A transport failure or a deadline marks the handle unhealthy so the next
// Acquire replaces it.
func (p *Pool) Execute(ctx context.Context, h *Handle, sql string) (*query.RawResult, error) {
	h.inUse.Add(1)
	defer h.inUse.Add(-1)

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.Healthy() {
		return nil, kpiqerrors.New(kpiqerrors.ErrCodeConnectionLost, "connection is no longer usable").
			WithField("connection_id", h.ID).
			Err()
	}

	h.touch(p.now())
	raw, err := h.session.Query(ctx, sql)
	h.touch(p.now())

	if err != nil {
		switch {
		case isDeadline(ctx, err):
			h.healthy.Store(false)
			p.logger.Pool().Ctx(ctx).Warn("statement timed out, connection marked unhealthy", "connection_id", h.ID)
			return nil, kpiqerrors.Timeout("execute", err).WithField("connection_id", h.ID).Err()
		case isTransport(err):
			h.healthy.Store(false)
			p.logger.Pool().Ctx(ctx).Error("transport failure, connection marked unhealthy", err, "connection_id", h.ID)
			return nil, kpiqerrors.Wrap(err, kpiqerrors.ErrCodeConnectionFailed, "connection failed").
				WithField("connection_id", h.ID).
				Err()
		default:
			if b := statementError(err); b != nil {
				return nil, b.WithOp("Pool.Execute").WithField("connection_id", h.ID).Err()
			}
			return nil, kpiqerrors.Wrap(err, kpiqerrors.ErrCodeExecFailed, "query failed").
				WithField("connection_id", h.ID).
				Err()
		}
	}

	if raw == nil {
		raw = &query.RawResult{}
	}
	raw.ConnectionID = h.ID
	return raw, nil
}

// Release closes and forgets the handle stored under id. It reports whether
// the handle existed.
func (p *Pool) Release(id string) bool {
	p.mu.Lock()
	h, ok := p.handles[id]
	if ok {
		delete(p.handles, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.released.Add(1)
	p.logger.Pool().Info("connection released", "connection_id", id)
	p.closeHandle(h)
	return true
}

// Close tears down every handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[string]*Handle)
	p.mu.Unlock()

	var errs []error
	for id, h := range handles {
		if err := h.session.Close(); err != nil {
			errs = append(errs, kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeConnectionLost, "close %s", id).Err())
		}
	}
	return errors.Join(errs...)
}

// closeHandle waits for a running statement before closing the session.
func (p *Pool) closeHandle(h *Handle) {
	h.healthy.Store(false)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.session.Close(); err != nil {
		p.logger.Pool().Error("connection close failed", err, "connection_id", h.ID)
	}
}

// Stats returns pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	n := len(p.handles)
	p.mu.Unlock()

	return Stats{
		Handles:    n,
		Created:    p.created.Load(),
		Reconnects: p.reconnects.Load(),
		Evicted:    p.evicted.Load(),
		Released:   p.released.Load(),
	}
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func isTransport(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
