// Package engine is the single entry point for KPI query execution. It
// validates the stored SQL, routes the request to the executor for its
// backend and mode, and normalises the raw answer into a query.Result.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/annotations"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/guard"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/metrics"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// State is a step of one request's lifecycle.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateRouted
	StateExecuting
	StateNormalized
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateRouted:
		return "routed"
	case StateExecuting:
		return "executing"
	case StateNormalized:
		return "normalized"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds engine settings.
type Config struct {
	// ExecTimeout bounds each request; zero means no bound.
	ExecTimeout time.Duration

	// MaxConcurrency caps requests in flight; zero means no cap.
	MaxConcurrency int

	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Engine executes requests. It is safe for concurrent use.
type Engine struct {
	router  *Router
	cfg     Config
	logger  *log.Logger
	metrics *metrics.Metrics

	sem chan struct{}

	// releaser tears down a networked session.
	releaser func(id string) bool
}

// New creates an engine over router.
func New(router *Router, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	e := &Engine{
		router:  router,
		cfg:     cfg,
		logger:  logger,
		metrics: cfg.Metrics,
	}
	if cfg.MaxConcurrency > 0 {
		e.sem = make(chan struct{}, cfg.MaxConcurrency)
	}
	return e
}

// SetReleaser installs the function used by Release, normally
// (*pool.Pool).Release.
func (e *Engine) SetReleaser(fn func(id string) bool) {
	e.releaser = fn
}

// Execute runs req to completion. It never returns an error: failures are
// reported through Result.Kind, and a panic in any step becomes a
// Configuration failure.
func (e *Engine) Execute(ctx context.Context, req query.Request) (res query.Result) {
	if log.RequestIDFromContext(ctx) == "" {
		ctx = log.WithRequestID(ctx, uuid.NewString())
	}
	start := time.Now()
	state := StateReceived
	advance := func(next State) {
		state = next
		e.logger.Execution().Ctx(ctx).Debug("request advanced", "state", next.String())
	}

	defer func() {
		if r := recover(); r != nil {
			err := kpiqerrors.Newf(kpiqerrors.ErrCodePanic, "panic while %s: %v", state, r).
				WithOp("Engine.Execute").
				WithField("state", state.String()).
				WithStack().
				Err()
			res = query.Failure(err)
		}
		e.finish(ctx, req, res, time.Since(start))
	}()

	fail := func(err error) query.Result {
		e.logger.Execution().Ctx(ctx).Debug("request failed", "state", state.String(), "error", err.Error())
		advance(StateFailed)
		return query.Failure(err)
	}

	if err := guard.Validate(req.SQL); err != nil {
		return fail(err)
	}
	dirs := annotations.Parse(req.SQL).Directives()
	if !dirs.Empty() {
		req = e.applyDirectives(ctx, req, dirs)
	}
	advance(StateValidated)

	exec, err := e.router.Select(req.Backend, req.Mode)
	if err != nil {
		return fail(err)
	}
	advance(StateRouted)

	if e.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExecTimeout)
		defer cancel()
	}
	if dirs.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dirs.Timeout)
		defer cancel()
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return fail(contextError(ctx, "wait for capacity"))
		}
	}

	advance(StateExecuting)
	raw, err := exec.Execute(ctx, req)
	if err != nil {
		if ctx.Err() != nil && !kpiqerrors.IsKind(err, kpiqerrors.KindTimeout) {
			err = contextError(ctx, "execute")
		}
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(contextError(ctx, "execute"))
	}

	res = query.Extract(raw)
	advance(StateNormalized)

	advance(StateDone)
	return res
}

// applyDirectives folds -- @kpiq: directives into req. An explicit
// request table hint wins over the directive.
func (e *Engine) applyDirectives(ctx context.Context, req query.Request, dirs annotations.Directives) query.Request {
	el := e.logger.Execution().Ctx(ctx)
	if req.TableHint == "" && dirs.TableHint != "" {
		req.TableHint = dirs.TableHint
	}
	if dirs.Deprecated {
		el.Warn("deprecated query executed", "backend", string(req.Backend))
	}
	if len(dirs.Unknown) > 0 {
		el.Debug("unknown query directives ignored", "keys", dirs.Unknown)
	}
	return req
}

// contextError turns an expired or cancelled context into a Timeout.
func contextError(ctx context.Context, op string) error {
	err := ctx.Err()
	if err == nil {
		err = context.DeadlineExceeded
	}
	b := kpiqerrors.Timeout(op, err)
	if errors.Is(err, context.Canceled) {
		b = b.WithField("cancelled", true)
	}
	return b.Err()
}

func (e *Engine) finish(ctx context.Context, req query.Request, res query.Result, elapsed time.Duration) {
	outcome := metrics.OutcomeSuccess
	if !res.Success {
		outcome = string(res.Kind)
	}
	e.metrics.ObserveQuery(string(req.Backend), string(req.Mode), outcome, elapsed, res.Partial)

	fields := []interface{}{
		"backend", string(req.Backend),
		"mode", string(req.Mode),
		"duration_ms", elapsed.Milliseconds(),
	}
	if req.ConnectionID != "" || res.ConnectionID != "" {
		fields = append(fields, "connection_id", firstNonEmpty(res.ConnectionID, req.ConnectionID))
	}

	el := e.logger.Execution().Ctx(ctx)
	switch {
	case res.Success:
		fields = append(fields, "shape", string(res.Shape))
		if res.Partial {
			fields = append(fields, "skipped_conditions", len(res.SkippedConditions))
			el.Warn("query executed with conditions skipped", fields...)
		} else {
			el.Info("query executed", fields...)
		}
	case res.Kind == kpiqerrors.KindConnectionFailed || res.Kind == kpiqerrors.KindConfiguration:
		el.Error("query failed", errors.New(res.Message), append(fields, "kind", string(res.Kind))...)
	default:
		el.Warn("query rejected", append(fields, "kind", string(res.Kind), "error", res.Message)...)
	}

	e.logger.Performance().Ctx(ctx).Debug("query timing", "backend", string(req.Backend), "elapsed", elapsed.String())
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Tables lists the tables visible to backend in mode.
func (e *Engine) Tables(ctx context.Context, backend query.Backend, mode query.Mode) ([]string, error) {
	exec, err := e.router.Select(backend, mode)
	if err != nil {
		return nil, err
	}
	lister, ok := exec.(TableLister)
	if !ok {
		return nil, kpiqerrors.Newf(kpiqerrors.ErrCodeBackendDisabled, "backend %s cannot list tables", backend).
			WithField("backend", string(backend)).
			Err()
	}
	return lister.Tables(ctx, backend)
}

// Release tears down a networked session. It reports whether one existed.
func (e *Engine) Release(id string) bool {
	if e.releaser == nil {
		return false
	}
	return e.releaser(id)
}
