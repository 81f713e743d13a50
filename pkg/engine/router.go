package engine

import (
	"context"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// Executor runs one validated request against a physical backend.
type Executor interface {
	Execute(ctx context.Context, req query.Request) (*query.RawResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req query.Request) (*query.RawResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req query.Request) (*query.RawResult, error) {
	return f(ctx, req)
}

// TableLister is implemented by executors that can enumerate tables.
type TableLister interface {
	Tables(ctx context.Context, backend query.Backend) ([]string, error)
}

// Router picks the executor for a backend and mode. A nil executor means
// that cell is not configured.
type Router struct {
	Test      Executor
	Networked Executor
	FileBased Executor
}

// Select returns the executor serving backend in mode. Every backend
// shares the test executor in TEST mode.
func (r *Router) Select(backend query.Backend, mode query.Mode) (Executor, error) {
	var exec Executor
	switch mode {
	case query.Test:
		switch backend {
		case query.Networked, query.FileBased:
			exec = r.Test
		default:
			return nil, unknownBackend(backend)
		}
	case query.Production:
		switch backend {
		case query.Networked:
			exec = r.Networked
		case query.FileBased:
			exec = r.FileBased
		default:
			return nil, unknownBackend(backend)
		}
	default:
		return nil, kpiqerrors.Newf(kpiqerrors.ErrCodeUnknownMode, "unknown mode: %q", mode).
			WithOp("Router.Select").
			WithField("mode", string(mode)).
			Err()
	}

	if exec == nil {
		return nil, kpiqerrors.Newf(kpiqerrors.ErrCodeBackendDisabled, "backend %s is not configured for %s mode", backend, mode).
			WithOp("Router.Select").
			WithField("backend", string(backend)).
			WithField("mode", string(mode)).
			Err()
	}
	return exec, nil
}

func unknownBackend(backend query.Backend) error {
	return kpiqerrors.Newf(kpiqerrors.ErrCodeUnknownBackend, "unknown backend: %q", backend).
		WithOp("Router.Select").
		WithField("backend", string(backend)).
		Err()
}
