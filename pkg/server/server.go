// Package server exposes the query engine over HTTP.
//
// The server owns the listener lifecycle; request handling lives in
// handler.go and talks to the engine only through the Engine interface.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// Engine is the part of engine.Engine the HTTP surface uses.
type Engine interface {
	Execute(ctx context.Context, req query.Request) query.Result
	Tables(ctx context.Context, backend query.Backend, mode query.Mode) ([]string, error)
	Release(id string) bool
}

// State represents the server's current state.
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds server configuration.
type Config struct {
	Addr    string
	Version string

	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Connections reports open networked sessions for /health.
	Connections func() int

	// TLS, when set, serves HTTPS.
	TLS *tls.Config

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Logger *log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server serves the HTTP API.
type Server struct {
	mu sync.RWMutex

	config Config
	logger *log.Logger
	engine Engine

	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}

	state     State
	startTime time.Time
}

// New creates a server in StateNew.
func New(engine Engine, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		config: cfg,
		logger: logger,
		engine: engine,
		state:  StateNew,
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return kpiqerrors.Newf(kpiqerrors.ErrCodeConfigInvalid,
			"server cannot start from state %s", s.state).
			WithOp("Server.Start").
			Err()
	}
	s.state = StateStarting
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.setState(StateStopped)
		return kpiqerrors.Wrap(err, kpiqerrors.ErrCodeConfigInvalid, "failed to listen").
			WithOp("Server.Start").
			WithField("addr", s.config.Addr).
			Err()
	}

	if s.config.TLS != nil {
		ln = tls.NewListener(ln, s.config.TLS)
	}

	s.mu.Lock()
	s.listener = ln
	s.done = make(chan struct{})
	s.state = StateRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.System().Error("http server failed", err, "addr", ln.Addr().String())
		}
	}()

	s.logger.System().Info("server started",
		"addr", ln.Addr().String(),
		"version", s.config.Version,
		"tls", s.config.TLS != nil,
	)
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	done := s.done
	s.mu.Unlock()

	s.logger.System().Info("server stopping")

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	err := s.httpServer.Shutdown(ctx)
	<-done

	s.setState(StateStopped)
	s.logger.System().Info("server stopped")
	return err
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the current server state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startTime)
}
