package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/catalog"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/config"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/dialect"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/engine"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/fixture"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/jet"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/metrics"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/pool"
)

// app is the wired process: everything run and serve need, plus the
// resources to release on exit.
type app struct {
	cfg      config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	engine   *engine.Engine
	pool     *pool.Pool

	closers []func() error
}

func build(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger := log.New(cfg.Log.Logger(logOut))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a := &app{cfg: cfg, logger: logger, registry: reg}
	router := &engine.Router{}

	if cfg.Networked.Enabled {
		server := cfg.Networked.Server()
		factory := pool.NewSQLFactory(server)
		a.closers = append(a.closers, factory.Close)

		a.pool = pool.New(factory, pool.Config{
			IdleTimeout: time.Duration(cfg.Networked.IdleTimeout),
		}, logger)
		a.closers = append(a.closers, a.pool.Close)
		m.RegisterPoolGauge(func() float64 {
			return float64(a.pool.Stats().Handles)
		})

		target := dialect.TSQL
		if cfg.Networked.Driver == pool.DriverPgx {
			target = dialect.Postgres
		}
		router.Networked = engine.NewNetworkedExecutor(a.pool, target)

		logger.System().Info("networked backend configured",
			"driver", cfg.Networked.Driver,
			"host", cfg.Networked.Host,
			"database", cfg.Networked.Database,
		)
	}

	if cfg.FileBased.Enabled {
		provider := jet.NewMDBToolsProvider(cfg.FileBased.Path)
		provider.TablesCommand = cfg.FileBased.TablesCommand
		provider.ExportCommand = cfg.FileBased.ExportCommand

		cat := catalog.New(provider, logger)
		cat.OnLoad = m.CatalogLoaded
		router.FileBased = engine.NewJetExecutor(jet.NewEvaluator(cat, logger))

		if cfg.FileBased.Watch {
			w, err := jet.NewWatcher(cfg.FileBased.Path, cat, logger,
				jet.WithDebounceDelay(time.Duration(cfg.FileBased.WatchDebounce)))
			if err != nil {
				a.Close()
				return nil, err
			}
			if err := w.Start(); err != nil {
				w.Stop()
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, w.Stop)
		}

		logger.System().Info("file-based backend configured",
			"path", cfg.FileBased.Path,
			"watch", cfg.FileBased.Watch,
		)
	}

	if cfg.Test.Enabled {
		fx, err := fixture.New(ctx, nil, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, fx.Close)
		router.Test = fx
	}

	a.engine = engine.New(router, engine.Config{
		ExecTimeout:    time.Duration(cfg.ExecTimeout),
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
		Metrics:        m,
	})
	if a.pool != nil {
		a.engine.SetReleaser(a.pool.Release)
	}
	return a, nil
}

func (a *app) connections() int {
	if a.pool == nil {
		return 0
	}
	return a.pool.Stats().Handles
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
