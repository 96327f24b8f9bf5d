package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/minesim/internal/api"
	"github.com/annel0/minesim/internal/classify"
	"github.com/annel0/minesim/internal/config"
	"github.com/annel0/minesim/internal/eventbus"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/observability"
	"github.com/annel0/minesim/internal/progress"
	"github.com/annel0/minesim/internal/results"
	"github.com/annel0/minesim/internal/simulation"
	"github.com/annel0/minesim/internal/storage"
	"github.com/annel0/minesim/internal/world"
)

// app держит все компоненты одного запуска CLI
type app struct {
	cfg          *config.Config
	registry     *prometheus.Registry
	orchestrator *simulation.Orchestrator
	tracker      *progress.Tracker
	bus          eventbus.EventBus
	index        *results.Index
	server       *api.Server

	closers []func(context.Context) error
	stopBG  context.CancelFunc
}

// newApp собирает симулятор по конфигурации. observers получают каждое событие пакета.
func newApp(ctx context.Context, cfg *config.Config, observers ...func(simulation.Event)) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    true,
			SampleRate:  cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("телеметрия: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	if err := bootstrap(ctx, cfg); err != nil {
		return nil, err
	}

	table, err := classify.Load(cfg.Paths.ValidBlocks)
	if err != nil {
		return nil, err
	}
	logging.Info("📋 Таблица классификации: %d блоков из %s", table.Len(), cfg.Paths.ValidBlocks)

	regions, err := a.openRegions()
	if err != nil {
		return nil, err
	}

	var sinks simulation.SinkFactory = results.Dir{MiningDir: cfg.Paths.MiningData, ChunkDir: cfg.Paths.ChunkData}
	if cfg.Results.SQLitePath != "" {
		a.index, err = results.OpenIndex(cfg.Results.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("индекс результатов: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.index.Close() })
		sinks = results.Indexed(sinks, a.index)
	}

	if err := a.openBus(); err != nil {
		return nil, err
	}

	opts := []progress.Option{progress.WithBus(a.bus, "minesim")}
	for _, fn := range observers {
		opts = append(opts, progress.WithObserver(fn))
	}
	a.tracker = progress.NewTracker(opts...)

	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	metrics := simulation.NewMetrics(a.registry)
	driver := simulation.NewDriver(table, simulation.WithMetrics(metrics))
	a.orchestrator = simulation.NewOrchestrator(regions, sinks, driver, table, settings, metrics)

	if cfg.API.Enabled {
		var idx api.ResultQuerier
		if a.index != nil {
			idx = a.index
		}
		apiLog := logging.Default()
		if cfg.Log.File {
			apiLog = logging.GetAPILogger()
			if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
				apiLog.SetLevels(level, logging.DEBUG)
			}
			a.closers = append(a.closers, func(context.Context) error { return logging.GetLoggerManager().CloseAll() })
		}
		a.server = api.NewServer(api.Config{
			Addr:     fmt.Sprintf(":%d", cfg.API.GetPort()),
			Tracker:  a.tracker,
			Index:    idx,
			Bus:      a.bus,
			Registry: a.registry,
			Logger:   apiLog,
		})
		if err := a.server.Start(); err != nil {
			return nil, fmt.Errorf("API сервер: %w", err)
		}
		a.closers = append(a.closers, a.server.Stop)
	}
	return a, nil
}

func (a *app) openRegions() (simulation.RegionSource, error) {
	switch a.cfg.World.Backend {
	case config.BackendBadger:
		store, err := storage.NewChunkStore(a.cfg.World.BadgerPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		logging.Info("🗄️ Регионы читаются из BadgerDB %s", a.cfg.World.BadgerPath)
		return store, nil
	default:
		return world.RegionDir{Path: a.cfg.Paths.Regions}, nil
	}
}

func (a *app) openBus() error {
	if url := a.cfg.EventBus.URL; url != "" {
		retention := time.Duration(a.cfg.EventBus.Retention) * time.Hour
		bus, err := eventbus.NewJetStreamBus(url, a.cfg.EventBus.Stream, retention)
		if err != nil {
			return fmt.Errorf("шина событий: %w", err)
		}
		a.bus = bus
		logging.Info("🛰️ События отправляются в NATS JetStream %s (стрим %s)", url, a.cfg.EventBus.Stream)
	} else {
		a.bus = eventbus.NewMemoryBus(4096)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.bus.Close() })

	if _, err := eventbus.StartLoggingListener(a.bus); err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	a.stopBG = cancel
	go eventbus.NewMetricsExporter(a.bus, a.registry).Run(bgCtx)
	return nil
}

// run выполняет запрос и ждёт завершения пакета
func (a *app) run(ctx context.Context, req simulation.Request) (simulation.Summary, error) {
	batch, err := a.orchestrator.Start(ctx, req)
	if err != nil {
		return simulation.Summary{}, &exitError{code: 1, err: err}
	}
	summary, err := a.tracker.Consume(ctx, batch)
	if a.index != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if ferr := a.index.Flush(flushCtx); ferr != nil {
			logging.Warn("⚠️ Индекс результатов не дописан: %v", ferr)
		}
		cancel()
	}
	return summary, err
}

// serve держит API доступным после завершения пакета до Ctrl+C
func (a *app) serve(ctx context.Context) {
	if a.server == nil {
		return
	}
	logging.Info("🌐 Пакет завершён, API доступен до Ctrl+C")
	<-ctx.Done()
}

// close закрывает компоненты в обратном порядке
func (a *app) close() error {
	if a.stopBG != nil {
		a.stopBG()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
