package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/config"
	"tgbroadcast/internal/eventbus"
	"tgbroadcast/internal/httpapi"
	"tgbroadcast/internal/runtime/supervisor"
	"tgbroadcast/internal/schedule"
	"tgbroadcast/internal/storage"
	"tgbroadcast/internal/transport"
	logx "tgbroadcast/pkg/logx"
)

// scheduledRunTimeout bounds one cron-fired broadcast.
const scheduledRunTimeout = 30 * time.Minute

type App struct {
	cfgm   *config.ConfigManager
	getenv func(string) string
	sup    *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	coord         *broadcast.Coordinator
	fixedProvider bool
	providerName  atomic.Value // string
	sched         *schedule.Service

	handler   http.Handler
	srv       *http.Server
	addr      string
	shutdown  time.Duration
	sd        sdNotifier
	startedAt time.Time
}

type Option func(*App)

// WithProvider replaces the configured Telegram driver. Config reloads keep it.
func WithProvider(p transport.Provider) Option {
	return func(a *App) {
		a.coord.SetProvider(p)
		a.fixedProvider = true
		a.providerName.Store(p.Name())
	}
}

// WithEnv replaces os.Getenv for schedule tokens.
func WithEnv(fn func(string) string) Option {
	return func(a *App) {
		a.getenv = fn
		a.cfgm.SetEnv(fn)
	}
}

// New wires every component from the manager's current config, loading it
// first if needed. Nothing is started.
func New(cfgm *config.ConfigManager, opts ...Option) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	a := &App{
		cfgm:      cfgm,
		getenv:    os.Getenv,
		logs:      logSvc,
		log:       log.With(logx.String("comp", "app")),
		bus:       eventbus.New(),
		startedAt: time.Now(),
		sd: sdNotifier{
			enabled:  cfg.Systemd.Notify,
			watchdog: cfg.Systemd.Watchdog,
			log:      log.With(logx.String("comp", "systemd")),
		},
	}
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	store, err := OpenStore(cfg, log)
	if err != nil {
		return fail(err)
	}
	a.store = store

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return fail(err)
	}
	provider, err := NewProvider(cfg.Provider, log)
	if err != nil {
		return fail(err)
	}
	a.providerName.Store(provider.Name())
	a.coord = broadcast.NewCoordinator(bcfg, provider, log.With(logx.String("comp", "broadcast")), broadcast.WithEventBus(a.bus))

	for _, o := range opts {
		o(a)
	}

	a.sched = schedule.New(a.coord, log, scheduledRunTimeout)
	defs, err := schedule.FromConfig(cfg.Schedules, a.getenv)
	if err != nil {
		return fail(err)
	}
	if err := a.sched.Apply(defs); err != nil {
		return fail(err)
	}

	a.handler = httpapi.NewRouter(httpapi.Options{
		Runner:      a.coord,
		Log:         log.With(logx.String("comp", "http")),
		Branding:    func() broadcast.Branding { return a.coord.Config().Branding },
		Health:      a.health,
		CORSOrigins: cfg.Server.CORSOrigins,
		Mode:        cfg.Server.Mode,
	})
	return a, nil
}

// OpenStore opens the run audit store described by cfg; nil when disabled.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		return nil, err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))
	return st, nil
}

func (a *App) Logger() logx.Logger                 { return a.log }
func (a *App) Coordinator() *broadcast.Coordinator { return a.coord }
func (a *App) Handler() http.Handler               { return a.handler }
func (a *App) Store() storage.Store                { return a.store }

// Addr is the bound listen address once Start returned.
func (a *App) Addr() string { return a.addr }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce performs a single broadcast outside the server and records it in
// the audit store.
func (a *App) RunOnce(ctx context.Context, req broadcast.Request) (broadcast.Report, error) {
	if a.store == nil {
		return a.coord.Run(ctx, req)
	}
	events, unsub := a.bus.Subscribe(4, eventbus.TopicRunFinished, eventbus.TopicRunFailed)
	defer unsub()
	rep, err := a.coord.Run(ctx, req)
	rec := &auditRecorder{store: a.store, log: a.log}
	for {
		select {
		case e := <-events:
			rec.record(ctx, e)
		default:
			return rep, err
		}
	}
}

// Start binds the listener and launches the server, the audit recorder, the
// scheduler and the config watcher under one supervisor.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	timeouts, err := cfg.Server.Timeouts()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	a.addr = ln.Addr().String()
	a.shutdown = timeouts.Shutdown

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	a.srv = &http.Server{
		Handler:           a.handler,
		ReadTimeout:       timeouts.Read,
		ReadHeaderTimeout: timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
	}
	a.sup.Go("http.server", func(context.Context) error {
		a.log.Info("http server listening", logx.String("addr", a.addr))
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(64, eventbus.TopicRunFinished, eventbus.TopicRunFailed)
		rec := &auditRecorder{store: a.store, log: a.log.With(logx.String("comp", "audit"))}
		a.sup.Go0("audit.recorder", func(c context.Context) {
			defer unsub()
			rec.run(c, events)
		})
	}

	// Started even when empty so a reload can add schedules.
	a.sched.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.sd.reloading()
				a.applyConfig(lastApplied, newCfg)
				a.sd.ready()
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", a.sd.watchdogLoop)

	a.sd.ready()
	a.log.Info("app started", logx.String("provider", a.provider()), logx.Int("schedules", len(a.sched.Entries())))
	return nil
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapBroadcastConfig(cfg); err != nil {
		return err
	}
	if _, err := NewProvider(cfg.Provider, logx.Nop()); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, err := schedule.FromConfig(cfg.Schedules, a.getenv)
	return err
}

// applyConfig pushes a reloaded config into the live components. Sections
// that are bound at startup (server, storage, systemd) only log a warning.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, schedChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(mapLogConfig(newCfg.Logging))

	if bcfg, err := mapBroadcastConfig(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.coord.Apply(bcfg)
	}

	if slices.Contains(sections, "provider") && !a.fixedProvider {
		if p, err := NewProvider(newCfg.Provider, a.log); err != nil {
			a.log.Warn("invalid provider config; keeping previous", logx.Err(err))
		} else {
			a.coord.SetProvider(p)
			a.providerName.Store(p.Name())
		}
	}

	if len(schedChanged) > 0 {
		a.log.Debug("schedule changes detected", logx.Any("schedules", schedChanged))
		defs, err := schedule.FromConfig(newCfg.Schedules, a.getenv)
		if err == nil {
			err = a.sched.Apply(defs)
		}
		if err != nil {
			a.log.Warn("invalid schedules; keeping previous", logx.Err(err))
		}
	}

	for _, s := range sections {
		if s == "server" || s == "storage" || s == "systemd" {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TopicConfig, Data: sections})
	a.log.Info("config reloaded", fields...)
}

func (a *App) provider() string {
	s, _ := a.providerName.Load().(string)
	return s
}

func (a *App) health() map[string]any {
	h := map[string]any{
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"provider":       a.provider(),
		"schedules":      a.sched.Entries(),
		"events_dropped": a.bus.Dropped(),
		"storage":        a.store != nil,
	}
	if a.sup != nil {
		h["goroutines"] = a.sup.Counters()
	}
	return h
}

// Stop shuts the server down gracefully, then every supervised goroutine.
// Each step is bounded so one component can't stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.Close()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			return
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// In-flight broadcasts get the shutdown timeout to finish.
	step("http", a.shutdown, func(c context.Context) error {
		if err := a.srv.Shutdown(c); err != nil {
			_ = a.srv.Close()
			return err
		}
		return nil
	})
	a.sup.Cancel()
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 5*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})

	a.log.Info("stopped")
	a.Close()
	return nil
}

// Close releases the store and log sinks. Stop calls it.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
