// Package aigate supervises the PuntaIQ prediction worker process, probes
// its health in the background, and routes application traffic to it through
// a fail-fast proxy gateway.
package aigate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/puntaiq/aigate/internal/config"
	"github.com/puntaiq/aigate/internal/diag"
	"github.com/puntaiq/aigate/internal/health"
	"github.com/puntaiq/aigate/internal/history"
	histfactory "github.com/puntaiq/aigate/internal/history/factory"
	"github.com/puntaiq/aigate/internal/logger"
	"github.com/puntaiq/aigate/internal/metrics"
	"github.com/puntaiq/aigate/internal/proxy"
	"github.com/puntaiq/aigate/internal/server"
	"github.com/puntaiq/aigate/internal/worker"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = cfg.Config

type WorkerSpec = worker.Spec

type WorkerHandle = worker.Handle

type HealthState = health.State

type Snapshot = health.Snapshot

type HistoryStore = history.Store

type DiagReport = diag.Report

const (
	StateOnline   = health.StateOnline
	StateDegraded = health.StateDegraded
	StateOffline  = health.StateOffline
)

// LoadConfig reads and validates a TOML configuration file; an empty path
// yields defaults plus AIGATE_* environment overrides.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// Gate wires the supervisor, prober, aggregator, gateway, and diagnostics
// into one runnable unit.
type Gate struct {
	cfg    Config
	log    *slog.Logger
	sup    *worker.Supervisor
	agg    *health.Aggregator
	prober *health.Prober
	gw     *proxy.Gateway
	doctor *diag.Doctor
	hist   history.Store
	srv    *http.Server

	cancel context.CancelFunc
}

// New validates the configuration and assembles a Gate. Nothing is started.
func New(c Config, log *slog.Logger) (*Gate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewConsole(c.Debug)
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	sup := worker.New(worker.Spec{
		Name:        c.Worker.Name,
		Command:     c.Worker.Command,
		WorkDir:     c.Worker.WorkDir,
		Env:         c.Worker.Env,
		Port:        c.Worker.Port,
		GracePeriod: c.Worker.GracePeriod,
		Log:         c.Worker.Log,
	}, log)

	agg := health.NewAggregator()
	prober, err := health.NewProber(health.ProberConfig{
		BaseURL:  c.WorkerBaseURL(),
		Path:     c.Probe.Path,
		Interval: c.Probe.Interval,
		Timeout:  c.Probe.Timeout,
	}, agg, sup.Generation, log)
	if err != nil {
		return nil, err
	}

	gw, err := proxy.New(proxy.Config{
		Prefix:         c.Proxy.Prefix,
		TargetURL:      c.WorkerBaseURL(),
		RequestTimeout: c.Proxy.RequestTimeout,
	}, agg, log)
	if err != nil {
		return nil, err
	}

	doctor, err := diag.New(c.WorkerBaseURL(), "http://127.0.0.1"+normalizeListen(c.Listen), c.Proxy.Prefix, c.Probe.Path, c.Probe.Timeout)
	if err != nil {
		return nil, err
	}

	hist, err := histfactory.New(c.History)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	g := &Gate{cfg: c, log: log, sup: sup, agg: agg, prober: prober, gw: gw, doctor: doctor, hist: hist}
	sup.OnStart(g.recordStart)
	sup.OnRestart(g.recordRestart)
	sup.OnExit(g.recordExit)
	return g, nil
}

// Supervisor exposes the worker supervisor for embedding scenarios.
func (g *Gate) Supervisor() *worker.Supervisor { return g.sup }

// Aggregator exposes the health cache for embedding scenarios.
func (g *Gate) Aggregator() *health.Aggregator { return g.agg }

// Gateway exposes the proxy handler for mounting into a host application.
func (g *Gate) Gateway() http.Handler { return g.gw }

// Router builds the HTTP surface without starting a server, for embedding.
func (g *Gate) Router() http.Handler {
	return server.NewRouter(g.sup, g.agg, g.gw, g.doctor, g.cfg.BasePath).Handler()
}

// Start launches the worker and the background probe loop without the
// built-in HTTP server, for embedding into a host application. Probing stops
// when ctx is canceled; the caller owns worker teardown via Supervisor().
func (g *Gate) Start(ctx context.Context) error {
	if g.hist != nil {
		if err := g.hist.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
		if rec, err := g.hist.LastRestart(ctx); err == nil {
			g.sup.SeedLastRestartAt(rec.OccurredAt)
		} else if !errors.Is(err, history.ErrNoEvents) {
			g.log.Warn("loading last restart from history failed", "error", err)
		}
	}
	if _, err := g.sup.Start(); err != nil {
		return err
	}
	go g.prober.Run(ctx)
	return nil
}

// Run starts the worker, the probe loop, and the HTTP server, then blocks
// until ctx is canceled. The worker is torn down before Run returns.
func (g *Gate) Run(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	defer cancel()

	if err := g.Start(cctx); err != nil {
		return err
	}

	router := server.NewRouter(g.sup, g.agg, g.gw, g.doctor, g.cfg.BasePath)
	g.srv = server.NewServer(g.cfg.Listen, router)
	g.log.Info("aigate listening", "addr", g.cfg.Listen, "proxy_prefix", g.cfg.Proxy.Prefix)

	<-cctx.Done()
	return g.shutdown()
}

func (g *Gate) shutdown() error {
	g.log.Info("shutting down")
	if g.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.srv.Shutdown(sctx)
	}
	g.sup.Shutdown()
	if g.hist != nil {
		_ = g.hist.Close()
	}
	return nil
}

// Stop requests Run to return.
func (g *Gate) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}

// Restart forwards to the supervisor; history recording happens via the
// supervisor's restart hook so HTTP-initiated restarts are captured too.
func (g *Gate) Restart(ctx context.Context) (*WorkerHandle, error) {
	return g.sup.Restart(ctx)
}

func (g *Gate) recordRestart(h worker.Handle) {
	if g.hist == nil {
		return
	}
	rec := history.Record{
		Event:      history.EventRestart,
		PID:        h.PID,
		StartedAt:  h.StartedAt,
		OccurredAt: time.Now().UTC(),
		Detail:     "operator restart",
	}
	if err := g.hist.Append(context.Background(), rec); err != nil {
		g.log.Warn("recording restart event failed", "error", err)
	}
}

func (g *Gate) recordStart(h worker.Handle) {
	if g.hist == nil {
		return
	}
	rec := history.Record{
		Event:      history.EventStart,
		PID:        h.PID,
		StartedAt:  h.StartedAt,
		OccurredAt: time.Now().UTC(),
	}
	if err := g.hist.Append(context.Background(), rec); err != nil {
		g.log.Warn("recording start event failed", "error", err)
	}
}

func (g *Gate) recordExit(h worker.Handle, code int, exitErr error) {
	if g.hist == nil {
		return
	}
	rec := history.Record{
		Event:      history.EventStop,
		PID:        h.PID,
		StartedAt:  h.StartedAt,
		OccurredAt: time.Now().UTC(),
		ExitCode:   sql.NullInt64{Int64: int64(code), Valid: true},
	}
	if exitErr != nil {
		rec.Detail = exitErr.Error()
	}
	if err := g.hist.Append(context.Background(), rec); err != nil {
		g.log.Warn("recording stop event failed", "error", err)
	}
}

func normalizeListen(listen string) string {
	if listen == "" {
		return ":5000"
	}
	if listen[0] == ':' {
		return listen
	}
	// host:port given; keep the port only, diagnostics always loops back
	for i := len(listen) - 1; i >= 0; i-- {
		if listen[i] == ':' {
			return listen[i:]
		}
	}
	return ":" + listen
}
