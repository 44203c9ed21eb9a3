package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/puntaiq/aigate/internal/metrics"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 3 * time.Second
	DefaultPath     = "/api/status"

	// maxStatusBody caps how much of the status payload is read.
	maxStatusBody = 1 << 20
)

// ProberConfig configures the background health probe.
type ProberConfig struct {
	BaseURL  string        // worker base address, e.g. http://127.0.0.1:5001
	Path     string        // status endpoint path, default /api/status
	Interval time.Duration // tick period, default 10s
	Timeout  time.Duration // per-probe timeout, default 3s
}

// Prober periodically queries the worker's status endpoint, classifies the
// outcome, and publishes a fresh Snapshot to the Aggregator. It is the only
// writer to the aggregator. Probe failures are absorbed into classification,
// never raised; only a malformed endpoint URL is an error, at construction.
type Prober struct {
	endpoint string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	agg      *Aggregator
	log      *slog.Logger

	// generation, when set, identifies the current worker run; a probe whose
	// run ended before the probe completed is discarded as stale.
	generation func() uint64
}

// NewProber validates cfg and builds a Prober publishing into agg.
// generation may be nil when no supervisor is attached (remote worker).
func NewProber(cfg ProberConfig, agg *Aggregator, generation func() uint64, log *slog.Logger) (*Prober, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("health: invalid worker base URL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("health: worker base URL %q must be http or https", cfg.BaseURL)
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		endpoint:   u.JoinPath(path).String(),
		interval:   interval,
		timeout:    timeout,
		client:     &http.Client{},
		agg:        agg,
		log:        log,
		generation: generation,
	}, nil
}

// SetTransport swaps the probe transport. Test hook.
func (p *Prober) SetTransport(rt http.RoundTripper) { p.client.Transport = rt }

// Run probes immediately, then on every interval tick until ctx is canceled.
// Cancellation is the only way probing ends.
func (p *Prober) Run(ctx context.Context) {
	p.ProbeOnce(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce issues a single bounded probe and, unless the result is stale,
// publishes the classified snapshot. The snapshot is returned for callers
// that probe on demand (diagnostics); publishing failures cannot occur.
func (p *Prober) ProbeOnce(ctx context.Context) *Snapshot {
	var gen uint64
	if p.generation != nil {
		gen = p.generation()
	}
	start := time.Now()
	snap := p.classify(ctx)
	elapsed := time.Since(start)

	if p.generation != nil && p.generation() != gen {
		// The worker was replaced while this probe was in flight; its result
		// describes a dead run.
		p.log.Debug("discarding stale probe", "state", string(snap.State))
		return snap
	}
	prev := p.agg.Get().State
	p.agg.Set(snap)
	metrics.ObserveProbe(string(snap.State), elapsed.Seconds())
	if prev != snap.State {
		p.log.Info("worker health changed", "from", string(prev), "to", string(snap.State), "message", snap.Message)
	}
	return snap
}

// classify maps one probe outcome onto a Snapshot:
//   - transport failure or timeout -> offline
//   - response received but malformed or reporting non-ok -> degraded
//   - 2xx with an ok body -> online
func (p *Prober) classify(ctx context.Context) *Snapshot {
	now := time.Now()
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return &Snapshot{State: StateOffline, Message: "invalid probe request: " + err.Error(), LastCheckedAt: now}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return &Snapshot{State: StateOffline, Message: "worker unreachable: " + err.Error(), LastCheckedAt: now}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return &Snapshot{State: StateOffline, Message: "reading status response: " + err.Error(), LastCheckedAt: now}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Snapshot{
			State:         StateDegraded,
			Message:       fmt.Sprintf("status endpoint returned HTTP %d", resp.StatusCode),
			LastCheckedAt: now,
		}
	}
	report, err := ParseWorkerStatus(body, now)
	if err != nil {
		return &Snapshot{State: StateDegraded, Message: "malformed status payload: " + err.Error(), LastCheckedAt: now}
	}
	if !report.OK() {
		msg := report.Message
		if msg == "" {
			msg = fmt.Sprintf("worker reports status %q", report.Status)
		}
		return &Snapshot{State: StateDegraded, Message: msg, LastCheckedAt: now, PerSubsystem: report.Services, Detailed: report.Detailed}
	}
	msg := report.Message
	if msg == "" {
		msg = "worker is running"
	}
	return &Snapshot{State: StateOnline, Message: msg, LastCheckedAt: now, PerSubsystem: report.Services, Detailed: report.Detailed}
}
