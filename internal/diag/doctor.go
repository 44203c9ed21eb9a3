package diag

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/puntaiq/aigate/internal/health"
)

// Verdict is the overall conclusion of a connectivity check.
type Verdict string

const (
	VerdictHealthy           Verdict = "healthy"
	VerdictDegraded          Verdict = "degraded"
	VerdictProxyMisconfig    Verdict = "proxy-misconfigured"
	VerdictWorkerUnreachable Verdict = "worker-unreachable"
)

// CheckResult is the outcome of one status request, direct or proxied.
type CheckResult struct {
	URL      string           `json:"url"`
	OK       bool             `json:"ok"`
	HTTPCode int              `json:"httpCode,omitempty"`
	State    health.State     `json:"state"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
	Elapsed  time.Duration    `json:"elapsedNs"`
	Detailed *health.Detailed `json:"detailed,omitempty"`
}

// Report compares the direct worker path against the proxied path.
type Report struct {
	CheckedAt   time.Time   `json:"checkedAt"`
	Direct      CheckResult `json:"direct"`
	Proxied     CheckResult `json:"proxied"`
	Verdict     Verdict     `json:"verdict"`
	Summary     string      `json:"summary"`
	Remediation []string    `json:"remediation,omitempty"`
}

// Doctor runs on-demand connectivity checks. It exercises the worker's status
// endpoint twice, once directly and once through the gateway mount, and
// reports discrepancies. It never mutates state and is safe to run
// concurrently with normal traffic.
type Doctor struct {
	directURL  string
	proxiedURL string
	client     *http.Client
}

// New builds a Doctor. workerBase is the worker's address, gatewayBase the
// supervisor's own listen address, and prefix the proxy mount prefix.
func New(workerBase, gatewayBase, prefix, statusPath string, timeout time.Duration) (*Doctor, error) {
	if statusPath == "" {
		statusPath = health.DefaultPath
	}
	if timeout <= 0 {
		timeout = health.DefaultTimeout
	}
	wu, err := url.Parse(workerBase)
	if err != nil {
		return nil, fmt.Errorf("diag: invalid worker base URL %q: %w", workerBase, err)
	}
	gu, err := url.Parse(gatewayBase)
	if err != nil {
		return nil, fmt.Errorf("diag: invalid gateway base URL %q: %w", gatewayBase, err)
	}
	return &Doctor{
		directURL:  wu.JoinPath(statusPath).String(),
		proxiedURL: gu.JoinPath(strings.TrimPrefix(prefix, "/"), statusPath).String(),
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// SetTransport swaps the HTTP transport. Test hook.
func (d *Doctor) SetTransport(rt http.RoundTripper) { d.client.Transport = rt }

// Run performs both checks and renders the comparison.
func (d *Doctor) Run(ctx context.Context) Report {
	rep := Report{CheckedAt: time.Now()}
	rep.Direct = d.check(ctx, d.directURL)
	rep.Proxied = d.check(ctx, d.proxiedURL)

	switch {
	case !rep.Direct.OK:
		rep.Verdict = VerdictWorkerUnreachable
		rep.Summary = "the prediction worker did not answer its status endpoint"
		rep.Remediation = []string{
			"verify the worker process is running (GET /status or aigate status)",
			"verify the worker is listening on the configured port",
			"verify no firewall rule blocks loopback traffic to the worker port",
		}
	case !rep.Proxied.OK:
		rep.Verdict = VerdictProxyMisconfig
		rep.Summary = "the worker answers directly but not through the gateway mount; check the proxy prefix and target address"
	case rep.Direct.State == health.StateOnline && rep.Proxied.State == health.StateOnline:
		rep.Verdict = VerdictHealthy
		rep.Summary = "worker reachable on both the direct and the proxied path"
	default:
		rep.Verdict = VerdictDegraded
		rep.Summary = "worker reachable but reporting a non-ok internal status"
	}
	return rep
}

func (d *Doctor) check(ctx context.Context, target string) CheckResult {
	res := CheckResult{URL: target, State: health.StateOffline}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Error = err.Error()
		res.Elapsed = time.Since(start)
		return res
	}
	resp, err := d.client.Do(req)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer func() { _ = resp.Body.Close() }()
	res.HTTPCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res
	}

	report, err := health.ParseWorkerStatus(body, time.Now())
	if err != nil {
		res.OK = true
		res.State = health.StateDegraded
		res.Error = "malformed status payload: " + err.Error()
		return res
	}
	res.OK = true
	res.Message = report.Message
	res.Detailed = report.Detailed
	if report.OK() {
		res.State = health.StateOnline
	} else {
		res.State = health.StateDegraded
	}
	return res
}
