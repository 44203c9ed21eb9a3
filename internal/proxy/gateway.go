package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/puntaiq/aigate/internal/health"
	"github.com/puntaiq/aigate/internal/metrics"
)

// DefaultRequestTimeout bounds a forwarded request. It is deliberately longer
// than the probe timeout: forwarded calls carry real prediction payloads.
const DefaultRequestTimeout = 30 * time.Second

// ErrWorkerUnavailable is the typed failure surfaced when the worker is
// known-offline or a forward attempt fails at transport level. Callers may
// retry later; the gateway never retries on their behalf.
var ErrWorkerUnavailable = errors.New("prediction worker unavailable")

// Config configures a Gateway.
type Config struct {
	// Prefix is the mount path stripped from incoming requests, e.g. "/api/ai".
	Prefix string
	// TargetURL is the worker base address, e.g. http://127.0.0.1:5001.
	TargetURL string
	// RequestTimeout bounds each forwarded request.
	RequestTimeout time.Duration
}

// Gateway forwards application requests to the worker. Before forwarding it
// consults the Aggregator and fails fast with 503 when the cached state is
// offline, without opening a connection. It never writes health state; the
// prober is the single writer and the next tick repairs the cache on its own.
type Gateway struct {
	prefix  string
	target  *url.URL
	timeout time.Duration
	agg     *health.Aggregator
	rp      *httputil.ReverseProxy
	log     *slog.Logger
}

// New validates cfg and builds a Gateway reading cached health from agg.
func New(cfg Config, agg *health.Aggregator, log *slog.Logger) (*Gateway, error) {
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid target URL %q: %w", cfg.TargetURL, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("proxy: target URL %q must be http or https", cfg.TargetURL)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		prefix:  strings.TrimRight(cfg.Prefix, "/"),
		target:  target,
		timeout: timeout,
		agg:     agg,
		log:     log,
	}
	g.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = g.stripPrefix(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			metrics.IncProxyError()
			g.log.Warn("forward to worker failed", "path", r.URL.Path, "error", fmt.Errorf("%w: %v", ErrWorkerUnavailable, err))
			writeUnavailable(w, "forwarding to the prediction worker failed; it may be restarting")
		},
		ModifyResponse: func(resp *http.Response) error {
			metrics.IncProxyRequest(strconv.Itoa(resp.StatusCode))
			return nil
		},
	}
	return g, nil
}

// Prefix returns the mount prefix the gateway strips.
func (g *Gateway) Prefix() string { return g.prefix }

// SetTransport swaps the upstream transport. Test hook.
func (g *Gateway) SetTransport(rt http.RoundTripper) { g.rp.Transport = rt }

func (g *Gateway) stripPrefix(path string) string {
	if g.prefix != "" && strings.HasPrefix(path, g.prefix) {
		path = path[len(g.prefix):]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// ServeHTTP implements the forward contract. Worker responses, including
// non-2xx ones, stream back unmodified apart from hop-by-hop headers.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.agg.Get().State == health.StateOffline {
		metrics.IncProxyFailFast()
		writeUnavailable(w, "the prediction worker is offline; try again after it has been restarted")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()
	g.rp.ServeHTTP(w, r.WithContext(ctx))
}

type unavailableBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeUnavailable(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(unavailableBody{Status: "offline", Message: msg})
}
