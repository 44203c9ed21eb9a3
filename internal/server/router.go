package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/puntaiq/aigate/internal/diag"
	"github.com/puntaiq/aigate/internal/health"
	"github.com/puntaiq/aigate/internal/metrics"
	"github.com/puntaiq/aigate/internal/proxy"
	"github.com/puntaiq/aigate/internal/worker"
)

// restartWait bounds how long a restart request may hold its HTTP connection.
const restartWait = 30 * time.Second

// Router exposes the supervisor to the application tier and admin UI.
// Endpoints (basePath defaults to /api):
//
//	GET  {basePath}/status          cached health snapshot, never probes
//	POST {basePath}/status/restart  operator-driven worker restart
//	GET  {basePath}/diagnostics     on-demand direct-vs-proxied check
//	ANY  {proxyPrefix}/*            forwarded to the worker, prefix stripped
//	GET  /metrics                   Prometheus metrics
type Router struct {
	sup      *worker.Supervisor
	agg      *health.Aggregator
	gw       *proxy.Gateway
	doctor   *diag.Doctor
	basePath string
}

// NewRouter constructs a Router. doctor may be nil; the diagnostics endpoint
// then answers 501.
func NewRouter(sup *worker.Supervisor, agg *health.Aggregator, gw *proxy.Gateway, doctor *diag.Doctor, basePath string) *Router {
	return &Router{
		sup:      sup,
		agg:      agg,
		gw:       gw,
		doctor:   doctor,
		basePath: sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/status/restart", r.handleRestart)
	group.GET("/diagnostics", r.handleDiagnostics)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	if r.gw != nil {
		g.Any(r.gw.Prefix()+"/*proxyPath", gin.WrapH(r.gw))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type statusResp struct {
	Status        string                            `json:"status"`
	Message       string                            `json:"message"`
	Uptime        float64                           `json:"uptime,omitempty"` // seconds
	LastCheckedAt time.Time                         `json:"lastCheckedAt,omitempty"`
	LastRestartAt *time.Time                        `json:"lastRestartAt,omitempty"`
	PerSubsystem  map[string]health.SubsystemStatus `json:"perSubsystem,omitempty"`
	Detailed      *health.Detailed                  `json:"detailed,omitempty"`
}

type restartResp struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResp struct {
	Error string `json:"error"`
}

// handleStatus always answers from the cached snapshot; it never triggers a
// probe, so its latency does not depend on the worker.
func (r *Router) handleStatus(c *gin.Context) {
	snap := r.agg.Get()
	resp := statusResp{
		Status:        string(snap.State),
		Message:       snap.Message,
		LastCheckedAt: snap.LastCheckedAt,
		PerSubsystem:  snap.PerSubsystem,
		Detailed:      snap.Detailed,
	}
	if r.sup != nil {
		if h := r.sup.Handle(); h != nil {
			resp.Uptime = h.Uptime(time.Now()).Seconds()
		}
		if t := r.sup.LastRestartAt(); !t.IsZero() {
			resp.LastRestartAt = &t
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleRestart(c *gin.Context) {
	if r.sup == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "no supervisor attached"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), restartWait)
	defer cancel()

	h, err := r.sup.Restart(ctx)
	now := time.Now()
	switch {
	case errors.Is(err, worker.ErrRestartInProgress):
		writeJSON(c, http.StatusOK, restartResp{
			Success:   true,
			Message:   "restart already in progress; attached to the in-flight operation",
			Timestamp: now,
		})
	case err != nil:
		writeJSON(c, http.StatusInternalServerError, restartResp{
			Success:   false,
			Message:   "restart failed: " + err.Error(),
			Timestamp: now,
		})
	default:
		writeJSON(c, http.StatusOK, restartResp{
			Success:   true,
			Message:   "worker restarted, pid " + itoa(h.PID),
			Timestamp: now,
		})
	}
}

func (r *Router) handleDiagnostics(c *gin.Context) {
	if r.doctor == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "diagnostics not configured"})
		return
	}
	writeJSON(c, http.StatusOK, r.doctor.Run(c.Request.Context()))
}
