package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of successful worker process starts.",
		},
	)
	workerStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of worker process exits (graceful or kill).",
		},
	)
	workerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of operator-requested worker restarts.",
		},
	)
	workerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aigate",
			Subsystem: "worker",
			Name:      "up",
			Help:      "1 when the last completed probe classified the worker online.",
		},
	)
	outputDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "worker",
			Name:      "output_lines_dropped_total",
			Help:      "Worker output lines dropped because the file-sink buffer was full.",
		},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Completed health probes by resulting state.",
		}, []string{"state"},
	)
	probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aigate",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Wall time of a single health probe.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied requests by upstream response code class.",
		}, []string{"code"},
	)
	proxyFailFast = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "proxy",
			Name:      "failfast_total",
			Help:      "Requests rejected without a network call because the worker was offline.",
		},
	)
	proxyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aigate",
			Subsystem: "proxy",
			Name:      "upstream_errors_total",
			Help:      "Forward attempts that failed at transport level.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		workerStarts, workerStops, workerRestarts, workerUp, outputDropped,
		probes, probeDuration, proxyRequests, proxyFailFast, proxyErrors,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncWorkerStart()   { workerStarts.Inc() }
func IncWorkerStop()    { workerStops.Inc() }
func IncWorkerRestart() { workerRestarts.Inc() }

func IncOutputDropped() { outputDropped.Inc() }

// ObserveProbe records one completed probe and refreshes the up gauge.
func ObserveProbe(state string, seconds float64) {
	probes.WithLabelValues(state).Inc()
	probeDuration.Observe(seconds)
	if state == "online" {
		workerUp.Set(1)
	} else {
		workerUp.Set(0)
	}
}

func IncProxyRequest(code string) { proxyRequests.WithLabelValues(code).Inc() }
func IncProxyFailFast()           { proxyFailFast.Inc() }
func IncProxyError()              { proxyErrors.Inc() }
