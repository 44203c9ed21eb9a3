package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// A second call must not fail even against a different registerer.
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestHelpersDoNotPanic(t *testing.T) {
	IncWorkerStart()
	IncWorkerStop()
	IncWorkerRestart()
	IncOutputDropped()
	ObserveProbe("online", 0.01)
	ObserveProbe("offline", 0.02)
	IncProxyRequest("200")
	IncProxyFailFast()
	IncProxyError()
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ObserveProbe("online", 0.01)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "aigate_probe_results_total") {
		t.Error("probe counter missing from exposition")
	}
}
