package diag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/puntaiq/aigate/internal/health"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","message":"AI prediction service is running"}`))
}

func newDoctor(t *testing.T, workerBase, gatewayBase string) *Doctor {
	t.Helper()
	d, err := New(workerBase, gatewayBase, "/api/ai", "/api/status", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestRun_Healthy(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		okHandler(w, r)
	}))
	defer worker.Close()
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ai/api/status" {
			http.NotFound(w, r)
			return
		}
		okHandler(w, r)
	}))
	defer gateway.Close()

	rep := newDoctor(t, worker.URL, gateway.URL).Run(context.Background())
	if rep.Verdict != VerdictHealthy {
		t.Fatalf("verdict = %s (%s)", rep.Verdict, rep.Summary)
	}
	if !rep.Direct.OK || !rep.Proxied.OK {
		t.Error("both checks should pass")
	}
	if rep.Direct.State != health.StateOnline {
		t.Errorf("direct state = %s", rep.Direct.State)
	}
}

func TestRun_HealthyCarriesDetailedServices(t *testing.T) {
	const body = `{"status":"ok","message":"AI prediction service is running","detailed":{
		"overall":"ok",
		"services":{
			"odds_api":{"status":"ok","last_check":"2026-08-30T11:00:00Z"},
			"stats_api":{"status":"error","last_check":"2026-08-30T10:59:00Z"}},
		"timestamp":"2026-08-30T11:00:01Z"}}`
	detailedHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		detailedHandler(w, r)
	}))
	defer worker.Close()
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ai/api/status" {
			http.NotFound(w, r)
			return
		}
		detailedHandler(w, r)
	}))
	defer gateway.Close()

	rep := newDoctor(t, worker.URL, gateway.URL).Run(context.Background())
	if rep.Verdict != VerdictHealthy {
		t.Fatalf("verdict = %s (%s)", rep.Verdict, rep.Summary)
	}
	for _, res := range []struct {
		name  string
		check CheckResult
	}{{"direct", rep.Direct}, {"proxied", rep.Proxied}} {
		if res.check.State != health.StateOnline {
			t.Errorf("%s state = %s", res.name, res.check.State)
		}
		if res.check.Detailed == nil {
			t.Fatalf("%s check lost the detailed section", res.name)
		}
		if got := res.check.Detailed.Services["odds_api"].State; got != health.StateOnline {
			t.Errorf("%s odds_api state = %s", res.name, got)
		}
		if got := res.check.Detailed.Services["stats_api"].State; got != health.StateDegraded {
			t.Errorf("%s stats_api state = %s", res.name, got)
		}
	}
	if !reflect.DeepEqual(rep.Direct.Detailed.Services, rep.Proxied.Detailed.Services) {
		t.Errorf("direct and proxied services disagree:\n%v\n%v",
			rep.Direct.Detailed.Services, rep.Proxied.Detailed.Services)
	}
}

func TestRun_WorkerUnreachable(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(okHandler))
	workerURL := worker.URL
	worker.Close() // worker gone

	gateway := httptest.NewServer(http.HandlerFunc(okHandler))
	defer gateway.Close()

	rep := newDoctor(t, workerURL, gateway.URL).Run(context.Background())
	if rep.Verdict != VerdictWorkerUnreachable {
		t.Fatalf("verdict = %s", rep.Verdict)
	}
	if len(rep.Remediation) == 0 {
		t.Error("unreachable worker should come with remediation steps")
	}
	if rep.Direct.Error == "" {
		t.Error("direct check should carry the transport error")
	}
}

func TestRun_ProxyMisconfigured(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(okHandler))
	defer worker.Close()
	// The gateway answers, but nothing is mounted at the proxy prefix.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer gateway.Close()

	rep := newDoctor(t, worker.URL, gateway.URL).Run(context.Background())
	if rep.Verdict != VerdictProxyMisconfig {
		t.Fatalf("verdict = %s (%s)", rep.Verdict, rep.Summary)
	}
	if !rep.Direct.OK {
		t.Error("direct check should pass")
	}
	if rep.Proxied.OK {
		t.Error("proxied check should fail")
	}
}

func TestRun_Degraded(t *testing.T) {
	degradedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"sports data API unreachable"}`))
	})
	worker := httptest.NewServer(degradedHandler)
	defer worker.Close()
	gateway := httptest.NewServer(degradedHandler)
	defer gateway.Close()

	rep := newDoctor(t, worker.URL, gateway.URL).Run(context.Background())
	if rep.Verdict != VerdictDegraded {
		t.Fatalf("verdict = %s (%s)", rep.Verdict, rep.Summary)
	}
	if rep.Direct.Message != "sports data API unreachable" {
		t.Errorf("worker message should surface, got %q", rep.Direct.Message)
	}
}
