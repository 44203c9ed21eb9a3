package health

import (
	"encoding/json"
	"time"
)

// State classifies the worker as seen by the most recent completed probe.
type State string

const (
	StateOnline   State = "online"
	StateDegraded State = "degraded"
	StateOffline  State = "offline"
)

// SubsystemStatus is the per-dependency slice of a worker's detailed status
// (each upstream data API the worker talks to reports one).
type SubsystemStatus struct {
	State         State     `json:"state"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// Detailed carries the worker's own detailed status payload when it reports one.
type Detailed struct {
	Overall   string                     `json:"overall"`
	Services  map[string]SubsystemStatus `json:"services"`
	Timestamp time.Time                  `json:"timestamp"`
}

// Snapshot is an immutable, fully-formed health value. It is replaced as a
// whole on every completed probe; readers must never mutate it or its maps.
type Snapshot struct {
	State         State                      `json:"status"`
	Message       string                     `json:"message"`
	LastCheckedAt time.Time                  `json:"lastCheckedAt"`
	PerSubsystem  map[string]SubsystemStatus `json:"perSubsystem,omitempty"`
	Detailed      *Detailed                  `json:"detailed,omitempty"`
}

// wire types for the worker's GET /api/status payload. The worker reports
// "ok" per the contract; older builds of the prediction service say "online",
// both are accepted as healthy.

type workerStatus struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Detailed *workerDetailed `json:"detailed"`
}

type workerDetailed struct {
	Overall   string                   `json:"overall"`
	Services  map[string]workerService `json:"services"`
	Timestamp string                   `json:"timestamp"`
}

type workerService struct {
	Status    string `json:"status"`
	LastCheck string `json:"last_check"`
}

func statusOK(s string) bool { return s == "ok" || s == "online" }

func serviceState(s string) State {
	if statusOK(s) {
		return StateOnline
	}
	return StateDegraded
}

func parseWorkerTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// WorkerReport is the decoded form of the worker's GET /api/status payload.
type WorkerReport struct {
	Status   string
	Message  string
	Detailed *Detailed
	Services map[string]SubsystemStatus
}

// OK reports whether the worker considers itself healthy.
func (r *WorkerReport) OK() bool { return statusOK(r.Status) }

// ParseWorkerStatus decodes the worker's status payload, converting the
// optional detailed section into snapshot form. Malformed JSON is an error;
// classification of that error is the caller's concern.
func ParseWorkerStatus(body []byte, now time.Time) (*WorkerReport, error) {
	var ws workerStatus
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, err
	}
	det, services := ws.Detailed.toDetailed(now)
	return &WorkerReport{Status: ws.Status, Message: ws.Message, Detailed: det, Services: services}, nil
}

func (d *workerDetailed) toDetailed(now time.Time) (*Detailed, map[string]SubsystemStatus) {
	if d == nil {
		return nil, nil
	}
	services := make(map[string]SubsystemStatus, len(d.Services))
	for name, svc := range d.Services {
		at := parseWorkerTime(svc.LastCheck)
		if at.IsZero() {
			at = now
		}
		services[name] = SubsystemStatus{State: serviceState(svc.Status), LastCheckedAt: at}
	}
	ts := parseWorkerTime(d.Timestamp)
	if ts.IsZero() {
		ts = now
	}
	det := &Detailed{Overall: d.Overall, Services: services, Timestamp: ts}
	return det, services
}
