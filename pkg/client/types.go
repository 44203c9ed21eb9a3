package client

import (
	"time"

	"github.com/puntaiq/aigate/internal/diag"
	"github.com/puntaiq/aigate/internal/health"
)

// StatusResponse mirrors GET {base}/status.
type StatusResponse struct {
	Status        string                            `json:"status"`
	Message       string                            `json:"message"`
	Uptime        float64                           `json:"uptime,omitempty"`
	LastCheckedAt time.Time                         `json:"lastCheckedAt,omitempty"`
	LastRestartAt *time.Time                        `json:"lastRestartAt,omitempty"`
	PerSubsystem  map[string]health.SubsystemStatus `json:"perSubsystem,omitempty"`
	Detailed      *health.Detailed                  `json:"detailed,omitempty"`
}

// RestartResponse mirrors POST {base}/status/restart.
type RestartResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DiagnosticsReport mirrors GET {base}/diagnostics.
type DiagnosticsReport = diag.Report
