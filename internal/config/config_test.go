package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if c.WorkerBaseURL() != "http://127.0.0.1:5001" {
		t.Errorf("worker base URL = %s", c.WorkerBaseURL())
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != ":5000" || c.BasePath != "/api" {
		t.Errorf("defaults not applied: listen=%s base=%s", c.Listen, c.BasePath)
	}
	if c.Probe.Interval != 10*time.Second {
		t.Errorf("probe interval = %s", c.Probe.Interval)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aigate.toml")
	content := `
listen = ":8090"
base_path = "/api"
debug = true

[worker]
name = "predictor"
command = "python3 app.py"
workdir = "/srv/ai_service"
port = 6001
grace_period = "10s"

[worker.log]
dir = "/var/log/aigate"
max_size_mb = 5

[probe]
interval = "5s"
timeout = "2s"
path = "/api/status"

[proxy]
prefix = "/api/ai"
request_timeout = "45s"

[history]
type = "sqlite"
dsn = "/var/lib/aigate/history.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8090", c.Listen)
	require.True(t, c.Debug)
	require.Equal(t, "python3 app.py", c.Worker.Command)
	require.Equal(t, 6001, c.Worker.Port)
	require.Equal(t, 10*time.Second, c.Worker.GracePeriod)
	require.Equal(t, "/var/log/aigate", c.Worker.Log.Dir)
	require.Equal(t, 5, c.Worker.Log.MaxSizeMB)
	require.Equal(t, 5*time.Second, c.Probe.Interval)
	require.Equal(t, 2*time.Second, c.Probe.Timeout)
	require.Equal(t, 45*time.Second, c.Proxy.RequestTimeout)
	require.Equal(t, "sqlite", c.History.Type)
	require.NotEmpty(t, c.History.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/aigate.toml"); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty command", func(c *Config) { c.Worker.Command = "  " }},
		{"port zero", func(c *Config) { c.Worker.Port = 0 }},
		{"port too high", func(c *Config) { c.Worker.Port = 70000 }},
		{"zero probe interval", func(c *Config) { c.Probe.Interval = 0 }},
		{"zero probe timeout", func(c *Config) { c.Probe.Timeout = 0 }},
		{"request timeout below probe timeout", func(c *Config) { c.Proxy.RequestTimeout = time.Second; c.Probe.Timeout = 2 * time.Second }},
		{"prefix without slash", func(c *Config) { c.Proxy.Prefix = "api/ai" }},
		{"unknown history type", func(c *Config) { c.History.Type = "mongodb"; c.History.DSN = "x" }},
		{"history without dsn", func(c *Config) { c.History.Type = "sqlite" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AIGATE_LISTEN", ":9999")
	t.Setenv("AIGATE_WORKER_PORT", "7001")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != ":9999" {
		t.Errorf("env override for listen not applied: %s", c.Listen)
	}
	if c.Worker.Port != 7001 {
		t.Errorf("env override for worker.port not applied: %d", c.Worker.Port)
	}
}
