package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/puntaiq/aigate/internal/history"
	"github.com/puntaiq/aigate/internal/logger"
)

// Config is the top-level TOML structure. Values are read once at startup;
// there is no hot reload, the worker's address is fixed configuration.
type Config struct {
	Listen   string        `mapstructure:"listen"`    // gateway HTTP listen address
	BasePath string        `mapstructure:"base_path"` // mount for the status API
	Debug    bool          `mapstructure:"debug"`
	Worker   WorkerConfig  `mapstructure:"worker"`
	Probe    ProbeConfig   `mapstructure:"probe"`
	Proxy    ProxyConfig   `mapstructure:"proxy"`
	History  history.Config `mapstructure:"history"`
}

type WorkerConfig struct {
	Name        string        `mapstructure:"name"`
	Command     string        `mapstructure:"command"`
	WorkDir     string        `mapstructure:"workdir"`
	Env         []string      `mapstructure:"env"`
	Port        int           `mapstructure:"port"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Log         logger.Config `mapstructure:"log"`
}

type ProbeConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Path     string        `mapstructure:"path"`
}

type ProxyConfig struct {
	Prefix         string        `mapstructure:"prefix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Default returns the configuration used when no file is given: a Python
// prediction worker next to the gateway, probed every 10 seconds.
func Default() Config {
	return Config{
		Listen:   ":5000",
		BasePath: "/api",
		Worker: WorkerConfig{
			Name:        "predictor",
			Command:     "python3 main.py",
			WorkDir:     "./ai_service",
			Port:        5001,
			GracePeriod: 5 * time.Second,
			Log:         logger.Config{Dir: "./logs"},
		},
		Probe: ProbeConfig{
			Interval: 10 * time.Second,
			Timeout:  3 * time.Second,
			Path:     "/api/status",
		},
		Proxy: ProxyConfig{
			Prefix:         "/api/ai",
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Load reads path (TOML) over the defaults, applies AIGATE_* env overrides,
// and validates the result. An empty path loads defaults plus env only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("AIGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("listen", d.Listen)
	v.SetDefault("base_path", d.BasePath)
	v.SetDefault("worker.name", d.Worker.Name)
	v.SetDefault("worker.command", d.Worker.Command)
	v.SetDefault("worker.workdir", d.Worker.WorkDir)
	v.SetDefault("worker.port", d.Worker.Port)
	v.SetDefault("worker.grace_period", d.Worker.GracePeriod)
	v.SetDefault("worker.log.dir", d.Worker.Log.Dir)
	v.SetDefault("probe.interval", d.Probe.Interval)
	v.SetDefault("probe.timeout", d.Probe.Timeout)
	v.SetDefault("probe.path", d.Probe.Path)
	v.SetDefault("proxy.prefix", d.Proxy.Prefix)
	v.SetDefault("proxy.request_timeout", d.Proxy.RequestTimeout)
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Worker.Command) == "" {
		return fmt.Errorf("worker.command is required")
	}
	if c.Worker.Port <= 0 || c.Worker.Port > 65535 {
		return fmt.Errorf("worker.port %d out of range", c.Worker.Port)
	}
	if c.Probe.Interval <= 0 {
		return fmt.Errorf("probe.interval must be positive")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Proxy.RequestTimeout <= c.Probe.Timeout {
		return fmt.Errorf("proxy.request_timeout (%s) must exceed probe.timeout (%s)", c.Proxy.RequestTimeout, c.Probe.Timeout)
	}
	if !strings.HasPrefix(c.Proxy.Prefix, "/") {
		return fmt.Errorf("proxy.prefix %q must start with '/'", c.Proxy.Prefix)
	}
	switch c.History.Type {
	case "", "sqlite", "postgres", "postgresql", "clickhouse":
	default:
		return fmt.Errorf("history.type %q is not supported", c.History.Type)
	}
	if c.History.Type != "" && strings.TrimSpace(c.History.DSN) == "" {
		return fmt.Errorf("history.dsn is required when history.type is set")
	}
	return nil
}

// WorkerBaseURL is the address the probe and proxy target.
func (c *Config) WorkerBaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.Worker.Port)
}

