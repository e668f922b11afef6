package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Backend struct {
		BaseURL     string        `yaml:"base_url"`
		AccessToken string        `yaml:"access_token"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"backend"`

	Signal struct {
		URL          string        `yaml:"url"`
		PingInterval time.Duration `yaml:"ping_interval"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Media struct {
		DefaultQuality string `yaml:"default_quality"`
	} `yaml:"media"`

	Thumbnail struct {
		SettleDelay  time.Duration `yaml:"settle_delay"`
		PollAttempts int           `yaml:"poll_attempts"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"thumbnail"`

	Control struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"control"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0")
	}

	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}

	if c.Media.DefaultQuality == "" {
		return fmt.Errorf("media.default_quality must not be empty")
	}

	if c.Thumbnail.SettleDelay < 0 {
		return fmt.Errorf("thumbnail.settle_delay must be >= 0")
	}
	if c.Thumbnail.PollAttempts <= 0 {
		return fmt.Errorf("thumbnail.poll_attempts must be > 0")
	}
	if c.Thumbnail.PollInterval <= 0 {
		return fmt.Errorf("thumbnail.poll_interval must be > 0")
	}

	if c.Control.Address == "" {
		return fmt.Errorf("control.address must not be empty")
	}
	if c.Control.ReadTimeout <= 0 {
		return fmt.Errorf("control.read_timeout must be > 0")
	}
	if c.Control.WriteTimeout <= 0 {
		return fmt.Errorf("control.write_timeout must be > 0")
	}
	if c.Control.ShutdownTimeout <= 0 {
		return fmt.Errorf("control.shutdown_timeout must be > 0")
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Backend.BaseURL = "http://localhost:8001/api"
	cfg.Backend.Timeout = 10 * time.Second

	cfg.Signal.URL = "ws://localhost:8001/api/streaming/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second

	cfg.WebRTC.ICEServers = []struct {
		URLs       []string `yaml:"urls"`
		Username   string   `yaml:"username,omitempty"`
		Credential string   `yaml:"credential,omitempty"`
	}{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
	}

	cfg.Media.DefaultQuality = "medium"

	cfg.Thumbnail.SettleDelay = 3 * time.Second
	cfg.Thumbnail.PollAttempts = 5
	cfg.Thumbnail.PollInterval = time.Second

	cfg.Control.Address = ":8090"
	cfg.Control.ReadTimeout = 30 * time.Second
	cfg.Control.WriteTimeout = 30 * time.Second
	cfg.Control.ShutdownTimeout = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("LUMECAST_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if token := os.Getenv("LUMECAST_ACCESS_TOKEN"); token != "" {
		c.Backend.AccessToken = token
	}
	if url := os.Getenv("LUMECAST_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if addr := os.Getenv("LUMECAST_CONTROL_ADDRESS"); addr != "" {
		c.Control.Address = addr
	}
	if level := os.Getenv("LUMECAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
