package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/pulsectl/internal/liveness"
	"github.com/pelletier/go-toml/v2"
)

// ServerConfig is the on-disk shape for pulsed.
type ServerConfig struct {
	Port                int      `toml:"port"`
	AdminListenAddr     string   `toml:"admin_listen_addr"`
	CorsOrigins         []string `toml:"cors_origins"`
	KeepaliveIntervalMS int64    `toml:"keepalive_interval_ms"`
	KeepaliveTimeoutMS  int64    `toml:"keepalive_timeout_ms"`
}

// ClientConfig is the on-disk shape for pulsectl.
type ClientConfig struct {
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	KeepaliveIntervalMS int64  `toml:"keepalive_interval_ms"`
	KeepaliveTimeoutMS  int64  `toml:"keepalive_timeout_ms"`
	MaxConnectAttempts  int    `toml:"max_connect_attempts"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.Port == 0 {
		cfg.Port = 7600
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 7600
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("server config port out of range: %d", cfg.Port)
	}
	if cfg.KeepaliveIntervalMS < 0 || cfg.KeepaliveTimeoutMS < 0 {
		return fmt.Errorf("server config keepalive periods must be positive")
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("client config missing host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("client config port out of range: %d", cfg.Port)
	}
	if cfg.KeepaliveIntervalMS < 0 || cfg.KeepaliveTimeoutMS < 0 {
		return fmt.Errorf("client config keepalive periods must be positive")
	}
	return nil
}

// Liveness converts the millisecond file keys to a liveness config,
// defaulting unset periods.
func (c ServerConfig) Liveness() liveness.Config {
	return livenessFromMillis(c.KeepaliveIntervalMS, c.KeepaliveTimeoutMS)
}

func (c ClientConfig) Liveness() liveness.Config {
	return livenessFromMillis(c.KeepaliveIntervalMS, c.KeepaliveTimeoutMS)
}

func livenessFromMillis(intervalMS, timeoutMS int64) liveness.Config {
	return liveness.Config{
		KeepaliveInterval: time.Duration(intervalMS) * time.Millisecond,
		KeepaliveTimeout:  time.Duration(timeoutMS) * time.Millisecond,
	}.WithDefaults()
}
