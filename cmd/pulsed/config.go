package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pulsectl/internal/server"
)

// pulsed config.toml key mapping onto runtime defaults. Both duration
// strings and millisecond integer keys are accepted for the keepalive
// periods; the _ms form wins when both are present.
type fileConfig struct {
	Port                int      `toml:"port"`
	AdminListenAddr     string   `toml:"admin_listen_addr"`
	CorsOrigins         []string `toml:"cors_origins"`
	KeepaliveInterval   string   `toml:"keepalive_interval"`
	KeepaliveIntervalMS int64    `toml:"keepalive_interval_ms"`
	KeepaliveTimeout    string   `toml:"keepalive_timeout"`
	KeepaliveTimeoutMS  int64    `toml:"keepalive_timeout_ms"`
}

func loadServiceConfig(path string) (server.ServiceConfig, error) {
	cfg := server.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return server.ServiceConfig{}, fmt.Errorf("load pulsed config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}

	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if meta.IsDefined("keepalive_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.KeepaliveInterval))
		if err != nil {
			return server.ServiceConfig{}, fmt.Errorf("parse keepalive_interval: %w", err)
		}
		cfg.Liveness.KeepaliveInterval = d
	}

	if meta.IsDefined("keepalive_interval_ms") {
		cfg.Liveness.KeepaliveInterval = time.Duration(raw.KeepaliveIntervalMS) * time.Millisecond
	}

	if meta.IsDefined("keepalive_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.KeepaliveTimeout))
		if err != nil {
			return server.ServiceConfig{}, fmt.Errorf("parse keepalive_timeout: %w", err)
		}
		cfg.Liveness.KeepaliveTimeout = d
	}

	if meta.IsDefined("keepalive_timeout_ms") {
		cfg.Liveness.KeepaliveTimeout = time.Duration(raw.KeepaliveTimeoutMS) * time.Millisecond
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return server.ServiceConfig{}, fmt.Errorf("load pulsed config: port out of range: %d", cfg.Port)
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
