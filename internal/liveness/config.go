package liveness

import "time"

const (
	DefaultKeepaliveInterval = 10 * time.Second
	DefaultKeepaliveTimeout  = 30 * time.Second
)

// Config holds the two per-connection scheduling periods.
type Config struct {
	// KeepaliveInterval is the probe emission period.
	KeepaliveInterval time.Duration
	// KeepaliveTimeout is both the tolerated silence duration and the check
	// period. The check runs on a fixed period equal to the timeout value, so
	// detection latency for a stalled connection is between one and two
	// timeout periods. That policy is deliberate; do not shorten the poll.
	KeepaliveTimeout time.Duration
}

// WithDefaults fills unset fields with protocol defaults.
func (c Config) WithDefaults() Config {
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	return c
}
