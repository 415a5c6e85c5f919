package loginsolver

import (
	"errors"
	"time"
)

// Config groups the tunable behavior of the Engine. Zero values are not
// usable directly; start from New (which applies defaultConfig) or fill every
// section and let Build validate.
type Config struct {
	Rendezvous RendezvousConfig
	Registry   RegistryConfig
	Flow       FlowConfig
	Security   SecurityConfig
	Device     DeviceConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
RENDEZVOUS CONFIG
====================================
*/

// RendezvousConfig bounds the four blocking hand-off operations. The worker
// side deliberately waits much longer than the caller side: a human can take
// minutes to answer, while an HTTP client holds a connection for seconds and
// polls in between.
type RendezvousConfig struct {
	// SendRequestTimeout bounds a caller handing an answer to the worker.
	SendRequestTimeout time.Duration
	// AwaitRequestTimeout bounds the worker waiting for a human answer.
	// Expiry is fatal for the attempt.
	AwaitRequestTimeout time.Duration
	// SendResponseTimeout bounds the worker signaling a state change.
	SendResponseTimeout time.Duration
	// AwaitResponseTimeout bounds a caller waiting for the next state
	// signal. Expiry is non-fatal; the caller re-queries.
	AwaitResponseTimeout time.Duration
}

/*
====================================
REGISTRY CONFIG
====================================
*/

// RegistryConfig controls session lifetime in the registry.
type RegistryConfig struct {
	// IdleTTL evicts sessions whose last phase transition is older than
	// this. Must exceed Rendezvous.AwaitRequestTimeout so the sweeper can
	// never reclaim a session whose worker is still waiting.
	IdleTTL time.Duration
	// SweepInterval is the tick of the background sweeper.
	SweepInterval time.Duration
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig controls orchestrator-level behavior.
type FlowConfig struct {
	// DebounceWindow rejects a second Start for a principal whose live
	// session is younger than this, reporting EXIST_SESSION instead of
	// superseding the attempt.
	DebounceWindow time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls Redis-backed start throttling.
type SecurityConfig struct {
	EnableStartThrottle   bool
	EnableIPThrottle      bool
	MaxStartAttempts      int
	StartCooldownDuration time.Duration
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig controls device-fingerprint persistence. When Enabled and no
// explicit DeviceStore is supplied to the Builder, a Redis-backed store with
// the given key prefix is used.
type DeviceConfig struct {
	Enabled     bool
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events (counting them) instead of applying
	// backpressure to flow operations.
	DropIfFull bool
}

// MetricsConfig controls the in-process counter set.
type MetricsConfig struct {
	Enabled bool
	// EnableLatencyHistograms additionally tracks answer-relay latency.
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration New starts from. Hosts that need
// to override a handful of settings start here and let Build validate.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Rendezvous: RendezvousConfig{
			SendRequestTimeout:   5 * time.Second,
			AwaitRequestTimeout:  10 * time.Minute,
			SendResponseTimeout:  5 * time.Second,
			AwaitResponseTimeout: 30 * time.Second,
		},
		Registry: RegistryConfig{
			IdleTTL:       time.Hour,
			SweepInterval: 10 * time.Second,
		},
		Flow: FlowConfig{
			DebounceWindow: 15 * time.Second,
		},
		Security: SecurityConfig{
			EnableStartThrottle:   false,
			EnableIPThrottle:      false,
			MaxStartAttempts:      10,
			StartCooldownDuration: 10 * time.Minute,
		},
		Device: DeviceConfig{
			Enabled:     false,
			RedisPrefix: "lsd",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All sections are plain values today; the copy exists so later
	// reference-typed fields cannot alias caller state.
	return cfg
}

// Validate rejects configurations that would break flow invariants.
func (c *Config) Validate() error {
	r := c.Rendezvous
	if r.SendRequestTimeout <= 0 || r.AwaitRequestTimeout <= 0 ||
		r.SendResponseTimeout <= 0 || r.AwaitResponseTimeout <= 0 {
		return errors.New("Rendezvous timeouts must be positive")
	}

	if c.Registry.SweepInterval <= 0 {
		return errors.New("Registry SweepInterval must be positive")
	}
	if c.Registry.IdleTTL <= 0 {
		return errors.New("Registry IdleTTL must be positive")
	}
	// A worker blocked in AwaitRequest refreshed lastUpdated when it posted
	// the challenge; requiring TTL > the wait window keeps the sweeper from
	// ever reclaiming a session with a live rendezvous.
	if c.Registry.IdleTTL <= r.AwaitRequestTimeout {
		return errors.New("Registry IdleTTL must exceed Rendezvous AwaitRequestTimeout")
	}

	if c.Flow.DebounceWindow < 0 {
		return errors.New("Flow DebounceWindow must not be negative")
	}

	if c.Security.EnableStartThrottle {
		if c.Security.MaxStartAttempts <= 0 {
			return errors.New("Security MaxStartAttempts must be positive when throttling is enabled")
		}
		if c.Security.StartCooldownDuration <= 0 {
			return errors.New("Security StartCooldownDuration must be positive when throttling is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be positive when audit is enabled")
	}

	return nil
}
