package loginsolver

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/skymks/loginsolver/internal/rate"
	"github.com/skymks/loginsolver/internal/stores"
	"github.com/skymks/loginsolver/session"
)

// Builder assembles an [Engine]. Configure during initialization, call Build
// once, then treat the result as immutable.
type Builder struct {
	config Config
	redis  *redis.Client

	driver      Driver
	deviceStore DeviceStore
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing start throttling and the
// default device-fingerprint store.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithDriver supplies the login-protocol driver. Required.
func (b *Builder) WithDriver(d Driver) *Builder {
	b.driver = d
	return b
}

// WithDeviceStore overrides the device-fingerprint store. Supplying one
// implies Device.Enabled.
func (b *Builder) WithDeviceStore(ds DeviceStore) *Builder {
	b.deviceStore = ds
	return b
}

// WithAuditSink supplies the sink audit events are dispatched to.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the answer-relay latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the Engine, starting the
// registry sweeper and (when enabled) the audit dispatcher.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.driver == nil {
		return nil, errors.New("login driver required")
	}

	if b.redis == nil {
		if cfg.Security.EnableStartThrottle {
			return nil, errors.New("start throttling requires redis client")
		}
		if cfg.Device.Enabled && b.deviceStore == nil {
			return nil, errors.New("device persistence requires redis client or an explicit DeviceStore")
		}
	}

	engine := &Engine{
		config: cfg,
		driver: b.driver,
	}

	engine.registry = session.NewRegistry(
		cfg.Registry.IdleTTL,
		cfg.Registry.SweepInterval,
		engine.onEvict,
	)

	if cfg.Security.EnableStartThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxStartAttempts:      cfg.Security.MaxStartAttempts,
			StartCooldownDuration: cfg.Security.StartCooldownDuration,
		})
	}

	switch {
	case b.deviceStore != nil:
		engine.deviceStore = b.deviceStore
	case cfg.Device.Enabled:
		engine.deviceStore = stores.NewDeviceStore(b.redis, cfg.Device.RedisPrefix)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
