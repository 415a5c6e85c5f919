package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxStartAttempts      int
	StartCooldownDuration time.Duration
}

// Limiter enforces per-principal and per-IP budgets on login start attempts
// using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckStart checks whether the principal+IP pair is within the start
// budget. Returns ErrRateLimited if the budget is spent.
func (l *Limiter) CheckStart(ctx context.Context, principal, ip string) error {
	if err := l.checkCounter(ctx, startPrincipalKey(principal), l.config.MaxStartAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, startIPKey(ip), l.config.MaxStartAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementStart records a start attempt for the principal+IP pair.
func (l *Limiter) IncrementStart(ctx context.Context, principal, ip string) error {
	count, err := l.incrementWithTTL(ctx, startPrincipalKey(principal), l.config.StartCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxStartAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, startIPKey(ip), l.config.StartCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxStartAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetStart clears the attempt counters for the principal+IP pair. Called
// after a successful login.
func (l *Limiter) ResetStart(ctx context.Context, principal, ip string) error {
	keys := []string{startPrincipalKey(principal)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, startIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// StartAttempts returns the current attempt counter for a principal.
// Missing keys return zero.
func (l *Limiter) StartAttempts(ctx context.Context, principal string) (int, error) {
	count, err := l.redis.Get(ctx, startPrincipalKey(principal)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func startPrincipalKey(principal string) string {
	return "ls:" + principal
}

func startIPKey(ip string) string {
	return "lsi:" + ip
}
