package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/skymks/loginsolver"
)

func main() {
	cfg := MustLoad()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
	}

	driver, ok := driverFor(cfg.Driver.Name, logger)
	if !ok {
		logger.WithField("driver", cfg.Driver.Name).Fatal("unknown driver")
	}

	engineCfg := engineConfig(cfg, redisClient)

	builder := loginsolver.New().
		WithConfig(engineCfg).
		WithDriver(driver).
		WithAuditSink(&logrusAuditSink{logger: logger})
	if redisClient != nil {
		builder = builder.WithRedis(redisClient)
	}

	engine, err := builder.Build()
	if err != nil {
		logger.WithError(err).Fatal("engine build failed")
	}
	defer engine.Close()

	s := &server{
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/verify", s.handleVerify)

	authed := r.Group("/", bearerAuth(cfg.Auth.JWTSecret))
	authed.POST("/login/start", s.handleStart)
	authed.POST("/login/answer", s.handleAnswer)
	authed.GET("/login/status", s.handleStatus)
	authed.GET("/metrics", s.handleMetrics)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown incomplete")
	}
}

// engineConfig maps daemon settings onto the engine configuration, keeping
// library defaults for everything the environment does not override.
func engineConfig(cfg *Config, redisClient *redis.Client) loginsolver.Config {
	ec := loginsolver.DefaultConfig()

	ec.Flow.DebounceWindow = cfg.Flow.DebounceWindow
	ec.Rendezvous.AwaitResponseTimeout = cfg.Flow.AnswerWait
	ec.Rendezvous.AwaitRequestTimeout = cfg.Flow.WorkerWait
	ec.Registry.IdleTTL = cfg.Flow.SessionTTL

	ec.Security.EnableStartThrottle = cfg.Security.EnableStartThrottle && redisClient != nil
	ec.Security.EnableIPThrottle = cfg.Security.EnableIPThrottle
	ec.Security.MaxStartAttempts = cfg.Security.MaxStartAttempts
	ec.Security.StartCooldownDuration = cfg.Security.StartCooldown

	ec.Device.Enabled = redisClient != nil

	ec.Audit.Enabled = true

	return ec
}

// logrusAuditSink forwards engine audit events to the daemon's structured log.
type logrusAuditSink struct {
	logger *logrus.Logger
}

func (s *logrusAuditSink) Emit(_ context.Context, ev loginsolver.AuditEvent) {
	fields := logrus.Fields{
		"event":     ev.EventType,
		"principal": ev.Principal,
		"phase":     ev.Phase,
		"success":   ev.Success,
	}
	if ev.AttemptID != "" {
		fields["attempt_id"] = ev.AttemptID
	}
	if ev.IP != "" {
		fields["ip"] = ev.IP
	}
	if ev.Error != "" {
		fields["cause"] = ev.Error
	}

	s.logger.WithFields(fields).Info("audit")
}
