package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/skymks/loginsolver"
)

type server struct {
	engine *loginsolver.Engine
	cfg    *Config
	logger *logrus.Logger
}

type verifyDTO struct {
	VerifyKey string `json:"verifyKey" binding:"required"`
}

type startDTO struct {
	Principal  string `json:"principal" binding:"required"`
	Credential string `json:"credential"`
}

type answerDTO struct {
	Principal string `json:"principal" binding:"required"`
	Value     string `json:"value" binding:"required"`
}

type flowDTO struct {
	Principal   string    `json:"principal"`
	Phase       string    `json:"phase"`
	Pending     bool      `json:"pending,omitempty"`
	SlideURL    string    `json:"slideUrl,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	VerifyURL   string    `json:"verifyUrl,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

func flowDTOFrom(res loginsolver.FlowResult, pending bool) flowDTO {
	return flowDTO{
		Principal:   res.Principal,
		Phase:       res.Phase.String(),
		Pending:     pending,
		SlideURL:    res.SlideURL,
		PhoneNumber: res.PhoneNumber,
		VerifyURL:   res.VerifyURL,
		LastUpdated: res.LastUpdated,
	}
}

func (s *server) handleVerify(c *gin.Context) {
	var dto verifyDTO
	if err := c.BindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if !verifyKeyMatches(dto.VerifyKey, s.cfg.Auth.VerifyKey) {
		s.logger.WithField("ip", c.ClientIP()).Warn("verify key rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verify key"})
		return
	}

	token, err := issueToken(s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL)
	if err != nil {
		s.logger.WithError(err).Error("token signing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": token})
}

func (s *server) handleStart(c *gin.Context) {
	var dto startDTO
	if err := c.BindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	ctx := loginsolver.WithClientIP(c.Request.Context(), c.ClientIP())
	res, err := s.engine.Start(ctx, loginsolver.LoginRequest{
		Principal:  dto.Principal,
		Credential: dto.Credential,
	})

	switch {
	case err == nil:
		c.JSON(http.StatusOK, flowDTOFrom(res, false))
	case errors.Is(err, loginsolver.ErrResultPending):
		// The attempt is still working; the client polls /login/status.
		c.JSON(http.StatusAccepted, flowDTOFrom(res, true))
	case errors.Is(err, loginsolver.ErrStartRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
	case errors.Is(err, loginsolver.ErrPrincipalRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "principal required"})
	default:
		s.logger.WithError(err).WithField("principal", dto.Principal).Error("start failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *server) handleAnswer(c *gin.Context) {
	var dto answerDTO
	if err := c.BindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	ctx := loginsolver.WithClientIP(c.Request.Context(), c.ClientIP())
	res, err := s.engine.SubmitAnswer(ctx, dto.Principal, dto.Value)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, flowDTOFrom(res, false))
	case errors.Is(err, loginsolver.ErrResultPending):
		c.JSON(http.StatusAccepted, flowDTOFrom(res, true))
	case errors.Is(err, loginsolver.ErrAnswerTimeout):
		// No worker collected the answer; the snapshot tells the client why.
		c.JSON(http.StatusConflict, flowDTOFrom(res, false))
	default:
		s.logger.WithError(err).WithField("principal", dto.Principal).Error("answer failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *server) handleStatus(c *gin.Context) {
	principal := c.Query("principal")
	if principal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "principal required"})
		return
	}

	res, err := s.engine.Query(c.Request.Context(), principal)
	if err != nil {
		s.logger.WithError(err).WithField("principal", principal).Error("status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, flowDTOFrom(res, false))
}

func (s *server) handleMetrics(c *gin.Context) {
	snap := s.engine.MetricsSnapshot()

	counters := make(map[string]uint64, len(snap.Counters))
	for id, v := range snap.Counters {
		name := metricName(id)
		if name == "" {
			continue
		}
		counters[name] = v
	}

	c.JSON(http.StatusOK, gin.H{
		"counters":      counters,
		"sessions":      s.engine.SessionCount(),
		"audit_dropped": s.engine.AuditDropped(),
	})
}

func metricName(id loginsolver.MetricID) string {
	names := map[loginsolver.MetricID]string{
		loginsolver.MetricStartAccepted:        "start_accepted",
		loginsolver.MetricStartDebounced:       "start_debounced",
		loginsolver.MetricStartRateLimited:     "start_rate_limited",
		loginsolver.MetricLoginSuccess:         "login_success",
		loginsolver.MetricLoginFailure:         "login_failure",
		loginsolver.MetricChallengeSlider:      "challenge_slider",
		loginsolver.MetricChallengeSMSPrompt:   "challenge_sms_prompt",
		loginsolver.MetricChallengeSMSCode:     "challenge_sms_code",
		loginsolver.MetricChallengeJump:        "challenge_jump",
		loginsolver.MetricChallengeUnsupported: "challenge_unsupported",
		loginsolver.MetricAnswerRelayed:        "answer_relayed",
		loginsolver.MetricAnswerUnconsumed:     "answer_unconsumed",
		loginsolver.MetricCallerWaitTimeout:    "caller_wait_timeout",
		loginsolver.MetricWorkerWaitTimeout:    "worker_wait_timeout",
		loginsolver.MetricSessionCreated:       "session_created",
		loginsolver.MetricSessionEvicted:       "session_evicted",
	}
	return names[id]
}
