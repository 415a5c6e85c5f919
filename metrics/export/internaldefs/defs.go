package internaldefs

import (
	loginsolver "github.com/skymks/loginsolver"
)

// CounterDef binds an engine counter to its exported metric name.
type CounterDef struct {
	ID   loginsolver.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported metric name.
type HistogramDef struct {
	ID   loginsolver.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: loginsolver.MetricStartAccepted, Name: "loginsolver_start_accepted_total", Help: "Login attempts started."},
	{ID: loginsolver.MetricStartDebounced, Name: "loginsolver_start_debounced_total", Help: "Start calls answered with EXIST_SESSION."},
	{ID: loginsolver.MetricStartRateLimited, Name: "loginsolver_start_rate_limited_total", Help: "Start calls rejected by the throttle."},
	{ID: loginsolver.MetricLoginSuccess, Name: "loginsolver_login_success_total", Help: "Attempts that reached SUCCESS."},
	{ID: loginsolver.MetricLoginFailure, Name: "loginsolver_login_failure_total", Help: "Attempts that reached FAILURE."},
	{ID: loginsolver.MetricChallengeSlider, Name: "loginsolver_challenge_slider_total", Help: "Slider captchas posted."},
	{ID: loginsolver.MetricChallengeSMSPrompt, Name: "loginsolver_challenge_sms_prompt_total", Help: "SMS consent prompts posted."},
	{ID: loginsolver.MetricChallengeSMSCode, Name: "loginsolver_challenge_sms_code_total", Help: "SMS code prompts posted."},
	{ID: loginsolver.MetricChallengeJump, Name: "loginsolver_challenge_jump_total", Help: "External-link verifications posted."},
	{ID: loginsolver.MetricChallengeUnsupported, Name: "loginsolver_challenge_unsupported_total", Help: "Challenge kinds declared unsupported."},
	{ID: loginsolver.MetricAnswerRelayed, Name: "loginsolver_answer_relayed_total", Help: "Answers handed to a worker."},
	{ID: loginsolver.MetricAnswerUnconsumed, Name: "loginsolver_answer_unconsumed_total", Help: "Answers no worker collected in time."},
	{ID: loginsolver.MetricCallerWaitTimeout, Name: "loginsolver_caller_wait_timeout_total", Help: "Caller-side await expiries (retryable)."},
	{ID: loginsolver.MetricWorkerWaitTimeout, Name: "loginsolver_worker_wait_timeout_total", Help: "Worker-side await expiries (fatal)."},
	{ID: loginsolver.MetricSessionCreated, Name: "loginsolver_session_created_total", Help: "Sessions stored in the registry."},
	{ID: loginsolver.MetricSessionEvicted, Name: "loginsolver_session_evicted_total", Help: "Sessions reclaimed by the sweeper."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: loginsolver.MetricAnswerLatency, Name: "loginsolver_answer_latency_seconds", Help: "Answer-relay latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bounds as metric-name-safe suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
