package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/llm/budget"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 实现 crews.Recorder 与 budget.Observer。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 调用指标
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensUsed   *prometheus.CounterVec
	callTransitions *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
	crewRunsTotal   *prometheus.CounterVec
	crewRunDuration prometheus.Histogram

	// Governor 指标
	admissionWait    prometheus.Histogram
	suspensionsTotal prometheus.Counter
	callsInWindow    prometheus.Gauge
	tokensInWindow   prometheus.Gauge
	windowCapacity   prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 在 reg 上注册指标；reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// LLM 调用与 crew 指标
	c.llmCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Agent LLM calls by category and outcome",
		},
		[]string{"category", "outcome"},
	)
	c.llmCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Agent LLM call duration including governor waits",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"category"},
	)
	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Provider-reported tokens by category and type",
		},
		[]string{"category", "type"},
	)
	c.callTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_call_transitions_total",
			Help:      "Call state machine transitions",
		},
		[]string{"from", "to"},
	)
	c.fallbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_fallbacks_total",
			Help:      "Agent outputs replaced by a fallback result",
		},
		[]string{"category", "kind"},
	)
	c.crewRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_runs_total",
			Help:      "Crew runs by final status",
		},
		[]string{"status"},
	)
	c.crewRunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_run_duration_seconds",
			Help:      "Crew run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// Governor 指标
	c.admissionWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "governor_admission_wait_seconds",
			Help:      "Time a call waited for the rate/token window",
			Buckets:   []float64{0, 0.1, 1, 5, 15, 30, 60},
		},
	)
	c.suspensionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governor_suspended_admissions_total",
			Help:      "Admissions that had to wait for the window",
		},
	)
	c.callsInWindow = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "governor_calls_in_window",
			Help:      "Calls in the current sliding window",
		},
	)
	c.tokensInWindow = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "governor_tokens_in_window",
			Help:      "Tokens in the current sliding window",
		},
	)
	c.windowCapacity = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "governor_window_capacity",
			Help:      "Calls admissible per window: min(rpm, tpm / tokens_per_call)",
		},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 Crew（crews.Recorder）
// =============================================================================

func (c *Collector) RecordCrewCall(category, outcome string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmCallsTotal.WithLabelValues(category, outcome).Inc()
	c.llmCallDuration.WithLabelValues(category).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(category, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(category, "completion").Add(float64(completionTokens))
	}
}

func (c *Collector) RecordFallback(category, kind string) {
	c.fallbacksTotal.WithLabelValues(category, kind).Inc()
}

func (c *Collector) RecordCallTransition(_, from, to string) {
	c.callTransitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordCrewRun(status string, duration time.Duration) {
	c.crewRunsTotal.WithLabelValues(status).Inc()
	c.crewRunDuration.Observe(duration.Seconds())
}

// =============================================================================
// ⏳ Governor（budget.Observer）
// =============================================================================

// ObserveAdmission 记录准入等待与窗口状态
func (c *Collector) ObserveAdmission(wait time.Duration, state budget.State) {
	c.admissionWait.Observe(wait.Seconds())
	if wait > 0 {
		c.suspensionsTotal.Inc()
	}
	c.SetBudgetState(state)
}

// SetBudgetState 更新窗口仪表盘
func (c *Collector) SetBudgetState(state budget.State) {
	c.callsInWindow.Set(float64(state.CallsInWindow))
	c.tokensInWindow.Set(float64(state.TokensInWindow))
	c.windowCapacity.Set(float64(state.Capacity))
}

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
