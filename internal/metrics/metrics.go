package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paperagent"

// Metrics 汇总 Agent 运行、工具调用和 HTTP 请求的指标。
// 同时实现 agent.Observer 和 tools.CallObserver。
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	nodes        *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	grades       *prometheus.CounterVec
	rewrites     prometheus.Counter
	retries      *prometheus.CounterVec
	fallbacks    prometheus.Counter
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	httpDuration *prometheus.HistogramVec
}

// New 使用独立的 Registry，测试之间互不干扰
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Agent run duration in seconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"outcome"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Committed graph node executions.",
		}, []string{"node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Graph node duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		grades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grader_verdicts_total",
			Help:      "Grader verdicts by grader and score.",
		}, []string{"grader", "score"}),
		rewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Question rewrites after irrelevant retrieval.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Rejected generations by execution mode.",
		}, []string{"mode"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_fallbacks_total",
			Help:      "Synthesized execute_code calls.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration,
		m.nodes, m.nodeDuration,
		m.grades, m.rewrites, m.retries, m.fallbacks,
		m.toolCalls, m.toolDuration,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveNode(node string, elapsed time.Duration) {
	m.nodes.WithLabelValues(node).Inc()
	m.nodeDuration.WithLabelValues(node).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveGrade(grader string, yes bool) {
	score := "no"
	if yes {
		score = "yes"
	}
	m.grades.WithLabelValues(grader, score).Inc()
}

func (m *Metrics) ObserveRewrite() {
	m.rewrites.Inc()
}

func (m *Metrics) ObserveRetry(mode string) {
	m.retries.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveFallback() {
	m.fallbacks.Inc()
}

func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveToolCall(tool, status string, elapsed time.Duration) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Middleware 按路由模板记录请求耗时，未匹配的路由记为 unmatched
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
