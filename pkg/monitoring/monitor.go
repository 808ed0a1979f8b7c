package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// JobsProcessed 延时任务执行结果，result 为 ok|noop|error
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_jobs_processed_total",
			Help: "Lifecycle jobs handled, by kind and result",
		},
		[]string{"kind", "result"},
	)

	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_jobs_enqueued_total",
			Help: "Lifecycle jobs enqueued, by kind",
		},
		[]string{"kind"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assessment_job_duration_seconds",
			Help:    "Lifecycle job handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Transitions 状态迁移计数，如 attempt in_progress->submitted
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_transitions_total",
			Help: "Status transitions of tests and attempts",
		},
		[]string{"entity", "from", "to"},
	)

	GradingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_grading_outcomes_total",
			Help: "Auto-grading outcomes by question type and reason",
		},
		[]string{"type", "reason"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			JobsProcessed,
			JobsEnqueued,
			JobDuration,
			Transitions,
			GradingOutcomes,
		)
	})
}

func ObserveJob(kind, result string, started time.Time) {
	JobsProcessed.WithLabelValues(kind, result).Inc()
	JobDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func ObserveTransition(entity, from, to string) {
	Transitions.WithLabelValues(entity, from, to).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
