package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	equipmentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equipment_operations_total",
			Help: "Equipment lifecycle operations by device type and outcome",
		},
		[]string{"operation", "device_type", "outcome"},
	)

	labResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_results_total",
			Help: "Completed lab results by test type and interpretation",
		},
		[]string{"test_type", "interpretation"},
	)

	labOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_operations_total",
			Help: "Lab order and result operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	criticalNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lab_critical_notifications_total",
			Help: "Critical result notifications by delivery outcome",
		},
		[]string{"delivery"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		equipmentOperationsTotal,
		labResultsTotal,
		labOperationsTotal,
		criticalNotificationsTotal,
	)
}

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Outcome maps an operation error to its label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// RecordEquipmentOperation counts one equipment lifecycle call.
func RecordEquipmentOperation(operation, deviceType string, err error) {
	equipmentOperationsTotal.WithLabelValues(operation, deviceType, Outcome(err)).Inc()
}

// RecordLabOperation counts one lab order/result call.
func RecordLabOperation(operation string, err error) {
	labOperationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

// RecordLabResult counts a completed result by its interpretation.
func RecordLabResult(testType, interpretation string) {
	labResultsTotal.WithLabelValues(testType, interpretation).Inc()
}

// RecordCriticalNotification counts a doctor notification and whether the
// event reached the notifier.
func RecordCriticalNotification(delivered bool) {
	label := "delivered"
	if !delivered {
		label = "failed"
	}
	criticalNotificationsTotal.WithLabelValues(label).Inc()
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
