package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 习惯操作计数
	HabitOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomboard_habit_operations_total",
			Help: "Total number of habit store operations",
		},
		[]string{"operation", "result"}, // operation 取 create/advance/remove/replace，result 取 applied/noop
	)

	// 开花计数（score 首次达到 100）
	HabitBloomedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloomboard_habits_bloomed_total",
			Help: "Total number of habits that reached full bloom",
		},
	)

	// 存储写入/读取延迟（秒）
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloomboard_storage_duration_seconds",
			Help:    "Storage backend call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms 到约 1s
		},
		[]string{"operation", "status"},
	)

	// 导入结果计数
	ImportOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomboard_import_outcomes_total",
			Help: "Startup fragment import outcomes",
		},
		[]string{"outcome"}, // outcome 取 applied/encoding/text/json/shape/skipped
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms 到约 4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of slow database queries",
		},
		[]string{"operation"},
	)
)

// IncrementHabitOperation 增加习惯操作计数
func IncrementHabitOperation(operation, result string) {
	HabitOperationCount.WithLabelValues(operation, result).Inc()
}

// IncrementBloomed 增加开花计数
func IncrementBloomed() {
	HabitBloomedCount.Inc()
}

// RecordStorageDuration 记录存储调用延迟
func RecordStorageDuration(operation, status string, duration time.Duration) {
	StorageDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// IncrementImportOutcome 增加导入结果计数
func IncrementImportOutcome(outcome string) {
	ImportOutcomeCount.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数，operation 取 SQL 的第一个关键字
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}
