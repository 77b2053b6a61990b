package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bloomboard/internal/handler"
	"bloomboard/pkg/circuitbreaker"
	"bloomboard/pkg/metrics"
	"bloomboard/pkg/mq"
	"bloomboard/pkg/otel"
	"bloomboard/pkg/trace"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// breakerReporter is implemented by storage wrapped in a circuit breaker.
type breakerReporter interface {
	BreakerState() (circuitbreaker.State, bool)
}

// connChecker is implemented by publishers holding a live broker connection.
type connChecker interface {
	IsConnected() bool
}

func NewRouter(habitHandler *handler.HabitHandler, logger *zap.Logger, storage Pinger, publisher mq.EventPublisher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otel.GinMiddleware())
	r.Use(TraceMiddleware())

	// Request log and latency metrics
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), latency)

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
		)
	})

	// Health endpoints come first
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := storage.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "storage_not_ready", "error": err.Error()})
			return
		}

		body := gin.H{"status": "ready"}
		if br, ok := storage.(breakerReporter); ok {
			if state, wrapped := br.BreakerState(); wrapped {
				if state == circuitbreaker.StateOpen {
					c.JSON(500, gin.H{"status": "storage_circuit_open", "breaker": state.String()})
					return
				}
				body["breaker"] = state.String()
			}
		}

		if conn, ok := publisher.(connChecker); ok && !conn.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/mechanics", habitHandler.Mechanics)

	habits := r.Group("/habits")
	{
		habits.GET("", habitHandler.ListHabits)
		habits.POST("", habitHandler.CreateHabit)
		habits.GET("/:id", habitHandler.GetHabit)
		habits.DELETE("/:id", habitHandler.DeleteHabit)
		habits.POST("/:id/water", habitHandler.WaterHabit)
		habits.GET("/:id/feedback", habitHandler.GetFeedback)
	}

	r.GET("/selection", habitHandler.GetSelection)
	r.PUT("/selection/:id", habitHandler.PutSelection)
	r.DELETE("/selection", habitHandler.ClearSelection)

	r.GET("/export", habitHandler.Export)

	return r
}

// TraceMiddleware reads or generates X-Trace-ID and stores it in the request
// context and the response header.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}

		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}
