package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FixesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetwatch_fixes_ingested_total",
		Help: "GPS fixes appended to the store",
	})
	FixesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetwatch_fixes_rejected_total",
		Help: "GPS fixes rejected at ingestion, by reason",
	}, []string{"reason"})
	DevicesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetwatch_devices_active",
		Help: "Devices that reported within the last 24 hours",
	})
	DevicesInactive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetwatch_devices_inactive",
		Help: "Devices whose last report is older than 24 hours",
	})
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetwatch_cache_lookups_total",
		Help: "Cache-aside lookups by key and result",
	}, []string{"key", "result"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetwatch_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// SetDeviceActivity publishes the active/inactive split.
func SetDeviceActivity(active, inactive int) {
	DevicesActive.Set(float64(active))
	DevicesInactive.Set(float64(inactive))
}

func ObserveCache(key string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(key, result).Inc()
}

// Middleware records request latency labelled by the matched route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
