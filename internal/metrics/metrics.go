// Package metrics exposes Prometheus instrumentation for the parking service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parking"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AdmissionsTotal counts vehicles admitted by class.
	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Vehicles admitted, by vehicle class.",
		},
		[]string{"vehicle_class"},
	)

	// ReleasesTotal counts vehicles released by class and VIP status.
	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Vehicles released, by vehicle class and VIP status.",
		},
		[]string{"vehicle_class", "vip"},
	)

	// RejectionsTotal counts refused admits and releases by reason.
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Admit or release attempts refused, by reason.",
		},
		[]string{"reason"},
	)

	// RevenueTotal accumulates fees charged on release.
	RevenueTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revenue_total",
		Help:      "Sum of fees charged since process start.",
	})

	// StayDuration observes billed stay lengths in minutes.
	StayDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stay_duration_minutes",
		Help:      "Length of completed stays in minutes.",
		Buckets:   []float64{15, 30, 60, 120, 240, 480, 1440},
	})

	// OccupiedSpots tracks open sessions per class.
	OccupiedSpots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupied_spots",
			Help:      "Open parking sessions, by vehicle class.",
		},
		[]string{"vehicle_class"},
	)

	// DetectionsTotal counts detector events by how the monitor handled them.
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detection events received, by handling result.",
		},
		[]string{"result"},
	)

	// SecurityAlertsTotal counts blacklisted plates seen at a gate.
	SecurityAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_alerts_total",
		Help:      "Blacklisted plates refused at a gate.",
	})

	// LiveFeedClients tracks connected WebSocket dashboard clients.
	LiveFeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_feed_clients",
		Help:      "Number of connected live feed clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdmissionsTotal,
		ReleasesTotal,
		RejectionsTotal,
		RevenueTotal,
		StayDuration,
		OccupiedSpots,
		DetectionsTotal,
		SecurityAlertsTotal,
		LiveFeedClients,
	)
}

// Middleware records request count and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
