package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orgAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Org API requests by route and status class.",
	}, []string{"endpoint", "method", "result"})

	orgAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "org",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Org API request latency by route.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"endpoint", "result"})

	orgAPIInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "org",
		Subsystem: "api",
		Name:      "in_flight_requests",
		Help:      "Org API requests currently being served.",
	}, []string{"endpoint"})
)

// statusRecorder remembers the first status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	sent   bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.sent {
		w.status = status
		w.sent = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// instrumentAPI labels metrics with the route name, never the raw URL, so ids
// in paths do not blow up cardinality.
func (c *OrgAPIController) instrumentAPI(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inFlight := orgAPIInFlight.WithLabelValues(endpoint)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		result := statusClass(rec.status)
		orgAPIRequests.WithLabelValues(endpoint, r.Method, result).Inc()
		orgAPILatency.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
	}
}
