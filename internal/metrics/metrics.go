// Package metrics provides Prometheus metrics for the capture pipeline and
// the photo store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture results.
const (
	ResultOK       = "ok"
	ResultBusy     = "busy"
	ResultNotReady = "not_ready"
	ResultEncode   = "encode_error"
	ResultQuota    = "quota_exceeded"
	ResultStorage  = "storage_error"
	ResultOther    = "error"
)

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveycam",
		Subsystem: "capture",
		Name:      "total",
		Help:      "Capture requests by result",
	}, []string{"result"})

	captureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "surveycam",
		Subsystem: "capture",
		Name:      "duration_seconds",
		Help:      "Time from shutter to persisted photo",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	hdrFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycam",
		Subsystem: "capture",
		Name:      "hdr_fallbacks_total",
		Help:      "HDR captures that fell back to a single exposure",
	})

	burstShots = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycam",
		Subsystem: "burst",
		Name:      "shots_total",
		Help:      "Photos taken in burst mode",
	})

	storeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "surveycam",
		Subsystem: "storage",
		Name:      "bytes",
		Help:      "Bytes held by the photo store",
	})

	storePhotos = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "surveycam",
		Subsystem: "storage",
		Name:      "photos",
		Help:      "Photos held by the photo store",
	})
)

// ObserveCapture records one capture attempt.
func ObserveCapture(result string, d time.Duration) {
	capturesTotal.WithLabelValues(result).Inc()
	if result == ResultOK {
		captureDuration.Observe(d.Seconds())
	}
}

// IncHDRFallback counts an HDR request served by a single exposure.
func IncHDRFallback() { hdrFallbacks.Inc() }

// IncBurstShot counts one burst photo.
func IncBurstShot() { burstShots.Inc() }

// SetStoreUsage publishes the store usage.
func SetStoreUsage(photos int, bytes int64) {
	storePhotos.Set(float64(photos))
	storeBytes.Set(float64(bytes))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
