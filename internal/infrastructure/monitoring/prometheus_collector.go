package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes broadcast session metrics.
type Collector struct {
	sessionActive    prometheus.Gauge
	viewersConnected prometheus.Gauge

	sessionsTotal        prometheus.Counter
	viewersAdmittedTotal prometheus.Counter
	viewersRemovedTotal  *prometheus.CounterVec

	signalsSentTotal    *prometheus.CounterVec
	signalsDroppedTotal prometheus.Counter

	negotiationFailures prometheus.Counter
	negotiationDuration prometheus.Histogram

	qualityChangesTotal  *prometheus.CounterVec
	thumbnailUploadTotal *prometheus.CounterVec
}

// NewCollector registers the metrics on the default registry.
func NewCollector() *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer)
}

// NewCollectorWith registers the metrics on the given registerer. Tests pass
// a fresh registry so collectors can be constructed more than once.
func NewCollectorWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		sessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lumecast_session_active",
			Help: "1 while a broadcast session is live",
		}),
		viewersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lumecast_viewers_connected",
			Help: "Number of currently connected viewers",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lumecast_sessions_total",
			Help: "Total number of broadcast sessions started",
		}),
		viewersAdmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lumecast_viewers_admitted_total",
			Help: "Total number of viewers admitted",
		}),
		viewersRemovedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumecast_viewers_removed_total",
			Help: "Total number of viewers removed",
		}, []string{"reason"}),
		signalsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumecast_signals_sent_total",
			Help: "Total signaling messages sent",
		}, []string{"kind"}),
		signalsDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lumecast_signals_dropped_total",
			Help: "Total signaling messages dropped on send failure",
		}),
		negotiationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lumecast_negotiation_failures_total",
			Help: "Total per-viewer negotiation failures",
		}),
		negotiationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumecast_negotiation_duration_seconds",
			Help:    "Duration of viewer offer/answer negotiation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		qualityChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumecast_quality_changes_total",
			Help: "Total quality change operations",
		}, []string{"quality", "result"}),
		thumbnailUploadTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumecast_thumbnail_uploads_total",
			Help: "Total thumbnail upload attempts",
		}, []string{"result"}),
	}
}

func (c *Collector) SessionStarted() {
	c.sessionActive.Set(1)
	c.sessionsTotal.Inc()
}

func (c *Collector) SessionEnded() {
	c.sessionActive.Set(0)
	c.viewersConnected.Set(0)
}

func (c *Collector) ViewerAdmitted(total int) {
	c.viewersAdmittedTotal.Inc()
	c.viewersConnected.Set(float64(total))
}

func (c *Collector) ViewerRemoved(reason string, total int) {
	c.viewersRemovedTotal.WithLabelValues(reason).Inc()
	c.viewersConnected.Set(float64(total))
}

func (c *Collector) SignalSent(kind string) {
	c.signalsSentTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) SignalDropped() {
	c.signalsDroppedTotal.Inc()
}

func (c *Collector) NegotiationFailed() {
	c.negotiationFailures.Inc()
}

func (c *Collector) ObserveNegotiation(d time.Duration) {
	c.negotiationDuration.Observe(d.Seconds())
}

func (c *Collector) QualityChanged(quality, result string) {
	c.qualityChangesTotal.WithLabelValues(quality, result).Inc()
}

func (c *Collector) ThumbnailUpload(result string) {
	c.thumbnailUploadTotal.WithLabelValues(result).Inc()
}
