package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbound frame counters
	FramesSent     atomic.Uint64
	FrameBytesSent atomic.Uint64
	SendErrors     atomic.Uint64

	// Capture gate skips
	SkipsNotOpen      atomic.Uint64
	SkipsPacing       atomic.Uint64
	SkipsAwaiting     atomic.Uint64
	SkipsBackpressure atomic.Uint64
	SkipsNoFrame      atomic.Uint64

	// Inbound metadata counters
	MetadataReceived atomic.Uint64
	MetadataDropped  atomic.Uint64 // malformed replies, dropped silently otherwise

	// Connection lifecycle
	ConnectsTotal atomic.Uint64
	Reconnects    atomic.Uint64
	ActiveStreams atomic.Uint64

	// Fall alerting
	AlertsRaised       atomic.Uint64
	AlertsAcknowledged atomic.Uint64

	// Overlay rendering
	OverlayFrames atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"console_frames_sent_total", "Total frames transmitted to the inference service", m.FramesSent.Load},
		{"console_frame_bytes_sent_total", "Total compressed frame bytes transmitted", m.FrameBytesSent.Load},
		{"console_send_errors_total", "Total frame send failures (absorbed)", m.SendErrors.Load},
		{"console_send_skips_not_open_total", "Ticks skipped because the connection was not open", m.SkipsNotOpen.Load},
		{"console_send_skips_pacing_total", "Ticks skipped by the send interval gate", m.SkipsPacing.Load},
		{"console_send_skips_awaiting_total", "Ticks skipped while a reply was outstanding", m.SkipsAwaiting.Load},
		{"console_send_skips_backpressure_total", "Ticks skipped because the outbound buffer was above the ceiling", m.SkipsBackpressure.Load},
		{"console_send_skips_no_frame_total", "Ticks skipped because the source had no decodable frame", m.SkipsNoFrame.Load},
		{"console_metadata_received_total", "Total well-formed metadata replies", m.MetadataReceived.Load},
		{"console_metadata_dropped_total", "Total malformed metadata replies dropped", m.MetadataDropped.Load},
		{"console_connects_total", "Total inference connections opened", m.ConnectsTotal.Load},
		{"console_reconnects_total", "Total reconnect attempts after unexpected close", m.Reconnects.Load},
		{"console_active_streams", "Camera tiles currently streaming", m.ActiveStreams.Load},
		{"console_alerts_raised_total", "Total fall alerts raised", m.AlertsRaised.Load},
		{"console_alerts_acknowledged_total", "Total fall alerts acknowledged by the operator", m.AlertsAcknowledged.Load},
		{"console_overlay_frames_total", "Total overlay frames painted", m.OverlayFrames.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
