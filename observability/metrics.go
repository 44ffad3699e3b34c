// Package observability exposes the Prometheus collector shared by the
// router, the dispatch services, and the connection gateway.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the metric slices the rest of the system depends on:
// runtime.DeliveryMetrics, services.MessageMetrics, server.ConnectionMetrics.
type Collector struct {
	registry          *prometheus.Registry
	messagesSent      *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	deliveryDrops     prometheus.Counter
	activeConnections prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_messages_sent_total",
			Help: "Messages accepted by dispatch, by kind (direct or group).",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatline_deliveries_total",
			Help: "Events delivered to live sinks, by event name.",
		}, []string{"event"}),
		deliveryDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatline_delivery_drops_total",
			Help: "Events dropped because a queue or sink buffer was full.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatline_active_connections",
			Help: "Currently registered websocket connections.",
		}),
	}
	c.registry.MustRegister(
		c.messagesSent,
		c.deliveries,
		c.deliveryDrops,
		c.activeConnections,
	)
	return c
}

func (c *Collector) RecordMessageSent(kind string) {
	c.messagesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordDeliveries(event string, count int) {
	c.deliveries.WithLabelValues(event).Add(float64(count))
}

func (c *Collector) RecordDeliveryDrop() {
	c.deliveryDrops.Inc()
}

func (c *Collector) ConnOpened() {
	c.activeConnections.Inc()
}

func (c *Collector) ConnClosed() {
	c.activeConnections.Dec()
}

// Handler serves the collector's registry on /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
