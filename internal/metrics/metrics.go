// Package metrics exposes sync-layer counters and gauges for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

// Recorder owns a private registry so tests and multiple servers in one
// process do not collide. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	connections  prometheus.Gauge
	onlineUsers  prometheus.Gauge
	persisted    prometheus.Counter
	delivered    *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live authenticated connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Messages accepted by persistence.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events enqueued to connections.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the connection was closed or too slow.",
		}, []string{"event"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Inbound commands rejected with an error.",
		}, []string{"code"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_cache_lookups_total",
			Help:      "Membership cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.connections,
		r.onlineUsers,
		r.persisted,
		r.delivered,
		r.dropped,
		r.rejected,
		r.cacheLookups,
	)
	return r
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// SetConnections sets the live connection gauge.
func (r *Recorder) SetConnections(n int) {
	if r == nil {
		return
	}
	r.connections.Set(float64(n))
}

// SetOnlineUsers sets the online user gauge.
func (r *Recorder) SetOnlineUsers(n int) {
	if r == nil {
		return
	}
	r.onlineUsers.Set(float64(n))
}

// MessagePersisted counts a message accepted by persistence.
func (r *Recorder) MessagePersisted() {
	if r == nil {
		return
	}
	r.persisted.Inc()
}

// Delivered counts one event enqueued to one connection.
func (r *Recorder) Delivered(event string) {
	if r == nil {
		return
	}
	r.delivered.WithLabelValues(event).Inc()
}

// Dropped counts one event a connection could not take.
func (r *Recorder) Dropped(event string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(event).Inc()
}

// Rejected counts an inbound frame or command refused with code.
func (r *Recorder) Rejected(code string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(code).Inc()
}

// CacheLookup records a membership lookup; hit is false when persistence was queried.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}
