// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Inbound client events processed by the router, by event type.",
	}, []string{"type"})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_total",
		Help: "Outbound event deliveries fanned out to connections.",
	})

	EventErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_event_errors_total",
		Help: "Error events sent back to senders, by error code.",
	}, []string{"code"})
)

// StatsSource reports current registry sizes.
type StatsSource interface {
	Stats() (rooms, participants int)
}

// ObserveRegistry exports room/participant gauges backed by the registry.
// Call once at startup; gauge funcs read live registry state on scrape.
func ObserveRegistry(src StatsSource) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relay_rooms",
		Help: "Rooms currently registered.",
	}, func() float64 {
		rooms, _ := src.Stats()
		return float64(rooms)
	})
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relay_participants",
		Help: "Participants currently bound to a room.",
	}, func() float64 {
		_, participants := src.Stats()
		return float64(participants)
	})
}
