package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/asad/relcache/internal/state"
)

const metricsNamespace = "relcache"

// Collector is a prometheus.Collector reporting relationship cache activity.
// It also satisfies state.Observer so it can be handed straight to a cache.
type Collector struct {
	trackedStores  prometheus.Gauge
	releasedStores *prometheus.CounterVec
	createdStates  prometheus.Counter
	openSessions   prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		trackedStores: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "tracked_stores",
				Help:      "The number of stores with relationship state in the cache.",
			},
		),
		releasedStores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "released_stores_total",
				Help:      "The number of stores dropped from the cache.",
			}, []string{"reason"},
		),
		createdStates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "relationship_states_created_total",
				Help:      "The number of relationship states created.",
			},
		),
		openSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "open_sessions",
				Help:      "The number of sessions currently open.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.trackedStores.Describe(ch)
	c.releasedStores.Describe(ch)
	c.createdStates.Describe(ch)
	c.openSessions.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.trackedStores.Collect(ch)
	c.releasedStores.Collect(ch)
	c.createdStates.Collect(ch)
	c.openSessions.Collect(ch)
}

// StoreTracked is part of the state.Observer interface.
func (c *Collector) StoreTracked() {
	c.trackedStores.Inc()
}

// StoreReleased is part of the state.Observer interface.
func (c *Collector) StoreReleased(reclaimed bool) {
	c.trackedStores.Dec()
	reason := "forgotten"
	if reclaimed {
		reason = "reclaimed"
	}
	c.releasedStores.WithLabelValues(reason).Inc()
}

// StateCreated is part of the state.Observer interface. Model names come
// from clients, so they are not used as label values.
func (c *Collector) StateCreated(_ string) {
	c.createdStates.Inc()
}

// SessionOpened records a newly opened session.
func (c *Collector) SessionOpened() {
	c.openSessions.Inc()
}

// SessionClosed records a closed session.
func (c *Collector) SessionClosed() {
	c.openSessions.Dec()
}

var _ state.Observer = (*Collector)(nil)
