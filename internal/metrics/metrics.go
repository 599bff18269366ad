// Package metrics records client-side analytics events as Prometheus counters.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"skyprefs/internal/events"
	"skyprefs/internal/mutation"
	"skyprefs/pkg/monitoring"
	"skyprefs/pkg/version"
)

// Event names emitted by the preference layer.
const (
	EventChangeLabelPreference = "moderation:changeLabelPreference"
	EventHideBadges            = "verification:settings:hideBadges"
	EventUnhideBadges          = "verification:settings:unHideBadges"
)

// Recorder accepts named events with string properties.
type Recorder interface {
	Event(name string, props map[string]string)
}

// Metrics is the Recorder used by the CLI and tests.
type Metrics struct {
	collector *monitoring.MetricsCollector

	events            *prometheus.CounterVec
	labelPreferences  *prometheus.CounterVec
	verificationBadge *prometheus.CounterVec
	mutations         *prometheus.CounterVec
	networkSignals    *prometheus.CounterVec
	sessionAnomalies  *prometheus.CounterVec
	cacheEvents       *prometheus.CounterVec
}

func New() *Metrics {
	mc := monitoring.NewMetricsCollector("skyprefs", version.Version, version.GitCommit)
	return &Metrics{
		collector:         mc,
		events:            mc.NewCounter("events_total", "Analytics events by name", []string{"name"}),
		labelPreferences:  mc.NewCounter("label_preference_changes_total", "Label visibility changes", []string{"visibility"}),
		verificationBadge: mc.NewCounter("verification_badge_toggles_total", "Verification badge display toggles", []string{"action"}),
		mutations:         mc.NewCounter("mutations_total", "Preference and notification mutations by outcome", []string{"mutation", "phase"}),
		networkSignals:    mc.NewCounter("network_signals_total", "Network reachability signals", []string{"signal"}),
		sessionAnomalies:  mc.NewCounter("session_anomalies_total", "Session events other than create and update", []string{"event"}),
		cacheEvents:       mc.NewCounter("cache_events_total", "Query cache events", []string{"event", "key"}),
	}
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.collector.Gatherer()
}

func (m *Metrics) Event(name string, props map[string]string) {
	m.events.WithLabelValues(name).Inc()
	switch name {
	case EventChangeLabelPreference:
		m.labelPreferences.WithLabelValues(props["preference"]).Inc()
	case EventHideBadges:
		m.verificationBadge.WithLabelValues("hide").Inc()
	case EventUnhideBadges:
		m.verificationBadge.WithLabelValues("unhide").Inc()
	}
}

// Observe counts one lifecycle phase of a named mutation.
func (m *Metrics) Observe(name string, phase mutation.Phase, _ error) {
	m.mutations.WithLabelValues(name, string(phase)).Inc()
}

func (m *Metrics) SessionAnomaly(event string) {
	m.sessionAnomalies.WithLabelValues(event).Inc()
}

// ObserveBus counts every signal emitted on bus until the returned func is called.
func (m *Metrics) ObserveBus(bus *events.Bus) func() {
	return bus.Subscribe(func(s events.Signal) {
		m.networkSignals.WithLabelValues(string(s)).Inc()
	})
}

// CacheHook returns a cache metrics hook that counts event.
func (m *Metrics) CacheHook(event string) func(map[string]string) {
	return func(labels map[string]string) {
		key := labels["key"]
		// Keys may carry a user suffix; only the query name is a label.
		if i := strings.IndexByte(key, ':'); i >= 0 {
			key = key[:i]
		}
		m.cacheEvents.WithLabelValues(event, key).Inc()
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Event(string, map[string]string) {}
