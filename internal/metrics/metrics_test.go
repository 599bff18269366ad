package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"skyprefs/internal/events"
	"skyprefs/internal/mutation"
)

func TestEventCounters(t *testing.T) {
	m := New()

	m.Event(EventChangeLabelPreference, map[string]string{"preference": "hide"})
	m.Event(EventChangeLabelPreference, map[string]string{"preference": "hide"})
	m.Event(EventHideBadges, nil)
	m.Event(EventUnhideBadges, nil)
	m.Event("something:else", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.labelPreferences.WithLabelValues("hide")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verificationBadge.WithLabelValues("hide")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verificationBadge.WithLabelValues("unhide")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("something:else")))
}

func TestObserveBus(t *testing.T) {
	m := New()
	bus := events.NewBus()
	stop := m.ObserveBus(bus)

	bus.EmitNetworkConfirmed()
	bus.EmitNetworkLost()
	stop()
	bus.EmitNetworkLost()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.networkSignals.WithLabelValues(string(events.NetworkConfirmed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.networkSignals.WithLabelValues(string(events.NetworkLost))))
}

func TestCacheHookStripsKeySuffix(t *testing.T) {
	m := New()
	m.CacheHook("hit")(map[string]string{"key": "getPreferences:did:plc:alice"})
	m.CacheHook("hit")(map[string]string{"key": "getPreferences"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("hit", "getPreferences")))
}

func TestMutationAndAnomalyCounters(t *testing.T) {
	m := New()
	m.Observe("setAdultContentEnabled", mutation.Confirmed, nil)
	m.SessionAnomaly("expired")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("setAdultContentEnabled", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionAnomalies.WithLabelValues("expired")))

	families, err := m.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
