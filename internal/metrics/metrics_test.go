package metrics

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asad/relcache/internal/state"
)

type session struct {
	id string
}

func TestCollectorObservesCache(t *testing.T) {
	c := NewCollector()
	cache := state.New[session](state.WithObserver(c))

	s := &session{id: "s1"}
	_, err := cache.StateFor(s, "user", "c1", "posts")
	require.NoError(t, err)
	_, err = cache.StateFor(s, "user", "c1", "posts")
	require.NoError(t, err)
	_, err = cache.StateFor(s, "post", "p1", "author")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.trackedStores))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.createdStates))

	require.True(t, cache.Forget(s))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.trackedStores))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.releasedStores.WithLabelValues("forgotten")))
}

func TestCollectorRegisters(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	c.StoreTracked()
	c.StoreReleased(true)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.openSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.releasedStores.WithLabelValues("reclaimed")))

	count, err := testutil.GatherAndCount(reg,
		"relcache_open_sessions",
		"relcache_tracked_stores",
		"relcache_released_stores_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCollectorSeriesDoNotGrowWithModelNames(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	cache := state.New[session](state.WithObserver(c))

	s := &session{id: "s1"}
	for _, model := range []string{"user", "post", "comment", "tag"} {
		_, err := cache.StateFor(s, model, "c1", "related")
		require.NoError(t, err)
	}

	count, err := testutil.GatherAndCount(reg, "relcache_relationship_states_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, float64(4), testutil.ToFloat64(c.createdStates))
	runtime.KeepAlive(s)
}
