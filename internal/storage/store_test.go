package storage

import (
	"fmt"
	"testing"
	"time"

	"grid-trader-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var memDBCounter int

// newTestStore opens a fresh in-memory database per test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	memDBCounter++
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", memDBCounter)
	s, err := NewStore(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadOrInitStateFirstRun(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	state, resumed, err := s.LoadOrInitState(`{"grid_count":10}`, now)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.WithinDuration(t, now, state.StartTime, time.Second)
}

func TestLoadOrInitStateResumesUnchangedConfig(t *testing.T) {
	s := newTestStore(t)
	started := time.Now().Add(-24 * time.Hour)

	_, _, err := s.LoadOrInitState(`{"grid_count":10}`, started)
	require.NoError(t, err)

	state, resumed, err := s.LoadOrInitState(`{"grid_count":10}`, time.Now())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.WithinDuration(t, started, state.StartTime, time.Second)
}

func TestLoadOrInitStateWipesOnConfigChange(t *testing.T) {
	s := newTestStore(t)
	started := time.Now().Add(-24 * time.Hour)

	_, _, err := s.LoadOrInitState(`{"grid_count":10}`, started)
	require.NoError(t, err)
	require.NoError(t, s.RecordClosedOrders([]models.ClosedOrder{
		{OrderID: 1, Symbol: "BNBUSDT", Side: "SELL", Price: "160", OrigQty: "1.3333", GridID: 5},
	}))
	require.NoError(t, s.SaveAssetPoint(&models.AssetPoint{SampledAt: started, FiatTotal: "1000"}))

	// A different grid count discards everything and restarts history.
	now := time.Now()
	state, resumed, err := s.LoadOrInitState(`{"grid_count":20}`, now)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.WithinDuration(t, now, state.StartTime, time.Second)

	orders, err := s.ClosedOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)

	curve, err := s.AssetCurve(time.Time{})
	require.NoError(t, err)
	assert.Empty(t, curve)
}

func TestRecordClosedOrdersIgnoresReplays(t *testing.T) {
	s := newTestStore(t)

	batch := []models.ClosedOrder{
		{OrderID: 1, Symbol: "BNBUSDT", Side: "SELL", Price: "160", OrigQty: "1.3333", GridID: 5, UpdateTime: 100},
		{OrderID: 2, Symbol: "BNBUSDT", Side: "BUY", Price: "150", OrigQty: "1.3333", GridID: 5, UpdateTime: 200},
	}
	require.NoError(t, s.RecordClosedOrders(batch))

	// Rediscovering the same orders must not duplicate them.
	replay := []models.ClosedOrder{
		{OrderID: 1, Symbol: "BNBUSDT", Side: "SELL", Price: "160", OrigQty: "1.3333", GridID: 5, UpdateTime: 100},
		{OrderID: 3, Symbol: "BNBUSDT", Side: "SELL", Price: "170", OrigQty: "1.3333", GridID: 6, UpdateTime: 300},
	}
	require.NoError(t, s.RecordClosedOrders(replay))

	orders, err := s.ClosedOrders()
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, int64(1), orders[0].OrderID)
	assert.Equal(t, int64(3), orders[2].OrderID)
}

func TestRecentClosedOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordClosedOrders([]models.ClosedOrder{
		{OrderID: 1, UpdateTime: 100},
		{OrderID: 2, UpdateTime: 300},
		{OrderID: 3, UpdateTime: 200},
	}))

	recent, err := s.RecentClosedOrders(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[0].OrderID)
	assert.Equal(t, int64(3), recent[1].OrderID)
}

func TestAssetCurveWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	for i, age := range []time.Duration{48 * time.Hour, 2 * time.Hour, time.Hour} {
		require.NoError(t, s.SaveAssetPoint(&models.AssetPoint{
			SampledAt: now.Add(-age),
			FiatTotal: fmt.Sprintf("%d", 1000+i),
		}))
	}

	curve, err := s.AssetCurve(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Equal(t, "1001", curve[0].FiatTotal)
	assert.Equal(t, "1002", curve[1].FiatTotal)
}
