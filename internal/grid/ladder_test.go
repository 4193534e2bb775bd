package grid

import (
	"testing"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.GridConfig {
	t.Helper()
	cfg, err := config.NewGridConfig(config.Grid{
		BaseAsset:       "BNB",
		QuoteAsset:      "USDT",
		LowerLimit:      "100",
		UpperLimit:      "200",
		GridCount:       10,
		Investment:      "1000",
		StartPrice:      "150",
		StopProfitPrice: "180",
		PriceResolution: 2,
		QtyResolution:   4,
		MinNotional:     "10.0",
	})
	require.NoError(t, err)
	return cfg
}

func buyAt(id int64, price string) models.Order {
	return models.Order{
		OrderID: id,
		Side:    models.SideBuy,
		Status:  models.StatusNew,
		Price:   decimal.RequireFromString(price),
		OrigQty: decimal.RequireFromString("1.3333"),
	}
}

func sellAt(id int64, price string) models.Order {
	o := buyAt(id, price)
	o.Side = models.SideSell
	return o
}

func TestReconcileMapsOrdersToGrids(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())

	// Buys rest at lower bounds, sells at upper bounds.
	err := l.Reconcile([]models.Order{
		buyAt(1, "100"),  // grid 0
		buyAt(2, "140"),  // grid 4
		sellAt(3, "170"), // grid 6 (upper bound)
		sellAt(4, "190"), // grid 8
	})
	require.NoError(t, err)

	assert.Equal(t, models.GridClosed, l.Grid(0).Status())
	assert.Equal(t, int64(1), l.Grid(0).RestingOrderID)
	assert.Equal(t, models.GridClosed, l.Grid(4).Status())
	assert.Equal(t, models.GridOpen, l.Grid(6).Status())
	assert.Equal(t, int64(3), l.Grid(6).RestingOrderID)
	assert.Equal(t, models.GridOpen, l.Grid(8).Status())
	assert.Equal(t, models.GridUnknown, l.Grid(5).Status())

	assert.Equal(t, 2, l.SellOrderCount())
	assert.Equal(t, 2, l.BuyOrderCount())
	assert.Equal(t, 4, l.TopBuyGridID())
	assert.NoError(t, l.Validate())
}

func TestReconcileIsIdempotent(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())
	snapshot := []models.Order{buyAt(1, "110"), sellAt(2, "180")}

	require.NoError(t, l.Reconcile(snapshot))
	first := make([]models.Grid, len(l.Grids()))
	copy(first, l.Grids())

	require.NoError(t, l.Reconcile(snapshot))
	assert.Equal(t, first, l.Grids())
}

func TestReconcileDiscardsPriorBelief(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())
	require.NoError(t, l.Reconcile([]models.Order{buyAt(1, "100"), buyAt(2, "110")}))

	// A later snapshot with order 2 gone must clear grid 1.
	require.NoError(t, l.Reconcile([]models.Order{buyAt(1, "100")}))
	assert.Equal(t, models.GridUnknown, l.Grid(1).Status())
}

func TestReconcileRejectsOrderOffTheLadder(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())

	err := l.Reconcile([]models.Order{buyAt(1, "105")})
	var uerr *UnexpectedOrderError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, int64(1), uerr.Order.OrderID)
}

func TestReconcileRejectsDuplicateSameSide(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())

	err := l.Reconcile([]models.Order{buyAt(1, "120"), buyAt(2, "120")})
	var uerr *UnexpectedOrderError
	assert.ErrorAs(t, err, &uerr)
}

func TestReconcileSellWinsSharedGrid(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())

	// A buy at grid 5's lower and a sell at grid 5's upper land together
	// during a fill/re-quote window. The sell owns the band.
	for _, snapshot := range [][]models.Order{
		{buyAt(1, "150"), sellAt(2, "160")},
		{sellAt(2, "160"), buyAt(1, "150")},
	} {
		require.NoError(t, l.Reconcile(snapshot))
		assert.Equal(t, models.GridOpen, l.Grid(5).Status())
		assert.Equal(t, int64(2), l.Grid(5).RestingOrderID)
	}
}

func TestValidateRejectsBuyAboveSell(t *testing.T) {
	l := NewLadder(testConfig(t), zap.NewNop())
	require.NoError(t, l.Reconcile([]models.Order{sellAt(1, "140"), buyAt(2, "160")}))

	var ierr *InvariantError
	assert.ErrorAs(t, l.Validate(), &ierr)
}

func TestLockedQuote(t *testing.T) {
	cfg := testConfig(t)
	l := NewLadder(cfg, zap.NewNop())
	require.NoError(t, l.Reconcile([]models.Order{buyAt(1, "100"), buyAt(2, "110")}))

	want := cfg.GridWidthQty.Mul(decimal.NewFromInt(210))
	assert.True(t, l.LockedQuote().Equal(want), "got %s want %s", l.LockedQuote(), want)
}
