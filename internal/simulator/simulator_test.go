package simulator

import (
	"os"
	"path/filepath"
	"testing"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func simConfig(t *testing.T) *config.GridConfig {
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

func TestSimulatorOscillationRealizesProfitTwice(t *testing.T) {
	cfg := simConfig(t)
	s := NewSimulator(cfg, zap.NewNop())

	gridProfit := cfg.GridWidthQty.Mul(decimal.NewFromInt(10))

	// 150 -> 160 sells grid 5 (bought at the start price).
	s.Tick(decimal.NewFromInt(160))
	r := s.Result()
	assert.Equal(t, 1, r.Trades)
	assert.True(t, r.Profit.Equal(gridProfit), "got %s want %s", r.Profit, gridProfit)

	// 160 -> 170 sells grid 6.
	s.Tick(decimal.NewFromInt(170))
	r = s.Result()
	assert.Equal(t, 2, r.Trades)
	assert.True(t, r.Profit.Equal(gridProfit.Mul(decimal.NewFromInt(2))))

	// 170 -> 150 re-buys grids 6 and 5; profit is untouched by buys.
	s.Tick(decimal.NewFromInt(150))
	r = s.Result()
	assert.Equal(t, 2, r.Trades)
	assert.True(t, r.Profit.Equal(gridProfit.Mul(decimal.NewFromInt(2))))
	assert.Contains(t, s.OpenGridIDs(), 5)
	assert.Contains(t, s.OpenGridIDs(), 6)
}

func TestSimulatorMultiGridJump(t *testing.T) {
	cfg := simConfig(t)
	s := NewSimulator(cfg, zap.NewNop())

	// One tick through four boundaries settles grids 5, 6, 7 and 8, not just
	// the last one.
	s.Tick(decimal.NewFromInt(190))
	r := s.Result()
	assert.Equal(t, 4, r.Trades)

	// Grids 5..8 sold at their own uppers, each bought at its own lower (the
	// start grid at the start price): 10 per grid.
	want := cfg.GridWidthQty.Mul(decimal.NewFromInt(40))
	assert.True(t, r.Profit.Equal(want), "got %s want %s", r.Profit, want)

	assert.Equal(t, []int{9}, s.OpenGridIDs())
}

func TestSimulatorMultiGridDrop(t *testing.T) {
	cfg := simConfig(t)
	s := NewSimulator(cfg, zap.NewNop())

	s.Tick(decimal.NewFromInt(190)) // close 5..8
	s.Tick(decimal.NewFromInt(120)) // reopen 8..2? no: only bands flat and crossed

	// Every flat band with lower in [120, 190) reopens: grids 2..8.
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9}, s.OpenGridIDs())

	// Round trip back up realizes a grid of profit per reopened band crossed.
	before := s.Result().Profit
	s.Tick(decimal.NewFromInt(130))
	after := s.Result()
	assert.Equal(t, 5, after.Trades)
	assert.True(t, after.Profit.Equal(before.Add(cfg.GridWidthQty.Mul(decimal.NewFromInt(10)))))
}

func TestSimulatorBoundaryExactTicks(t *testing.T) {
	s := NewSimulator(simConfig(t), zap.NewNop())

	// Landing exactly on a boundary settles it; re-ticking the same price
	// settles nothing further.
	s.Tick(decimal.NewFromInt(160))
	assert.Equal(t, 1, s.Result().Trades)
	s.Tick(decimal.NewFromInt(160))
	assert.Equal(t, 1, s.Result().Trades)
}

func TestSimulatorRunOverKlines(t *testing.T) {
	cfg := simConfig(t)
	s := NewSimulator(cfg, zap.NewNop())

	closes := []string{"160", "170", "150", "160", "170"}
	var klines []models.Kline
	for _, c := range closes {
		klines = append(klines, models.Kline{Close: decimal.RequireFromString(c)})
	}

	r := s.Run(klines)
	// Two sells up, two re-buys down, two sells up again.
	assert.Equal(t, 4, r.Trades)
	want := cfg.GridWidthQty.Mul(decimal.NewFromInt(40))
	assert.True(t, r.Profit.Equal(want), "got %s want %s", r.Profit, want)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(170)))
}

func TestLoadKlinesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klines.csv")
	data := "openTime,open,high,low,close,volume\n" +
		"1700000000000,150,161,149,160,1000\n" +
		"1700000060000,160,171,159,170,900\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	klines, err := LoadKlinesCSV(path)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, int64(1700000000000), klines[0].OpenTime)
	assert.True(t, klines[0].Close.Equal(decimal.NewFromInt(160)))
	assert.True(t, klines[1].High.Equal(decimal.NewFromInt(171)))
}

func TestLoadKlinesCSVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klines.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2,3\n"), 0o644))

	_, err := LoadKlinesCSV(path)
	assert.Error(t, err)
}
