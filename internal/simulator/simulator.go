package simulator

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// simGrid is one band's backtest state. Unlike the live ladder there is no
// resting order identity, only whether inventory is held and at what price.
type simGrid struct {
	lower    decimal.Decimal
	upper    decimal.Decimal
	open     bool
	buyPrice decimal.Decimal
}

// Simulator replays a price series through the grid transition rules without
// a remote order book. Every crossed band boundary is processed exactly once,
// in boundary order, even when one tick jumps several bands.
type Simulator struct {
	cfg    *config.GridConfig
	grids  []simGrid
	price  decimal.Decimal
	profit decimal.Decimal
	trades int
	logger *zap.Logger
}

// Result summarizes one backtest run.
type Result struct {
	Trades     int
	Profit     decimal.Decimal
	FinalPrice decimal.Decimal
	OpenGrids  int
}

// NewSimulator seeds the ladder at the configured start price: every band at
// or above the start grid begins holding inventory, bought at its own lower
// bound (the start grid at the start price itself).
func NewSimulator(cfg *config.GridConfig, logger *zap.Logger) *Simulator {
	s := &Simulator{cfg: cfg, price: cfg.StartPrice, logger: logger}
	s.grids = make([]simGrid, cfg.GridCount)
	for id := range s.grids {
		g := simGrid{lower: cfg.GridLower(id), upper: cfg.GridUpper(id)}
		if id >= cfg.StartGridID {
			g.open = true
			g.buyPrice = g.lower
			if g.buyPrice.LessThan(cfg.StartPrice) {
				g.buyPrice = cfg.StartPrice
			}
		}
		s.grids[id] = g
	}
	return s
}

// Tick advances the price and settles every band boundary crossed on the way.
func (s *Simulator) Tick(newPrice decimal.Decimal) {
	old := s.price
	switch {
	case newPrice.GreaterThan(old):
		s.sweepUp(old, newPrice)
	case newPrice.LessThan(old):
		s.sweepDown(old, newPrice)
	}
	s.price = newPrice
}

// sweepUp sells each open band whose upper bound lies in (from, to], lowest
// boundary first, the order real fills would have executed in.
func (s *Simulator) sweepUp(from, to decimal.Decimal) {
	for id := 0; id < len(s.grids); id++ {
		g := &s.grids[id]
		if !g.open || g.upper.LessThanOrEqual(from) || g.upper.GreaterThan(to) {
			continue
		}
		gain := s.cfg.GridWidthQty.Mul(g.upper.Sub(g.buyPrice))
		s.profit = s.profit.Add(gain)
		s.trades++
		g.open = false
		s.logger.Debug("grid closed",
			zap.Int("grid_id", id),
			zap.String("sell_price", g.upper.String()),
			zap.String("buy_price", g.buyPrice.String()),
			zap.String("gain", gain.String()))
		g.buyPrice = decimal.Zero
	}
}

// sweepDown re-buys each flat band whose lower bound lies in [to, from),
// highest boundary first.
func (s *Simulator) sweepDown(from, to decimal.Decimal) {
	for id := len(s.grids) - 1; id >= 0; id-- {
		g := &s.grids[id]
		if g.open || g.lower.GreaterThanOrEqual(from) || g.lower.LessThan(to) {
			continue
		}
		g.open = true
		g.buyPrice = g.lower
		s.logger.Debug("grid reopened",
			zap.Int("grid_id", id),
			zap.String("buy_price", g.buyPrice.String()))
	}
}

// Run replays a candle series tick by tick and returns the outcome.
func (s *Simulator) Run(klines []models.Kline) Result {
	for i := range klines {
		s.Tick(klines[i].Close)
	}
	return s.Result()
}

// Result returns the current outcome without advancing the simulation.
func (s *Simulator) Result() Result {
	open := 0
	for id := range s.grids {
		if s.grids[id].open {
			open++
		}
	}
	return Result{
		Trades:     s.trades,
		Profit:     s.profit,
		FinalPrice: s.price,
		OpenGrids:  open,
	}
}

// OpenGridIDs returns the bands currently holding inventory, ascending.
func (s *Simulator) OpenGridIDs() []int {
	var ids []int
	for id := range s.grids {
		if s.grids[id].open {
			ids = append(ids, id)
		}
	}
	return ids
}

// LoadKlinesCSV reads candles from a CSV file with the columns
// openTime,open,high,low,close,volume and no header detection beyond
// skipping a first row that fails to parse.
func LoadKlinesCSV(path string) ([]models.Kline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open kline file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read kline file %s: %w", path, err)
	}

	var klines []models.Kline
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s:%d: want 6 columns, got %d", path, i+1, len(row))
		}
		k, err := parseKlineRow(row)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKlineRow(row []string) (models.Kline, error) {
	openTime, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("bad open time %q: %w", row[0], err)
	}
	k := models.Kline{OpenTime: openTime}
	for i, dst := range []*decimal.Decimal{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume} {
		d, err := decimal.NewFromString(row[i+1])
		if err != nil {
			return models.Kline{}, fmt.Errorf("bad value %q: %w", row[i+1], err)
		}
		*dst = d
	}
	return k, nil
}
