package grid

import (
	"fmt"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UnexpectedOrderError means a remote open order cannot be mapped onto the
// ladder. The ladder cannot be trusted afterwards, so the caller must halt
// rather than guess a mapping.
type UnexpectedOrderError struct {
	Order  models.Order
	Reason string
}

func (e *UnexpectedOrderError) Error() string {
	return fmt.Sprintf("unexpected order %d (%s %s @ %s): %s",
		e.Order.OrderID, e.Order.Side, e.Order.OrigQty, e.Order.Price, e.Reason)
}

// InvariantError means the reconciled ladder violates its shape invariant.
// Like UnexpectedOrderError it is fatal.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "ladder invariant violated: " + e.Reason
}

// Ladder is the per-band order state of the whole grid. It is owned by the
// strategy loop and never shared across goroutines.
type Ladder struct {
	cfg    *config.GridConfig
	grids  []models.Grid
	logger *zap.Logger
}

// NewLadder builds an empty ladder with immutable band boundaries.
func NewLadder(cfg *config.GridConfig, logger *zap.Logger) *Ladder {
	grids := make([]models.Grid, cfg.GridCount)
	for id := range grids {
		grids[id] = models.Grid{
			Lower: cfg.GridLower(id),
			Upper: cfg.GridUpper(id),
		}
	}
	return &Ladder{cfg: cfg, grids: grids, logger: logger}
}

// Grid returns the band at id. The pointer stays valid for the ladder's lifetime.
func (l *Ladder) Grid(id int) *models.Grid {
	return &l.grids[id]
}

// Grids returns the bands in ascending order, for reporting.
func (l *Ladder) Grids() []models.Grid {
	return l.grids
}

// Config returns the parameter set the ladder was built from.
func (l *Ladder) Config() *config.GridConfig {
	return l.cfg
}

// MatchGridID maps an order onto its band: a BUY rests at a band's lower
// bound, a SELL at its upper bound. Prices are compared after truncation to
// the configured price resolution. Returns false when no band matches.
func (l *Ladder) MatchGridID(order *models.Order) (int, bool) {
	price := order.Price.Truncate(l.cfg.PriceResolution)
	for id := range l.grids {
		switch order.Side {
		case models.SideBuy:
			if l.grids[id].Lower.Equal(price) {
				return id, true
			}
		case models.SideSell:
			if l.grids[id].Upper.Equal(price) {
				return id, true
			}
		}
	}
	return 0, false
}

// Reconcile rebuilds the ladder's order state from a fresh snapshot of the
// remote open orders. All prior belief is discarded first; the snapshot is
// authoritative. Reconciling the same snapshot twice yields the same state.
//
// When a BUY and a SELL both map onto one band (a fill and its re-quote in
// flight at once), the SELL wins: the band holds inventory until the sell is
// gone. Two same-side orders on one band can never be legitimate.
func (l *Ladder) Reconcile(orders []models.Order) error {
	for id := range l.grids {
		l.grids[id].Clear()
	}

	for i := range orders {
		order := &orders[i]
		id, ok := l.MatchGridID(order)
		if !ok {
			return &UnexpectedOrderError{Order: *order, Reason: "price matches no grid boundary"}
		}

		g := &l.grids[id]
		if g.RestingOrderID != 0 {
			if g.RestingSide == order.Side {
				return &UnexpectedOrderError{
					Order:  *order,
					Reason: fmt.Sprintf("grid %d already holds %s order %d", id, g.RestingSide, g.RestingOrderID),
				}
			}
			if order.Side == models.SideBuy {
				// The band already holds a SELL; the buy is the transient loser.
				l.logger.Debug("buy order shadowed by resting sell on same grid",
					zap.Int("grid_id", id),
					zap.Int64("buy_order_id", order.OrderID),
					zap.Int64("sell_order_id", g.RestingOrderID))
				continue
			}
		}

		g.RestingOrderID = order.OrderID
		g.RestingSide = order.Side
		g.RestingQty = order.OrigQty
		l.logger.Debug("order mapped onto grid",
			zap.Int("grid_id", id),
			zap.Int64("order_id", order.OrderID),
			zap.String("side", string(order.Side)),
			zap.String("price", order.Price.String()))
	}

	return nil
}

// Validate checks the ladder's shape: every band holding a buy must sit below
// every band holding a sell.
func (l *Ladder) Validate() error {
	topBuy := l.TopBuyGridID()
	minSell := l.minSellGridID()
	if topBuy >= 0 && minSell >= 0 && topBuy >= minSell {
		return &InvariantError{
			Reason: fmt.Sprintf("buy order on grid %d at or above sell order on grid %d", topBuy, minSell),
		}
	}
	return nil
}

// TopBuyGridID returns the highest band holding a resting buy, or -1.
func (l *Ladder) TopBuyGridID() int {
	for id := len(l.grids) - 1; id >= 0; id-- {
		if l.grids[id].Status() == models.GridClosed {
			return id
		}
	}
	return -1
}

func (l *Ladder) minSellGridID() int {
	for id := range l.grids {
		if l.grids[id].Status() == models.GridOpen {
			return id
		}
	}
	return -1
}

// SellOrderCount returns how many bands hold a resting sell.
func (l *Ladder) SellOrderCount() int {
	n := 0
	for id := range l.grids {
		if l.grids[id].Status() == models.GridOpen {
			n++
		}
	}
	return n
}

// BuyOrderCount returns how many bands hold a resting buy.
func (l *Ladder) BuyOrderCount() int {
	n := 0
	for id := range l.grids {
		if l.grids[id].Status() == models.GridClosed {
			n++
		}
	}
	return n
}

// LockedQuote is the quote balance committed to the resting buy orders.
func (l *Ladder) LockedQuote() decimal.Decimal {
	total := decimal.Zero
	for id := range l.grids {
		if l.grids[id].Status() == models.GridClosed {
			total = total.Add(l.grids[id].Lower.Mul(l.cfg.GridWidthQty))
		}
	}
	return total
}
