package grid

import (
	"fmt"

	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderPlacer is the slice of the exchange client the replenisher needs.
type OrderPlacer interface {
	SubmitLimitBuy(symbol string, qty, price decimal.Decimal) (int64, error)
	SubmitLimitSell(symbol string, qty, price decimal.Decimal) (int64, error)
	CancelOrder(symbol string, orderID int64) error
}

// SubmissionGuard gates every order submission attempt.
type SubmissionGuard interface {
	IsSafeToTrade() bool
}

// Replenisher restores a reconciled ladder to its target shape: a contiguous
// block of resting buys below the current price and resting sells from the
// current price up to the stop-profit band. It must only run after a
// successful Reconcile and Validate in the same cycle.
type Replenisher struct {
	ladder *Ladder
	client OrderPlacer
	guard  SubmissionGuard
	logger *zap.Logger
	dryRun bool
}

// NewReplenisher wires a replenisher to a ladder and an exchange client.
// In dry-run mode intended orders are logged but never submitted.
func NewReplenisher(ladder *Ladder, client OrderPlacer, guard SubmissionGuard, dryRun bool, logger *zap.Logger) *Replenisher {
	return &Replenisher{
		ladder: ladder,
		client: client,
		guard:  guard,
		logger: logger,
		dryRun: dryRun,
	}
}

// Run executes one replenishment pass. It returns the number of orders
// submitted. Insufficient balance and guard exhaustion end the pass early and
// are not errors; exchange failures are, and abandon the cycle.
func (r *Replenisher) Run(price decimal.Decimal, account *models.Account) (int, error) {
	cancelled, err := r.cancelStrayOrders()
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		r.logger.Info("stray orders cancelled, replenishment deferred to next cycle",
			zap.Int("cancelled", cancelled))
		return 0, nil
	}

	submitted, err := r.replenishBuys(price, account)
	if err != nil {
		return submitted, err
	}

	sells, err := r.replenishSells(price, account)
	return submitted + sells, err
}

// cancelStrayOrders clears orders stranded strictly between the start band
// and the stop-profit band when no sells are open (a fresh cycle boundary).
// Cancelling and re-submitting in the same pass would race, so the caller
// defers when anything was cancelled.
func (r *Replenisher) cancelStrayOrders() (int, error) {
	if r.ladder.SellOrderCount() > 0 {
		return 0, nil
	}
	cfg := r.ladder.Config()

	cancelled := 0
	for id := cfg.StartGridID + 1; id < cfg.StopProfitGridID; id++ {
		g := r.ladder.Grid(id)
		if g.RestingOrderID == 0 {
			continue
		}
		r.logger.Warn("cancelling stray order between start and stop-profit grids",
			zap.Int("grid_id", id),
			zap.Int64("order_id", g.RestingOrderID),
			zap.String("side", string(g.RestingSide)))
		if r.dryRun {
			g.Clear()
			cancelled++
			continue
		}
		if err := r.client.CancelOrder(cfg.Symbol, g.RestingOrderID); err != nil {
			return cancelled, fmt.Errorf("cancel stray order %d: %w", g.RestingOrderID, err)
		}
		g.Clear()
		cancelled++
	}
	return cancelled, nil
}

// topBuyGridID decides the highest band that should carry a resting buy. When
// no sell is open the whole cycle has completed and the ladder restarts from
// the start band. Otherwise walk down from the current price: a sell fill and
// its re-buy one band lower may not both have landed yet, so the first band
// that is vacant or already holds a buy is the top of the buy block.
func (r *Replenisher) topBuyGridID(price decimal.Decimal) int {
	cfg := r.ladder.Config()
	if r.ladder.SellOrderCount() == 0 {
		return cfg.StartGridID
	}

	id := cfg.GetGridID(price)
	if id >= cfg.GridCount {
		id = cfg.GridCount - 1
	}
	for ; id >= 0; id-- {
		if r.ladder.Grid(id).Status() != models.GridOpen {
			return id
		}
	}
	return -1
}

// replenishBuys rests a buy on every vacant band from 0 up to the top buy
// band, bottom-up. The top buy band additionally absorbs the inventory
// shortfall left by sells that closed while the process was down.
func (r *Replenisher) replenishBuys(price decimal.Decimal, account *models.Account) (int, error) {
	cfg := r.ladder.Config()
	topBuy := r.topBuyGridID(price)
	if topBuy < 0 {
		return 0, nil
	}

	quoteFree := account.QuoteFree
	submitted := 0
	for id := 0; id <= topBuy; id++ {
		g := r.ladder.Grid(id)
		if g.Status() != models.GridUnknown {
			continue
		}

		qty := cfg.GridWidthQty
		if id == topBuy {
			qty = qty.Add(r.additionalBuyQty(topBuy, account)).Truncate(cfg.QtyResolution)
		}

		buyPrice := g.Lower
		if id == cfg.StartGridID {
			buyPrice = cfg.StartPrice
		}

		cost := buyPrice.Mul(qty)
		if quoteFree.LessThan(cost) {
			// Intentionally stop instead of skipping ahead: a gap in the
			// buy block would break the contiguity invariant.
			r.logger.Info("quote balance exhausted, remaining buys deferred",
				zap.Int("grid_id", id),
				zap.String("needed", cost.String()),
				zap.String("free", quoteFree.String()))
			return submitted, nil
		}

		orderID, ok, err := r.submitBuy(qty, buyPrice, id)
		if err != nil {
			return submitted, err
		}
		if !ok {
			return submitted, nil
		}

		g.RestingOrderID = orderID
		g.RestingSide = models.SideBuy
		g.RestingQty = qty
		quoteFree = quoteFree.Sub(cost)
		submitted++
	}
	return submitted, nil
}

// additionalBuyQty is the inventory shortfall against the holdings the open
// bands above topBuy imply, capped so total base holdings never exceed one
// grid width per band.
func (r *Replenisher) additionalBuyQty(topBuy int, account *models.Account) decimal.Decimal {
	cfg := r.ladder.Config()

	expected := cfg.GridWidthQty.Mul(decimal.NewFromInt(int64(cfg.GridCount - topBuy - 1)))
	shortfall := expected.Sub(account.BaseTotal)
	if shortfall.IsNegative() {
		return decimal.Zero
	}

	room := cfg.MaxBaseHolding().Sub(account.BaseTotal).Sub(cfg.GridWidthQty)
	if room.IsNegative() {
		return decimal.Zero
	}
	if shortfall.GreaterThan(room) {
		return room
	}
	return shortfall
}

// replenishSells rests a sell on every vacant band from the stop-profit band
// down to the current band, top-down. The stop-profit band is the liquidation
// band: it absorbs all inventory above it in one order.
func (r *Replenisher) replenishSells(price decimal.Decimal, account *models.Account) (int, error) {
	cfg := r.ladder.Config()

	current := cfg.GetGridID(price)
	if current < 0 {
		current = 0
	}
	top := cfg.StopProfitGridID
	if top >= cfg.GridCount {
		top = cfg.GridCount - 1
	}

	baseFree := account.BaseFree
	submitted := 0
	for id := top; id >= current && id >= 0; id-- {
		g := r.ladder.Grid(id)
		if g.Status() != models.GridUnknown {
			continue
		}

		qty := cfg.GridWidthQty
		if id == cfg.StopProfitGridID {
			qty = cfg.GridWidthQty.Mul(decimal.NewFromInt(int64(cfg.GridCount - cfg.StopProfitGridID)))
		}

		if baseFree.LessThan(qty) {
			r.logger.Info("base balance exhausted, remaining sells deferred",
				zap.Int("grid_id", id),
				zap.String("needed", qty.String()),
				zap.String("free", baseFree.String()))
			return submitted, nil
		}

		orderID, ok, err := r.submitSell(qty, g.Upper, id)
		if err != nil {
			return submitted, err
		}
		if !ok {
			return submitted, nil
		}

		g.RestingOrderID = orderID
		g.RestingSide = models.SideSell
		g.RestingQty = qty
		baseFree = baseFree.Sub(qty)
		submitted++
	}

	if submitted == 0 {
		return r.repairExcessInventory(baseFree)
	}
	return submitted, nil
}

// repairExcessInventory attaches leftover base balance to the lowest resting
// sell: inventory stranded by downtime (a buy filled while its matching sell
// never went out) would otherwise sit idle forever. Only runs in passes that
// submitted no sells, so it cannot race a fresh submission.
func (r *Replenisher) repairExcessInventory(baseFree decimal.Decimal) (int, error) {
	cfg := r.ladder.Config()
	if baseFree.LessThan(cfg.GridWidthQty) {
		return 0, nil
	}

	var target *models.Grid
	var targetID int
	for id := 0; id < cfg.GridCount; id++ {
		if g := r.ladder.Grid(id); g.Status() == models.GridOpen {
			target, targetID = g, id
			break
		}
	}
	if target == nil {
		return 0, nil
	}

	qty := target.RestingQty.Add(baseFree).Truncate(cfg.QtyResolution)
	if !r.guard.IsSafeToTrade() {
		return 0, nil
	}

	r.logger.Info("attaching stranded inventory to lowest resting sell",
		zap.Int("grid_id", targetID),
		zap.String("leftover", baseFree.String()),
		zap.String("combined_qty", qty.String()))

	if r.dryRun {
		target.RestingQty = qty
		return 1, nil
	}

	oldID := target.RestingOrderID
	if err := r.client.CancelOrder(cfg.Symbol, oldID); err != nil {
		return 0, fmt.Errorf("cancel sell %d for inventory repair: %w", oldID, err)
	}
	target.Clear()

	orderID, err := r.client.SubmitLimitSell(cfg.Symbol, qty, r.ladder.Grid(targetID).Upper)
	if err != nil {
		return 0, fmt.Errorf("resubmit combined sell on grid %d: %w", targetID, err)
	}
	target.RestingOrderID = orderID
	target.RestingSide = models.SideSell
	target.RestingQty = qty
	return 1, nil
}

func (r *Replenisher) submitBuy(qty, price decimal.Decimal, id int) (int64, bool, error) {
	if !r.guard.IsSafeToTrade() {
		return 0, false, nil
	}
	if r.dryRun {
		r.logger.Info("dry run: would submit buy",
			zap.Int("grid_id", id), zap.String("qty", qty.String()), zap.String("price", price.String()))
		return dryRunOrderID(id, models.SideBuy), true, nil
	}
	orderID, err := r.client.SubmitLimitBuy(r.ladder.Config().Symbol, qty, price)
	if err != nil {
		return 0, false, fmt.Errorf("submit buy on grid %d: %w", id, err)
	}
	return orderID, true, nil
}

func (r *Replenisher) submitSell(qty, price decimal.Decimal, id int) (int64, bool, error) {
	if !r.guard.IsSafeToTrade() {
		return 0, false, nil
	}
	if r.dryRun {
		r.logger.Info("dry run: would submit sell",
			zap.Int("grid_id", id), zap.String("qty", qty.String()), zap.String("price", price.String()))
		return dryRunOrderID(id, models.SideSell), true, nil
	}
	orderID, err := r.client.SubmitLimitSell(r.ladder.Config().Symbol, qty, price)
	if err != nil {
		return 0, false, fmt.Errorf("submit sell on grid %d: %w", id, err)
	}
	return orderID, true, nil
}

// dryRunOrderID fabricates a stable placeholder id so dry-run ladder state
// stays inspectable. Negative so it can never collide with an exchange id.
func dryRunOrderID(gridID int, side models.Side) int64 {
	id := int64(-(gridID + 1))
	if side == models.SideSell {
		id -= 1000
	}
	return id
}
