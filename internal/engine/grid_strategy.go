package engine

import (
	"fmt"
	"os"
	"time"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/grid"
	"grid-trader-go/internal/history"
	"grid-trader-go/internal/models"
	"grid-trader-go/internal/reporter"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// snapshotAttempts bounds the open-order stability loop: the snapshot is
// refetched until two consecutive reads agree, so a fill landing mid-fetch
// cannot hand reconciliation a torn view.
const snapshotAttempts = 3

// reportInterval throttles console reports and asset curve samples.
const reportInterval = time.Minute

// GridStrategy maintains the order ladder: every cycle it rebuilds its view
// of the remote book, reconciles the ladder against it, repairs whatever is
// missing and refreshes the profit history.
type GridStrategy struct {
	gridCfg     *config.GridConfig
	ladder      *grid.Ladder
	replenisher *grid.Replenisher
	tracker     *history.Tracker
	reporter    *reporter.Reporter
	logger      *zap.Logger

	botStart   time.Time
	lastReport time.Time
	lastSample time.Time

	now func() time.Time
}

// NewGridStrategy creates an uninitialized grid strategy.
func NewGridStrategy() *GridStrategy {
	return &GridStrategy{now: time.Now}
}

func (s *GridStrategy) Name() string { return "grid" }

// Initialize derives the grid parameters, restores persisted history and
// wires the ladder, replenisher and tracker together.
func (s *GridStrategy) Initialize(ctx *StrategyContext) error {
	s.logger = ctx.Logger

	gridCfg, err := config.NewGridConfig(ctx.Cfg.Grid)
	if err != nil {
		return err
	}
	s.gridCfg = gridCfg

	s.botStart = s.now()
	var seed []models.Order
	if ctx.Store != nil {
		state, resumed, err := ctx.Store.LoadOrInitState(gridCfg.Snapshot(), s.botStart)
		if err != nil {
			return err
		}
		s.botStart = state.StartTime
		if resumed {
			if seed, err = s.loadSeed(ctx); err != nil {
				return err
			}
			s.logger.Info("Resumed prior run",
				zap.Time("bot_start", s.botStart),
				zap.Int("closed_orders", len(seed)))
		}
	}

	s.ladder = grid.NewLadder(gridCfg, ctx.Logger)
	s.replenisher = grid.NewReplenisher(s.ladder, ctx.Client, ctx.Guard, ctx.Cfg.Trading.DryRun, ctx.Logger)

	var sink history.OrderSink
	if ctx.Store != nil {
		sink = ctx.Store
	}
	s.tracker = history.NewTracker(gridCfg, ctx.Client, sink, s.ladder.MatchGridID, s.botStart, ctx.Logger)
	if len(seed) > 0 {
		s.tracker.Seed(seed)
	}

	s.reporter = reporter.New(os.Stdout)
	s.reporter.PrintConfig(gridCfg)
	return nil
}

func (s *GridStrategy) loadSeed(ctx *StrategyContext) ([]models.Order, error) {
	stored, err := ctx.Store.ClosedOrders()
	if err != nil {
		return nil, err
	}
	seed := make([]models.Order, 0, len(stored))
	for i := range stored {
		o := &stored[i]
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			return nil, fmt.Errorf("stored order %d: bad price %q: %w", o.OrderID, o.Price, err)
		}
		qty, err := decimal.NewFromString(o.OrigQty)
		if err != nil {
			return nil, fmt.Errorf("stored order %d: bad qty %q: %w", o.OrderID, o.OrigQty, err)
		}
		seed = append(seed, models.Order{
			OrderID:    o.OrderID,
			Symbol:     o.Symbol,
			Side:       models.Side(o.Side),
			Status:     models.StatusFilled,
			Price:      price,
			OrigQty:    qty,
			Time:       o.Time,
			UpdateTime: o.UpdateTime,
		})
	}
	return seed, nil
}

// Tick runs one cycle: snapshot, reconcile, validate, replenish, history,
// report. Reconciliation must succeed before replenishment may run;
// replenishing against a stale ladder would double-submit orders.
func (s *GridStrategy) Tick(ctx *StrategyContext) error {
	state, err := s.takeSnapshot(ctx)
	if err != nil {
		return err
	}

	if err := s.ladder.Reconcile(state.OpenOrders); err != nil {
		return err
	}
	if err := s.ladder.Validate(); err != nil {
		return err
	}

	submitted, err := s.replenisher.Run(state.Price, &state.Account)
	if err != nil {
		return err
	}
	if submitted > 0 {
		s.logger.Info("Ladder replenished", zap.Int("orders", submitted))
	}

	if err := s.tracker.Update(); err != nil {
		return err
	}

	s.report(ctx, state, submitted)
	return nil
}

// takeSnapshot assembles the cycle's market view. The open-order list is
// fetched repeatedly until two consecutive reads carry the same order ids.
func (s *GridStrategy) takeSnapshot(ctx *StrategyContext) (*EngineState, error) {
	symbol := s.gridCfg.Symbol

	orders, err := ctx.Client.GetOpenOrders(symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}
	for i := 1; i < snapshotAttempts; i++ {
		again, err := ctx.Client.GetOpenOrders(symbol)
		if err != nil {
			return nil, fmt.Errorf("fetch open orders: %w", err)
		}
		if sameOrderIDs(orders, again) {
			break
		}
		s.logger.Debug("open orders changed mid-snapshot, refetching", zap.Int("attempt", i))
		orders = again
	}

	price, err := ctx.Client.GetTickerPrice(symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker price: %w", err)
	}

	balances, err := ctx.Client.GetAccountBalances()
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	return &EngineState{
		CycleStart: s.now(),
		Price:      price,
		Account:    s.buildAccount(balances, price),
		OpenOrders: orders,
	}, nil
}

func sameOrderIDs(a, b []models.Order) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]struct{}, len(a))
	for i := range a {
		seen[a[i].OrderID] = struct{}{}
	}
	for i := range b {
		if _, ok := seen[b[i].OrderID]; !ok {
			return false
		}
	}
	return true
}

func (s *GridStrategy) buildAccount(balances []models.Balance, price decimal.Decimal) models.Account {
	var acct models.Account
	for i := range balances {
		b := &balances[i]
		switch b.Asset {
		case s.gridCfg.QuoteAsset:
			acct.QuoteFree = b.Free
			acct.QuoteLocked = b.Locked
			acct.QuoteTotal = b.Free.Add(b.Locked)
		case s.gridCfg.BaseAsset:
			acct.BaseFree = b.Free
			acct.BaseLocked = b.Locked
			acct.BaseTotal = b.Free.Add(b.Locked)
		}
	}
	acct.Price = price
	acct.FiatTotal = acct.QuoteTotal.Add(acct.BaseTotal.Mul(price))
	acct.FreeTotal = acct.QuoteFree.Add(acct.BaseFree.Mul(price))
	return acct
}

// report prints the cycle summary and samples the asset curve, at most once
// per report interval. Cycles that submitted orders are skipped for sampling:
// their balances are mid-transition and would put spikes in the curve.
func (s *GridStrategy) report(ctx *StrategyContext, state *EngineState, submitted int) {
	now := s.now()
	if now.Sub(s.lastReport) >= reportInterval {
		s.lastReport = now
		s.reporter.PrintSummary(&reporter.Summary{
			Time:         state.CycleStart,
			Price:        state.Price.String(),
			Account:      state.Account,
			GuardCredits: ctx.Guard.Credits(),
			Counters:     s.tracker.Counters(),
			Grids:        s.ladder.Grids(),
			RecentClosed: s.tracker.RecentClosed(10),
		})
	}

	if ctx.Store != nil && submitted == 0 && now.Sub(s.lastSample) >= reportInterval {
		s.lastSample = now
		point := &models.AssetPoint{
			SampledAt:   state.CycleStart,
			Price:       state.Price.String(),
			QuoteFree:   state.Account.QuoteFree.String(),
			QuoteLocked: state.Account.QuoteLocked.String(),
			BaseTotal:   state.Account.BaseTotal.String(),
			FiatTotal:   state.Account.FiatTotal.String(),
		}
		if err := ctx.Store.SaveAssetPoint(point); err != nil {
			s.logger.Error("Failed to save asset point", zap.Error(err))
		}
	}
}
