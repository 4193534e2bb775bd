package engine

import (
	"fmt"
	"time"

	"grid-trader-go/internal/models"
	"grid-trader-go/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MakerStrategy quotes a single buy/sell pair around a pricing policy every
// cycle, cancelling the previous pair first. It is the collapsed form of the
// historical one-off quoting variants: the control loop is shared and only
// the policy differs.
type MakerStrategy struct {
	policy pricing.PricingPolicy
	symbol string
	qty    decimal.Decimal
	logger *zap.Logger
	dryRun bool

	klineLimit int

	buyOrderID  int64
	sellOrderID int64
}

// NewMakerStrategy creates an uninitialized maker strategy.
func NewMakerStrategy() *MakerStrategy {
	return &MakerStrategy{}
}

func (s *MakerStrategy) Name() string { return "maker" }

// Initialize parses the quoting parameters and builds the pricing policy. A
// legacy digit-encoded signal price, when configured, is decoded here once;
// the rest of the strategy only ever sees the explicit policy.
func (s *MakerStrategy) Initialize(ctx *StrategyContext) error {
	s.logger = ctx.Logger
	s.symbol = ctx.Cfg.Grid.BaseAsset + ctx.Cfg.Grid.QuoteAsset
	s.dryRun = ctx.Cfg.Trading.DryRun

	qty, err := decimal.NewFromString(ctx.Cfg.Trading.Quantity)
	if err != nil {
		return fmt.Errorf("trading quantity %q is not a number: %w", ctx.Cfg.Trading.Quantity, err)
	}
	s.qty = qty

	tc := ctx.Cfg.Trading
	res := ctx.Cfg.Grid.PriceResolution

	if tc.SignalPrice != "" {
		raw, err := decimal.NewFromString(tc.SignalPrice)
		if err != nil {
			return fmt.Errorf("signal price %q is not a number: %w", tc.SignalPrice, err)
		}
		sig, err := pricing.DecodeSignalPrice(raw)
		if err != nil {
			return err
		}
		s.logger.Info("Decoded legacy pricing signal",
			zap.String("mode", string(sig.Mode)),
			zap.Int("window", sig.Window),
			zap.String("delta", sig.Delta.String()))
		s.policy, err = pricing.PolicyFromSignal(sig, tc.MAAlg, res)
		if err != nil {
			return err
		}
	} else {
		delta, err := decimal.NewFromString(tc.Delta)
		if err != nil {
			return fmt.Errorf("trading delta %q is not a number: %w", tc.Delta, err)
		}
		s.policy, err = pricing.NewPolicy(tc.PolicyMode, tc.MAWindow, tc.MAAlg, delta, res)
		if err != nil {
			return err
		}
	}

	s.klineLimit = tc.MAWindow * 2
	if s.klineLimit < 50 {
		s.klineLimit = 50
	}

	s.logger.Info("Maker strategy ready",
		zap.String("symbol", s.symbol),
		zap.String("policy", s.policy.Name()),
		zap.String("qty", s.qty.String()))
	return nil
}

// Tick re-quotes: pull the previous pair, price the new one, submit both.
func (s *MakerStrategy) Tick(ctx *StrategyContext) error {
	if err := s.cancelQuotes(ctx); err != nil {
		return err
	}

	snap, err := s.takeMarketSnapshot(ctx)
	if err != nil {
		return err
	}

	buy, sell, err := s.policy.ComputeBuySellPrices(snap)
	if err != nil {
		return fmt.Errorf("compute quotes: %w", err)
	}

	if !ctx.Guard.IsSafeToTrade() {
		return nil
	}
	if s.dryRun {
		s.logger.Info("dry run: would quote",
			zap.String("buy", buy.String()), zap.String("sell", sell.String()))
		return nil
	}

	buyID, err := ctx.Client.SubmitLimitBuy(s.symbol, s.qty, buy)
	if err != nil {
		return fmt.Errorf("submit buy quote: %w", err)
	}
	s.buyOrderID = buyID

	if !ctx.Guard.IsSafeToTrade() {
		return nil
	}
	sellID, err := ctx.Client.SubmitLimitSell(s.symbol, s.qty, sell)
	if err != nil {
		return fmt.Errorf("submit sell quote: %w", err)
	}
	s.sellOrderID = sellID

	s.logger.Debug("quotes refreshed",
		zap.String("buy", buy.String()), zap.String("sell", sell.String()))
	return nil
}

// cancelQuotes pulls whichever side of the previous pair is still resting.
// A side that filled since last cycle is simply gone from the open list.
func (s *MakerStrategy) cancelQuotes(ctx *StrategyContext) error {
	open, err := ctx.Client.GetOpenOrders(s.symbol)
	if err != nil {
		return fmt.Errorf("fetch open quotes: %w", err)
	}
	resting := make(map[int64]struct{}, len(open))
	for i := range open {
		resting[open[i].OrderID] = struct{}{}
	}

	for _, id := range []int64{s.buyOrderID, s.sellOrderID} {
		if id == 0 {
			continue
		}
		if _, ok := resting[id]; !ok {
			continue
		}
		if err := ctx.Client.CancelOrder(s.symbol, id); err != nil {
			return fmt.Errorf("cancel quote %d: %w", id, err)
		}
	}
	s.buyOrderID, s.sellOrderID = 0, 0
	return nil
}

func (s *MakerStrategy) takeMarketSnapshot(ctx *StrategyContext) (*models.MarketSnapshot, error) {
	price, err := ctx.Client.GetTickerPrice(s.symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker price: %w", err)
	}

	snap := &models.MarketSnapshot{Time: time.Now(), LastPrice: price}

	// Only moving-average policies look at the close series.
	if _, ok := s.policy.(*pricing.MovingAveragePolicy); ok {
		klines, err := ctx.Client.GetKlines(s.symbol, "1m", s.klineLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		snap.Closes = make([]decimal.Decimal, 0, len(klines))
		for i := range klines {
			snap.Closes = append(snap.Closes, klines[i].Close)
		}
	}
	return snap, nil
}
