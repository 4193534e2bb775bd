package pricing

import (
	"fmt"
	"strings"

	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
)

// PricingPolicy decides where the maker strategy quotes around the market.
// Each historical quoting mode is one implementation instead of a forked
// control loop.
type PricingPolicy interface {
	Name() string
	ComputeBuySellPrices(snap *models.MarketSnapshot) (buy, sell decimal.Decimal, err error)
}

// FixedWidthPolicy quotes symmetrically around the last traded price.
type FixedWidthPolicy struct {
	Delta           decimal.Decimal // fractional half-width, e.g. 0.003
	PriceResolution int32
}

func (p *FixedWidthPolicy) Name() string { return "fixed-width" }

func (p *FixedWidthPolicy) ComputeBuySellPrices(snap *models.MarketSnapshot) (decimal.Decimal, decimal.Decimal, error) {
	if snap.LastPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("fixed-width policy: last price %s is not positive", snap.LastPrice)
	}
	one := decimal.NewFromInt(1)
	buy := snap.LastPrice.Mul(one.Sub(p.Delta)).Truncate(p.PriceResolution)
	sell := snap.LastPrice.Mul(one.Add(p.Delta)).Truncate(p.PriceResolution)
	return buy, sell, nil
}

// MAAlg selects the moving-average flavor.
type MAAlg string

const (
	SMA MAAlg = "sma"
	EMA MAAlg = "ema"
)

// MovingAveragePolicy quotes symmetrically around a moving average of the
// recent closes instead of the last trade, damping reaction to single prints.
type MovingAveragePolicy struct {
	Window          int
	Alg             MAAlg
	Delta           decimal.Decimal
	PriceResolution int32
}

func (p *MovingAveragePolicy) Name() string { return fmt.Sprintf("%s-%d", p.Alg, p.Window) }

func (p *MovingAveragePolicy) ComputeBuySellPrices(snap *models.MarketSnapshot) (decimal.Decimal, decimal.Decimal, error) {
	if len(snap.Closes) < p.Window || p.Window < 1 {
		return decimal.Zero, decimal.Zero, fmt.Errorf(
			"moving-average policy: need %d closes, have %d", p.Window, len(snap.Closes))
	}

	var mid decimal.Decimal
	switch p.Alg {
	case EMA:
		mid = ema(snap.Closes, p.Window)
	case SMA:
		mid = sma(snap.Closes[len(snap.Closes)-p.Window:])
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("moving-average policy: unknown algorithm %q", p.Alg)
	}

	one := decimal.NewFromInt(1)
	buy := mid.Mul(one.Sub(p.Delta)).Truncate(p.PriceResolution)
	sell := mid.Mul(one.Add(p.Delta)).Truncate(p.PriceResolution)
	return buy, sell, nil
}

func sma(closes []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range closes {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(len(closes))))
}

// ema seeds with the simple average of the first window and folds the rest in
// with the usual 2/(window+1) weight.
func ema(closes []decimal.Decimal, window int) decimal.Decimal {
	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(window + 1)))
	one := decimal.NewFromInt(1)

	avg := sma(closes[:window])
	for _, c := range closes[window:] {
		avg = c.Mul(k).Add(avg.Mul(one.Sub(k)))
	}
	return avg
}

// NewPolicy builds a policy from plain configuration values.
func NewPolicy(mode string, window int, alg string, delta decimal.Decimal, priceResolution int32) (PricingPolicy, error) {
	switch Mode(strings.ToUpper(mode)) {
	case ModeFixedWidth:
		return &FixedWidthPolicy{Delta: delta, PriceResolution: priceResolution}, nil
	case ModeMovingAverage:
		return &MovingAveragePolicy{
			Window:          window,
			Alg:             MAAlg(strings.ToLower(alg)),
			Delta:           delta,
			PriceResolution: priceResolution,
		}, nil
	case ModeBasisSwap, ModeVCoin:
		return nil, fmt.Errorf("pricing mode %s is not supported by this engine", mode)
	default:
		return nil, fmt.Errorf("unknown pricing mode %q", mode)
	}
}
