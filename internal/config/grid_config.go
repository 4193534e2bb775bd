package config

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports a grid parameter set that must not be traded.
// It is fatal at startup: the process refuses to run with it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid grid config: " + e.Reason
}

// GridConfig is the immutable parameter set of the grid strategy, derived once
// from the raw user inputs. All arithmetic is decimal; prices truncate to
// PriceResolution and quantities to QtyResolution (truncation toward zero, the
// original strategy's global rounding mode).
type GridConfig struct {
	BaseAsset  string
	QuoteAsset string
	Symbol     string

	LowerLimit      decimal.Decimal
	UpperLimit      decimal.Decimal
	GridCount       int
	Investment      decimal.Decimal
	StartPrice      decimal.Decimal
	StopProfitPrice decimal.Decimal
	MinNotional     decimal.Decimal

	PriceResolution int32
	QtyResolution   int32

	// Derived.
	GridWidthPrice   decimal.Decimal
	GridWidthQty     decimal.Decimal
	StartGridID      int
	StopProfitGridID int

	raw Grid
}

// NewGridConfig derives and validates the strategy parameters.
func NewGridConfig(raw Grid) (*GridConfig, error) {
	if raw.GridCount < 1 {
		return nil, &ValidationError{Reason: fmt.Sprintf("grid_count %d < 1", raw.GridCount)}
	}

	c := &GridConfig{
		BaseAsset:       raw.BaseAsset,
		QuoteAsset:      raw.QuoteAsset,
		Symbol:          raw.BaseAsset + raw.QuoteAsset,
		GridCount:       raw.GridCount,
		PriceResolution: raw.PriceResolution,
		QtyResolution:   raw.QtyResolution,
		raw:             raw,
	}

	var err error
	if c.LowerLimit, err = parseDecimal("lower_limit", raw.LowerLimit); err != nil {
		return nil, err
	}
	if c.UpperLimit, err = parseDecimal("upper_limit", raw.UpperLimit); err != nil {
		return nil, err
	}
	if c.Investment, err = parseDecimal("investment", raw.Investment); err != nil {
		return nil, err
	}
	if c.StartPrice, err = parseDecimal("start_price", raw.StartPrice); err != nil {
		return nil, err
	}
	if c.StopProfitPrice, err = parseDecimal("stop_profit_price", raw.StopProfitPrice); err != nil {
		return nil, err
	}
	if c.MinNotional, err = parseDecimal("min_notional", raw.MinNotional); err != nil {
		return nil, err
	}

	if c.UpperLimit.LessThanOrEqual(c.LowerLimit) {
		return nil, &ValidationError{Reason: fmt.Sprintf("upper_limit %s <= lower_limit %s", c.UpperLimit, c.LowerLimit)}
	}
	// The upper limit is exclusive: a start price there maps to the saturated
	// grid id sentinel and leaves no band to buy back on.
	if c.StartPrice.LessThan(c.LowerLimit) || c.StartPrice.GreaterThanOrEqual(c.UpperLimit) {
		return nil, &ValidationError{Reason: fmt.Sprintf("start_price %s outside [%s, %s)", c.StartPrice, c.LowerLimit, c.UpperLimit)}
	}

	c.GridWidthPrice = c.UpperLimit.Sub(c.LowerLimit).
		Div(decimal.NewFromInt(int64(c.GridCount))).
		Truncate(c.PriceResolution)
	if c.GridWidthPrice.IsZero() {
		return nil, &ValidationError{Reason: "grid width truncates to zero at the configured price resolution"}
	}

	c.StartGridID = c.GetGridID(c.StartPrice)
	// Snap the start price onto its grid's lower bound so the start grid's
	// buy-back lands exactly on a ladder boundary.
	if c.StartGridID >= 0 && c.StartGridID < c.GridCount {
		c.StartPrice = c.GridLower(c.StartGridID)
	}
	c.StopProfitGridID = c.GetGridID(c.StopProfitPrice)

	// Quantity per grid: the quote cost of buying grids 0..StartGridID at
	// their lower bounds (the start grid at the start price) equals the
	// investment. The sum below is the arithmetic series in closed form.
	n := decimal.NewFromInt(int64(c.StartGridID))
	series := n.Mul(c.LowerLimit).
		Add(c.GridWidthPrice.Mul(n.Mul(n.Sub(decimal.NewFromInt(1))).Div(decimal.NewFromInt(2)))).
		Add(c.StartPrice)
	c.GridWidthQty = c.Investment.Div(series).Truncate(c.QtyResolution)

	if c.GridWidthQty.Mul(c.LowerLimit).LessThan(c.MinNotional) {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"per-grid notional %s below exchange minimum %s",
			c.GridWidthQty.Mul(c.LowerLimit), c.MinNotional)}
	}

	// Capital sufficiency: the full buy-side ladder must be affordable.
	if c.ladderCost().GreaterThan(c.Investment) {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"buy ladder cost %s exceeds investment %s", c.ladderCost(), c.Investment)}
	}

	return c, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &ValidationError{Reason: fmt.Sprintf("%s %q is not a number", field, value)}
	}
	return d, nil
}

// ladderCost is the quote cost of resting a buy on every grid from 0 up to and
// including the start grid.
func (c *GridConfig) ladderCost() decimal.Decimal {
	cost := decimal.Zero
	for id := 0; id < c.StartGridID; id++ {
		cost = cost.Add(c.GridLower(id).Mul(c.GridWidthQty))
	}
	return cost.Add(c.StartPrice.Mul(c.GridWidthQty))
}

// GetGridID maps a price onto the ladder. Prices below the range return -1 and
// prices at or above the upper limit return GridCount; both are sentinels for
// "no matching grid", not errors.
func (c *GridConfig) GetGridID(price decimal.Decimal) int {
	id := int(price.Sub(c.LowerLimit).Div(c.GridWidthPrice).Floor().IntPart())
	switch {
	case id >= c.GridCount:
		return c.GridCount
	case id < 0:
		return -1
	default:
		return id
	}
}

// GridLower is the lower price bound of a grid, truncated to the price resolution.
func (c *GridConfig) GridLower(id int) decimal.Decimal {
	return c.LowerLimit.
		Add(decimal.NewFromInt(int64(id)).Mul(c.GridWidthPrice)).
		Truncate(c.PriceResolution)
}

// GridUpper is the upper price bound of a grid.
func (c *GridConfig) GridUpper(id int) decimal.Decimal {
	return c.GridLower(id).Add(c.GridWidthPrice).Truncate(c.PriceResolution)
}

// ProfitPerGrid is the realized quote profit of one completed grid round trip.
func (c *GridConfig) ProfitPerGrid() decimal.Decimal {
	return c.GridWidthQty.Mul(c.GridWidthPrice)
}

// ProfitPerGridRatio is ProfitPerGrid as a percentage of the investment.
func (c *GridConfig) ProfitPerGridRatio() decimal.Decimal {
	return c.ProfitPerGrid().Div(c.Investment).Mul(decimal.NewFromInt(100))
}

// AvgCost is the average entry price if every grid were filled.
func (c *GridConfig) AvgCost() decimal.Decimal {
	return c.Investment.Div(c.GridWidthQty.Mul(decimal.NewFromInt(int64(c.GridCount))))
}

// MaxBaseHolding caps total base-asset inventory at one grid width per grid.
func (c *GridConfig) MaxBaseHolding() decimal.Decimal {
	return c.GridWidthQty.Mul(decimal.NewFromInt(int64(c.GridCount)))
}

// Snapshot renders the raw inputs as canonical JSON, used to detect parameter
// changes across restarts.
func (c *GridConfig) Snapshot() string {
	b, _ := json.Marshal(c.raw)
	return string(b)
}
