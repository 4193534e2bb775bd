package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideNone Side = ""
)

// Order statuses as reported by the exchange.
const (
	StatusNew             = "NEW"
	StatusFilled          = "FILLED"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusCanceled        = "CANCELED"
	StatusExpired         = "EXPIRED"
	StatusRejected        = "REJECTED"
)

// Order is a single exchange order, live or historical.
type Order struct {
	OrderID     int64
	Symbol      string
	Side        Side
	Status      string
	Price       decimal.Decimal
	OrigQty     decimal.Decimal
	ExecutedQty decimal.Decimal
	Time        int64 // submit time, ms since epoch
	UpdateTime  int64 // last update (settlement) time, ms since epoch
}

// SubmitTime returns the order's submit time as a time.Time.
func (o *Order) SubmitTime() time.Time { return time.UnixMilli(o.Time) }

// SettleTime returns the order's last update time as a time.Time.
func (o *Order) SettleTime() time.Time { return time.UnixMilli(o.UpdateTime) }

// Balance is the free/locked amount of one asset in the account.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Kline is a single candlestick.
type Kline struct {
	OpenTime  int64
	CloseTime int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// GridStatus is the derived state of one grid band.
type GridStatus int

const (
	// GridOpen means inventory is held and a sell order rests at the upper bound.
	GridOpen GridStatus = iota
	// GridClosed means the band is flat and a buy order rests at the lower bound.
	GridClosed
	// GridUnknown means no order rests on the band; it must be repaired.
	GridUnknown
)

func (s GridStatus) String() string {
	switch s {
	case GridOpen:
		return "OPEN"
	case GridClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Grid is one price band of the ladder. It holds at most one resting order.
type Grid struct {
	Lower          decimal.Decimal
	Upper          decimal.Decimal
	RestingOrderID int64
	RestingSide    Side
	RestingQty     decimal.Decimal
}

// Status derives the band state from the resting order.
func (g *Grid) Status() GridStatus {
	switch {
	case g.RestingOrderID != 0 && g.RestingSide == SideSell:
		return GridOpen
	case g.RestingOrderID != 0 && g.RestingSide == SideBuy:
		return GridClosed
	default:
		return GridUnknown
	}
}

// Clear forgets the resting order. Bounds are immutable and survive.
func (g *Grid) Clear() {
	g.RestingOrderID = 0
	g.RestingSide = SideNone
	g.RestingQty = decimal.Decimal{}
}

// Account is a wholesale snapshot of the balances relevant to the strategy,
// replaced every cycle and never partially updated.
type Account struct {
	QuoteFree   decimal.Decimal
	QuoteLocked decimal.Decimal
	QuoteTotal  decimal.Decimal

	BaseFree   decimal.Decimal
	BaseLocked decimal.Decimal
	BaseTotal  decimal.Decimal

	// Derived from the mark price at snapshot time.
	Price     decimal.Decimal
	FiatTotal decimal.Decimal
	FreeTotal decimal.Decimal
}

// MarketSnapshot is the market view handed to a pricing policy.
type MarketSnapshot struct {
	Time      time.Time
	LastPrice decimal.Decimal
	Closes    []decimal.Decimal
}
