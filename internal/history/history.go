package history

import (
	"fmt"
	"sort"
	"time"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fetchInterval throttles remote history discovery; counters barely move
// minute to minute and the endpoint is expensive.
const fetchInterval = time.Minute

const fetchPageSize = 1000

// OrderFetcher is the slice of the exchange client the tracker needs.
type OrderFetcher interface {
	GetAllOrders(symbol string, startTime int64, limit int) ([]models.Order, error)
}

// OrderSink receives newly discovered closed orders for persistence. It may
// be nil when the tracker runs without a database (backtests, tests).
type OrderSink interface {
	RecordClosedOrders(orders []models.ClosedOrder) error
}

// GridMatcher maps an order's price onto a grid id. Orders that match no
// band are someone else's trades and are ignored.
type GridMatcher func(order *models.Order) (int, bool)

// Counters are the derived transaction and yield figures. They are a pure
// function of the closed-order history and the bot's age, recomputed from
// scratch on every update so nothing can drift.
type Counters struct {
	Tx1d  int
	Tx7d  int
	Tx30d int
	TxAll int

	APR1d  decimal.Decimal
	APR7d  decimal.Decimal
	APR30d decimal.Decimal
	APRAll decimal.Decimal

	// Realized quote profit over the bot's lifetime.
	ProfitAll decimal.Decimal
}

// Tracker discovers filled grid orders from remote history and derives the
// transaction counters. Discovery is monotonic: an order counts once, keyed
// by a strictly advancing settlement-time cursor.
type Tracker struct {
	cfg     *config.GridConfig
	client  OrderFetcher
	sink    OrderSink
	matcher GridMatcher
	logger  *zap.Logger

	botStart time.Time
	cursor   int64 // settlement time of the newest counted order, ms
	closed   []models.Order
	counters Counters

	lastFetch time.Time
	now       func() time.Time
}

// NewTracker creates a tracker anchored at the bot's start time.
func NewTracker(cfg *config.GridConfig, client OrderFetcher, sink OrderSink, matcher GridMatcher, botStart time.Time, logger *zap.Logger) *Tracker {
	return &Tracker{
		cfg:      cfg,
		client:   client,
		sink:     sink,
		matcher:  matcher,
		logger:   logger,
		botStart: botStart,
		cursor:   botStart.UnixMilli(),
		now:      time.Now,
	}
}

// Seed preloads previously persisted closed orders so counters survive a
// restart without refetching the full history.
func (t *Tracker) Seed(orders []models.Order) {
	for i := range orders {
		if orders[i].UpdateTime > t.cursor {
			t.cursor = orders[i].UpdateTime
		}
	}
	t.closed = append(t.closed, orders...)
	sort.Slice(t.closed, func(i, j int) bool { return t.closed[i].UpdateTime < t.closed[j].UpdateTime })
	t.recompute(t.now())
}

// Update fetches newly settled orders and recomputes the counters. Calls
// within the fetch interval recompute from the cached history only.
func (t *Tracker) Update() error {
	now := t.now()
	if now.Sub(t.lastFetch) >= fetchInterval {
		if err := t.fetch(); err != nil {
			return err
		}
		t.lastFetch = now
	}
	t.recompute(now)
	return nil
}

// fetch pages through the remote order history from the bot's start. Paging
// keys on submit time because a grid buy can rest for weeks before filling;
// the settlement cursor alone would skip it.
func (t *Tracker) fetch() error {
	since := t.botStart.UnixMilli()
	var fresh []models.Order

	for {
		page, err := t.client.GetAllOrders(t.cfg.Symbol, since, fetchPageSize)
		if err != nil {
			return fmt.Errorf("fetch order history: %w", err)
		}

		for i := range page {
			order := &page[i]
			if order.Status != models.StatusFilled {
				continue
			}
			if order.UpdateTime <= t.cursor {
				continue
			}
			if _, ok := t.matcher(order); !ok {
				continue
			}
			fresh = append(fresh, *order)
		}

		if len(page) < fetchPageSize {
			break
		}
		since = page[len(page)-1].Time + 1
	}

	if len(fresh) == 0 {
		return nil
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].UpdateTime < fresh[j].UpdateTime })
	t.closed = append(t.closed, fresh...)
	t.cursor = fresh[len(fresh)-1].UpdateTime

	t.logger.Info("discovered newly settled grid orders",
		zap.Int("count", len(fresh)),
		zap.Time("cursor", time.UnixMilli(t.cursor)))

	if t.sink != nil {
		if err := t.sink.RecordClosedOrders(t.toClosedOrders(fresh)); err != nil {
			return fmt.Errorf("persist closed orders: %w", err)
		}
	}
	return nil
}

func (t *Tracker) toClosedOrders(orders []models.Order) []models.ClosedOrder {
	out := make([]models.ClosedOrder, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		gridID, _ := t.matcher(o)
		out = append(out, models.ClosedOrder{
			OrderID:    o.OrderID,
			Symbol:     o.Symbol,
			Side:       string(o.Side),
			Price:      o.Price.String(),
			OrigQty:    o.OrigQty.String(),
			GridID:     gridID,
			Time:       o.Time,
			UpdateTime: o.UpdateTime,
		})
	}
	return out
}

// recompute rebuilds every counter from the full cached history. A sell fill
// completes a grid round trip, so only sells count as transactions.
func (t *Tracker) recompute(now time.Time) {
	age := now.Sub(t.botStart)
	if age < time.Minute {
		age = time.Minute
	}
	ageDays := decimal.NewFromFloat(age.Hours() / 24)

	count := func(window time.Duration) int {
		cutoff := now.Add(-window).UnixMilli()
		start := t.botStart.UnixMilli()
		n := 0
		for i := range t.closed {
			o := &t.closed[i]
			if o.Side == models.SideSell && o.UpdateTime > cutoff && o.UpdateTime >= start {
				n++
			}
		}
		return n
	}

	c := Counters{
		Tx1d:  count(24 * time.Hour),
		Tx7d:  count(7 * 24 * time.Hour),
		Tx30d: count(30 * 24 * time.Hour),
	}
	for i := range t.closed {
		if t.closed[i].Side == models.SideSell {
			c.TxAll++
		}
	}

	// A window on a bot younger than the window uses the true age as the
	// denominator, otherwise early APR would be overstated.
	clamp := func(days int64) decimal.Decimal {
		d := decimal.NewFromInt(days)
		if ageDays.LessThan(d) {
			return ageDays
		}
		return d
	}
	c.APR1d = t.apr(c.Tx1d, clamp(1))
	c.APR7d = t.apr(c.Tx7d, clamp(7))
	c.APR30d = t.apr(c.Tx30d, clamp(30))
	c.APRAll = t.apr(c.TxAll, ageDays)
	c.ProfitAll = t.cfg.ProfitPerGrid().Mul(decimal.NewFromInt(int64(c.TxAll)))

	t.counters = c
}

// apr annualizes the realized grid profit over a trailing window, as a
// percentage of the invested capital.
func (t *Tracker) apr(tx int, windowDays decimal.Decimal) decimal.Decimal {
	if windowDays.IsZero() || tx == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(tx)).
		Mul(t.cfg.ProfitPerGrid()).
		Div(t.cfg.Investment).
		Div(windowDays).
		Mul(decimal.NewFromInt(365)).
		Mul(decimal.NewFromInt(100))
}

// Counters returns the most recently computed counters.
func (t *Tracker) Counters() Counters {
	return t.counters
}

// RecentClosed returns up to n of the newest closed orders, newest first.
func (t *Tracker) RecentClosed(n int) []models.Order {
	if n > len(t.closed) {
		n = len(t.closed)
	}
	out := make([]models.Order, 0, n)
	for i := len(t.closed) - 1; i >= len(t.closed)-n; i-- {
		out = append(out, t.closed[i])
	}
	return out
}

// BotStart returns the anchor time of the history.
func (t *Tracker) BotStart() time.Time {
	return t.botStart
}
