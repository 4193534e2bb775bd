package reporter

import (
	"fmt"
	"io"
	"time"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/history"
	"grid-trader-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Reporter renders the cycle summary as tables for a console or log file.
type Reporter struct {
	out io.Writer
}

// New creates a reporter writing to out.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Summary is the structured cycle report: everything an operator needs to
// reconstruct what the bot believes and why.
type Summary struct {
	Time         time.Time
	Price        string
	Account      models.Account
	GuardCredits int
	Counters     history.Counters
	Grids        []models.Grid
	RecentClosed []models.Order
}

// PrintConfig renders the derived strategy parameters, once at startup.
func (r *Reporter) PrintConfig(cfg *config.GridConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Grid Configuration")
	t.AppendRows([]table.Row{
		{"symbol", cfg.Symbol},
		{"range", fmt.Sprintf("%s .. %s", cfg.LowerLimit, cfg.UpperLimit)},
		{"grids", cfg.GridCount},
		{"grid width (price)", cfg.GridWidthPrice.String()},
		{"grid width (qty)", cfg.GridWidthQty.String()},
		{"investment", cfg.Investment.String()},
		{"start grid", cfg.StartGridID},
		{"stop-profit grid", cfg.StopProfitGridID},
		{"profit per grid", cfg.ProfitPerGrid().String()},
		{"profit per grid %", cfg.ProfitPerGridRatio().StringFixed(4)},
		{"avg cost (full ladder)", cfg.AvgCost().StringFixed(int32(cfg.PriceResolution))},
		{"max base holding", cfg.MaxBaseHolding().String()},
	})
	t.Render()
}

// PrintSummary renders the per-cycle report.
func (r *Reporter) PrintSummary(s *Summary) {
	r.printAccount(s)
	r.printHistory(&s.Counters)
	r.printLadder(s.Grids)
	r.printRecentClosed(s.RecentClosed)
}

func (r *Reporter) printAccount(s *Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Account @ %s", s.Time.Format("2006-01-02 15:04:05")))
	t.AppendHeader(table.Row{"", "free", "locked", "total"})
	t.AppendRows([]table.Row{
		{"quote", s.Account.QuoteFree.String(), s.Account.QuoteLocked.String(), s.Account.QuoteTotal.String()},
		{"base", s.Account.BaseFree.String(), s.Account.BaseLocked.String(), s.Account.BaseTotal.String()},
	})
	t.AppendFooter(table.Row{"price", s.Price, "fiat total", s.Account.FiatTotal.StringFixed(2)})
	t.AppendFooter(table.Row{"guard credits", s.GuardCredits, "", ""})
	t.Render()
}

func (r *Reporter) printHistory(c *history.Counters) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("History")
	t.AppendHeader(table.Row{"window", "tx", "apr %"})
	t.AppendRows([]table.Row{
		{"1d", c.Tx1d, c.APR1d.StringFixed(2)},
		{"7d", c.Tx7d, c.APR7d.StringFixed(2)},
		{"30d", c.Tx30d, c.APR30d.StringFixed(2)},
		{"all", c.TxAll, c.APRAll.StringFixed(2)},
	})
	t.AppendFooter(table.Row{"profit", c.ProfitAll.StringFixed(4), ""})
	t.Render()
}

func (r *Reporter) printLadder(grids []models.Grid) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Ladder")
	t.AppendHeader(table.Row{"grid", "lower", "upper", "status", "order"})
	for id := len(grids) - 1; id >= 0; id-- {
		g := &grids[id]
		order := ""
		if g.RestingOrderID != 0 {
			order = fmt.Sprintf("%d %s", g.RestingOrderID, g.RestingSide)
		}
		t.AppendRow(table.Row{id, g.Lower.String(), g.Upper.String(), g.Status().String(), order})
	}
	t.Render()
}

func (r *Reporter) printRecentClosed(orders []models.Order) {
	if len(orders) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Recent Closed Orders")
	t.AppendHeader(table.Row{"order", "side", "price", "qty", "settled"})
	for i := range orders {
		o := &orders[i]
		t.AppendRow(table.Row{
			o.OrderID, string(o.Side), o.Price.String(), o.OrigQty.String(),
			o.SettleTime().Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}
