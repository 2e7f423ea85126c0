package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
)

// 未收到配置时使用的默认精度
const (
	defaultPriceDecimals = 2
	defaultSizeDecimals  = 4
	defaultOrderRows     = 10
)

// Options 控制快照渲染
type Options struct {
	OrderRows int // 最多显示的订单条数
	Now       func() time.Time
}

// precision 保存价格与数量的小数位
type precision struct {
	px, sz int32
}

func precisionOf(cfg *models.Config) precision {
	if cfg == nil {
		return precision{px: defaultPriceDecimals, sz: defaultSizeDecimals}
	}
	return precision{px: int32(cfg.PriceDecimals), sz: int32(cfg.SizeDecimals)}
}

// FormatFixed 按固定小数位格式化数值，避免浮点尾数
func FormatFixed(v float64, decimals int) string {
	return decimal.NewFromFloat(v).StringFixed(int32(decimals))
}

func (p precision) price(v float64) string { return decimal.NewFromFloat(v).StringFixed(p.px) }
func (p precision) size(v float64) string { return decimal.NewFromFloat(v).StringFixed(p.sz) }

// money 盈亏与余额统一保留两位小数
func money(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// RenderConnections 输出已保存的连接列表，activeID 对应的行带 * 标记
func RenderConnections(w io.Writer, conns []models.BotConnection, activeID string) error {
	t := newTable("Connections")
	t.AppendHeader(table.Row{"", "ID", "Name", "Address"})
	for _, c := range conns {
		mark := ""
		if c.ID == activeID && activeID != "" {
			mark = "*"
		}
		t.AppendRow(table.Row{mark, c.ID, c.Name, c.Address})
	}
	if len(conns) == 0 {
		t.AppendRow(table.Row{"", "-", "no saved connections", ""})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderSnapshot 输出一个 Store 快照。断开或连接中时标记数据为过期
func RenderSnapshot(w io.Writer, snap store.Snapshot, opts Options) error {
	if opts.OrderRows <= 0 {
		opts.OrderRows = defaultOrderRows
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := precisionOf(snap.Config)

	var b strings.Builder
	b.WriteString(header(snap, p, opts.Now()))
	b.WriteString("\n")

	if snap.Config != nil {
		b.WriteString(configTable(snap.Config, p).Render())
		b.WriteString("\n")
	}
	if snap.Summary != nil {
		b.WriteString(summaryTable(snap.Summary, p).Render())
		b.WriteString("\n")
	}
	if snap.Grid != nil {
		b.WriteString(bookTable(snap.Grid, p).Render())
		b.WriteString("\n")
	}
	if len(snap.Orders) > 0 {
		b.WriteString(ordersTable(snap.Orders, p, opts.OrderRows).Render())
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func header(snap store.Snapshot, p precision, now time.Time) string {
	parts := []string{fmt.Sprintf("[%s] %s", snap.Status, snap.ConnectionID)}
	if snap.Status != models.StatusConnected {
		parts = append(parts, "(stale)")
	}
	if snap.System != nil {
		parts = append(parts, fmt.Sprintf("%s/%s", snap.System.Exchange, snap.System.Network))
	}
	if snap.Price != nil {
		age := now.Sub(snap.Price.Time).Truncate(time.Second)
		parts = append(parts, fmt.Sprintf("price %s (%s ago)", p.price(snap.Price.Price), age))
	}
	parts = append(parts, fmt.Sprintf("applied %d rejected %d evicted %d",
		snap.Stats.Applied, snap.Stats.Rejected, snap.Stats.Evicted))
	return strings.Join(parts, "  ")
}

func configTable(cfg *models.Config, p precision) table.Writer {
	t := newTable("Config")
	t.AppendRow(table.Row{"Strategy", cfg.Variant})
	t.AppendRow(table.Row{"Symbol", cfg.Symbol})
	t.AppendRow(table.Row{"Range", p.price(cfg.LowerPrice) + " - " + p.price(cfg.UpperPrice)})
	t.AppendRow(table.Row{"Grids", fmt.Sprintf("%d %s", cfg.GridCount, cfg.GridType)})
	t.AppendRow(table.Row{"Investment", money(cfg.TotalInvestment)})
	if cfg.Perp != nil {
		t.AppendRow(table.Row{"Leverage", FormatFixed(cfg.Perp.Leverage, 1) + "x " + string(cfg.Perp.MarginMode)})
		t.AppendRow(table.Row{"Bias", cfg.Perp.Bias})
	}
	return t
}

func summaryTable(s *models.Summary, p precision) table.Writer {
	t := newTable("Summary")
	t.AppendRow(table.Row{"Price", p.price(s.Price)})
	t.AppendRow(table.Row{"Total profit", money(s.TotalProfit)})
	t.AppendRow(table.Row{"Realized / Unrealized", money(s.RealizedPnL) + " / " + money(s.UnrealizedPnL)})
	t.AppendRow(table.Row{"Matched profit", money(s.MatchedProfit)})
	t.AppendRow(table.Row{"Fees", money(s.TotalFees)})
	t.AppendRow(table.Row{"Roundtrips", s.Roundtrips})
	t.AppendRow(table.Row{"Uptime", s.Uptime})
	if s.InitialEntryPrice != nil {
		t.AppendRow(table.Row{"Initial entry", p.price(*s.InitialEntryPrice)})
	}
	if s.GridSpacingPct != nil {
		t.AppendRow(table.Row{"Spacing %", FormatFixed(s.GridSpacingPct[0], 3) + " - " + FormatFixed(s.GridSpacingPct[1], 3)})
	}
	switch {
	case s.Perp != nil:
		t.AppendRow(table.Row{"Position", s.Perp.PositionSide + " " + p.size(s.Perp.PositionSize)})
		t.AppendRow(table.Row{"Avg entry", p.price(s.Perp.AvgEntryPrice)})
		t.AppendRow(table.Row{"Margin", money(s.Perp.MarginBalance)})
		t.AppendRow(table.Row{"Leverage", FormatFixed(s.Perp.Leverage, 1) + "x"})
	case s.Spot != nil:
		t.AppendRow(table.Row{"Base / Quote", p.size(s.Spot.BaseBalance) + " / " + money(s.Spot.QuoteBalance)})
		if s.Spot.PositionSize != nil {
			t.AppendRow(table.Row{"Position", p.size(*s.Spot.PositionSize)})
		}
		if s.Spot.AvgEntryPrice != nil {
			t.AppendRow(table.Row{"Avg entry", p.price(*s.Spot.AvgEntryPrice)})
		}
	}
	return t
}

// bookTable 卖盘从远到近排列在上方，买盘从近到远在下方
func bookTable(g *models.GridState, p precision) table.Writer {
	asks, bids := g.Book()
	t := newTable(fmt.Sprintf("Grid (%d zones)", len(g.Zones)))
	t.AppendHeader(table.Row{"#", "Side", "Lower", "Upper", "Size", "Order", "Trips"})
	row := func(z models.Zone) table.Row {
		order := ""
		if z.HasOpenOrder {
			order = "open"
			if z.IsReduceOnly {
				order = "open (reduce)"
			}
		}
		return table.Row{z.Index, z.PendingSide, p.price(z.LowerPrice), p.price(z.UpperPrice), p.size(z.Size), order, z.RoundtripCount}
	}
	for i := len(asks) - 1; i >= 0; i-- {
		t.AppendRow(row(asks[i]))
	}
	if len(asks) > 0 && len(bids) > 0 {
		t.AppendSeparator()
	}
	for _, z := range bids {
		t.AppendRow(row(z))
	}
	return t
}

func ordersTable(orders []models.OrderEvent, p precision, limit int) table.Writer {
	t := newTable("Orders")
	t.AppendHeader(table.Row{"Time", "ID", "Side", "Status", "Price", "Size", "Fee"})
	for i, o := range orders {
		if i == limit {
			break
		}
		t.AppendRow(table.Row{
			o.ReceivedAt.Format("15:04:05"), o.ID(), o.Side, o.Status,
			p.price(o.Price), p.size(o.Size), FormatFixed(o.Fee, 4),
		})
	}
	if len(orders) > limit {
		t.AppendFooter(table.Row{"", fmt.Sprintf("+%d more", len(orders)-limit)})
	}
	return t
}
