package models

import (
	"sort"
	"time"
)

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" mapstructure:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" mapstructure:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" mapstructure:"compress"`       // 是否压缩旧日志文件
}

// BotConnection 是操作员保存的一个机器人端点。唯一性由 ID 决定，而不是 Address。
type BotConnection struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"url" validate:"required"`
}

// ConnectionStatus 会话的连接状态
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// Variant 策略类型标签
type Variant string

const (
	SpotGrid Variant = "spot_grid"
	PerpGrid Variant = "perp_grid"
)

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Bias 永续网格的方向偏好
type Bias string

const (
	BiasLong    Bias = "long"
	BiasShort   Bias = "short"
	BiasNeutral Bias = "neutral"
)

// MarginMode 保证金模式
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

// OrderStatus 订单生命周期状态
type OrderStatus string

const (
	OrderOpening   OrderStatus = "opening"
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Network 机器人所连接的网络
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Config 是当前机器人的策略参数。PriceDecimals/SizeDecimals 对所有下游数值展示具有权威性。
type Config struct {
	Variant         Variant     `json:"type"`
	Symbol          string      `json:"symbol"`
	LowerPrice      float64     `json:"lower_price"`
	UpperPrice      float64     `json:"upper_price"`
	TotalInvestment float64     `json:"total_investment"`
	GridCount       int         `json:"grid_count"`
	GridType        string      `json:"grid_type,omitempty"` // arithmetic 或 geometric
	PriceDecimals   int         `json:"px_decimals"`
	SizeDecimals    int         `json:"sz_decimals"`
	Perp            *PerpConfig `json:"perp,omitempty"` // 仅当 Variant == PerpGrid 时存在
}

// PerpConfig 永续网格独有的参数
type PerpConfig struct {
	Leverage   float64    `json:"leverage"`
	MarginMode MarginMode `json:"margin_mode"`
	Bias       Bias       `json:"grid_bias"`
}

// Clone 返回深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Perp != nil {
		perp := *c.Perp
		cp.Perp = &perp
	}
	return &cp
}

// Summary 周期性的汇总快照，与 Config 使用相同的策略标签
type Summary struct {
	Variant           Variant      `json:"type"`
	Symbol            string       `json:"symbol"`
	Price             float64      `json:"price"`
	TotalProfit       float64      `json:"total_profit"`
	RealizedPnL       float64      `json:"realized_pnl"`
	UnrealizedPnL     float64      `json:"unrealized_pnl"`
	MatchedProfit     float64      `json:"matched_profit"`
	TotalFees         float64      `json:"total_fees"`
	Roundtrips        int          `json:"roundtrips"`
	Uptime            string       `json:"uptime"`
	InitialEntryPrice *float64     `json:"initial_entry_price,omitempty"`
	GridSpacingPct    *[2]float64  `json:"grid_spacing_pct,omitempty"` // [min, max]
	Perp              *PerpSummary `json:"perp,omitempty"`
	Spot              *SpotSummary `json:"spot,omitempty"`
}

// PerpSummary 永续网格独有的汇总字段
type PerpSummary struct {
	PositionSize  float64 `json:"position_size"`
	PositionSide  string  `json:"position_side"` // Long, Short, Flat
	AvgEntryPrice float64 `json:"avg_entry_price"`
	Leverage      float64 `json:"leverage"`
	MarginBalance float64 `json:"margin_balance"`
	Bias          Bias    `json:"grid_bias,omitempty"`
}

// SpotSummary 现货网格独有的汇总字段
type SpotSummary struct {
	BaseBalance   float64  `json:"base_balance"`
	QuoteBalance  float64  `json:"quote_balance"`
	PositionSize  *float64 `json:"position_size,omitempty"`
	AvgEntryPrice *float64 `json:"avg_entry_price,omitempty"`
}

// Clone 返回深拷贝
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	cp := *s
	if s.InitialEntryPrice != nil {
		v := *s.InitialEntryPrice
		cp.InitialEntryPrice = &v
	}
	if s.GridSpacingPct != nil {
		v := *s.GridSpacingPct
		cp.GridSpacingPct = &v
	}
	if s.Perp != nil {
		v := *s.Perp
		cp.Perp = &v
	}
	if s.Spot != nil {
		v := *s.Spot
		if s.Spot.PositionSize != nil {
			p := *s.Spot.PositionSize
			v.PositionSize = &p
		}
		if s.Spot.AvgEntryPrice != nil {
			p := *s.Spot.AvgEntryPrice
			v.AvgEntryPrice = &p
		}
		cp.Spot = &v
	}
	return &cp
}

// Zone 网格中的一个价格区间
type Zone struct {
	Index          int     `json:"index"`
	LowerPrice     float64 `json:"buy_price"`
	UpperPrice     float64 `json:"sell_price"`
	PendingSide    Side    `json:"order_side"`
	Size           float64 `json:"size"`
	HasOpenOrder   bool    `json:"has_order"`
	IsReduceOnly   bool    `json:"is_reduce_only"`
	RoundtripCount int     `json:"roundtrip_count"`
}

// GridState 当前所有区间的快照。新快照整体替换旧快照。
type GridState struct {
	Variant Variant `json:"strategy_type,omitempty"`
	Bias    Bias    `json:"grid_bias,omitempty"`
	Zones   []Zone  `json:"zones"`
}

// Clone 返回深拷贝
func (g *GridState) Clone() *GridState {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Zones = make([]Zone, len(g.Zones))
	copy(cp.Zones, g.Zones)
	return &cp
}

// Book 按价格把区间拆分为卖盘和买盘，两侧都以离当前价格最近的区间开头。
func (g *GridState) Book() (asks, bids []Zone) {
	if g == nil {
		return nil, nil
	}
	sorted := make([]Zone, len(g.Zones))
	copy(sorted, g.Zones)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpperPrice > sorted[j].UpperPrice
	})
	for _, z := range sorted {
		if z.PendingSide == Sell {
			asks = append(asks, z)
		} else {
			bids = append(bids, z)
		}
	}
	for i, j := 0, len(asks)-1; i < j; i, j = i+1, j-1 {
		asks[i], asks[j] = asks[j], asks[i]
	}
	return asks, bids
}

// OrderEvent 一条不可变的订单生命周期记录
type OrderEvent struct {
	ExchangeID string      `json:"oid,omitempty"`
	ClientID   string      `json:"cloid,omitempty"`
	Side       Side        `json:"side"`
	Status     OrderStatus `json:"status"`
	Price      float64     `json:"price"`
	Size       float64     `json:"size"`
	Fee        float64     `json:"fee"`
	ReceivedAt time.Time   `json:"received_at"`
}

// ID 优先返回客户端订单ID，其次是交易所订单ID
func (o OrderEvent) ID() string {
	if o.ClientID != "" {
		return o.ClientID
	}
	return o.ExchangeID
}

// PriceTick 最新价格
type PriceTick struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// SystemInfo 描述性元数据
type SystemInfo struct {
	Exchange string  `json:"exchange"`
	Network  Network `json:"network"`
}
