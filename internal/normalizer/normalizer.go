// Package normalizer maps raw WebSocket frames from a grid bot onto the fixed
// set of domain messages the store understands.
//
// Normalization fails closed: a payload that claims a strategy variant but is
// missing one of that variant's required fields, carries a field of the other
// variant, or contains a non-finite number is rejected as a whole.
package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"grid-bot-dashboard/internal/models"
)

var (
	perpConfigFields  = []string{"leverage", "is_isolated", "grid_bias"}
	perpSummaryFields = []string{"position_side", "margin_balance", "leverage", "grid_bias"}
	spotSummaryFields = []string{"base_balance", "quote_balance"}
)

const maxDecimals = 18

type envelope struct {
	EventType json.RawMessage `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Normalize decodes one frame. receivedAt stamps order events and price ticks
// that carry no timestamp of their own.
//
// Errors wrap models.ErrDecode (not a JSON object, or no discriminant),
// models.ErrUnknownMessage (unknown discriminant) or models.ErrSchema.
func Normalize(frame []byte, receivedAt time.Time) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	if isNull(env.EventType) {
		return nil, fmt.Errorf("%w: missing event_type", models.ErrDecode)
	}
	var kind string
	if err := json.Unmarshal(env.EventType, &kind); err != nil || strings.TrimSpace(kind) == "" {
		return nil, fmt.Errorf("%w: event_type is not a string", models.ErrDecode)
	}

	switch Kind(kind) {
	case KindConfig:
		return normalizeConfig(env.Data)
	case KindSummary:
		return normalizeSummary(env.Data)
	case KindGridState:
		return normalizeGridState(env.Data)
	case KindOrderEvent:
		return normalizeOrderEvent(env.Data, receivedAt)
	case KindSystemInfo:
		return normalizeSystemInfo(env.Data)
	case KindPriceTick:
		return normalizePriceTick(env.Data, receivedAt)
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownMessage, kind)
}

func normalizeConfig(data json.RawMessage) (Message, error) {
	o := parseObject(string(KindConfig), data)
	cfg := models.Config{
		Variant:         o.variant("type"),
		Symbol:          o.str("symbol"),
		LowerPrice:      o.number("lower_price"),
		UpperPrice:      o.number("upper_price"),
		TotalInvestment: o.number("total_investment"),
		GridCount:       o.integer("grid_count"),
		GridType:        strings.ToLower(o.optStr("grid_type")),
		PriceDecimals:   o.integer("px_decimals"),
		SizeDecimals:    o.integer("sz_decimals"),
	}

	switch cfg.Variant {
	case models.PerpGrid:
		perp := &models.PerpConfig{
			Leverage:   o.number("leverage"),
			MarginMode: models.MarginCross,
			Bias:       o.bias("grid_bias"),
		}
		if o.boolean("is_isolated") {
			perp.MarginMode = models.MarginIsolated
		}
		if o.err == nil && perp.Leverage <= 0 {
			o.fail("leverage", "must be positive")
		}
		cfg.Perp = perp
	case models.SpotGrid:
		o.forbid(perpConfigFields...)
	}

	if o.err == nil {
		switch {
		case cfg.LowerPrice >= cfg.UpperPrice:
			o.fail("lower_price", "must be below upper_price")
		case cfg.GridCount < 1:
			o.fail("grid_count", "must be at least 1")
		case cfg.PriceDecimals < 0 || cfg.PriceDecimals > maxDecimals:
			o.fail("px_decimals", "out of range")
		case cfg.SizeDecimals < 0 || cfg.SizeDecimals > maxDecimals:
			o.fail("sz_decimals", "out of range")
		case cfg.GridType != "" && cfg.GridType != "arithmetic" && cfg.GridType != "geometric":
			o.fail("grid_type", "unknown grid type")
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	return ConfigMsg{Config: cfg}, nil
}

func normalizeSummary(data json.RawMessage) (Message, error) {
	outer := parseObject(string(KindSummary), data)
	variant := outer.variant("type")
	o := outer
	if outer.has("data") {
		o = outer.child("data")
	}
	if outer.err != nil {
		return nil, outer.err
	}

	s := models.Summary{
		Variant:           variant,
		Symbol:            o.str("symbol"),
		Price:             o.number("price"),
		TotalProfit:       o.number("total_profit"),
		RealizedPnL:       o.number("realized_pnl"),
		UnrealizedPnL:     o.number("unrealized_pnl"),
		MatchedProfit:     o.number("matched_profit"),
		TotalFees:         o.number("total_fees"),
		Roundtrips:        o.integer("roundtrips"),
		Uptime:            o.str("uptime"),
		InitialEntryPrice: o.optNumber("initial_entry_price"),
	}
	if o.err == nil && s.Roundtrips < 0 {
		o.fail("roundtrips", "must not be negative")
	}
	if o.has("grid_spacing_pct") {
		s.GridSpacingPct = spacing(o)
	}

	switch variant {
	case models.PerpGrid:
		o.forbid(spotSummaryFields...)
		s.Perp = &models.PerpSummary{
			PositionSize:  o.number("position_size"),
			PositionSide:  positionSide(o),
			AvgEntryPrice: o.number("avg_entry_price"),
			Leverage:      o.number("leverage"),
			MarginBalance: o.number("margin_balance"),
			Bias:          o.optBias("grid_bias"),
		}
	case models.SpotGrid:
		o.forbid(perpSummaryFields...)
		s.Spot = &models.SpotSummary{
			BaseBalance:   o.number("base_balance"),
			QuoteBalance:  o.number("quote_balance"),
			PositionSize:  o.optNumber("position_size"),
			AvgEntryPrice: o.optNumber("avg_entry_price"),
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	return SummaryMsg{Summary: s}, nil
}

func spacing(o *object) *[2]float64 {
	items := o.array("grid_spacing_pct")
	if o.err != nil {
		return nil
	}
	if len(items) != 2 {
		o.fail("grid_spacing_pct", "expected [min, max]")
		return nil
	}
	var out [2]float64
	for i, raw := range items {
		v, ok := parseNumber(raw)
		if !ok {
			o.fail("grid_spacing_pct", "not a finite number")
			return nil
		}
		out[i] = v
	}
	return &out
}

func positionSide(o *object) string {
	s := o.str("position_side")
	if o.err != nil {
		return ""
	}
	switch strings.ToLower(s) {
	case "long":
		return "Long"
	case "short":
		return "Short"
	case "flat", "none":
		return "Flat"
	}
	o.fail("position_side", "unknown position side")
	return ""
}

func normalizeGridState(data json.RawMessage) (Message, error) {
	o := parseObject(string(KindGridState), data)
	grid := models.GridState{
		Variant: o.optVariant("strategy_type"),
		Bias:    o.optBias("grid_bias"),
	}
	items := o.array("zones")
	if o.err != nil {
		return nil, o.err
	}

	grid.Zones = make([]models.Zone, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for i, raw := range items {
		z := parseObject(string(KindGridState), raw)
		zone := models.Zone{
			Index:          z.integer("index"),
			LowerPrice:     z.number("buy_price"),
			UpperPrice:     z.number("sell_price"),
			PendingSide:    z.side("order_side"),
			Size:           z.number("size"),
			HasOpenOrder:   z.optBool("has_order"),
			IsReduceOnly:   z.optBool("is_reduce_only"),
			RoundtripCount: z.integer("roundtrip_count"),
		}
		if z.err == nil {
			if _, dup := seen[zone.Index]; dup {
				z.fail("index", "duplicate zone index")
			} else if zone.LowerPrice >= zone.UpperPrice {
				z.fail("buy_price", "must be below sell_price")
			} else if zone.RoundtripCount < 0 {
				z.fail("roundtrip_count", "must not be negative")
			}
		}
		if z.err != nil {
			return nil, fmt.Errorf("zone %d: %w", i, z.err)
		}
		seen[zone.Index] = struct{}{}
		grid.Zones = append(grid.Zones, zone)
	}
	return GridStateMsg{Grid: grid}, nil
}

func normalizeOrderEvent(data json.RawMessage, receivedAt time.Time) (Message, error) {
	o := parseObject(string(KindOrderEvent), data)
	order := models.OrderEvent{
		ExchangeID: o.id("oid"),
		ClientID:   o.id("cloid"),
		Side:       o.side("side"),
		Status:     orderStatus(o),
		Price:      o.number("price"),
		Size:       o.number("size"),
		ReceivedAt: receivedAt,
	}
	if fee := o.optNumber("fee"); fee != nil {
		order.Fee = *fee
	}
	if o.err == nil && order.ExchangeID == "" && order.ClientID == "" {
		o.fail("oid", "order has neither oid nor cloid")
	}
	if o.err != nil {
		return nil, o.err
	}
	return OrderEventMsg{Order: order}, nil
}

func orderStatus(o *object) models.OrderStatus {
	s := o.str("status")
	if o.err != nil {
		return ""
	}
	switch strings.ToLower(s) {
	case "opening", "pending":
		return models.OrderOpening
	case "open", "resting":
		return models.OrderOpen
	case "filled":
		return models.OrderFilled
	case "cancelled", "canceled":
		return models.OrderCancelled
	}
	o.fail("status", "unknown order status")
	return ""
}

func normalizeSystemInfo(data json.RawMessage) (Message, error) {
	o := parseObject(string(KindSystemInfo), data)
	info := models.SystemInfo{
		Exchange: o.str("exchange"),
		Network:  models.Network(strings.ToLower(o.str("network"))),
	}
	if o.err == nil && info.Network != models.Mainnet && info.Network != models.Testnet {
		o.fail("network", "expected mainnet or testnet")
	}
	if o.err != nil {
		return nil, o.err
	}
	return SystemInfoMsg{Info: info}, nil
}

func normalizePriceTick(data json.RawMessage, receivedAt time.Time) (Message, error) {
	o := parseObject(string(KindPriceTick), data)
	tick := models.PriceTick{
		Price: o.number("price"),
		Time:  receivedAt,
	}
	if ts := o.optNumber("timestamp"); ts != nil && *ts > 0 {
		tick.Time = time.UnixMilli(int64(*ts))
	}
	if o.err == nil && tick.Price <= 0 {
		o.fail("price", "must be positive")
	}
	if o.err != nil {
		return nil, o.err
	}
	return PriceTickMsg{Tick: tick}, nil
}
