package normalizer

import "grid-bot-dashboard/internal/models"

// Kind is the discriminant carried in the event_type field of every frame.
type Kind string

const (
	KindConfig     Kind = "config"
	KindSummary    Kind = "summary"
	KindGridState  Kind = "grid_state"
	KindOrderEvent Kind = "order_event"
	KindSystemInfo Kind = "system_info"
	KindPriceTick  Kind = "price_tick"
)

// Message is one normalized domain event. The concrete types below are the
// only implementations.
type Message interface {
	Kind() Kind
}

type ConfigMsg struct {
	Config models.Config
}

type SummaryMsg struct {
	Summary models.Summary
}

type GridStateMsg struct {
	Grid models.GridState
}

type OrderEventMsg struct {
	Order models.OrderEvent
}

type SystemInfoMsg struct {
	Info models.SystemInfo
}

type PriceTickMsg struct {
	Tick models.PriceTick
}

func (ConfigMsg) Kind() Kind     { return KindConfig }
func (SummaryMsg) Kind() Kind    { return KindSummary }
func (GridStateMsg) Kind() Kind  { return KindGridState }
func (OrderEventMsg) Kind() Kind { return KindOrderEvent }
func (SystemInfoMsg) Kind() Kind { return KindSystemInfo }
func (PriceTickMsg) Kind() Kind  { return KindPriceTick }
