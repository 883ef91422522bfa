package events

import "time"

// Event enumerates high-level topics inside the strategy core.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventStrategySignal Event = "strategy_signal"
	EventStrategyStatus Event = "strategy_status"
	EventPositionChange Event = "position_change"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderFilled    Event = "order.filled"
	EventOrderRejected  Event = "order.rejected"
)

// PriceTick is published by live feeds for every closed or streaming bar.
type PriceTick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// SignalEvent is one evaluated instrument of a strategy tick. Direction is
// -1 (sell), 0 (hold) or +1 (buy).
type SignalEvent struct {
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Direction  int       `json:"direction"`
	RSI        float64   `json:"rsi"`
	Weight     float64   `json:"weight"`
	Note       string    `json:"note,omitempty"`
	Time       time.Time `json:"time"`
}

// OrderEvent describes an order lifecycle step of the paper broker.
type OrderEvent struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

// PositionChange is emitted after a fill moves a position.
type PositionChange struct {
	StrategyID  string    `json:"strategy_id"`
	Symbol      string    `json:"symbol"`
	Qty         float64   `json:"qty"`
	AvgPrice    float64   `json:"avg_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	Time        time.Time `json:"time"`
}

// StrategyStatus is emitted when a strategy is paused or resumed.
type StrategyStatus struct {
	StrategyID string `json:"strategy_id"`
	Status     string `json:"status"`
}
