package order

import (
	"math"
	"time"
)

// Side of a paper order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order statuses written to the orders table.
const (
	StatusNew      = "NEW"
	StatusFilled   = "FILLED"
	StatusRejected = "REJECTED"
)

// Target asks for a symbol to be held at Weight of the strategy's equity.
// Positive is long, negative short, zero flat.
type Target struct {
	StrategyID string
	Symbol     string
	Weight     float64
	Time       time.Time
}

// Order is a market order derived from a Target.
type Order struct {
	ID           string
	StrategyID   string
	Symbol       string
	Side         Side
	Qty          float64 // always positive
	Price        float64 // fill price including slippage
	Fee          float64
	TargetWeight float64
	Status       string
	CreatedAt    time.Time
}

// SignedQty is Qty with the sign of Side.
func (o Order) SignedQty() float64 {
	if o.Side == SideSell {
		return -o.Qty
	}
	return o.Qty
}

// ClampWeight bounds w to [-1, 1]. NaN becomes 0.
func ClampWeight(w float64) float64 {
	switch {
	case math.IsNaN(w):
		return 0
	case w > 1:
		return 1
	case w < -1:
		return -1
	}
	return w
}

// Position is the paper holding of one strategy in one symbol.
type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	AvgPrice    float64 `json:"avg_price"`
	RealizedPnL float64 `json:"realized_pnl"`
}

const qtyEpsilon = 1e-12

// fill applies a signed quantity at price and returns the PnL realized by
// the part of the fill that reduced the existing position.
func (p *Position) fill(qty, price float64) float64 {
	if p.Qty == 0 || (p.Qty > 0) == (qty > 0) {
		total := p.Qty + qty
		p.AvgPrice = (p.Qty*p.AvgPrice + qty*price) / total
		p.Qty = total
		return 0
	}

	closing := math.Min(math.Abs(qty), math.Abs(p.Qty))
	direction := 1.0
	if p.Qty < 0 {
		direction = -1
	}
	realized := closing * (price - p.AvgPrice) * direction
	p.RealizedPnL += realized

	remaining := p.Qty + qty
	switch {
	case math.Abs(remaining) < qtyEpsilon:
		p.Qty, p.AvgPrice = 0, 0
	case (remaining > 0) != (p.Qty > 0):
		// Flipped through flat: the excess opens at the fill price.
		p.Qty, p.AvgPrice = remaining, price
	default:
		p.Qty = remaining
	}
	return realized
}
