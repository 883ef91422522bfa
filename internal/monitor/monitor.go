package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"strategy-core/internal/events"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// Monitor watches strategy signals and fills and forwards alerts to Sink.
// A signal is only forwarded when its direction differs from the last one
// sent for the same strategy and symbol.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink

	mu         sync.Mutex
	lastSignal map[string]int
}

// Start subscribes to the bus until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.SubscribeMany(64, events.EventStrategySignal, events.EventOrderFilled)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				m.Handle(env)
			}
		}
	}()
}

// Handle formats one bus payload and sends it if it passes the filter.
func (m *Monitor) Handle(env events.Envelope) {
	var msg string
	switch p := env.Payload.(type) {
	case events.SignalEvent:
		if !m.ShouldSend(p.StrategyID+":"+p.Symbol, p.Direction) {
			return
		}
		msg = formatSignal(p)
	case events.OrderEvent:
		msg = fmt.Sprintf("✅ *%s* `%s` %s qty %.6f @ %.4f", p.StrategyID, p.Symbol, p.Side, p.Qty, p.Price)
	default:
		return
	}
	if err := m.Sink.Send(msg); err != nil {
		log.Printf("monitor: alert delivery failed: %v", err)
	}
}

// ShouldSend records direction for key and reports whether it changed.
func (m *Monitor) ShouldSend(key string, direction int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSignal == nil {
		m.lastSignal = make(map[string]int)
	}
	prev, seen := m.lastSignal[key]
	m.lastSignal[key] = direction
	if !seen {
		// First observation only alerts when it is actionable.
		return direction != 0
	}
	return prev != direction
}

func formatSignal(s events.SignalEvent) string {
	label := "⚪ HOLD"
	switch {
	case s.Direction > 0:
		label = "🟢 📈 *BUY*"
	case s.Direction < 0:
		label = "🔴 📉 *SELL*"
	}
	return fmt.Sprintf("%s\n\nStrategy: `%s`\nSymbol: `%s`\nRSI: *%.2f*\nTarget weight: %.2f",
		label, s.StrategyID, s.Symbol, s.RSI, s.Weight)
}
