package order

import (
	"context"
	"errors"
	"log"
	"time"

	"strategy-core/internal/monitor"
	"strategy-core/pkg/i18n"
)

var ErrQueueFull = errors.New("order queue full")

// Sink accepts target-percent orders from strategies.
type Sink interface {
	OrderTargetPercent(ctx context.Context, strategyID, symbol string, weight float64) error
}

// Clock stamps targets. schedule.RealClock and schedule.SimClock satisfy it.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// QueueSink is the live sink: targets are enqueued and executed later by
// PaperBroker.Run, so a strategy callback never waits on execution.
type QueueSink struct {
	queue   *Queue
	clock   Clock
	Metrics *monitor.SystemMetrics
}

func NewQueueSink(q *Queue, clock Clock) *QueueSink {
	if clock == nil {
		clock = wallClock{}
	}
	return &QueueSink{queue: q, clock: clock}
}

func (s *QueueSink) OrderTargetPercent(_ context.Context, strategyID, symbol string, weight float64) error {
	t := Target{
		StrategyID: strategyID,
		Symbol:     symbol,
		Weight:     ClampWeight(weight),
		Time:       s.clock.Now(),
	}
	if !s.queue.Enqueue(t) {
		log.Printf(i18n.M().OrderDropped, strategyID, symbol)
		if s.Metrics != nil {
			s.Metrics.IncrementOrdersDropped()
		}
		return ErrQueueFull
	}
	log.Printf(i18n.M().OrderQueued, strategyID, symbol, t.Weight)
	if s.Metrics != nil {
		s.Metrics.IncrementOrdersQueued()
	}
	return nil
}

// SyncSink executes each target immediately on the broker. Backtests use it
// so fills happen at the simulated tick's price.
type SyncSink struct {
	Broker *PaperBroker
	clock  Clock
}

func NewSyncSink(b *PaperBroker, clock Clock) *SyncSink {
	if clock == nil {
		clock = wallClock{}
	}
	return &SyncSink{Broker: b, clock: clock}
}

func (s *SyncSink) OrderTargetPercent(ctx context.Context, strategyID, symbol string, weight float64) error {
	_, err := s.Broker.Apply(ctx, Target{
		StrategyID: strategyID,
		Symbol:     symbol,
		Weight:     ClampWeight(weight),
		Time:       s.clock.Now(),
	})
	return err
}
