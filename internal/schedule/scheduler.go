package schedule

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Tick is handed to every callback invocation.
type Tick struct {
	Name string
	Time time.Time
}

// Callback is a scheduled strategy hook. It runs on the scheduler goroutine.
type Callback func(ctx context.Context, tick Tick)

// Clock abstracts wall time so backtests can run without sleeping.
type Clock interface {
	Now() time.Time
	SleepUntil(ctx context.Context, t time.Time) error
}

// RealClock sleeps on the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SimClock jumps straight to the requested time.
type SimClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewSimClock starts a simulated clock at start.
func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start}
}

func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock; it never goes backwards.
func (c *SimClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

func (c *SimClock) SleepUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Set(t)
	return nil
}

// Observer receives the outcome of each callback invocation.
type Observer func(name string, took time.Duration, panicked bool)

type entry struct {
	seq  int
	name string
	fn   Callback
	date DateRule
	time TimeRule
}

type event struct {
	at    time.Time
	order int // before-trading-start hooks sort first
	seq   int
	name  string
	fn    Callback
}

// Scheduler fires registered callbacks on session-relative times.
type Scheduler struct {
	mu       sync.Mutex
	session  Session
	clock    Clock
	entries  []entry
	before   []entry
	observer Observer
	seq      int
}

// New creates a scheduler for session. A nil clock means RealClock.
func New(session Session, clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{session: session, clock: clock}
}

// SetObserver installs a hook for callback metrics.
func (s *Scheduler) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Session returns the configured trading session.
func (s *Scheduler) Session() Session {
	return s.session
}

// Register adds a callback. Callbacks due at the same instant run in
// registration order.
func (s *Scheduler) Register(name string, fn Callback, date DateRule, tr TimeRule) error {
	if fn == nil {
		return fmt.Errorf("%w: nil callback %q", ErrInvalidRule, name)
	}
	if err := validate(date, tr); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, entry{seq: s.seq, name: name, fn: fn, date: date, time: tr})
	return nil
}

// BeforeTradingStart adds a hook that runs at each trading day's open, ahead
// of every other callback due at that instant.
func (s *Scheduler) BeforeTradingStart(fn Callback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.before = append(s.before, entry{seq: s.seq, name: "before_trading_start", fn: fn})
}

// Len returns the number of registered callbacks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) + len(s.before)
}

// Run fires callbacks from now until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.run(ctx, s.clock.Now(), time.Time{})
}

// RunBetween fires every callback due in [start, end] and returns.
func (s *Scheduler) RunBetween(ctx context.Context, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRule, end, start)
	}
	return s.run(ctx, start, end)
}

func (s *Scheduler) run(ctx context.Context, from, to time.Time) error {
	day := s.session.OpenAt(from)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.session.loc)

	for {
		if !to.IsZero() && day.After(to) {
			return nil
		}
		for _, ev := range s.eventsFor(day) {
			if ev.at.Before(from) {
				continue
			}
			if !to.IsZero() && ev.at.After(to) {
				return nil
			}
			if err := s.clock.SleepUntil(ctx, ev.at); err != nil {
				return err
			}
			s.invoke(ctx, ev)
		}
		day = day.AddDate(0, 0, 1)
		if to.IsZero() {
			// Idle until the next calendar day so an empty day does not spin.
			if err := s.clock.SleepUntil(ctx, day); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// eventsFor lists the callbacks due on day, sorted by fire time.
func (s *Scheduler) eventsFor(day time.Time) []event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsTradingDay(day) {
		return nil
	}

	var out []event
	open := s.session.OpenAt(day)
	for _, b := range s.before {
		out = append(out, event{at: open, order: 0, seq: b.seq, name: b.name, fn: b.fn})
	}
	for _, e := range s.entries {
		if !e.date.Matches(day, s.session) {
			continue
		}
		for _, at := range e.time.Times(day, s.session) {
			out = append(out, event{at: at, order: 1, seq: e.seq, name: e.name, fn: e.fn})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].at.Equal(out[j].at) {
			return out[i].at.Before(out[j].at)
		}
		if out[i].order != out[j].order {
			return out[i].order < out[j].order
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (s *Scheduler) invoke(ctx context.Context, ev event) {
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				log.Printf("scheduler: callback %s panicked: %v\n%s", ev.name, r, debug.Stack())
			}
		}()
		ev.fn(ctx, Tick{Name: ev.name, Time: ev.at})
	}()

	s.mu.Lock()
	obs := s.observer
	s.mu.Unlock()
	if obs != nil {
		obs(ev.name, time.Since(start), panicked)
	}
}
