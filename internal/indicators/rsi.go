package indicators

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidLookback     = errors.New("rsi lookback must be at least 2")
	ErrInsufficientHistory = errors.New("rsi seed needs at least 2 prices")
	ErrNotSeeded           = errors.New("rsi instrument not seeded")
	ErrAlreadySeeded       = errors.New("rsi instrument already seeded")
)

// InstrumentState holds the smoothed averages for one instrument.
type InstrumentState struct {
	AvgGain     float64 `json:"avg_gain"`
	AvgLoss     float64 `json:"avg_loss"`
	LastClose   float64 `json:"last_close"`
	Initialized bool    `json:"initialized"`
}

// Seed averages the positive and negative price changes of history (oldest
// first). Flat moves count for neither side; an empty side averages to 0.
func Seed(history []float64) (avgGain, avgLoss float64) {
	if len(history) < 2 {
		return 0, 0
	}

	var gainSum, lossSum float64
	var gains, losses int
	for i := 1; i < len(history); i++ {
		diff := history[i] - history[i-1]
		if diff > 0 {
			gainSum += diff
			gains++
		} else if diff < 0 {
			lossSum -= diff
			losses++
		}
	}

	if gains > 0 {
		avgGain = gainSum / float64(gains)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	return avgGain, avgLoss
}

// Update applies one Wilder smoothing step and returns the new RSI together
// with the next state. The input state is not modified.
func Update(state InstrumentState, current, previous float64, lookback int) (float64, InstrumentState) {
	diff := current - previous
	gain, loss := 0.0, 0.0
	if diff > 0 {
		gain = diff
	} else if diff < 0 {
		loss = -diff
	}

	n := float64(lookback)
	next := state
	next.AvgGain = (state.AvgGain*(n-1) + gain) / n
	next.AvgLoss = (state.AvgLoss*(n-1) + loss) / n
	next.LastClose = current

	return FromAverages(next.AvgGain, next.AvgLoss), next
}

// FromAverages derives RSI from smoothed averages. No losses means maximum
// strength (100).
func FromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Tracker keeps one InstrumentState per symbol for a strategy run. It is not
// safe for concurrent use; callers read it through Snapshot.
type Tracker struct {
	lookback int
	states   map[string]*InstrumentState
	rsi      map[string]float64
}

// NewTracker builds a tracker with a fixed smoothing lookback.
func NewTracker(lookback int) (*Tracker, error) {
	if lookback < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLookback, lookback)
	}
	return &Tracker{
		lookback: lookback,
		states:   make(map[string]*InstrumentState),
		rsi:      make(map[string]float64),
	}, nil
}

// Lookback returns the smoothing constant.
func (t *Tracker) Lookback() int {
	return t.lookback
}

// Seeded reports whether the seed phase has completed for symbol.
func (t *Tracker) Seeded(symbol string) bool {
	st, ok := t.states[symbol]
	return ok && st.Initialized
}

// Seed initializes symbol from a window of closes. It runs at most once per
// symbol; a too-short window leaves the symbol unseeded so it can be retried.
func (t *Tracker) Seed(symbol string, history []float64) error {
	if t.Seeded(symbol) {
		return fmt.Errorf("%w: %s", ErrAlreadySeeded, symbol)
	}
	if len(history) < 2 {
		return fmt.Errorf("%w: %s has %d", ErrInsufficientHistory, symbol, len(history))
	}

	gain, loss := Seed(history)
	t.states[symbol] = &InstrumentState{
		AvgGain:     gain,
		AvgLoss:     loss,
		LastClose:   history[len(history)-1],
		Initialized: true,
	}
	return nil
}

// Update advances symbol by one tick and stores the resulting RSI.
func (t *Tracker) Update(symbol string, current, previous float64) (float64, error) {
	st, ok := t.states[symbol]
	if !ok || !st.Initialized {
		return 0, fmt.Errorf("%w: %s", ErrNotSeeded, symbol)
	}

	rsi, next := Update(*st, current, previous, t.lookback)
	*st = next
	t.rsi[symbol] = rsi
	return rsi, nil
}

// State returns a copy of the state for symbol.
func (t *Tracker) State(symbol string) (InstrumentState, bool) {
	st, ok := t.states[symbol]
	if !ok {
		return InstrumentState{}, false
	}
	return *st, true
}

// RSI returns the last derived RSI for symbol; ok is false before the first update.
func (t *Tracker) RSI(symbol string) (float64, bool) {
	v, ok := t.rsi[symbol]
	return v, ok
}

// RSISnapshot is an immutable view of one tracked instrument.
type RSISnapshot struct {
	Symbol string          `json:"symbol"`
	RSI    float64         `json:"rsi"`
	HasRSI bool            `json:"has_rsi"`
	State  InstrumentState `json:"state"`
}

// Snapshot copies every instrument, sorted by symbol.
func (t *Tracker) Snapshot() []RSISnapshot {
	out := make([]RSISnapshot, 0, len(t.states))
	for sym, st := range t.states {
		v, ok := t.rsi[sym]
		out = append(out, RSISnapshot{Symbol: sym, RSI: v, HasRSI: ok, State: *st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
