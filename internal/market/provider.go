package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDataUnavailable means the provider cannot serve the requested window.
var ErrDataUnavailable = errors.New("price data unavailable")

// Frequency is the bar size of a history request.
type Frequency string

const (
	Minute Frequency = "1m"
	Hour   Frequency = "1h"
	Day    Frequency = "1d"
)

// ParseFrequency accepts the short forms and a few long aliases.
func ParseFrequency(v string) (Frequency, error) {
	switch v {
	case "1m", "minute", "1min":
		return Minute, nil
	case "1h", "hour", "60m":
		return Hour, nil
	case "1d", "day", "daily":
		return Day, nil
	}
	return "", fmt.Errorf("unknown frequency %q", v)
}

// Duration is the nominal bar length.
func (f Frequency) Duration() time.Duration {
	switch f {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	}
	return 0
}

// HistoryProvider serves completed closes and the latest price.
type HistoryProvider interface {
	// History returns exactly count completed closes, oldest first.
	History(ctx context.Context, symbol string, count int, freq Frequency) ([]float64, error)
	// Current returns the most recent observed price.
	Current(ctx context.Context, symbol string) (float64, error)
}

// Clock is the time source a provider uses to decide what is complete.
type Clock interface {
	Now() time.Time
}

func unavailable(symbol, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrDataUnavailable, symbol, fmt.Sprintf(format, args...))
}
