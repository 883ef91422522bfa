package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidRule    = errors.New("invalid schedule rule")
	ErrInvalidSession = errors.New("invalid trading session")
)

// Session is the daily trading window in a fixed location.
type Session struct {
	openMin  int // minutes after local midnight
	closeMin int
	loc      *time.Location
	days     map[time.Weekday]bool
}

// NewSession parses "HH:MM" open and close times. "24:00" is accepted as a
// close at the end of the day.
func NewSession(open, close string, loc *time.Location) (Session, error) {
	if loc == nil {
		loc = time.UTC
	}
	o, err := parseClock(open)
	if err != nil {
		return Session{}, err
	}
	c, err := parseClock(close)
	if err != nil {
		return Session{}, err
	}
	if c <= o {
		return Session{}, fmt.Errorf("%w: close %s not after open %s", ErrInvalidSession, close, open)
	}
	return Session{
		openMin:  o,
		closeMin: c,
		loc:      loc,
		days: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
	}, nil
}

// MustSession panics on a malformed session; meant for tests and constants.
func MustSession(open, close string, loc *time.Location) Session {
	s, err := NewSession(open, close, loc)
	if err != nil {
		panic(err)
	}
	return s
}

// WithWeekends marks Saturday and Sunday as trading days (24/7 markets).
func (s Session) WithWeekends() Session {
	days := make(map[time.Weekday]bool, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		days[d] = true
	}
	s.days = days
	return s
}

// Location returns the session time zone.
func (s Session) Location() *time.Location {
	return s.loc
}

// IsTradingDay reports whether day (in the session location) has a session.
func (s Session) IsTradingDay(day time.Time) bool {
	return s.days[day.In(s.loc).Weekday()]
}

// OpenAt returns the session open on the calendar day of day.
func (s Session) OpenAt(day time.Time) time.Time {
	return s.at(day, s.openMin)
}

// CloseAt returns the session close on the calendar day of day.
func (s Session) CloseAt(day time.Time) time.Time {
	return s.at(day, s.closeMin)
}

func (s Session) at(day time.Time, minutes int) time.Time {
	d := day.In(s.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, s.loc)
}

func parseClock(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidSession, v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSession, v, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSession, v, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidSession, v)
	}
	return h*60 + m, nil
}

// DateRule selects the days on which a callback runs.
type DateRule interface {
	Matches(day time.Time, s Session) bool
	String() string
}

// TimeRule yields the fire times of a callback within one session day.
type TimeRule interface {
	Times(day time.Time, s Session) []time.Time
	String() string
}

type everyDay struct{}

// EveryDay matches every trading day of the session.
func EveryDay() DateRule { return everyDay{} }

func (everyDay) Matches(day time.Time, s Session) bool { return s.IsTradingDay(day) }
func (everyDay) String() string                        { return "every_day" }

type everyNth struct {
	step time.Duration
	name string
}

// EveryNthMinute fires at open + k*n minutes, strictly before close.
func EveryNthMinute(n int) TimeRule {
	return everyNth{step: time.Duration(n) * time.Minute, name: fmt.Sprintf("every_%d_minute", n)}
}

// EveryNthHour fires at open + k*n hours, strictly before close.
func EveryNthHour(n int) TimeRule {
	return everyNth{step: time.Duration(n) * time.Hour, name: fmt.Sprintf("every_%d_hour", n)}
}

// EveryMinute is EveryNthMinute(1).
func EveryMinute() TimeRule { return EveryNthMinute(1) }

func (r everyNth) Times(day time.Time, s Session) []time.Time {
	if r.step <= 0 {
		return nil
	}
	open, close := s.OpenAt(day), s.CloseAt(day)
	var out []time.Time
	for t := open; t.Before(close); t = t.Add(r.step) {
		out = append(out, t)
	}
	return out
}

func (r everyNth) String() string { return r.name }

type marketOpen struct{ offset time.Duration }

// MarketOpen fires once at open + offset.
func MarketOpen(offset time.Duration) TimeRule { return marketOpen{offset: offset} }

func (r marketOpen) Times(day time.Time, s Session) []time.Time {
	t := s.OpenAt(day).Add(r.offset)
	if t.After(s.CloseAt(day)) {
		return nil
	}
	return []time.Time{t}
}

func (r marketOpen) String() string { return "market_open(" + r.offset.String() + ")" }

type marketClose struct{ offset time.Duration }

// MarketClose fires once at close - offset.
func MarketClose(offset time.Duration) TimeRule { return marketClose{offset: offset} }

func (r marketClose) Times(day time.Time, s Session) []time.Time {
	t := s.CloseAt(day).Add(-r.offset)
	if t.Before(s.OpenAt(day)) {
		return nil
	}
	return []time.Time{t}
}

func (r marketClose) String() string { return "market_close(" + r.offset.String() + ")" }

func validate(date DateRule, tr TimeRule) error {
	if date == nil || tr == nil {
		return fmt.Errorf("%w: date and time rules are required", ErrInvalidRule)
	}
	switch r := tr.(type) {
	case everyNth:
		if r.step <= 0 {
			return fmt.Errorf("%w: %s needs a positive step", ErrInvalidRule, r.name)
		}
	case marketOpen:
		if r.offset < 0 {
			return fmt.Errorf("%w: negative open offset", ErrInvalidRule)
		}
	case marketClose:
		if r.offset < 0 {
			return fmt.Errorf("%w: negative close offset", ErrInvalidRule)
		}
	}
	return nil
}
