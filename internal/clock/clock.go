// Package clock is the single source of time for the tracking pipeline.
// Everything downstream of the session sources receives a Clock instead of
// calling the OS, so tests can script exact timestamp sequences.
package clock

import (
	"fmt"
	"time"
)

// Clock yields timezone-aware local time.
type Clock interface {
	// Now returns the current wall time in the user's local zone.
	Now() time.Time
	// TodayStart returns local midnight of the current day.
	TodayStart() time.Time
	// Elapsed reports whether at least the given number of seconds
	// passed between a and b.
	Elapsed(a, b time.Time, seconds float64) (bool, error)
}

// TimezoneError reports arithmetic across mismatched or missing zones.
type TimezoneError struct {
	A *time.Location
	B *time.Location
}

func (e *TimezoneError) Error() string {
	return fmt.Sprintf("timezone mismatch: %v vs %v", e.A, e.B)
}

// System is the production clock, pinned to one location.
type System struct {
	loc *time.Location
}

// NewSystem returns a clock reporting time in loc. A nil location means
// the process's local zone.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc}
}

func (c *System) Location() *time.Location {
	return c.loc
}

func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *System) TodayStart() time.Time {
	return Midnight(c.Now())
}

func (c *System) Elapsed(a, b time.Time, seconds float64) (bool, error) {
	return elapsed(a, b, seconds)
}

// Midnight truncates t to the start of its local day, keeping the zone.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// LocalNaive strips the zone from t without shifting the instant's
// wall-clock reading. Used for the *_local index columns.
func LocalNaive(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func elapsed(a, b time.Time, seconds float64) (bool, error) {
	if a.Location() != b.Location() {
		return false, &TimezoneError{A: a.Location(), B: b.Location()}
	}
	return b.Sub(a).Seconds() >= seconds, nil
}

// Fake is a scripted clock for tests. Each call to Now pops the next
// queued time; when the queue is empty the last time repeats.
type Fake struct {
	Times []time.Time
	idx   int
	last  time.Time
}

// NewFake returns a fake clock that will serve the given times in order.
func NewFake(times ...time.Time) *Fake {
	f := &Fake{Times: times}
	if len(times) > 0 {
		f.last = times[0]
	}
	return f
}

func (f *Fake) Now() time.Time {
	if f.idx < len(f.Times) {
		f.last = f.Times[f.idx]
		f.idx++
	}
	return f.last
}

// Advance appends a time derived from the last served value.
func (f *Fake) Advance(d time.Duration) {
	f.last = f.last.Add(d)
	f.Times = append(f.Times, f.last)
}

func (f *Fake) TodayStart() time.Time {
	return Midnight(f.last)
}

func (f *Fake) Elapsed(a, b time.Time, seconds float64) (bool, error) {
	return elapsed(a, b, seconds)
}
