package session

import "time"

// Ledger audits the seconds attributed to one live session. Full 10s
// windows land through AddTenSec; the trailing partial window lands
// through ExtendByN, which also closes the ledger. At shutdown the total
// must equal the session's persisted duration.
type Ledger struct {
	fullWindows int
	extraSec    int
	closed      bool
	identity    string
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Bind attaches the owning identity for error reporting.
func (l *Ledger) Bind(identity string) {
	l.identity = identity
}

// AddTenSec credits one full window. Errors once the ledger is closed.
func (l *Ledger) AddTenSec() error {
	if l.closed {
		return &SessionClosedError{Identity: l.identity}
	}
	l.fullWindows++
	return nil
}

// ExtendByN credits the trailing partial window and closes the ledger.
// Zero seconds is allowed and simply closes it.
func (l *Ledger) ExtendByN(seconds int) error {
	if l.closed {
		return &SessionClosedError{Identity: l.identity}
	}
	if seconds < 0 {
		return &NegativeTimeError{Identity: l.identity, Hours: float64(seconds) / 3600}
	}
	l.extraSec += seconds
	l.closed = true
	return nil
}

func (l *Ledger) Closed() bool {
	return l.closed
}

// Total returns all credited time.
func (l *Ledger) Total() time.Duration {
	return time.Duration(l.fullWindows*10+l.extraSec) * time.Second
}
