// Package recorder translates session lifecycle callbacks into store
// operations, dispatching each session to the store for its variant.
package recorder

import (
	"log/slog"

	"timekeep/internal/session"
)

// Target is the per-entity store surface the recorder writes through.
type Target interface {
	StartSession(s session.Session) error
	PushWindowAheadTenSec(s session.Session) error
	AddPartialWindow(s session.Session, usedSec int) error
	FinalizeLog(s session.Session) error
}

type Recorder struct {
	programs Target
	tabs     Target
	logger   *slog.Logger
}

func New(programs, tabs Target, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{programs: programs, tabs: tabs, logger: logger}
}

func (r *Recorder) target(s session.Session) Target {
	if s.Kind == session.KindTab {
		return r.tabs
	}
	return r.programs
}

// OnNewSession opens the log row and ensures today's summary row exists.
func (r *Recorder) OnNewSession(s session.Session) error {
	r.logger.Debug("session opened",
		slog.String("kind", s.Kind.String()),
		slog.String("identity", s.Identity()))
	return r.target(s).StartSession(s)
}

// AddTenSecToEndTime records one full keep-alive window.
func (r *Recorder) AddTenSecToEndTime(s session.Session) error {
	return r.target(s).PushWindowAheadTenSec(s)
}

// AddPartialWindow records the consumed remainder of the final window.
// Zero is a no-op; a full window here means the engine failed to pulse.
func (r *Recorder) AddPartialWindow(usedSec int, s session.Session) error {
	if usedSec == 0 {
		return nil
	}
	if usedSec < 0 || usedSec >= 10 {
		return &session.ImpossibleStateError{
			Identity: s.Identity(),
			Detail:   "partial window outside (0, 10) seconds",
		}
	}
	return r.target(s).AddPartialWindow(s, usedSec)
}

// OnStateChanged finalizes the concluded session's log row. Hours were
// already accumulated through pulses and the partial window, so the
// summary is untouched.
func (r *Recorder) OnStateChanged(s session.Session) error {
	if !s.Ended {
		return &session.ImpossibleStateError{
			Identity: s.Identity(),
			Detail:   "state change for a session without an end time",
		}
	}
	if s.Ledger != nil && s.Ledger.Closed() && s.Ledger.Total() != s.Duration {
		r.logger.Debug("ledger total differs from wall duration",
			slog.String("identity", s.Identity()),
			slog.Duration("ledger", s.Ledger.Total()),
			slog.Duration("duration", s.Duration))
	}
	return r.target(s).FinalizeLog(s)
}
