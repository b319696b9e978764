// Package engine drives the active session's keep-alive heartbeat. The
// engine itself is tick-driven and timer-free so tests can step it one
// second at a time; the Container owns the real ticker goroutine.
package engine

import (
	"timekeep/internal/session"
)

const windowSec = 10

// Sink receives the engine's time attributions. In production this is
// the recorder.
type Sink interface {
	AddTenSecToEndTime(s session.Session) error
	AddPartialWindow(usedSec int, s session.Session) error
}

// Engine is bound to exactly one active session. Every ten iterations it
// pushes a full window into the sink; the remainder is flushed as a
// partial window when the engine concludes.
type Engine struct {
	sess       session.Session
	sink       Sink
	amountUsed int
	concluded  bool
}

func New(s session.Session, sink Sink) *Engine {
	return &Engine{sess: s, sink: sink}
}

// Session returns the bound session.
func (e *Engine) Session() session.Session {
	return e.sess
}

// AmountUsed returns the seconds consumed within the current window.
func (e *Engine) AmountUsed() int {
	return e.amountUsed
}

// IterateLoop advances the engine by one elapsed second.
func (e *Engine) IterateLoop() error {
	if e.concluded {
		return &session.SessionClosedError{Identity: e.sess.Identity()}
	}
	e.amountUsed++
	if e.amountUsed < windowSec {
		return nil
	}
	if err := e.sink.AddTenSecToEndTime(e.sess); err != nil {
		return err
	}
	if err := e.sess.Ledger.AddTenSec(); err != nil {
		return err
	}
	e.amountUsed = 0
	return nil
}

// Conclude flushes the trailing partial window and closes the ledger.
// With nothing consumed it emits no partial window. A second call is a
// no-op. A full ten-second remainder is impossible here because the
// tenth iteration already pulsed and reset the counter.
func (e *Engine) Conclude() error {
	if e.concluded {
		return nil
	}
	e.concluded = true
	used := e.amountUsed
	e.amountUsed = 0
	if used == 0 {
		return e.sess.Ledger.ExtendByN(0)
	}
	if used >= windowSec {
		return &session.ImpossibleStateError{
			Identity: e.sess.Identity(),
			Detail:   "partial window of a full ten seconds",
		}
	}
	if err := e.sink.AddPartialWindow(used, e.sess); err != nil {
		return err
	}
	return e.sess.Ledger.ExtendByN(used)
}
