// Package arbiter serializes the stream of session-start events and owns
// the one currently active session. Every transition runs under a single
// mutex, so callers can treat the arbiter as a single-threaded actor.
package arbiter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timekeep/internal/engine"
	"timekeep/internal/machine"
	"timekeep/internal/session"
)

// Recorder receives the lifecycle callbacks the arbiter and its engines
// emit.
type Recorder interface {
	engine.Sink
	OnNewSession(s session.Session) error
	OnStateChanged(s session.Session) error
}

// Display is notified of every incoming session, fire-and-forget.
type Display interface {
	ShowSession(s session.Session)
}

type Arbiter struct {
	mu        sync.Mutex
	machine   *machine.Machine
	container *engine.Container
	rec       Recorder
	displays  []Display
	logger    *slog.Logger
}

func New(m *machine.Machine, c *engine.Container, rec Recorder, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{machine: m, container: c, rec: rec, logger: logger}
}

// AddDisplay registers a display listener. Listener lists are append-only
// and must be complete before events start flowing.
func (a *Arbiter) AddDisplay(d Display) {
	a.displays = append(a.displays, d)
}

// SetProgramState feeds a program window focus event.
func (a *Arbiter) SetProgramState(s session.Session) error {
	if s.Kind != session.KindProgram {
		return &session.ImpossibleStateError{Identity: s.Identity(), Detail: "program event with tab payload"}
	}
	return a.TransitionState(s)
}

// SetTabState feeds a browser tab focus event.
func (a *Arbiter) SetTabState(s session.Session) error {
	if s.Kind != session.KindTab {
		return &session.ImpossibleStateError{Identity: s.Identity(), Detail: "tab event with program payload"}
	}
	return a.TransitionState(s)
}

// TransitionState drives one incoming session through the state machine,
// swaps engines, and notifies the recorder. On error the prior state is
// left intact; the next event re-drives reconciliation.
func (a *Arbiter) TransitionState(incoming session.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, d := range a.displays {
		go d.ShowSession(incoming)
	}

	_, hadPrior := a.machine.Current()
	concluded, err := a.machine.SetNewSession(incoming)
	if err != nil {
		return fmt.Errorf("transition aborted: %w", err)
	}

	if !hadPrior {
		return a.startFresh(incoming)
	}
	if concluded == nil {
		// stayed on the same session; the running engine keeps pulsing
		return nil
	}

	if err := a.container.ReplaceEngine(engine.New(incoming, a.rec)); err != nil {
		return fmt.Errorf("replace engine: %w", err)
	}
	if err := a.rec.OnNewSession(incoming); err != nil {
		return fmt.Errorf("record new session: %w", err)
	}
	if err := a.rec.OnStateChanged(*concluded); err != nil {
		return fmt.Errorf("record state change: %w", err)
	}
	a.logger.Debug("session switched",
		slog.String("from", concluded.Identity()),
		slog.String("to", incoming.Identity()),
		slog.Duration("duration", concluded.Duration))
	return nil
}

// FlushAndReset concludes the active session at t with no replacement.
// This is the sleep and shutdown path: t is the last believed-awake
// timestamp, never "now".
func (a *Arbiter) FlushAndReset(t time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.machine.Current(); !ok {
		return nil
	}
	if err := a.container.Stop(); err != nil {
		a.logger.Error("engine stop failed", slog.Any("error", err))
	}
	concluded, err := a.machine.ConcludeWithoutReplacementAt(t)
	if err != nil {
		return fmt.Errorf("conclude without replacement: %w", err)
	}
	if concluded == nil {
		return nil
	}
	if err := a.rec.OnStateChanged(*concluded); err != nil {
		return fmt.Errorf("record final state: %w", err)
	}
	a.logger.Info("session concluded without replacement",
		slog.String("identity", concluded.Identity()),
		slog.Time("end", concluded.EndTime))
	return nil
}

// InitializeLoop begins a fresh engine for s. Used when the first real
// event arrives after a wake or at process start.
func (a *Arbiter) InitializeLoop(s session.Session) error {
	return a.TransitionState(s)
}

// Current returns a copy of the active session.
func (a *Arbiter) Current() (session.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Current()
}

func (a *Arbiter) startFresh(incoming session.Session) error {
	if err := a.container.AddFirstEngine(engine.New(incoming, a.rec)); err != nil {
		return fmt.Errorf("install engine: %w", err)
	}
	if err := a.container.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if err := a.rec.OnNewSession(incoming); err != nil {
		return fmt.Errorf("record new session: %w", err)
	}
	a.logger.Debug("first session initialized", slog.String("identity", incoming.Identity()))
	return nil
}
