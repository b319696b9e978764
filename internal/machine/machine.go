// Package machine computes session transitions. It is purely
// state-in/state-out: no timers, no persistence, and it never hands out a
// pointer into its own state, so callers cannot mutate a session it still
// owns.
package machine

import (
	"path/filepath"
	"strings"
	"time"

	"timekeep/internal/session"
)

// Machine holds the currently active session and the most recently
// concluded one.
type Machine struct {
	browserHosts map[string]struct{}
	current      *session.Session
	prior        *session.Session
}

// New builds a machine. browserHosts lists process names (e.g. "chrome",
// "firefox.exe") whose windows host the tracked browser tabs; a program
// event for one of them while a tab is active is not a switch.
func New(browserHosts []string) *Machine {
	hosts := make(map[string]struct{}, len(browserHosts))
	for _, h := range browserHosts {
		hosts[normalizeHost(h)] = struct{}{}
	}
	return &Machine{browserHosts: hosts}
}

// SetNewSession feeds one incoming session and returns the concluded
// previous session, or nil when the machine stayed on the current one.
// The concluded session's end time is the incoming session's start time.
func (m *Machine) SetNewSession(incoming session.Session) (*session.Session, error) {
	if m.current == nil {
		s := incoming.Clone()
		s.Ledger.Bind(s.Identity())
		m.current = &s
		return nil, nil
	}

	if m.stays(incoming) {
		m.refreshMetadata(incoming)
		return nil, nil
	}

	concluded, err := m.concludeCurrentAt(incoming.StartTime)
	if err != nil {
		return nil, err
	}
	next := incoming.Clone()
	next.Ledger.Bind(next.Identity())
	m.current = &next
	return concluded, nil
}

// ConcludeWithoutReplacementAt closes the active session at t and clears
// the machine. Used on sleep detection and shutdown, where no successor
// session exists. Returns nil when nothing was active.
func (m *Machine) ConcludeWithoutReplacementAt(t time.Time) (*session.Session, error) {
	if m.current == nil {
		return nil, nil
	}
	concluded, err := m.concludeCurrentAt(t)
	if err != nil {
		return nil, err
	}
	m.current = nil
	return concluded, nil
}

// Current returns a copy of the active session.
func (m *Machine) Current() (session.Session, bool) {
	if m.current == nil {
		return session.Session{}, false
	}
	return m.current.Clone(), true
}

// Prior returns a copy of the most recently concluded session.
func (m *Machine) Prior() (session.Session, bool) {
	if m.prior == nil {
		return session.Session{}, false
	}
	return m.prior.Clone(), true
}

func (m *Machine) stays(incoming session.Session) bool {
	switch m.current.Kind {
	case session.KindProgram:
		if incoming.Kind != session.KindProgram {
			return false
		}
		return m.current.Program.ExePath == incoming.Program.ExePath
	case session.KindTab:
		if incoming.Kind == session.KindProgram {
			return m.isBrowserHost(incoming.Program)
		}
		return m.current.Tab.Domain == incoming.Tab.Domain
	}
	return false
}

// refreshMetadata keeps the active session's identity, start time, and
// ledger, but tracks the newest window title and detail.
func (m *Machine) refreshMetadata(incoming session.Session) {
	switch m.current.Kind {
	case session.KindProgram:
		if incoming.Kind == session.KindProgram {
			if incoming.Program.WindowTitle != "" {
				m.current.Program.WindowTitle = incoming.Program.WindowTitle
			}
			if incoming.Program.Detail != "" {
				m.current.Program.Detail = incoming.Program.Detail
			}
		}
	case session.KindTab:
		if incoming.Kind == session.KindTab && incoming.Tab.Title != "" {
			m.current.Tab.Title = incoming.Tab.Title
		}
	}
}

func (m *Machine) concludeCurrentAt(end time.Time) (*session.Session, error) {
	if err := m.current.ConcludeAt(end); err != nil {
		return nil, err
	}
	concluded := m.current.Clone()
	m.prior = &concluded
	out := concluded.Clone()
	return &out, nil
}

func (m *Machine) isBrowserHost(p session.ProgramInfo) bool {
	if _, ok := m.browserHosts[normalizeHost(p.ProcessName)]; ok {
		return true
	}
	_, ok := m.browserHosts[normalizeHost(filepath.Base(p.ExePath))]
	return ok
}

func normalizeHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}
