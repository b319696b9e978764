// Package session defines the tracked session variants and the per-session
// ledger that audits how many seconds were attributed to each one.
package session

import (
	"fmt"
	"time"
)

// Kind tags the session variant.
type Kind int

const (
	KindProgram Kind = iota
	KindTab
)

func (k Kind) String() string {
	switch k {
	case KindProgram:
		return "program"
	case KindTab:
		return "tab"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ProgramInfo is the payload of a program window session. ExePath is the
// rollup identity; the rest is display metadata.
type ProgramInfo struct {
	ExePath     string
	ProcessName string
	WindowTitle string
	Detail      string
}

// TabInfo is the payload of a browser tab session. Domain is the rollup
// identity.
type TabInfo struct {
	Domain string
	Title  string
}

// Session is one continuous interval of focus on a program window or a
// browser tab. While the session is current, EndTime and Duration are
// unset; concluding it sets both so Duration == EndTime - StartTime.
type Session struct {
	Kind       Kind
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Ended      bool
	Productive bool
	Ledger     *Ledger

	Program ProgramInfo
	Tab     TabInfo
}

// NewProgram starts a program session at start.
func NewProgram(info ProgramInfo, start time.Time, productive bool) Session {
	return Session{
		Kind:       KindProgram,
		StartTime:  start,
		Productive: productive,
		Ledger:     NewLedger(),
		Program:    info,
	}
}

// NewTab starts a tab session at start.
func NewTab(info TabInfo, start time.Time, productive bool) Session {
	return Session{
		Kind:       KindTab,
		StartTime:  start,
		Productive: productive,
		Ledger:     NewLedger(),
		Tab:        info,
	}
}

// Identity returns the same-day rollup key: exe path for programs,
// domain for tabs.
func (s *Session) Identity() string {
	if s.Kind == KindTab {
		return s.Tab.Domain
	}
	return s.Program.ExePath
}

// Title returns the human-readable label for display surfaces.
func (s *Session) Title() string {
	if s.Kind == KindTab {
		return s.Tab.Title
	}
	return s.Program.WindowTitle
}

// ConcludeAt closes the session at end. It is an error for end to
// precede the start time.
func (s *Session) ConcludeAt(end time.Time) error {
	if end.Before(s.StartTime) {
		return &NegativeTimeError{Identity: s.Identity(), Hours: end.Sub(s.StartTime).Hours()}
	}
	s.EndTime = end
	s.Duration = end.Sub(s.StartTime)
	s.Ended = true
	return nil
}

// Clone returns a copy whose ledger is shared. The state machine hands
// clones outward so callers can never mutate its internal state.
func (s *Session) Clone() Session {
	return *s
}
