// Package display renders the active session to the console. It is the
// default implementation of the arbiter's display listener.
package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"timekeep/internal/session"
)

var (
	kindStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	identityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	productiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// Console writes one line per session change.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// ShowSession implements the arbiter display listener.
func (c *Console) ShowSession(s session.Session) {
	mark := ""
	if s.Productive {
		mark = productiveStyle.Render(" ✓")
	}
	line := fmt.Sprintf("%s %s %s%s",
		kindStyle.Render(s.Kind.String()),
		identityStyle.Render(s.Identity()),
		titleStyle.Render(s.Title()),
		mark,
	)
	c.mu.Lock()
	fmt.Fprintln(c.out, line)
	c.mu.Unlock()
}
