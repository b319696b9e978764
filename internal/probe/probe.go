// Package probe turns foreground-window polls into program session
// events. The OS hook that names the focused window is injectable; this
// package owns the polling cadence and the process metadata lookup.
package probe

import (
	"errors"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"timekeep/internal/clock"
	"timekeep/internal/session"
)

// ErrUnsupported is returned when no foreground hook exists for this
// platform.
var ErrUnsupported = errors.New("foreground window probe unsupported")

// Window identifies the focused window at one poll.
type Window struct {
	PID   int32
	Title string
}

// Foreground reports the currently focused window.
type Foreground func() (Window, error)

// Sink receives program session events.
type Sink interface {
	SetProgramState(s session.Session) error
}

// Watcher polls the foreground hook and forwards focus changes.
type Watcher struct {
	foreground Foreground
	sink       Sink
	clk        clock.Clock
	interval   time.Duration
	productive func(exePath string) bool
	logger     *slog.Logger

	lastExe   string
	lastTitle string

	stop chan struct{}
	done chan struct{}
}

func NewWatcher(fg Foreground, sink Sink, clk clock.Clock, interval time.Duration, productive func(string) bool, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	if productive == nil {
		productive = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		foreground: fg,
		sink:       sink,
		clk:        clk,
		interval:   interval,
		productive: productive,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start spawns the poll loop. With no hook available the watcher is a
// no-op, matching head-less and unsupported platforms.
func (w *Watcher) Start() error {
	if w.foreground == nil {
		close(w.done)
		return ErrUnsupported
	}
	go w.loop()
	return nil
}

func (w *Watcher) Stop() {
	select {
	case <-w.done:
		return
	default:
	}
	close(w.stop)
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	win, err := w.foreground()
	if err != nil {
		w.logger.Warn("foreground poll failed", slog.Any("error", err))
		return
	}
	if win.PID <= 0 {
		return
	}
	exePath, procName, err := resolveProcess(win.PID)
	if err != nil {
		w.logger.Warn("process lookup failed",
			slog.Int("pid", int(win.PID)), slog.Any("error", err))
		return
	}
	if exePath == w.lastExe && win.Title == w.lastTitle {
		return
	}
	w.lastExe = exePath
	w.lastTitle = win.Title

	s := session.NewProgram(session.ProgramInfo{
		ExePath:     exePath,
		ProcessName: procName,
		WindowTitle: win.Title,
	}, w.clk.Now(), w.productive(exePath))
	if err := w.sink.SetProgramState(s); err != nil {
		w.logger.Error("program transition failed",
			slog.String("exe", exePath), slog.Any("error", err))
	}
}

func resolveProcess(pid int32) (exePath, name string, err error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", "", err
	}
	exePath, err = proc.Exe()
	if err != nil {
		return "", "", err
	}
	name, err = proc.Name()
	if err != nil {
		return exePath, "", err
	}
	return exePath, name, nil
}
