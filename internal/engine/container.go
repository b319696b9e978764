package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timekeep/internal/session"
)

// Container owns the ticker goroutine that drives the current engine.
// Replacing the engine mid-flight keeps the ticker's cadence, so session
// switches never stretch or shrink a window.
type Container struct {
	mu       sync.Mutex
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewContainer(interval time.Duration, logger *slog.Logger) *Container {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Container{interval: interval, logger: logger}
}

// AddFirstEngine installs an engine into an empty container.
func (c *Container) AddFirstEngine(e *Engine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		s := c.engine.Session()
		return &session.ImpossibleStateError{
			Identity: s.Identity(),
			Detail:   "engine already installed",
		}
	}
	c.engine = e
	return nil
}

// Start spawns the ticker loop. Starting an empty container is fatal.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return &session.MissingEngineError{Op: "start"}
	}
	if c.running {
		return nil
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	go c.loop(c.stop, c.done)
	return nil
}

// ReplaceEngine concludes the current engine and swaps in the new one
// without touching the ticker.
func (c *Container) ReplaceEngine(next *Engine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return &session.MissingEngineError{Op: "replace"}
	}
	if err := c.engine.Conclude(); err != nil {
		return err
	}
	c.engine = next
	return nil
}

// Stop halts the ticker, joins the loop, and concludes the engine. The
// join is bounded at twice the tick interval; a loop that fails to exit
// in that window is logged and abandoned.
func (c *Container) Stop() error {
	c.mu.Lock()
	if c.engine == nil {
		c.mu.Unlock()
		return &session.MissingEngineError{Op: "stop"}
	}
	var done chan struct{}
	if c.running {
		close(c.stop)
		done = c.done
		c.running = false
	}
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * c.interval):
			c.logger.Warn("engine loop did not stop in time")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.engine.Conclude()
	c.engine = nil
	if err != nil {
		return fmt.Errorf("conclude on stop: %w", err)
	}
	return nil
}

// Running reports whether the ticker loop is live.
func (c *Container) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Container) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick holds the lock through the iteration so a concurrent replace or
// stop can never race the engine's counters. The sink only enqueues, so
// the critical section stays short.
func (c *Container) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return
	}
	if err := c.engine.IterateLoop(); err != nil {
		c.logger.Error("engine iteration failed", slog.Any("error", err))
	}
}
