// Package status polls a liveness heartbeat and infers OS sleep from
// gaps between consecutive beats. A machine cannot write heartbeats
// while suspended, so a gap well over the poll interval means the
// interval between the two beats was spent asleep.
package status

import (
	"fmt"
	"log/slog"
	"time"

	"timekeep/internal/clock"
	"timekeep/internal/store"
)

// Log is the append side of the system status log.
type Log interface {
	AppendStatus(status string, ts time.Time) error
}

// Sleeper concludes the active session at the given pre-gap timestamp.
type Sleeper interface {
	FlushAndReset(t time.Time) error
}

// Detector watches the heartbeat stream for sleep gaps.
type Detector struct {
	interval time.Duration
	margin   float64
	sleeper  Sleeper
	log      Log
	logger   *slog.Logger

	last time.Time
}

// NewDetector builds a detector for heartbeats expected every interval.
// margin is the tolerated overshoot fraction, e.g. 0.5 flags gaps above
// 1.5 intervals.
func NewDetector(interval time.Duration, margin float64, sleeper Sleeper, log Log, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		interval: interval,
		margin:   margin,
		sleeper:  sleeper,
		log:      log,
		logger:   logger,
	}
}

// Observe feeds one heartbeat. When the gap since the previous beat
// exceeds the threshold, the active session is concluded at the last
// pre-gap beat, never at the wake time.
func (d *Detector) Observe(t time.Time) (bool, error) {
	prev := d.last
	d.last = t
	if prev.IsZero() {
		return false, nil
	}
	threshold := d.interval + time.Duration(d.margin*float64(d.interval))
	gap := t.Sub(prev)
	if gap <= threshold {
		return false, nil
	}

	d.logger.Info("sleep gap detected",
		slog.Duration("gap", gap),
		slog.Time("last_alive", prev))
	if err := d.sleeper.FlushAndReset(prev); err != nil {
		return true, fmt.Errorf("conclude pre-sleep session: %w", err)
	}
	if err := d.log.AppendStatus(store.StatusSleepDetected, t); err != nil {
		return true, fmt.Errorf("record sleep status: %w", err)
	}
	return true, nil
}

// LastBeat returns the most recent observed heartbeat.
func (d *Detector) LastBeat() time.Time {
	return d.last
}

// Poller writes one heartbeat per interval and feeds the detector.
type Poller struct {
	clk      clock.Clock
	log      Log
	detector *Detector
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewPoller(clk clock.Clock, log Log, detector *Detector, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		clk:      clk,
		log:      log,
		detector: detector,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start records the program-started status and spawns the poll loop.
func (p *Poller) Start() error {
	now := p.clk.Now()
	if err := p.log.AppendStatus(store.StatusProgramStarted, now); err != nil {
		return fmt.Errorf("record startup status: %w", err)
	}
	p.detector.Observe(now)
	go p.loop()
	return nil
}

// Stop halts the loop and records a shutdown status.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
	if err := p.log.AppendStatus(store.StatusShutdown, p.clk.Now()); err != nil {
		p.logger.Error("record shutdown status failed", slog.Any("error", err))
	}
}

func (p *Poller) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.beat()
		}
	}
}

func (p *Poller) beat() {
	now := p.clk.Now()
	if _, err := p.detector.Observe(now); err != nil {
		p.logger.Error("sleep detection failed", slog.Any("error", err))
	}
	if err := p.log.AppendStatus(store.StatusOnline, now); err != nil {
		p.logger.Error("heartbeat write failed", slog.Any("error", err))
	}
}
