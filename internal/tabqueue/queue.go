// Package tabqueue debounces the browser extension's tab-change stream
// and filters out transient focuses before they reach the arbiter.
package tabqueue

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"timekeep/internal/session"
)

// Event is one raw tab change from the extension.
type Event struct {
	URL       string
	Title     string
	StartTime time.Time
}

// Sink receives the surviving tab sessions in start order.
type Sink interface {
	SetTabState(s session.Session) error
}

// Queue buffers events and drains them once the stream has been quiet
// for the debounce window, or immediately when the buffer fills.
type Queue struct {
	debounce   time.Duration
	transience time.Duration
	maxLen     int
	sink       Sink
	productive func(domain string) bool
	logger     *slog.Logger

	mu     sync.Mutex
	events []Event
	timer  *time.Timer
}

func New(debounce, transience time.Duration, maxLen int, sink Sink, productive func(string) bool, logger *slog.Logger) *Queue {
	if maxLen <= 0 {
		maxLen = 32
	}
	if productive == nil {
		productive = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		debounce:   debounce,
		transience: transience,
		maxLen:     maxLen,
		sink:       sink,
		productive: productive,
		logger:     logger,
	}
}

// Add buffers one event and resets the debounce timer. A full buffer
// drains immediately.
func (q *Queue) Add(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	if len(q.events) >= q.maxLen {
		batch := q.takeLocked()
		q.mu.Unlock()
		q.deliver(batch)
		return
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.debounce, q.fire)
	} else {
		q.timer.Reset(q.debounce)
	}
	q.mu.Unlock()
}

// Flush drains the buffer now.
func (q *Queue) Flush() {
	q.mu.Lock()
	batch := q.takeLocked()
	q.mu.Unlock()
	q.deliver(batch)
}

func (q *Queue) fire() {
	q.Flush()
}

func (q *Queue) takeLocked() []Event {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	batch := q.events
	q.events = nil
	return batch
}

// deliver orders the batch, discards transients, and hands the
// survivors to the arbiter one by one. An event starting within the
// transience threshold of the last surviving event never held focus
// long enough to count.
func (q *Queue) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].StartTime.Before(batch[j].StartTime)
	})

	survivors := batch[:1]
	for _, e := range batch[1:] {
		lastKept := survivors[len(survivors)-1]
		if e.StartTime.Sub(lastKept.StartTime) < q.transience {
			q.logger.Debug("dropping transient tab",
				slog.String("url", e.URL),
				slog.Time("start", e.StartTime))
			continue
		}
		survivors = append(survivors, e)
	}

	for _, e := range survivors {
		domain := Domain(e.URL)
		if domain == "" {
			q.logger.Warn("tab event with unparsable url", slog.String("url", e.URL))
			continue
		}
		s := session.NewTab(session.TabInfo{Domain: domain, Title: e.Title}, e.StartTime, q.productive(domain))
		if err := q.sink.SetTabState(s); err != nil {
			q.logger.Error("tab transition failed",
				slog.String("domain", domain), slog.Any("error", err))
		}
	}
}

// Domain extracts the rollup identity from a tab URL.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		// bare hosts like "news.ycombinator.com/item?id=1"
		if idx := strings.IndexAny(raw, "/?#"); idx > 0 {
			host = raw[:idx]
		} else {
			host = raw
		}
		if idx := strings.IndexByte(host, ':'); idx > 0 {
			host = host[:idx]
		}
	}
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}
