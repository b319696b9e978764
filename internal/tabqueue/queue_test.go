package tabqueue

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"timekeep/internal/session"
)

var zone = time.FixedZone("TESTZONE", -5*3600)

func at(hour, min, sec, ms int) time.Time {
	return time.Date(2025, time.March, 10, hour, min, sec, ms*int(time.Millisecond), zone)
}

type fakeSink struct {
	mu   sync.Mutex
	seen []session.Session
}

func (f *fakeSink) SetTabState(s session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, s)
	return nil
}

func (f *fakeSink) identities() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.seen))
	for i, s := range f.seen {
		out[i] = s.Identity()
	}
	return out
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// longDebounce keeps the timer from firing so tests drain explicitly.
const longDebounce = time.Hour

func TestTransientTabDropped(t *testing.T) {
	sink := &fakeSink{}
	q := New(longDebounce, 300*time.Millisecond, 32, sink, nil, quiet())

	// Y gains focus 100ms after X: only a stop on the way to Z. Z starts
	// 600ms after the last survivor, so X and Z are both real.
	q.Add(Event{URL: "https://x.example/a", StartTime: at(12, 0, 0, 0)})
	q.Add(Event{URL: "https://y.example/b", StartTime: at(12, 0, 0, 100)})
	q.Add(Event{URL: "https://z.example/c", StartTime: at(12, 0, 0, 600)})
	q.Flush()

	got := sink.identities()
	want := []string{"x.example", "z.example"}
	if len(got) != len(want) {
		t.Fatalf("delivered = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDeliveryInStartOrder(t *testing.T) {
	sink := &fakeSink{}
	q := New(longDebounce, 300*time.Millisecond, 32, sink, nil, quiet())

	// out-of-order arrival, well spaced
	q.Add(Event{URL: "https://b.example/", StartTime: at(12, 0, 2, 0)})
	q.Add(Event{URL: "https://a.example/", StartTime: at(12, 0, 0, 0)})
	q.Add(Event{URL: "https://c.example/", StartTime: at(12, 0, 4, 0)})
	q.Flush()

	got := sink.identities()
	want := []string{"a.example", "b.example", "c.example"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("delivered = %v, want %v", got, want)
	}
}

func TestFullBufferDrainsImmediately(t *testing.T) {
	sink := &fakeSink{}
	q := New(longDebounce, 300*time.Millisecond, 2, sink, nil, quiet())

	q.Add(Event{URL: "https://a.example/", StartTime: at(12, 0, 0, 0)})
	if len(sink.identities()) != 0 {
		t.Fatal("drained before the buffer filled")
	}
	q.Add(Event{URL: "https://b.example/", StartTime: at(12, 0, 1, 0)})
	if got := sink.identities(); len(got) != 2 {
		t.Errorf("delivered = %v, want immediate drain at capacity", got)
	}
}

func TestDebounceTimerDrains(t *testing.T) {
	sink := &fakeSink{}
	q := New(20*time.Millisecond, 300*time.Millisecond, 32, sink, nil, quiet())

	q.Add(Event{URL: "https://a.example/", StartTime: at(12, 0, 0, 0)})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.identities()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("debounce timer never drained the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProductiveDomains(t *testing.T) {
	sink := &fakeSink{}
	productive := func(domain string) bool { return domain == "github.com" }
	q := New(longDebounce, 300*time.Millisecond, 32, sink, productive, quiet())

	q.Add(Event{URL: "https://github.com/foo", StartTime: at(12, 0, 0, 0)})
	q.Add(Event{URL: "https://reddit.com/bar", StartTime: at(12, 0, 5, 0)})
	q.Flush()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.seen) != 2 {
		t.Fatalf("delivered = %d sessions", len(sink.seen))
	}
	if !sink.seen[0].Productive || sink.seen[1].Productive {
		t.Errorf("productive flags = %v, %v", sink.seen[0].Productive, sink.seen[1].Productive)
	}
}

func TestUnparsableURLSkipped(t *testing.T) {
	sink := &fakeSink{}
	q := New(longDebounce, 300*time.Millisecond, 32, sink, nil, quiet())

	q.Add(Event{URL: "://///", StartTime: at(12, 0, 0, 0)})
	q.Add(Event{URL: "https://ok.example/", StartTime: at(12, 0, 5, 0)})
	q.Flush()

	got := sink.identities()
	if len(got) != 1 || got[0] != "ok.example" {
		t.Errorf("delivered = %v, want only the parsable event", got)
	}
}

func TestDomain(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://www.github.com/anhkhoakz", "github.com"},
		{"http://GitHub.com/path?q=1", "github.com"},
		{"https://news.ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"news.ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"localhost:8080/admin", "localhost"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Domain(tc.raw); got != tc.want {
			t.Errorf("Domain(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
