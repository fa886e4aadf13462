package fader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"webdmx/internal/logger"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    [Faders]int
		wantErr bool
	}{
		{"prefixed", "faders:[0,10,20,30,40,50,60,255]", [Faders]int{0, 10, 20, 30, 40, 50, 60, 255}, false},
		{"floats truncate", "x:[1.9, 2.2, 0, 0, 0, 0, 0, 128.7]", [Faders]int{1, 2, 0, 0, 0, 0, 0, 128}, false},
		{"clamped", "x:[-4,300,0,0,0,0,0,0]", [Faders]int{0, 255, 0, 0, 0, 0, 0, 0}, false},
		{"bare array", "[1,2,3,4,5,6,7,8]", [Faders]int{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"too few fields", "x:[1,2,3]", [Faders]int{}, true},
		{"too many fields", "x:[1,2,3,4,5,6,7,8,9]", [Faders]int{}, true},
		{"not json", "x:hello", [Faders]int{}, true},
		{"strings", `x:["a","b","c","d","e","f","g","h"]`, [Faders]int{}, true},
		{"empty", "", [Faders]int{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Fatalf("Decode() error = %v, want ErrDecode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if ev.Values != tt.want {
				t.Errorf("Decode() = %v, want %v", ev.Values, tt.want)
			}
		})
	}
}

func TestEventMapping(t *testing.T) {
	ev := Event{Values: [Faders]int{1, 2, 3, 4, 5, 6, 7, 200}}

	updates := ev.Updates()
	want := map[int]int{96: 1, 97: 2, 98: 3, 106: 4, 124: 4, 107: 5, 125: 5, 108: 6, 126: 6, 109: 7, 127: 7}
	if len(updates) != len(want) {
		t.Fatalf("Updates() has %d entries, want %d: %v", len(updates), len(want), updates)
	}
	for ch, v := range want {
		if updates[ch] != v {
			t.Errorf("Updates()[%d] = %d, want %d", ch, updates[ch], v)
		}
	}
	if ev.Master() != 200 {
		t.Errorf("Master() = %d, want 200", ev.Master())
	}
}

// fakeTransport records handlers per connection and lets tests drop the link.
type fakeTransport struct {
	mu           sync.Mutex
	connects     int
	failConnects int
	handlers     []func([]byte)
	lost         chan error
	subscribed   chan int
}

func newFakeTransport(failConnects int) *fakeTransport {
	return &fakeTransport{
		failConnects: failConnects,
		lost:         make(chan error, 1),
		subscribed:   make(chan int, 16),
	}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.failConnects {
		return errors.New("connection refused")
	}
	f.lost = make(chan error, 1)
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, _ string, handler func([]byte)) error {
	f.mu.Lock()
	f.handlers = append(f.handlers, handler)
	n := len(f.handlers)
	f.mu.Unlock()
	f.subscribed <- n
	return nil
}

func (f *fakeTransport) Lost() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lost
}

func (f *fakeTransport) Close() {}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	lost := f.lost
	f.mu.Unlock()
	lost <- errors.New("broken pipe")
}

func (f *fakeTransport) handler(i int) func([]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[i]
}

func waitSubscribed(t *testing.T, f *fakeTransport, want int) {
	t.Helper()
	select {
	case n := <-f.subscribed:
		if n != want {
			t.Fatalf("subscription #%d, want #%d", n, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for subscription #%d", want)
	}
}

func startSource(t *testing.T, f *fakeTransport) (*Source, *test.Hook, chan Event) {
	t.Helper()
	l, hook := test.NewNullLogger()
	src := NewSource(logger.Wrap(l), f, "fader", 5*time.Millisecond, time.Hour)

	events := make(chan Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = src.Run(ctx, func(ev Event) { events <- ev })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return src, hook, events
}

func expectEvent(t *testing.T, events chan Event, master int) {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Master() != master {
			t.Fatalf("event master = %d, want %d", ev.Master(), master)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event with master %d", master)
	}
}

func TestSourceReconnectDoesNotReplay(t *testing.T) {
	f := newFakeTransport(0)
	src, _, events := startSource(t, f)

	waitSubscribed(t, f, 1)
	first := f.handler(0)
	first([]byte("x:[0,0,0,0,0,0,0,1]"))
	expectEvent(t, events, 1)

	f.drop()
	waitSubscribed(t, f, 2)

	// in flight on the old connection while it died
	first([]byte("x:[0,0,0,0,0,0,0,2]"))

	f.handler(1)([]byte("x:[0,0,0,0,0,0,0,3]"))
	expectEvent(t, events, 3)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Values)
	default:
	}
	if src.Restarts() != 1 {
		t.Errorf("Restarts() = %d, want 1", src.Restarts())
	}
}

func TestSourceReconnectWaitsForInFlightEvent(t *testing.T) {
	f := newFakeTransport(0)
	l, _ := test.NewNullLogger()
	src := NewSource(logger.Wrap(l), f, "fader", time.Millisecond, time.Hour)

	entered := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Int32
	sink := func(ev Event) {
		delivered.Add(1)
		if ev.Master() == 1 {
			close(entered)
			<-release
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = src.Run(ctx, sink)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitSubscribed(t, f, 1)
	first := f.handler(0)
	go first([]byte("x:[0,0,0,0,0,0,0,1]"))
	<-entered

	f.drop()
	select {
	case n := <-f.subscribed:
		close(release)
		t.Fatalf("subscription #%d made while an old event was still being delivered", n)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitSubscribed(t, f, 2)

	first([]byte("x:[0,0,0,0,0,0,0,2]"))
	if n := delivered.Load(); n != 1 {
		t.Errorf("delivered %d events, want 1", n)
	}
}

func TestSourceRetriesFailedConnect(t *testing.T) {
	f := newFakeTransport(3)
	src, _, events := startSource(t, f)

	waitSubscribed(t, f, 1)
	if src.Restarts() != 3 {
		t.Errorf("Restarts() = %d, want 3", src.Restarts())
	}

	f.handler(0)([]byte("x:[0,0,0,0,0,0,0,9]"))
	expectEvent(t, events, 9)
}

func TestSourceDropsMalformedEvent(t *testing.T) {
	f := newFakeTransport(0)
	src, hook, events := startSource(t, f)

	waitSubscribed(t, f, 1)
	h := f.handler(0)
	h([]byte("x:[1,2,3]"))

	if src.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", src.Dropped())
	}
	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["module"] == "fader" {
			logged = true
		}
	}
	if !logged {
		t.Error("malformed event was not logged as an error")
	}

	// the loop keeps going
	h([]byte("x:[0,0,0,0,0,0,0,4]"))
	expectEvent(t, events, 4)
}

func TestSourceStopsOnCancel(t *testing.T) {
	f := newFakeTransport(0)
	l, _ := test.NewNullLogger()
	src := NewSource(logger.Wrap(l), f, "fader", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- src.Run(ctx, func(Event) {}) }()

	waitSubscribed(t, f, 1)
	cancel()

	select {
	case err := <-errC:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
