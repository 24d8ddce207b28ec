package idle

import (
	"sync"
	"testing"
	"time"

	"timeclock/internal/db/models"
)

type manualTicker struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (m *manualTicker) new(time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time)
	m.chans = append(m.chans, ch)
	return ch, func() {}
}

func (m *manualTicker) tick() {
	m.mu.Lock()
	ch := m.chans[len(m.chans)-1]
	m.mu.Unlock()
	ch <- time.Now()
}

func (m *manualTicker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chans)
}

func newTestCountdown(timeout time.Duration) (*Countdown, *manualTicker, chan int, chan struct{}) {
	ticks := make(chan int, 64)
	expired := make(chan struct{}, 1)
	c := New(timeout, func(r int) { ticks <- r }, func() { expired <- struct{}{} })
	mt := &manualTicker{}
	c.newTicker = mt.new
	return c, mt, ticks, expired
}

func waitTick(t *testing.T, ticks chan int) int {
	t.Helper()
	select {
	case r := <-ticks:
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tick")
		return 0
	}
}

func TestCountdownExpires(t *testing.T) {
	c, mt, ticks, expired := newTestCountdown(3 * time.Second)

	c.Observe(models.StatusIdle)
	if c.Remaining() != 3 {
		t.Fatalf("expected 3 seconds remaining, got %d", c.Remaining())
	}

	for want := 2; want >= 0; want-- {
		mt.tick()
		if got := waitTick(t, ticks); got != want {
			t.Fatalf("expected remaining %d, got %d", want, got)
		}
	}

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("countdown should expire at zero")
	}
	if c.Running() {
		t.Fatal("countdown should not be running after expiry")
	}
}

func TestLeavingIdleCancelsAndRestartsFromFull(t *testing.T) {
	c, mt, ticks, expired := newTestCountdown(DefaultTimeout)

	c.Observe(models.StatusIdle)
	mt.tick()
	if got := waitTick(t, ticks); got != 19 {
		t.Fatalf("expected 19, got %d", got)
	}

	c.Observe(models.StatusActive)
	if c.Running() || c.Remaining() != 0 {
		t.Fatal("active status should cancel the countdown")
	}

	c.Observe(models.StatusIdle)
	if c.Remaining() != 20 {
		t.Fatalf("countdown should restart at 20, got %d", c.Remaining())
	}
	if mt.count() != 2 {
		t.Fatalf("expected a fresh ticker, got %d", mt.count())
	}

	c.Stop()
	select {
	case <-expired:
		t.Fatal("cancelled countdown must not expire")
	default:
	}
}

func TestRepeatedIdleDoesNotRestart(t *testing.T) {
	c, mt, ticks, _ := newTestCountdown(DefaultTimeout)
	defer c.Stop()

	c.Observe(models.StatusIdle)
	mt.tick()
	waitTick(t, ticks)

	c.Observe(models.StatusIdle)
	if c.Remaining() != 19 {
		t.Fatalf("idle while counting should keep the running countdown, got %d", c.Remaining())
	}
	if mt.count() != 1 {
		t.Fatal("no new ticker expected")
	}
}

func TestStopDuringLastTickPreventsExpiry(t *testing.T) {
	expired := make(chan struct{}, 1)
	ticked := make(chan int, 4)
	var c *Countdown
	c = New(time.Second, func(r int) {
		if r == 0 {
			// a clock-in landing between the final tick and expiry
			c.Stop()
		}
		ticked <- r
	}, func() { expired <- struct{}{} })
	mt := &manualTicker{}
	c.newTicker = mt.new

	c.Observe(models.StatusIdle)
	mt.tick()
	if got := waitTick(t, ticked); got != 0 {
		t.Fatalf("expected final tick, got %d", got)
	}

	select {
	case <-expired:
		t.Fatal("stopped countdown must not expire")
	case <-time.After(100 * time.Millisecond):
	}
	if c.Running() {
		t.Fatal("countdown should be stopped")
	}
}
