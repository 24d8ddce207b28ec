// Package idle logs an employee out after a period without an open shift.
package idle

import (
	"sync"
	"time"

	"timeclock/internal/db/models"
)

const (
	DefaultTimeout = 20 * time.Second
	tickInterval   = time.Second
)

// Countdown counts down in one-second ticks while the shift status is idle.
// OnTick receives the remaining seconds; OnExpire fires once when the count
// reaches zero. Both run on the countdown goroutine.
type Countdown struct {
	seconds  int
	onTick   func(remaining int)
	onExpire func()

	newTicker func(d time.Duration) (<-chan time.Time, func())

	mu        sync.Mutex
	gen       uint64
	running   bool
	remaining int
	stop      chan struct{}
}

func New(timeout time.Duration, onTick func(int), onExpire func()) *Countdown {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	seconds := int(timeout / tickInterval)
	if seconds < 1 {
		seconds = 1
	}
	if onTick == nil {
		onTick = func(int) {}
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Countdown{
		seconds:  seconds,
		onTick:   onTick,
		onExpire: onExpire,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Observe starts the countdown when the status becomes idle and cancels it
// on any other status.
func (c *Countdown) Observe(status models.ShiftStatus) {
	if status == models.StatusIdle {
		c.Start()
		return
	}
	c.Stop()
}

// Start begins a fresh countdown unless one is already running.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.running = true
	c.remaining = c.seconds
	stop := make(chan struct{})
	c.stop = stop
	ticks, stopTicker := c.newTicker(tickInterval)
	c.mu.Unlock()

	go c.run(gen, ticks, stopTicker, stop)
}

func (c *Countdown) run(gen uint64, ticks <-chan time.Time, stopTicker func(), stop chan struct{}) {
	defer stopTicker()
	for {
		select {
		case <-stop:
			return
		case <-ticks:
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.remaining--
		remaining := c.remaining
		c.mu.Unlock()

		c.onTick(remaining)
		if remaining > 0 {
			continue
		}

		// a Stop during the last tick wins over expiry
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.gen++
		c.running = false
		c.mu.Unlock()

		c.onExpire()
		return
	}
}

// Stop cancels a running countdown. The next Start begins at the full
// timeout again.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.gen++
	c.running = false
	c.remaining = 0
	close(c.stop)
}

// Remaining reports the seconds left, or 0 when not running.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
