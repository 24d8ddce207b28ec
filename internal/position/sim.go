package position

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"timeclock/internal/geo"
)

// SimSource produces a random walk around a starting point. It stands in for
// a real sensor on development machines.
type SimSource struct {
	interval time.Duration
	maxStep  float64

	mu      sync.Mutex
	rng     *rand.Rand
	current geo.Coordinate
}

func NewSimSource(start geo.Coordinate, interval time.Duration, maxStepMeters float64) *SimSource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SimSource{
		interval: interval,
		maxStep:  maxStepMeters,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		current:  start,
	}
}

// Next advances the walk by one step.
func (s *SimSource) Next(highAccuracy bool) geo.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()

	dist := s.rng.Float64() * s.maxStep
	bearing := s.rng.Float64() * 2 * math.Pi
	next := geo.Offset(s.current, dist*math.Cos(bearing), dist*math.Sin(bearing))

	heading := bearing * 180 / math.Pi
	speed := dist / s.interval.Seconds()
	next.Heading = &heading
	next.Speed = &speed
	next.Accuracy = 5 + s.rng.Float64()*10
	if !highAccuracy {
		next.Accuracy += 50
	}
	next.Timestamp = time.Now().UTC()

	s.current = next
	return next
}

func (s *SimSource) Watch(opts WatchOptions, onFix func(geo.Coordinate), _ func(error)) (Watch, error) {
	w := &simWatch{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		onFix(s.Next(opts.EnableHighAccuracy))
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				onFix(s.Next(opts.EnableHighAccuracy))
			}
		}
	}()
	return w, nil
}

type simWatch struct {
	once sync.Once
	done chan struct{}
}

func (w *simWatch) Stop() {
	w.once.Do(func() { close(w.done) })
}
