package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"timeclock/internal/db/models"
	"timeclock/internal/geo"
	"timeclock/internal/position"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
)

type fakeWatch struct {
	stopped bool
}

func (w *fakeWatch) Stop() { w.stopped = true }

type fakeSource struct {
	mu      sync.Mutex
	onFix   func(geo.Coordinate)
	watches []*fakeWatch
	opts    position.WatchOptions
}

func (s *fakeSource) Watch(opts position.WatchOptions, onFix func(geo.Coordinate), onErr func(error)) (position.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &fakeWatch{}
	s.onFix = onFix
	s.opts = opts
	s.watches = append(s.watches, w)
	return w, nil
}

func (s *fakeSource) emit(c geo.Coordinate) {
	s.mu.Lock()
	fn := s.onFix
	s.mu.Unlock()
	fn(c)
}

type fakeWriter struct {
	mu       sync.Mutex
	inserted []*models.Location
	failures int
	calls    int
}

func (w *fakeWriter) InsertLocation(ctx context.Context, loc *models.Location) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("insert failed")
	}
	w.inserted = append(w.inserted, loc)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	last *geo.Coordinate
}

func (c *memCache) LastLocation() *geo.Coordinate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	l := *c.last
	return &l
}

func (c *memCache) SetLastLocation(ctx context.Context, l geo.Coordinate) {
	c.mu.Lock()
	c.last = &l
	c.mu.Unlock()
}

var origin = geo.Coordinate{Latitude: 48.8566, Longitude: 2.3522, Accuracy: 5}

func newTestSampler(attempts int) (*Sampler, *fakeSource, *fakeWriter, *memCache) {
	src := &fakeSource{}
	w := &fakeWriter{}
	cache := &memCache{}
	cfg := DefaultConfig()
	cfg.InsertAttempts = attempts
	s := New(src, w, cache, NewMarker(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return s, src, w, cache
}

func activeSnapshot() Snapshot {
	return Snapshot{EmployeeID: uuid.New(), ShiftID: uuid.New(), Status: models.StatusActive}
}

func TestWatchRunsOnlyWhileActive(t *testing.T) {
	s, src, _, _ := newTestSampler(1)
	defer s.Close()

	snap := activeSnapshot()
	s.Update(snap)
	if !s.Watching() || len(src.watches) != 1 {
		t.Fatalf("expected one watch after going active, got %d", len(src.watches))
	}
	if !src.opts.EnableHighAccuracy || src.opts.MaximumAge != 0 {
		t.Fatalf("unexpected watch options %+v", src.opts)
	}

	s.Update(snap)
	if len(src.watches) != 1 {
		t.Fatalf("repeated active update should not open a second watch")
	}

	snap.Status = models.StatusBreak
	s.Update(snap)
	if s.Watching() || !src.watches[0].stopped {
		t.Fatal("watch should stop on break")
	}

	snap.Status = models.StatusActive
	s.Update(snap)
	if len(src.watches) != 2 || !s.Watching() {
		t.Fatal("watch should restart when resuming")
	}

	s.Close()
	if !src.watches[1].stopped {
		t.Fatal("close should stop the watch")
	}
}

func TestFirstPingPersistedDespiteCachedLocation(t *testing.T) {
	s, src, w, cache := newTestSampler(1)
	defer s.Close()

	// stale cache from a previous shift, same place
	cache.SetLastLocation(context.Background(), origin)

	snap := activeSnapshot()
	s.Update(snap)
	src.emit(origin)

	if len(w.inserted) != 1 {
		t.Fatalf("expected first ping to be persisted, got %d inserts", len(w.inserted))
	}
	got := w.inserted[0]
	if got.TimeEntryID != snap.ShiftID || got.EmployeeID != snap.EmployeeID {
		t.Fatalf("unexpected ids on %+v", got)
	}
	if got.BatteryLevel != 100 {
		t.Fatalf("expected placeholder battery level, got %d", got.BatteryLevel)
	}
	if got.RecordedAt.IsZero() {
		t.Fatal("recorded_at should be set")
	}
}

func TestDistanceThreshold(t *testing.T) {
	s, src, w, cache := newTestSampler(1)
	defer s.Close()

	s.Update(activeSnapshot())
	src.emit(origin)

	near := geo.Offset(origin, 6, 0)
	src.emit(near)
	if len(w.inserted) != 1 {
		t.Fatalf("movement within threshold should not be persisted, got %d", len(w.inserted))
	}
	if c := cache.LastLocation(); c == nil || c.Latitude != near.Latitude {
		t.Fatal("every fix should update the cached location")
	}

	// 6 m + 6 m from the last persisted fix crosses the threshold even
	// though each step is below it
	src.emit(geo.Offset(near, 6, 0))
	if len(w.inserted) != 2 {
		t.Fatalf("cumulative movement beyond threshold should be persisted, got %d", len(w.inserted))
	}

	src.emit(geo.Offset(origin, 0, 50))
	if len(w.inserted) != 3 {
		t.Fatalf("large jump should be persisted, got %d", len(w.inserted))
	}
}

func TestNewShiftSendsFirstPingAgain(t *testing.T) {
	s, src, w, _ := newTestSampler(1)
	defer s.Close()

	first := activeSnapshot()
	s.Update(first)
	src.emit(origin)

	second := first
	second.ShiftID = uuid.New()
	s.Update(Snapshot{EmployeeID: first.EmployeeID, Status: models.StatusIdle})
	s.Update(second)
	src.emit(origin)

	if len(w.inserted) != 2 {
		t.Fatalf("expected a first ping for each shift, got %d", len(w.inserted))
	}
	if w.inserted[1].TimeEntryID != second.ShiftID {
		t.Fatal("second ping should belong to the new shift")
	}
}

func TestFailedInsertDoesNotMarkShift(t *testing.T) {
	s, src, w, _ := newTestSampler(1)
	defer s.Close()

	w.failures = 1
	snap := activeSnapshot()
	s.Update(snap)
	src.emit(origin)

	if w.calls != 1 || len(w.inserted) != 0 {
		t.Fatalf("expected exactly one failed attempt, calls=%d", w.calls)
	}
	if s.marker.Sent(snap.ShiftID) {
		t.Fatal("failed insert must not mark the first ping as sent")
	}

	src.emit(origin)
	if len(w.inserted) != 1 {
		t.Fatalf("next fix should retry the first ping, got %d", len(w.inserted))
	}
}

func TestDefaultPolicyDoesNotRetryOrBlock(t *testing.T) {
	src := &fakeSource{}
	w := &fakeWriter{failures: 1000}
	s := New(src, w, &memCache{}, NewMarker(), DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer s.Close()

	s.Update(activeSnapshot())

	done := make(chan struct{})
	go func() {
		src.emit(origin)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("failed insert blocked the position callback")
	}

	w.mu.Lock()
	calls := w.calls
	w.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single insert attempt, calls=%d", calls)
	}
}

func TestRetryPolicy(t *testing.T) {
	s, src, w, _ := newTestSampler(3)
	defer s.Close()

	w.failures = 2
	s.Update(activeSnapshot())
	src.emit(origin)

	if w.calls != 3 || len(w.inserted) != 1 {
		t.Fatalf("expected success on third attempt, calls=%d inserted=%d", w.calls, len(w.inserted))
	}
}

func TestFixIgnoredWhenNotActive(t *testing.T) {
	s, src, w, cache := newTestSampler(1)
	defer s.Close()

	snap := activeSnapshot()
	s.Update(snap)
	onFix := src.onFix

	// a late fix from a stopped watch
	snap.Status = models.StatusBreak
	s.Update(snap)
	onFix(origin)

	if len(w.inserted) != 0 || cache.LastLocation() != nil {
		t.Fatal("fix after leaving active state should be ignored")
	}
}

func TestUnknownShiftOnlyCaches(t *testing.T) {
	s, src, w, cache := newTestSampler(1)
	defer s.Close()

	s.Update(Snapshot{EmployeeID: uuid.New(), Status: models.StatusActive})
	src.emit(geo.Coordinate{Latitude: 1, Longitude: 2, Timestamp: time.Now()})

	if len(w.inserted) != 0 {
		t.Fatal("pings without a shift id should not be persisted")
	}
	if cache.LastLocation() == nil {
		t.Fatal("fix should still be cached")
	}
}

func TestMarkerReset(t *testing.T) {
	m := NewMarker()
	id := uuid.New()
	m.Mark(id)
	if !m.Sent(id) {
		t.Fatal("expected shift to be marked")
	}
	m.Reset()
	if m.Sent(id) {
		t.Fatal("reset should forget marked shifts")
	}
}
