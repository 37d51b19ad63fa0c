package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// TestETA covers the extrapolation edge cases.
func TestETA(t *testing.T) {
	if got := ETA(10*time.Second, 2, 6); got != 20*time.Second {
		t.Fatalf("ETA = %v, want 20s", got)
	}
	if got := ETA(10*time.Second, 0, 6); got != 0 {
		t.Fatalf("ETA with no completions = %v, want 0", got)
	}
	if got := ETA(10*time.Second, 6, 6); got != 0 {
		t.Fatalf("ETA when done = %v, want 0", got)
	}
}

// TestReporterObserve verifies counters, snapshots and publishing.
func TestReporterObserve(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var published []Snapshot
	r := newReporter("run-1", 4, zerolog.Nop(), func(s Snapshot) { published = append(published, s) }, clock.now)

	clock.advance(2 * time.Second)
	r.Observe(domain.Succeeded("/a.wav", "x"))
	clock.advance(2 * time.Second)
	r.Observe(domain.Failed("/b.wav", "bad"))

	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
	last := published[1]
	if last.Completed != 2 || last.Succeeded != 1 || last.Failed != 1 {
		t.Fatalf("snapshot = %+v", last)
	}
	if last.ETA != 4*time.Second {
		t.Fatalf("ETA = %v, want 4s", last.ETA)
	}
	if last.Percent != 50 {
		t.Fatalf("percent = %v, want 50", last.Percent)
	}
	if last.LastPath != "/b.wav" || last.LastStatus != domain.StatusFailed {
		t.Fatalf("last = %s %s", last.LastPath, last.LastStatus)
	}
	if last.Done {
		t.Fatal("run should not be done")
	}

	latest := r.Latest()
	if latest.Completed != 2 || latest.RunID != "run-1" {
		t.Fatalf("Latest() = %+v", latest)
	}
}

// TestReporterConcurrentObserve verifies counters stay exact under contention.
func TestReporterConcurrentObserve(t *testing.T) {
	r := NewReporter("run", 100, zerolog.Nop(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				r.Observe(domain.Failed("/f.wav", "x"))
				return
			}
			r.Observe(domain.Succeeded("/s.wav", "x"))
		}(i)
	}
	wg.Wait()

	s := r.Latest()
	if s.Completed != 100 || s.Succeeded != 75 || s.Failed != 25 || !s.Done {
		t.Fatalf("Latest() = %+v", s)
	}
}
