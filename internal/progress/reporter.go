// Package progress tracks completed jobs and estimates the remaining time.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID      string        `json:"runId"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Elapsed    time.Duration `json:"elapsedNs"`
	ETA        time.Duration `json:"etaNs"`
	Percent    float64       `json:"percent"`
	LastPath   string        `json:"lastPath,omitempty"`
	LastStatus domain.Status `json:"lastStatus,omitempty"`
	Done       bool          `json:"done"`
}

// Reporter counts outcomes. It is informational only and never fails the run.
type Reporter struct {
	runID   string
	total   int
	start   time.Time
	now     func() time.Time
	log     zerolog.Logger
	publish func(Snapshot)

	completed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	latest Snapshot
}

func NewReporter(runID string, total int, log zerolog.Logger, publish func(Snapshot)) *Reporter {
	return newReporter(runID, total, log, publish, time.Now)
}

func newReporter(runID string, total int, log zerolog.Logger, publish func(Snapshot), now func() time.Time) *Reporter {
	r := &Reporter{
		runID:   runID,
		total:   total,
		start:   now(),
		now:     now,
		log:     log.With().Str("component", "progress").Logger(),
		publish: publish,
	}
	r.latest = Snapshot{RunID: runID, Total: total, Done: total == 0}
	return r
}

// Observe records one finished job and publishes a fresh snapshot.
func (r *Reporter) Observe(o domain.Outcome) {
	if o.Status == domain.StatusSuccess {
		r.succeeded.Add(1)
	} else {
		r.failed.Add(1)
	}
	completed := int(r.completed.Add(1))

	snap := r.snapshot(completed)
	snap.LastPath = o.Path
	snap.LastStatus = o.Status

	r.mu.Lock()
	// concurrent observers may finish out of order; keep the most advanced view
	if snap.Completed >= r.latest.Completed {
		r.latest = snap
	}
	r.mu.Unlock()

	r.log.Info().
		Int("completed", snap.Completed).
		Int("total", snap.Total).
		Str("path", o.Path).
		Str("status", string(o.Status)).
		Dur("eta", snap.ETA).
		Msg("progress")

	if r.publish != nil {
		r.publish(snap)
	}
}

// Latest returns the most recent snapshot.
func (r *Reporter) Latest() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.latest
	s.Elapsed = r.now().Sub(r.start)
	s.Succeeded = int(r.succeeded.Load())
	s.Failed = int(r.failed.Load())
	return s
}

func (r *Reporter) snapshot(completed int) Snapshot {
	elapsed := r.now().Sub(r.start)
	s := Snapshot{
		RunID:     r.runID,
		Total:     r.total,
		Completed: completed,
		Succeeded: int(r.succeeded.Load()),
		Failed:    int(r.failed.Load()),
		Elapsed:   elapsed,
		ETA:       ETA(elapsed, completed, r.total),
		Done:      completed >= r.total,
	}
	if r.total > 0 {
		s.Percent = float64(completed) * 100 / float64(r.total)
	}
	return s
}

// ETA extrapolates the mean time per job over the remaining jobs.
func ETA(elapsed time.Duration, completed, total int) time.Duration {
	if completed <= 0 || completed >= total {
		return 0
	}
	per := elapsed / time.Duration(completed)
	return per * time.Duration(total-completed)
}
