// Package report collects per-file outcomes and persists them in batches.
package report

import (
	"errors"
	"fmt"
	"sync"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

// ErrInvalidOutcome is returned for outcomes whose status and fields disagree.
var ErrInvalidOutcome = errors.New("invalid outcome")

// Writer persists a batch of rows. A returned error is fatal for the run.
type Writer interface {
	Write(rows []domain.Outcome) error
	Close() error
}

// Aggregator buffers outcomes and flushes them to a Writer every batchSize rows.
// Add and Flush are safe for concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	w         Writer
	batchSize int
	buf       []domain.Outcome

	succeeded int
	failed    int
	written   int
}

func NewAggregator(w Writer, batchSize int) *Aggregator {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Aggregator{w: w, batchSize: batchSize, buf: make([]domain.Outcome, 0, batchSize)}
}

// Add records one outcome, flushing when the buffer is full.
func (a *Aggregator) Add(o domain.Outcome) error {
	if !o.Valid() {
		return fmt.Errorf("%w: %q status=%s", ErrInvalidOutcome, o.Path, o.Status)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf = append(a.buf, o)
	if o.Status == domain.StatusSuccess {
		a.succeeded++
	} else {
		a.failed++
	}
	if len(a.buf) >= a.batchSize {
		return a.flushLocked()
	}
	return nil
}

// Flush writes any buffered outcomes. On error the buffer is kept; a retried Flush hands
// the Writer the same rows again, so only call it again with a Writer that tolerates that.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

func (a *Aggregator) flushLocked() error {
	if len(a.buf) == 0 {
		return nil
	}
	if err := a.w.Write(a.buf); err != nil {
		return fmt.Errorf("flush %d rows: %w", len(a.buf), err)
	}
	a.written += len(a.buf)
	a.buf = make([]domain.Outcome, 0, a.batchSize)
	return nil
}

// Counts returns how many successes and failures have been added.
func (a *Aggregator) Counts() (succeeded, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.succeeded, a.failed
}

// Written returns how many rows have reached the Writer.
func (a *Aggregator) Written() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}
