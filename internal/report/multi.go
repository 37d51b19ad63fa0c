package report

import (
	"errors"
	"sync"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

// MultiWriter fans each batch out to every writer in order. The first error stops the batch.
// When the same batch is written again after a failure, writers that already took it only
// receive the rows they have not seen.
type MultiWriter struct {
	mu      sync.Mutex
	writers []Writer
	// taken[i] is how many leading rows of the pending batch writer i already holds.
	taken []int
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers, taken: make([]int, len(writers))}
}

func (m *MultiWriter) Write(rows []domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.writers {
		if m.taken[i] >= len(rows) {
			continue
		}
		if err := w.Write(rows[m.taken[i]:]); err != nil {
			return err
		}
		m.taken[i] = len(rows)
	}
	clear(m.taken)
	return nil
}

// Close closes every writer and joins their errors.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
