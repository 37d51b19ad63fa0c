package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/obiente/translate/batchscribe/internal/domain"
	"github.com/obiente/translate/batchscribe/internal/engine"
)

// ErrEmptyTranscript is recorded when an engine succeeds but returns no text.
var ErrEmptyTranscript = errors.New("empty transcript")

const maxErrorLen = 1024

// Scheduler runs jobs through an engine with a fixed number of workers.
type Scheduler struct {
	eng     engine.Engine
	workers int
	log     zerolog.Logger

	interrupted atomic.Int64
}

func NewScheduler(eng engine.Engine, workers int, log zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		eng:     eng,
		workers: workers,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Interrupted returns how many started jobs were cut short by cancellation.
func (s *Scheduler) Interrupted() int {
	return int(s.interrupted.Load())
}

// Run dispatches jobs in order and hands every outcome to sink from a single goroutine.
// When ctx ends no further jobs are dispatched and in-flight jobs are allowed to finish.
// A sink error stops dispatch and is returned.
func (s *Scheduler) Run(ctx context.Context, jobs []domain.Job, sink func(domain.Outcome) error) error {
	if len(jobs) == 0 {
		return nil
	}
	workers := min(s.workers, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	jobsCh := make(chan domain.Job)
	outcomes := make(chan domain.Outcome, workers)
	sinkDone := make(chan struct{})

	g.Go(func() error {
		defer close(jobsCh)
		for _, job := range jobs {
			if gctx.Err() != nil {
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case jobsCh <- job:
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		worker := i
		g.Go(func() error {
			defer wg.Done()
			for job := range jobsCh {
				if gctx.Err() != nil {
					// handed over just as the run was cancelled
					continue
				}
				o, ok := s.process(gctx, worker, job)
				if !ok {
					continue
				}
				select {
				case outcomes <- o:
				case <-sinkDone:
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	g.Go(func() error {
		defer close(sinkDone)
		for o := range outcomes {
			if err := sink(o); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

// process runs one job. ok is false when the job was interrupted and has no outcome.
func (s *Scheduler) process(ctx context.Context, worker int, job domain.Job) (domain.Outcome, bool) {
	log := s.log.With().Int("worker", worker).Int("index", job.Index).Str("path", job.Path).Logger()
	log.Debug().Msg("transcribing")

	text, err := s.eng.Transcribe(ctx, job.Path)
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			s.interrupted.Add(1)
			log.Warn().Err(err).Msg("interrupted")
			return domain.Outcome{}, false
		}
		log.Error().Err(err).Msg("transcription failed")
		return domain.Failed(job.Path, truncate(err.Error(), maxErrorLen)), true
	}
	if strings.TrimSpace(text) == "" {
		log.Warn().Msg("engine returned no text")
		return domain.Failed(job.Path, ErrEmptyTranscript.Error()), true
	}
	log.Info().Int("chars", utf8.RuneCountInString(text)).Msg("transcribed")
	return domain.Succeeded(job.Path, text), true
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
