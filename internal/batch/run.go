// Package batch discovers media files, transcribes them concurrently and records
// one report row per completed file.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/discovery"
	"github.com/obiente/translate/batchscribe/internal/domain"
	"github.com/obiente/translate/batchscribe/internal/engine"
	"github.com/obiente/translate/batchscribe/internal/report"
)

const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitInterrupted = 130
)

// Deps are the collaborators of one run.
type Deps struct {
	Writer report.Writer
	Log    zerolog.Logger
	// OnDiscovered is called with the job count before work starts. The returned
	// func, if any, observes every recorded outcome.
	OnDiscovered func(total int) func(domain.Outcome)
}

// Summary describes a finished run.
type Summary struct {
	RunID       string           `json:"runId"`
	Engine      string           `json:"engine"`
	Total       int              `json:"total"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Interrupted int              `json:"interrupted"`
	Resumed     int              `json:"resumed"` // successes already in the report
	Elapsed     time.Duration    `json:"elapsedNs"`
	Failures    []domain.Outcome `json:"failures,omitempty"`
}

// Run executes one batch: discovery, concurrent transcription, incremental flushing and
// a final flush. Interrupted jobs are reported in Summary.Interrupted and have no row.
func Run(ctx context.Context, run domain.BatchRun, eng engine.Engine, deps Deps) (Summary, error) {
	start := time.Now()
	log := deps.Log.With().Str("run", run.ID).Logger()
	sum := Summary{RunID: run.ID, Engine: eng.Name()}

	var exclude map[string]struct{}
	if run.Resume {
		done, err := report.CompletedPaths(run.ReportPath)
		if err != nil {
			return sum, fmt.Errorf("resume: %w", err)
		}
		exclude = done
		sum.Resumed = len(done)
		log.Info().Int("completed", len(done)).Str("report", run.ReportPath).Msg("resuming, skipping files already transcribed")
	}

	jobs, err := discovery.Discover(run.Root, discovery.Options{
		Extensions: run.Extensions,
		Recursive:  run.Recursive,
		Exclude:    exclude,
	})
	if err != nil {
		return sum, err
	}
	sum.Total = len(jobs)

	var observe func(domain.Outcome)
	if deps.OnDiscovered != nil {
		observe = deps.OnDiscovered(len(jobs))
	}
	log.Info().
		Int("files", len(jobs)).
		Int("resumed", sum.Resumed).
		Int("workers", run.MaxWorkers).
		Str("engine", eng.Name()).
		Msg("starting batch")
	if len(jobs) == 0 {
		log.Warn().Str("root", run.Root).Msg("no matching files")
		sum.Elapsed = time.Since(start)
		return sum, nil
	}

	agg := report.NewAggregator(deps.Writer, run.FlushBatchSize)
	sched := NewScheduler(eng, run.MaxWorkers, deps.Log)

	runErr := sched.Run(ctx, jobs, func(o domain.Outcome) error {
		if err := agg.Add(o); err != nil {
			return err
		}
		if o.Status == domain.StatusFailed {
			sum.Failures = append(sum.Failures, o)
		}
		if observe != nil {
			observe(o)
		}
		return nil
	})
	// After a sink error the failed batch may already be partly persisted, so it is
	// not written again.
	var flushErr error
	if runErr == nil {
		flushErr = agg.Flush()
	}

	sum.Succeeded, sum.Failed = agg.Counts()
	sum.Interrupted = sum.Total - sum.Succeeded - sum.Failed
	sum.Elapsed = time.Since(start)

	if runErr != nil {
		return sum, fmt.Errorf("record outcomes: %w", runErr)
	}
	if flushErr != nil {
		return sum, fmt.Errorf("final flush: %w", flushErr)
	}
	log.Info().
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("interrupted", sum.Interrupted).
		Dur("elapsed", sum.Elapsed).
		Msg("batch finished")
	return sum, nil
}

// ExitCode maps a run result to the process exit status.
func ExitCode(err error, interrupted bool) int {
	switch {
	case err != nil:
		return ExitFatal
	case interrupted:
		return ExitInterrupted
	default:
		return ExitOK
	}
}
