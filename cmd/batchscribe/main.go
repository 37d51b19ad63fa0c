package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/batchscribe/internal/batch"
	"github.com/obiente/translate/batchscribe/internal/config"
	"github.com/obiente/translate/batchscribe/internal/domain"
	"github.com/obiente/translate/batchscribe/internal/engine"
	serverhttp "github.com/obiente/translate/batchscribe/internal/http"
	"github.com/obiente/translate/batchscribe/internal/progress"
	"github.com/obiente/translate/batchscribe/internal/report"
	"github.com/obiente/translate/batchscribe/internal/ws"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func setupLogger(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(level); err == nil && level != "" {
		lvl = l
	}
	var out io.Writer = os.Stderr
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// parseFlags overlays command-line flags on the env-derived configuration.
func parseFlags(args []string, cfg *config.Config) error {
	fs := flag.NewFlagSet("batchscribe", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: batchscribe [flags] <input-dir>\n\n")
		fs.PrintDefaults()
	}

	exts := ""
	fs.StringVar(&cfg.Run.Root, "input", cfg.Run.Root, "directory containing media files")
	fs.StringVar(&exts, "ext", "", "comma separated extensions (default from BATCH_EXTENSIONS)")
	fs.BoolVar(&cfg.Run.Recursive, "recursive", cfg.Run.Recursive, "walk sub-directories")
	fs.IntVar(&cfg.Run.MaxWorkers, "workers", cfg.Run.MaxWorkers, "concurrent transcriptions")
	fs.IntVar(&cfg.Run.FlushBatchSize, "flush", cfg.Run.FlushBatchSize, "rows buffered before each report flush")
	fs.StringVar(&cfg.Run.ReportPath, "report", cfg.Run.ReportPath, "CSV report path (appended)")
	fs.BoolVar(&cfg.Run.Resume, "resume", cfg.Run.Resume, "skip files already recorded as success in the report")

	fs.StringVar(&cfg.Engine.Kind, "engine", cfg.Engine.Kind, "transcription engine: local or remote")
	fs.StringVar(&cfg.Engine.Language, "language", cfg.Engine.Language, "spoken language code or auto")
	fs.StringVar(&cfg.Engine.ModelPath, "model-path", cfg.Engine.ModelPath, "whisper.cpp model file (local engine)")
	fs.IntVar(&cfg.Engine.Threads, "threads", cfg.Engine.Threads, "whisper.cpp threads (local engine)")
	fs.StringVar(&cfg.Engine.Model, "model", cfg.Engine.Model, "remote model name")
	fs.StringVar(&cfg.Engine.BaseURL, "base-url", cfg.Engine.BaseURL, "remote API base URL")
	fs.IntVar(&cfg.Engine.RatePerSecond, "rate", cfg.Engine.RatePerSecond, "remote requests per second, 0 disables")
	fs.IntVar(&cfg.Engine.MaxAttempts, "retries", cfg.Engine.MaxAttempts, "remote attempts per file")
	fs.DurationVar(&cfg.Engine.BaseDelay, "backoff", cfg.Engine.BaseDelay, "initial retry delay, doubled per attempt")

	fs.StringVar(&cfg.ReportDSN, "db", cfg.ReportDSN, "postgres DSN to mirror the report into")
	fs.StringVar(&cfg.ProgressAddr, "progress-addr", cfg.ProgressAddr, "serve live progress on this address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or console")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if exts != "" {
		cfg.Run.Extensions = config.SplitList(exts)
	}
	if fs.NArg() > 0 {
		cfg.Run.Root = fs.Arg(0)
	}
	return nil
}

func openWriter(ctx context.Context, cfg config.Config) (report.Writer, error) {
	csvw, err := report.OpenCSV(cfg.Run.ReportPath)
	if err != nil {
		return nil, err
	}
	if cfg.ReportDSN == "" {
		return csvw, nil
	}
	pg, err := report.OpenPostgres(ctx, cfg.ReportDSN, cfg.ReportTable, cfg.Run.ID)
	if err != nil {
		csvw.Close()
		return nil, err
	}
	return report.NewMultiWriter(csvw, pg), nil
}

// progressFeed holds the reporter once discovery has counted the jobs.
type progressFeed struct {
	runID    string
	reporter atomic.Pointer[progress.Reporter]
}

func (f *progressFeed) current() progress.Snapshot {
	if r := f.reporter.Load(); r != nil {
		return r.Latest()
	}
	return progress.Snapshot{RunID: f.runID}
}

func startProgressServer(addr string, feed *progressFeed) (*ws.Hub, *http.Server) {
	hub := ws.NewHub(feed.current, log.Logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           serverhttp.NewRouter(feed.current, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("progress server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("progress server failed")
		}
	}()
	return hub, srv
}

func printSummary(w io.Writer, sum batch.Summary, reportPath string) {
	fmt.Fprintf(w, "\nrun %s (%s) finished in %s\n", sum.RunID, sum.Engine, sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  files:       %d\n", sum.Total)
	fmt.Fprintf(w, "  succeeded:   %d\n", sum.Succeeded)
	fmt.Fprintf(w, "  failed:      %d\n", sum.Failed)
	if sum.Interrupted > 0 {
		fmt.Fprintf(w, "  interrupted: %d\n", sum.Interrupted)
	}
	if sum.Resumed > 0 {
		fmt.Fprintf(w, "  resumed:     %d already done\n", sum.Resumed)
	}
	fmt.Fprintf(w, "  report:      %s\n", reportPath)
	if len(sum.Failures) > 0 {
		fmt.Fprintln(w, "\nfailed files:")
		for _, o := range sum.Failures {
			fmt.Fprintf(w, "  %s: %s\n", o.Path, o.Error)
		}
	}
}

func run(args []string, stdout io.Writer) int {
	if err := config.LoadDefaultEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		return batch.ExitFatal
	}
	cfg := config.Load()
	if err := parseFlags(args, &cfg); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return batch.ExitOK
		}
		return batch.ExitFatal
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return batch.ExitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			// a second signal terminates immediately
			stop()
			log.Warn().Msg("interrupt received, finishing in-flight files")
		case <-runDone:
		}
	}()

	eng, err := engine.New(cfg.Engine, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("engine init failed")
		return batch.ExitFatal
	}
	defer eng.Close()

	// the writer outlives ctx so the final flush still lands after an interrupt
	writer, err := openWriter(context.Background(), cfg)
	if err != nil {
		log.Error().Err(err).Msg("open report failed")
		return batch.ExitFatal
	}
	defer writer.Close()

	feed := &progressFeed{runID: cfg.Run.ID}
	var hub *ws.Hub
	if cfg.ProgressAddr != "" {
		var srv *http.Server
		hub, srv = startProgressServer(cfg.ProgressAddr, feed)
		defer func() {
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	deps := batch.Deps{
		Writer: writer,
		Log:    log.Logger,
		OnDiscovered: func(total int) func(domain.Outcome) {
			var publish func(progress.Snapshot)
			if hub != nil {
				publish = hub.Publish
			}
			r := progress.NewReporter(cfg.Run.ID, total, log.Logger, publish)
			feed.reporter.Store(r)
			return r.Observe
		},
	}

	sum, err := batch.Run(ctx, cfg.Run, eng, deps)
	interrupted := ctx.Err() != nil
	if err != nil {
		log.Error().Err(err).Msg("batch failed")
	}
	printSummary(stdout, sum, cfg.Run.ReportPath)
	return batch.ExitCode(err, interrupted)
}
