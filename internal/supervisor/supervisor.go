// Package supervisor builds and runs one end-to-end pipeline execution:
// a reader goroutine, N parser goroutines, graceful shutdown on the
// first worker failure, and the final (ResultsStore snapshot,
// SequenceErrors, total reads) handoff. Attaching a RunLog, RunRegistry,
// or MonitorServer is purely additive instrumentation layered on top —
// none of it changes the core return value or error semantics.
package supervisor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"barseq/internal/allowlists"
	"barseq/internal/blobpool"
	"barseq/internal/counters"
	"barseq/internal/format"
	"barseq/internal/monitor"
	"barseq/internal/parser"
	"barseq/internal/results"
	"barseq/internal/runlog"
	"barseq/internal/runregistry"
	"barseq/internal/streamer"
)

const defaultBlobSize = 512

// Config is the opaque input the core consumes. CLI parsing, CSV
// loading, and path resolution are all external collaborators' jobs —
// by the time a Config reaches Run, every field is already resolved.
type Config struct {
	// FastqPath is the input file, plain .fastq or block-gzip .fastq.gz.
	FastqPath string
	// Format is the already-compiled sequence format.
	Format *format.Format
	// AllowLists holds the already-loaded sample/counted tables.
	AllowLists *allowlists.AllowLists
	// MaxErrors carries the per-region Hamming ceilings and quality floor.
	MaxErrors *allowlists.MaxErrors
	// Threads is the number of parser workers; <=0 means GOMAXPROCS(0).
	Threads int
	// EnforceRandomDedup selects ResultsStore's Unique mode. Must be
	// true iff Format declares a random (n) token.
	EnforceRandomDedup bool

	// RunID, if non-empty, enables the ambient observability side
	// channel (RunLog/RunRegistry/MonitorServer) for this run.
	RunID string
	// LogLevel is one of logrus's standard level names; empty defaults
	// to info.
	LogLevel string
	// RedisAddr, RedisPassword, RedisDB configure RunRegistry; an empty
	// RedisAddr keeps it purely in-memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Registry, if supplied, is used directly instead of building a
	// fresh one from the Redis fields above. Monitor, if supplied,
	// receives every RunEvent via Publish; a nil Monitor publishes
	// nothing. Passing both lets a caller share one MonitorServer across
	// multiple runs.
	Registry *runregistry.Registry
	Monitor  *monitor.Server
	// ProgressInterval is how often a RunEvent is emitted mid-run; zero
	// disables progress events (start/finish/failure still fire).
	ProgressInterval time.Duration
}

// Outcome is the core's return value: the finished accumulator snapshot,
// the terminal QC counters, and the total records streamed.
type Outcome struct {
	Results    results.Snapshot
	Errors     counters.SequenceErrors
	TotalReads uint64
}

// Run builds every shared dependency, spawns the reader and parser
// pool, and blocks until they've all joined (or one failed and shutdown
// propagated). It never returns a partial Outcome on error.
func Run(ctx context.Context, cfg Config) (Outcome, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	mode := results.CountMode
	if cfg.EnforceRandomDedup {
		mode = results.UniqueMode
	}
	var store *results.Store
	if cfg.Format.HasSample && !cfg.AllowLists.HasSamples() {
		store = results.NewDynamic(mode)
	} else {
		store = results.New(mode, cfg.AllowLists.SampleKeys())
	}
	facade := &counters.Facade{}
	pool := blobpool.New(defaultBlobSize)
	strm := streamer.New(cfg.FastqPath, pool)

	var log *runlog.Logger
	var registry *runregistry.Registry
	observed := cfg.RunID != ""
	if observed {
		log = runlog.New(cfg.LogLevel, cfg.RunID)
		registry = cfg.Registry
		if registry == nil {
			registry = runregistry.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		log.Started(threads, cfg.Format.FormatString)
		_ = registry.Record(runregistry.Event{RunID: cfg.RunID, Stage: runregistry.StageStarted, Timestamp: time.Now()})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, threads+1)
	start := time.Now()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := strm.Run(runCtx); err != nil {
			errs <- err
			cancel()
		}
	}()

	p := &parser.Parser{
		Format:    cfg.Format,
		AllowList: cfg.AllowLists,
		MaxErrors: cfg.MaxErrors,
		Store:     store,
		Counters:  facade,
		Pool:      pool,
	}

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for blob := range strm.Queue {
				if err := p.Process(blob); err != nil {
					errs <- err
					cancel()
					return
				}
			}
		}()
	}

	var stopProgress chan struct{}
	if observed && cfg.ProgressInterval > 0 {
		stopProgress = make(chan struct{})
		go emitProgress(runCtx, cfg.RunID, strm, facade, log, registry, cfg.Monitor, cfg.ProgressInterval, stopProgress)
	}

	wg.Wait()
	if stopProgress != nil {
		close(stopProgress)
	}
	close(errs)

	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
	}

	snap := facade.Snapshot()
	outcome := Outcome{
		Results:    store.Snapshot(),
		Errors:     snap,
		TotalReads: strm.TotalReads(),
	}

	if observed {
		ev := runregistry.Event{
			RunID:     cfg.RunID,
			Timestamp: time.Now(),
			Counters:  toRegistryCounters(snap),
		}
		if firstErr != nil {
			ev.Stage = runregistry.StageFailed
			ev.Error = firstErr.Error()
			log.Failed(firstErr)
		} else {
			ev.Stage = runregistry.StageFinished
			log.Finished(time.Since(start).Seconds(), snap.Matched, snap.ConstantRegion, snap.SampleBarcode, snap.Barcode, snap.Duplicates, snap.LowQuality)
		}
		_ = registry.Record(ev)
		if cfg.Monitor != nil {
			cfg.Monitor.Publish(ev)
		}
	}

	if firstErr != nil {
		return Outcome{}, firstErr
	}
	return outcome, nil
}

func emitProgress(ctx context.Context, runID string, strm *streamer.Streamer, facade *counters.Facade, log *runlog.Logger, registry *runregistry.Registry, mon *monitor.Server, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reads := strm.TotalReads()
			log.Progress(reads, len(strm.Queue))
			ev := runregistry.Event{
				RunID:      runID,
				Stage:      runregistry.StageProgress,
				Timestamp:  time.Now(),
				Counters:   toRegistryCounters(facade.Snapshot()),
				QueueDepth: len(strm.Queue),
			}
			_ = registry.Record(ev)
			if mon != nil {
				mon.Publish(ev)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func toRegistryCounters(s counters.SequenceErrors) runregistry.Counters {
	return runregistry.Counters{
		Matched:        s.Matched,
		ConstantRegion: s.ConstantRegion,
		SampleBarcode:  s.SampleBarcode,
		Barcode:        s.Barcode,
		Duplicates:     s.Duplicates,
		LowQuality:     s.LowQuality,
	}
}
