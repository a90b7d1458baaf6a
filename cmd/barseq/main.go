// barseq counts DNA-encoded library barcodes out of a FASTQ file against
// a declared sequence format and optional sample/ligand allow-lists.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"barseq/internal/allowlists"
	"barseq/internal/config"
	"barseq/internal/monitor"
	"barseq/internal/runregistry"
	"barseq/internal/supervisor"
)

const defaultMonitorPort = 0 // 0 disables the monitor HTTP server

func main() {
	fastqPath := flag.String("fastq", "", "input FASTQ file (.fastq, .fastq.gz, or .fastq.zst)")
	formatPath := flag.String("format", "", "path to the sequence format declaration")
	samplesPath := flag.String("samples", "", "sample allow-list CSV (empty accepts any decoded sample)")
	countedPath := flag.String("counted", "", "counted barcode allow-list CSV (empty accepts any decoded barcode)")
	threads := flag.Int("threads", 0, "parser worker count (0 = runtime.GOMAXPROCS(0))")
	maxConstant := flag.Int("max-constant-errors", -1, "max Hamming distance for the constant skeleton (-1 = 20% default)")
	maxSample := flag.Int("max-sample-errors", -1, "max Hamming distance for the sample barcode (-1 = 20% default)")
	maxBarcode := flag.String("max-barcode-errors", "", "comma-separated max Hamming distance per counted barcode (empty = 20% default for each)")
	minQuality := flag.Float64("min-quality", 0, "minimum mean Phred score per non-constant region (0 disables quality gating)")
	dedup := flag.Bool("dedup", false, "require the format's random/UMI region and report unique-molecule counts instead of raw counts")
	out := flag.String("out", "", "CSV output path (empty writes to stdout)")

	runID := flag.String("run-id", "", "enables RunLog/RunRegistry/MonitorServer instrumentation for this run")
	logLevel := flag.String("log-level", "info", "logrus level for run instrumentation")
	redisAddr := flag.String("redis", "", "Redis address for the run registry (empty keeps it in-memory)")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisDB := flag.Int("redis-db", 0, "Redis database number")
	monitorPort := flag.Int("monitor-port", defaultMonitorPort, "serve the monitor HTTP/WebSocket API on this port (0 disables it)")
	progressInterval := flag.Duration("progress-interval", 5*time.Second, "how often a progress RunEvent is emitted")
	flag.Parse()

	if *fastqPath == "" || *formatPath == "" {
		log.Fatal("-fastq and -format are required")
	}

	f, err := config.LoadFormat(*formatPath)
	if err != nil {
		log.Fatalf("loading format: %v", err)
	}

	samples, err := config.LoadSampleAllowList(*samplesPath)
	if err != nil {
		log.Fatalf("loading sample allow-list: %v", err)
	}
	counted, err := config.LoadCountedAllowList(*countedPath, f.BarcodeCount)
	if err != nil {
		log.Fatalf("loading counted allow-list: %v", err)
	}
	al := allowlists.New(samples, counted)

	constantLen, sampleLen, barcodeLens := config.RegionWidths(f)
	barcodeOverrides, err := parseBarcodeOverrides(*maxBarcode, len(barcodeLens))
	if err != nil {
		log.Fatalf("parsing -max-barcode-errors: %v", err)
	}
	me, err := allowlists.NewMaxErrors(constantLen, sampleLen, barcodeLens, intOrNil(*maxConstant), intOrNil(*maxSample), barcodeOverrides, *minQuality)
	if err != nil {
		log.Fatalf("deriving error budgets: %v", err)
	}

	if *dedup && !f.HasRandom {
		log.Fatal("-dedup requires the format to declare a random/UMI (n) region")
	}

	var mon *monitor.Server
	var registry *runregistry.Registry
	if *runID != "" {
		registry = runregistry.New(*redisAddr, *redisPassword, *redisDB)
		if *monitorPort > 0 {
			mon = monitor.New(registry)
			go func() {
				addr := fmt.Sprintf(":%d", *monitorPort)
				log.Printf("monitor API listening on %s", addr)
				if err := http.ListenAndServe(addr, mon.Handler()); err != nil && err != http.ErrServerClosed {
					log.Printf("monitor server stopped: %v", err)
				}
			}()
		}
	}

	cfg := supervisor.Config{
		FastqPath:          *fastqPath,
		Format:             f,
		AllowLists:         al,
		MaxErrors:          me,
		Threads:            *threads,
		EnforceRandomDedup: *dedup,
		RunID:              *runID,
		LogLevel:           *logLevel,
		RedisAddr:          *redisAddr,
		RedisPassword:      *redisPassword,
		RedisDB:            *redisDB,
		Registry:           registry,
		Monitor:            mon,
		ProgressInterval:   *progressInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("received interrupt, cancelling run")
		cancel()
	}()

	outcome, err := supervisor.Run(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}

	log.Printf("processed %d reads: matched=%d constant_region=%d sample_barcode=%d barcode=%d duplicates=%d low_quality=%d",
		outcome.TotalReads, outcome.Errors.Matched, outcome.Errors.ConstantRegion, outcome.Errors.SampleBarcode,
		outcome.Errors.Barcode, outcome.Errors.Duplicates, outcome.Errors.LowQuality)

	if err := renderCSV(*out, outcome, al); err != nil {
		log.Fatalf("writing results: %v", err)
	}
}

func intOrNil(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

func parseBarcodeOverrides(raw string, count int) ([]*int, error) {
	if raw == "" {
		return nil, nil
	}
	fields := strings.Split(raw, ",")
	if len(fields) != count {
		return nil, fmt.Errorf("expected %d comma-separated values, got %d", count, len(fields))
	}
	out := make([]*int, count)
	for i, field := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", field)
		}
		out[i] = &n
	}
	return out, nil
}

// renderCSV writes one row per (sample, tuple) bucket: sample_id (or the
// raw DNA if no sample allow-list resolved it), each counted barcode's
// ligand ID (or its raw DNA), and the reported count. Mapping DNA back
// to a human identifier is this CLI's job, not the core pipeline's.
func renderCSV(path string, outcome supervisor.Outcome, al *allowlists.AllowLists) error {
	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"sample", "barcodes", "count"}); err != nil {
		return err
	}
	for sampleKey, tuples := range outcome.Results.Buckets {
		sampleLabel := resolveSample(al, sampleKey)
		for tupleKey, count := range tuples {
			if err := cw.Write([]string{sampleLabel, resolveTuple(al, tupleKey), strconv.FormatUint(uint64(count), 10)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveSample(al *allowlists.AllowLists, dna string) string {
	if label, ok := al.Samples[dna]; ok {
		return label
	}
	return dna
}

func resolveTuple(al *allowlists.AllowLists, tupleKey string) string {
	if len(al.Counted) == 0 {
		return tupleKey
	}
	parts := strings.Split(tupleKey, ",")
	labels := make([]string, len(parts))
	for i, dna := range parts {
		if i < len(al.Counted) {
			if label, ok := al.Counted[i][dna]; ok {
				labels[i] = label
				continue
			}
		}
		labels[i] = dna
	}
	return strings.Join(labels, ",")
}
