// Package runlog wraps logrus with the handful of lifecycle events the
// pipeline ever logs. SequenceParser and ApproximateMatcher never touch
// this package on the per-read hot path — only the Supervisor emits
// lines here (run start, progress, finish, and fatal failure), matching
// the counted-not-logged design of per-read rejections. The
// FastqStreamer does not log.
package runlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logger a Supervisor run is built around.
type Logger struct {
	*logrus.Logger
	runID string
}

// New builds a Logger at the given level (one of logrus's standard level
// names; an unrecognised name falls back to info) writing JSON lines to
// stderr, tagged with runID on every entry.
func New(level, runID string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	return &Logger{Logger: l, runID: runID}
}

func (l *Logger) entry() *logrus.Entry {
	return l.WithField("run_id", l.runID)
}

// Started logs a run beginning with its thread count and format summary.
func (l *Logger) Started(threads int, formatSummary string) {
	l.entry().WithFields(logrus.Fields{
		"threads": threads,
		"format":  formatSummary,
	}).Info("run started")
}

// Progress logs an intermediate counters snapshot at debug level.
func (l *Logger) Progress(reads uint64, queueDepth int) {
	l.entry().WithFields(logrus.Fields{
		"reads_so_far": reads,
		"queue_depth":  queueDepth,
	}).Debug("run progress")
}

// Finished logs a successful run's elapsed time and final counters.
func (l *Logger) Finished(elapsedSeconds float64, matched, constantRegion, sampleBarcode, barcode, duplicates, lowQuality uint32) {
	l.entry().WithFields(logrus.Fields{
		"elapsed_seconds": elapsedSeconds,
		"matched":         matched,
		"constant_region": constantRegion,
		"sample_barcode":  sampleBarcode,
		"barcode":         barcode,
		"duplicates":      duplicates,
		"low_quality":     lowQuality,
	}).Info("run finished")
}

// Failed logs a worker's fatal cause before the Supervisor propagates it.
func (l *Logger) Failed(err error) {
	l.entry().WithError(err).Error("run failed")
}
