// Package counters holds the shared QC tallies every pipeline stage
// increments as reads move from the queue to the results store.
package counters

import "sync/atomic"

// SequenceErrors is the terminal, read-only snapshot handed back to the
// caller once a run finishes. All six fields are monotonic counts.
type SequenceErrors struct {
	Matched        uint32
	ConstantRegion uint32
	SampleBarcode  uint32
	Barcode        uint32
	Duplicates     uint32
	LowQuality     uint32
}

// Facade is the live, concurrently-updated form of SequenceErrors. Every
// increment uses relaxed fetch-add; no ordering is implied between
// categories, only within a single counter.
type Facade struct {
	matched        atomic.Uint32
	constantRegion atomic.Uint32
	sampleBarcode  atomic.Uint32
	barcode        atomic.Uint32
	duplicates     atomic.Uint32
	lowQuality     atomic.Uint32
}

func (f *Facade) IncMatched()        { f.matched.Add(1) }
func (f *Facade) IncConstantRegion() { f.constantRegion.Add(1) }
func (f *Facade) IncSampleBarcode()  { f.sampleBarcode.Add(1) }
func (f *Facade) IncBarcode()        { f.barcode.Add(1) }
func (f *Facade) IncDuplicates()     { f.duplicates.Add(1) }
func (f *Facade) IncLowQuality()     { f.lowQuality.Add(1) }

// Snapshot reads all six counters. It is safe to call concurrently with
// any Inc* method; individual fields may not reflect a single instant,
// matching the relaxed-ordering contract in the concurrency model.
func (f *Facade) Snapshot() SequenceErrors {
	return SequenceErrors{
		Matched:        f.matched.Load(),
		ConstantRegion: f.constantRegion.Load(),
		SampleBarcode:  f.sampleBarcode.Load(),
		Barcode:        f.barcode.Load(),
		Duplicates:     f.duplicates.Load(),
		LowQuality:     f.lowQuality.Load(),
	}
}
