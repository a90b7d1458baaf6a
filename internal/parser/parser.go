// Package parser implements the per-worker loop that turns one raw
// FASTQ blob into a resolved (sample, tuple, random) submission or a
// categorised rejection: format matching against the compiled regex,
// constant-region repair, per-region quality gating, and allow-list
// error correction for the sample and counted barcodes.
package parser

import (
	"strconv"
	"strings"

	"barseq/internal/allowlists"
	"barseq/internal/blobpool"
	"barseq/internal/counters"
	"barseq/internal/format"
	"barseq/internal/matcher"
	"barseq/internal/pipelineerr"
	"barseq/internal/rawread"
	"barseq/internal/results"
)

// Parser holds everything a worker needs to resolve one blob at a time.
// A single Parser is safe to share across goroutines only through its
// dependencies (Store and Counters are themselves concurrency-safe);
// Process itself holds no mutable state of its own.
type Parser struct {
	Format    *format.Format
	AllowList *allowlists.AllowLists
	MaxErrors *allowlists.MaxErrors
	Store     *results.Store
	Counters  *counters.Facade
	Pool      *blobpool.Pool
}

// Process resolves one blob fully: unpack, match (with one constant-
// region repair retry), quality gate, barcode/sample resolution, and
// submission. It returns a non-nil error only for genuinely fatal
// conditions (a malformed blob, or a submission against a sample key the
// Store never pre-populated, which would indicate Supervisor wiring is
// broken); every other rejection is counted and Process returns nil.
func (p *Parser) Process(blob []byte) error {
	defer p.Pool.Put(blob)

	read, err := rawread.Unpack(string(blob))
	if err != nil {
		return err
	}

	match := p.Format.Regex.FindStringSubmatch(read.Sequence)
	if match == nil {
		if read.FixConstantRegion(p.Format.ConstantSkeleton, p.MaxErrors.Constant) {
			match = p.Format.Regex.FindStringSubmatch(read.Sequence)
		}
		if match == nil {
			p.Counters.IncConstantRegion()
			return nil
		}
	}

	if p.MaxErrors.MinQuality > 0 {
		if rawread.LowQuality(read.Quality, p.MaxErrors.MinQuality, p.Format.RegionsString, 0) {
			p.Counters.IncLowQuality()
			return nil
		}
	}

	names := p.Format.Regex.SubexpNames()
	captures := make(map[string]string, len(names))
	for i, name := range names {
		if name != "" && i < len(match) {
			captures[name] = match[i]
		}
	}

	sampleKey := results.Sentinel
	if p.Format.HasSample {
		raw := captures["sample"]
		if p.AllowList.SampleKnown(raw) {
			sampleKey = raw
		} else {
			fixed, ok := matcher.FixError(raw, p.AllowList.SampleCandidates(), p.MaxErrors.Sample)
			if !ok {
				p.Counters.IncSampleBarcode()
				return nil
			}
			sampleKey = fixed
		}
	}

	tuple := make([]string, p.Format.BarcodeCount)
	for k := 1; k <= p.Format.BarcodeCount; k++ {
		raw := captures[barcodeName(k)]
		resolved := raw
		if !p.AllowList.CountedKnown(k-1, raw) {
			fixed, ok := matcher.FixError(raw, p.AllowList.CountedCandidates(k-1), p.MaxErrors.Barcode[k-1])
			if !ok {
				p.Counters.IncBarcode()
				return nil
			}
			resolved = fixed
		}
		tuple[k-1] = resolved
	}
	tupleKey := strings.Join(tuple, ",")

	var random string
	if p.Format.HasRandom {
		random = captures["random"]
	}

	newlyCounted, err := p.Store.AddCount(sampleKey, tupleKey, random)
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.Configuration, "submitting resolved read", err)
	}

	if newlyCounted {
		p.Counters.IncMatched()
	} else {
		p.Counters.IncDuplicates()
	}
	return nil
}

func barcodeName(k int) string {
	return "barcode" + strconv.Itoa(k)
}
