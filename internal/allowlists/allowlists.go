// Package allowlists holds pre-loaded sample/barcode identity tables and
// the per-region error budgets derived from the compiled format. Loading
// the backing CSV files is an external collaborator's job — this package
// starts from already-parsed rows.
package allowlists

import "barseq/internal/pipelineerr"

// AllowLists holds the decoded sample and counted-barcode tables. Either
// table may be empty, meaning "accept any decoded barcode verbatim".
type AllowLists struct {
	Samples idTable
	Counted []idTable

	sampleSeqs  map[string]struct{}
	countedSeqs []map[string]struct{}
}

// idTable is a plain DNA -> identifier lookup; named distinctly from
// map[string]string only to keep the field docs readable at call sites.
type idTable = map[string]string

// New builds an AllowLists from already-loaded rows. counted must have
// exactly barcodeCount entries, one set per 1-based position 1..K — the
// caller (the CSV loader) is responsible for having rejected a file with
// a missing position before constructing this.
func New(samples map[string]string, counted []map[string]string) *AllowLists {
	al := &AllowLists{
		Samples:     samples,
		Counted:     counted,
		sampleSeqs:  make(map[string]struct{}, len(samples)),
		countedSeqs: make([]map[string]struct{}, len(counted)),
	}
	for dna := range samples {
		al.sampleSeqs[dna] = struct{}{}
	}
	for i, table := range counted {
		set := make(map[string]struct{}, len(table))
		for dna := range table {
			set[dna] = struct{}{}
		}
		al.countedSeqs[i] = set
	}
	return al
}

// SampleKnown reports whether dna is in the sample allow-list. An empty
// allow-list (no samples loaded at all) means "accept any" and this
// always returns true in that case.
func (al *AllowLists) SampleKnown(dna string) bool {
	if len(al.sampleSeqs) == 0 {
		return true
	}
	_, ok := al.sampleSeqs[dna]
	return ok
}

// SampleCandidates returns every DNA sequence in the sample allow-list,
// for use as the candidate set passed to the approximate matcher.
func (al *AllowLists) SampleCandidates() []string {
	out := make([]string, 0, len(al.Samples))
	for dna := range al.Samples {
		out = append(out, dna)
	}
	return out
}

// CountedKnown reports whether dna is in the k-th (0-based) counted
// barcode allow-list. An empty table at that position means "accept
// any".
func (al *AllowLists) CountedKnown(k int, dna string) bool {
	if k >= len(al.countedSeqs) || len(al.countedSeqs[k]) == 0 {
		return true
	}
	_, ok := al.countedSeqs[k][dna]
	return ok
}

// CountedCandidates returns every DNA sequence in the k-th (0-based)
// counted barcode allow-list.
func (al *AllowLists) CountedCandidates(k int) []string {
	if k >= len(al.Counted) {
		return nil
	}
	out := make([]string, 0, len(al.Counted[k]))
	for dna := range al.Counted[k] {
		out = append(out, dna)
	}
	return out
}

// HasSamples reports whether a non-empty sample allow-list was loaded.
func (al *AllowLists) HasSamples() bool { return len(al.sampleSeqs) > 0 }

// SampleKeys returns every DNA sequence in the sample allow-list, for
// pre-populating a closed-key-space ResultsStore.
func (al *AllowLists) SampleKeys() []string {
	out := make([]string, 0, len(al.Samples))
	for dna := range al.Samples {
		out = append(out, dna)
	}
	return out
}

// MaxErrors carries the per-region Hamming ceilings and the mean-quality
// floor applied to every non-constant region.
type MaxErrors struct {
	Constant   int
	Sample     int
	Barcode    []int
	MinQuality float64
}

// NewMaxErrors derives defaults (floor(length/5), i.e. 20%) for any of
// constant, sample, or per-barcode ceilings left nil by the caller.
func NewMaxErrors(constantLen, sampleLen int, barcodeLens []int, constant, sample *int, barcode []*int, minQuality float64) (*MaxErrors, error) {
	if barcode != nil && len(barcode) != len(barcodeLens) {
		return nil, pipelineerr.New(pipelineerr.Configuration, "barcode error-override count does not match barcode count")
	}

	me := &MaxErrors{
		Constant:   defaultOrOverride(constantLen, constant),
		Sample:     defaultOrOverride(sampleLen, sample),
		Barcode:    make([]int, len(barcodeLens)),
		MinQuality: minQuality,
	}
	for i, length := range barcodeLens {
		var override *int
		if barcode != nil {
			override = barcode[i]
		}
		me.Barcode[i] = defaultOrOverride(length, override)
	}
	return me, nil
}

func defaultOrOverride(length int, override *int) int {
	if override != nil {
		return *override
	}
	return length / 5
}
