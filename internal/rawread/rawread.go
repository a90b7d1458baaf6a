// Package rawread models a single four-line FASTQ record and the two
// repair passes performed on it before it can be matched: constant-region
// overlay repair and per-region quality gating.
package rawread

import (
	"strings"

	"barseq/internal/matcher"
	"barseq/internal/pipelineerr"
)

// RawRead is one unpacked FASTQ record.
type RawRead struct {
	Description string
	Sequence    string
	Plus        string
	Quality     string
}

// Unpack splits a blob assembled from four newline-joined FASTQ lines
// into its fields. It is an error for the blob to contain anything other
// than exactly four lines.
func Unpack(blob string) (*RawRead, error) {
	lines := strings.Split(blob, "\n")
	if len(lines) != 4 {
		return nil, pipelineerr.New(pipelineerr.FormatViolation, "FASTQ record does not have exactly four lines")
	}
	return &RawRead{
		Description: lines[0],
		Sequence:    lines[1],
		Plus:        lines[2],
		Quality:     lines[3],
	}, nil
}

// QualityScores decodes the Phred+33 quality string into integer scores.
func (r *RawRead) QualityScores() []int {
	scores := make([]int, len(r.Quality))
	for i := 0; i < len(r.Quality); i++ {
		scores[i] = int(r.Quality[i]) - 33
	}
	return scores
}

// Validate runs the first-record self-test: the description line must
// not look like a sequence, and the sequence line must (over half its
// characters fall in A/C/G/T/N).
func (r *RawRead) Validate() error {
	if len(r.Description) == 0 || len(r.Sequence) == 0 || len(r.Plus) == 0 || len(r.Quality) == 0 {
		return pipelineerr.New(pipelineerr.FormatViolation, "FASTQ record has an empty field")
	}
	if len(r.Sequence) != len(r.Quality) {
		return pipelineerr.New(pipelineerr.FormatViolation, "sequence and quality lengths differ")
	}
	if isSequenceLike(r.Description) {
		return pipelineerr.New(pipelineerr.FormatViolation, "first record's description line looks like a sequence")
	}
	if !isSequenceLike(r.Sequence) {
		return pipelineerr.New(pipelineerr.FormatViolation, "first record's sequence line does not look like DNA")
	}
	return nil
}

// isSequenceLike reports whether over half of s's characters are in
// {A, C, G, T, N}.
func isSequenceLike(s string) bool {
	if len(s) == 0 {
		return false
	}
	count := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'C', 'G', 'T', 'N':
			count++
		}
	}
	return count > len(s)/2
}

// FixConstantRegion slides a window the width of skeleton over the
// read's sequence, picks the uniquely-closest window to skeleton (an
// N-wildcard-aware Hamming comparison, so skeleton's 'N' positions never
// contribute a mismatch), and on success overlays that window onto the
// skeleton: skeleton's 'N' positions keep the window's original base,
// every other position is forced to skeleton's literal base. Quality is
// trimmed to the matching window's span. On failure (no window within
// maxErrors, or a tie at the minimum) the read is cleared so the format
// regex is guaranteed not to match.
func (r *RawRead) FixConstantRegion(skeleton string, maxErrors int) bool {
	skelLen := len(skeleton)
	if len(r.Sequence) < skelLen {
		r.clear()
		return false
	}

	best := maxErrors + 1
	bestIdx := -1
	tie := false

	for i := 0; i+skelLen <= len(r.Sequence); i++ {
		window := r.Sequence[i : i+skelLen]
		dist, exceeded := matcher.Distance(skeleton, window, best)
		if exceeded || dist > maxErrors {
			continue
		}
		switch {
		case dist < best:
			best = dist
			bestIdx = i
			tie = false
		case dist == best:
			tie = true
		}
	}

	if bestIdx < 0 || tie {
		r.clear()
		return false
	}

	window := r.Sequence[bestIdx : bestIdx+skelLen]
	overlay := make([]byte, skelLen)
	for i := 0; i < skelLen; i++ {
		if skeleton[i] == 'N' {
			overlay[i] = window[i]
		} else {
			overlay[i] = skeleton[i]
		}
	}
	r.Sequence = string(overlay)
	r.Quality = r.Quality[bestIdx : bestIdx+skelLen]
	return true
}

func (r *RawRead) clear() {
	r.Sequence = ""
	r.Quality = ""
}

// LowQuality partitions regionsString into maximal same-tag runs
// starting at start within quality, and returns true as soon as any
// non-constant ('C') run's mean Phred score falls below min. Every run
// is evaluated, including the final one — a quality region at the tail
// of a read is gated exactly like any other.
func LowQuality(quality string, min float64, regionsString string, start int) bool {
	n := len(regionsString)
	if start < 0 || start >= len(quality) {
		return false
	}
	if start+n > len(quality) {
		n = len(quality) - start
	}
	if n <= 0 {
		return false
	}

	runStart := 0
	for i := 1; i <= n; i++ {
		if i == n || regionsString[i] != regionsString[runStart] {
			tag := regionsString[runStart]
			if tag != 'C' {
				sum := 0
				for j := runStart; j < i; j++ {
					sum += int(quality[start+j]) - 33
				}
				mean := float64(sum) / float64(i-runStart)
				if mean < min {
					return true
				}
			}
			runStart = i
		}
	}
	return false
}
