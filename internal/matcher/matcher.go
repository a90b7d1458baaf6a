// Package matcher implements approximate (Hamming-distance) nearest
// neighbour lookup with N-wildcard matching and strict tie rejection.
package matcher

// FixError returns the unique candidate within maxMismatches Hamming
// distance of query, or ("", false) if no candidate qualifies or two or
// more candidates tie at the minimal distance. A position where either
// the query or the candidate is 'N' counts as a match regardless of the
// other side's base. Candidates whose length differs from query can
// never match and are skipped.
//
// Comparison is position-wise; running distance is compared against the
// best distance seen so far (not against maxMismatches) so that a
// candidate already worse than the current best is abandoned as soon as
// it is known to be worse, without changing which candidate — if any —
// is ultimately reported.
func FixError(query string, candidates []string, maxMismatches int) (string, bool) {
	best := maxMismatches + 1
	bestCandidate := ""
	tie := false

	for _, candidate := range candidates {
		if len(candidate) != len(query) {
			continue
		}
		dist, exceeded := Distance(query, candidate, best)
		if exceeded || dist > maxMismatches {
			continue
		}
		switch {
		case dist < best:
			best = dist
			bestCandidate = candidate
			tie = false
		case dist == best:
			tie = true
		}
	}

	if bestCandidate == "" || tie {
		return "", false
	}
	return bestCandidate, true
}

// Distance computes the N-wildcard-aware Hamming distance between a and
// b, stopping early once the running count exceeds ceiling. The second
// return value reports whether it was abandoned via that early exit.
// Exported so callers needing index bookkeeping alongside a distance
// (constant-region window scanning) can reuse the same comparison rule
// instead of duplicating it.
func Distance(a, b string, ceiling int) (int, bool) {
	dist := 0
	for i := 0; i < len(a); i++ {
		ac, bc := a[i], b[i]
		if ac == 'N' || bc == 'N' {
			continue
		}
		if ac != bc {
			dist++
			if dist > ceiling {
				return dist, true
			}
		}
	}
	return dist, false
}
