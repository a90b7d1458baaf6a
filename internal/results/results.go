// Package results implements the concurrent per-sample, per-tuple
// accumulator. It is sharded by a hash of the sample key so that
// parsers submitting reads for different samples do not contend on one
// global lock, while submissions to the same (sample, tuple) pair remain
// linearisable.
package results

import (
	"hash/fnv"
	"sync"

	"barseq/internal/pipelineerr"
)

// Sentinel is the bucket used when the format has no sample region.
const Sentinel = "Unknown_sample_name"

// Mode selects which of the two accumulation shapes a Store uses.
type Mode int

const (
	// CountMode tallies a plain submission count per tuple.
	CountMode Mode = iota
	// UniqueMode deduplicates submissions by a random (UMI) value; the
	// reported count for a tuple is the size of its random set.
	UniqueMode
)

const shardCount = 16

type sampleBucket struct {
	counts  map[string]uint32
	uniques map[string]map[string]struct{}
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*sampleBucket
}

// Store is the concurrent accumulator. When the sample key space is
// closed (an allow-list restricts which sample DNA can appear, or the
// format has no sample region at all), it is pre-populated at
// construction with one empty bucket per known sample key (or the
// single Sentinel bucket) and that set never grows afterward. When the
// format declares a sample region but no allow-list was loaded, the key
// space is open, any decoded sample DNA is accepted verbatim, and
// buckets are created lazily on first submission instead.
type Store struct {
	mode    Mode
	dynamic bool
	shards  [shardCount]*shard
}

// New constructs a closed-key-space Store in the given mode,
// pre-populating an empty bucket for every sampleKey (or, if sampleKeys
// is empty, the single Sentinel bucket).
func New(mode Mode, sampleKeys []string) *Store {
	s := &Store{mode: mode}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*sampleBucket)}
	}

	keys := sampleKeys
	if len(keys) == 0 {
		keys = []string{Sentinel}
	}
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.buckets[key] = newBucket(mode)
	}
	return s
}

// NewDynamic constructs an open-key-space Store: no buckets are
// pre-populated, and AddCount creates one on first submission for any
// sampleKey it has not seen before. Used when the format declares a
// sample region but no sample allow-list was loaded.
func NewDynamic(mode Mode) *Store {
	s := &Store{mode: mode, dynamic: true}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*sampleBucket)}
	}
	return s
}

func newBucket(mode Mode) *sampleBucket {
	if mode == UniqueMode {
		return &sampleBucket{uniques: make(map[string]map[string]struct{})}
	}
	return &sampleBucket{counts: make(map[string]uint32)}
}

func (s *Store) shardFor(sampleKey string) *shard {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sampleKey))
	return s.shards[h.Sum64()%shardCount]
}

// AddCount submits one resolved read to the store. random is ignored in
// CountMode. It returns whether the submission was "newly counted" — in
// CountMode this is always true, in UniqueMode it reflects whether the
// random value was novel for that (sample, tuple) pair. AddCount returns
// an error only if sampleKey was never pre-populated, which would mean a
// caller bypassed the unknown-sample rejection the parser is required to
// perform before ever reaching this store.
func (s *Store) AddCount(sampleKey, tupleKey, random string) (bool, error) {
	sh := s.shardFor(sampleKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	bucket, ok := sh.buckets[sampleKey]
	if !ok {
		if !s.dynamic {
			return false, pipelineerr.New(pipelineerr.Configuration, "submission for unregistered sample key "+sampleKey)
		}
		bucket = newBucket(s.mode)
		sh.buckets[sampleKey] = bucket
	}

	if s.mode == UniqueMode {
		set, ok := bucket.uniques[tupleKey]
		if !ok {
			set = make(map[string]struct{})
			bucket.uniques[tupleKey] = set
		}
		if _, seen := set[random]; seen {
			return false, nil
		}
		set[random] = struct{}{}
		return true, nil
	}

	bucket.counts[tupleKey]++
	return true, nil
}

// Snapshot is the immutable, external-facing view of a finished run:
// sample_key -> tuple_key -> reported count (a raw tally in CountMode, or
// |random set| in UniqueMode).
type Snapshot struct {
	Mode    Mode
	Buckets map[string]map[string]uint32
}

// Snapshot takes a point-in-time copy of the store. Intended to be
// called once, after every parser has joined.
func (s *Store) Snapshot() Snapshot {
	out := Snapshot{Mode: s.mode, Buckets: make(map[string]map[string]uint32)}
	for _, sh := range s.shards {
		sh.mu.Lock()
		for sampleKey, bucket := range sh.buckets {
			tuples := make(map[string]uint32)
			if s.mode == UniqueMode {
				for tupleKey, set := range bucket.uniques {
					tuples[tupleKey] = uint32(len(set))
				}
			} else {
				for tupleKey, count := range bucket.counts {
					tuples[tupleKey] = count
				}
			}
			out.Buckets[sampleKey] = tuples
		}
		sh.mu.Unlock()
	}
	return out
}
