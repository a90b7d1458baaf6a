// Package runregistry records the lifecycle of pipeline runs so a
// separate process can query which runs are live. It mirrors the
// session-lifecycle pattern this shop already uses for its
// collaborative-session store: Redis-backed when an address is
// configured and reachable, falling back to a pure in-memory map
// otherwise. Nothing on the core matching/counting path depends on
// Redis being reachable — this is pure instrumentation sitting beside
// the Supervisor.
package runregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "barseq:run:"
const defaultTTL = 24 * time.Hour

// Stage is a RunEvent's lifecycle position.
type Stage string

const (
	StageStarted  Stage = "started"
	StageProgress Stage = "progress"
	StageFinished Stage = "finished"
	StageFailed   Stage = "failed"
)

// Counters is a point-in-time copy of the six SequenceErrors tallies,
// duplicated here rather than imported so this package stays free of a
// dependency on internal/counters' concrete type.
type Counters struct {
	Matched        uint32 `json:"matched"`
	ConstantRegion uint32 `json:"constant_region"`
	SampleBarcode  uint32 `json:"sample_barcode"`
	Barcode        uint32 `json:"barcode"`
	Duplicates     uint32 `json:"duplicates"`
	LowQuality     uint32 `json:"low_quality"`
}

// Event is the small record emitted at every lifecycle transition of a
// run: run ID, stage, timestamp, a copy of the counters, and the current
// queue depth. It is purely an observability side-channel, never part of
// the core's return value.
type Event struct {
	RunID      string    `json:"run_id"`
	Stage      Stage     `json:"stage"`
	Timestamp  time.Time `json:"timestamp"`
	Counters   Counters  `json:"counters"`
	QueueDepth int       `json:"queue_depth"`
	Error      string    `json:"error,omitempty"`
}

// Registry is the Redis-backed (or in-memory fallback) run record.
type Registry struct {
	redis    *redis.Client
	ctx      context.Context
	mu       sync.RWMutex
	events   map[string]Event
	useRedis bool
}

// New builds a Registry. An empty addr disables Redis entirely; a
// non-empty addr that fails its initial PING also falls back to
// in-memory rather than failing the caller.
func New(addr, password string, db int) *Registry {
	r := &Registry{
		ctx:    context.Background(),
		events: make(map[string]Event),
	}
	if addr == "" {
		return r
	}
	r.redis = redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := r.redis.Ping(r.ctx).Err(); err != nil {
		r.redis = nil
		return r
	}
	r.useRedis = true
	return r
}

// Record upserts the latest Event for a run, both in the local cache and
// (if configured) Redis, under a TTL.
func (r *Registry) Record(ev Event) error {
	r.mu.Lock()
	r.events[ev.RunID] = ev
	r.mu.Unlock()

	if !r.useRedis {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	return r.redis.Set(r.ctx, keyPrefix+ev.RunID, data, defaultTTL).Err()
}

// Get returns the latest known Event for a run ID, preferring Redis when
// configured (so a separate process sees fresher state than this
// process's local cache).
func (r *Registry) Get(runID string) (Event, bool) {
	if r.useRedis {
		data, err := r.redis.Get(r.ctx, keyPrefix+runID).Bytes()
		if err == nil {
			var ev Event
			if json.Unmarshal(data, &ev) == nil {
				return ev, true
			}
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[runID]
	return ev, ok
}

// List returns every run this process's local cache knows about. In
// Redis mode this reflects only runs recorded by this process; runs
// recorded by other processes are not listed.
func (r *Registry) List() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev)
	}
	return out
}

// Close closes the Redis client, if any.
func (r *Registry) Close() error {
	if r.useRedis && r.redis != nil {
		return r.redis.Close()
	}
	return nil
}
