package runregistry

import "testing"

func TestInMemoryFallbackWithoutAddr(t *testing.T) {
	r := New("", "", 0)
	if r.useRedis {
		t.Fatal("expected useRedis false with empty addr")
	}

	ev := Event{RunID: "run-1", Stage: StageStarted}
	if err := r.Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, ok := r.Get("run-1")
	if !ok {
		t.Fatal("expected run-1 to be recorded")
	}
	if got.Stage != StageStarted {
		t.Fatalf("expected stage started, got %s", got.Stage)
	}
}

func TestUnreachableRedisFallsBack(t *testing.T) {
	r := New("127.0.0.1:1", "", 0)
	if r.useRedis {
		t.Fatal("expected fallback to in-memory on unreachable redis")
	}
	if err := r.Record(Event{RunID: "x", Stage: StageFinished}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestListReturnsAllKnownRuns(t *testing.T) {
	r := New("", "", 0)
	_ = r.Record(Event{RunID: "a", Stage: StageStarted})
	_ = r.Record(Event{RunID: "b", Stage: StageFinished})

	events := r.List()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestGetUnknownRun(t *testing.T) {
	r := New("", "", 0)
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected ok=false for unknown run")
	}
}

func TestCloseWithoutRedisIsNoop(t *testing.T) {
	r := New("", "", 0)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
