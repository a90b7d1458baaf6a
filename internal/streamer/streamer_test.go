package streamer

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"barseq/internal/blobpool"
)

const twoRecords = "@r1\nACGTACGT\n+\nIIIIIIII\n@r2\nTTTTTTTT\n+\nIIIIIIII\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeGzFile(t *testing.T, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func drain(s *Streamer) [][]byte {
	var blobs [][]byte
	for b := range s.Queue {
		cp := append([]byte{}, b...)
		blobs = append(blobs, cp)
	}
	return blobs
}

func TestStreamsPlainFastq(t *testing.T) {
	path := writeFile(t, "reads.fastq", twoRecords)
	s := New(path, blobpool.New(32))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	blobs := drain(s)
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(blobs))
	}
	if string(blobs[0]) != "@r1\nACGTACGT\n+\nIIIIIIII" {
		t.Fatalf("unexpected first blob: %q", blobs[0])
	}
	if s.TotalReads() != 2 {
		t.Fatalf("TotalReads = %d, want 2", s.TotalReads())
	}
	if !s.Finished() {
		t.Fatal("expected Finished() true after clean EOF")
	}
}

func TestStreamsGzippedFastq(t *testing.T) {
	path := writeGzFile(t, "reads.fastq.gz", twoRecords)
	s := New(path, blobpool.New(32))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	blobs := drain(s)
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(blobs))
	}
}

func TestStreamsZstdFastq(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write([]byte(twoRecords)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "reads.fastq.zst")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, blobpool.New(32))
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	blobs := drain(s)
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(blobs))
	}
}

func TestTruncatedGzipEndsCleanlyAtRecordBoundary(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write([]byte(twoRecords))
	_ = gw.Close()

	// Truncate after the gzip header/early blocks but drop the final
	// trailer bytes, simulating a stream cut off mid-transfer.
	truncated := buf.Bytes()[:len(buf.Bytes())-4]
	path := filepath.Join(t.TempDir(), "truncated.fastq.gz")
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, blobpool.New(32))
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	drain(s)
	err := <-errCh
	if err != nil {
		t.Fatalf("expected truncated gzip to end the run cleanly, got %v", err)
	}
}

func TestOpenMissingFileReturnsIOError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.fastq"), blobpool.New(32))
	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected error opening a missing file")
	}
}

func TestCancelledContextEndsRunWithoutDraining(t *testing.T) {
	// Cancel before Run starts and confirm Run returns without error even
	// though nobody ever drains the queue.
	path := writeFile(t, "reads.fastq", twoRecords)
	s := New(path, blobpool.New(32))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	if err != nil {
		t.Fatalf("expected cancellation to end Run without error, got %v", err)
	}
}
