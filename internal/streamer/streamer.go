// Package streamer implements the reader side of the pipeline: it opens
// a FASTQ input (plain or block-gzip), assembles four-line records into
// single blobs, validates the first one, and pushes them onto a bounded
// channel for the parser pool to drain.
package streamer

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"barseq/internal/blobpool"
	"barseq/internal/pipelineerr"
	"barseq/internal/rawread"
)

// QueueCapacity bounds the number of in-flight blobs between the reader
// and the parser pool, capping memory regardless of how far the reader
// runs ahead.
const QueueCapacity = 10000

// Streamer owns the input file handle for its lifetime and feeds
// four-line blobs onto Queue.
type Streamer struct {
	Queue chan []byte

	path     string
	pool     *blobpool.Pool
	total    atomic.Uint64
	finished atomic.Bool
}

// New builds a Streamer over path (a .fastq or .fastq.gz file) with a
// freshly-allocated bounded queue.
func New(path string, pool *blobpool.Pool) *Streamer {
	return &Streamer{
		Queue: make(chan []byte, QueueCapacity),
		path:  path,
		pool:  pool,
	}
}

// TotalReads returns the number of four-line records streamed so far.
// Safe to call concurrently; only meaningful as a final value once Run
// has returned.
func (s *Streamer) TotalReads() uint64 { return s.total.Load() }

// Finished reports whether the reader has reached (clean) EOF.
func (s *Streamer) Finished() bool { return s.finished.Load() }

// Run opens the file, streams every four-line record into Queue, and
// closes Queue on return (clean EOF or error alike) so parsers waiting
// on a channel receive can observe completion. ctx's cancellation is the
// shared shutdown signal: a failing parser cancelling ctx makes a queue
// send return promptly instead of blocking forever on a full channel
// nobody is draining.
func (s *Streamer) Run(ctx context.Context) error {
	defer close(s.Queue)

	reader, closer, err := open(s.path)
	if err != nil {
		return err
	}
	defer closer.Close()

	first := true
	for {
		blob, err := s.readRecord(reader)
		if err != nil {
			if isCleanEOF(err, s.path) {
				s.finished.Store(true)
				return nil
			}
			return pipelineerr.Wrap(pipelineerr.IO, "reading FASTQ record", err)
		}

		if first {
			read, err := rawread.Unpack(string(blob))
			if err != nil {
				return err
			}
			if err := read.Validate(); err != nil {
				return err
			}
			first = false
		}

		s.total.Add(1)
		select {
		case s.Queue <- blob:
		case <-ctx.Done():
			return nil
		}
	}
}

// readRecord reads exactly four lines and joins them with '\n' into one
// blob drawn from the pool. Any error (including on a partial record) is
// returned as-is for the caller to classify.
func (s *Streamer) readRecord(r *bufio.Reader) ([]byte, error) {
	blob := s.pool.Get()
	for i := 0; i < 4; i++ {
		line, err := readLine(r)
		if err != nil {
			s.pool.Put(blob)
			return nil, err
		}
		if i > 0 {
			blob = blobpool.Grow(blob, []byte{'\n'})
		}
		blob = blobpool.Grow(blob, []byte(line))
	}
	return blob, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// isCleanEOF reports whether err represents a benign end of stream: a
// plain io.EOF, or io.ErrUnexpectedEOF from a block-gzip stream that
// ends mid-block without a valid trailer (sequencers and transfers
// truncate these routinely; whatever whole records made it through still
// count). A checksum or header error is never treated
// as clean — those are genuinely corrupt streams and must fail the run.
func isCleanEOF(err error, path string) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return strings.HasSuffix(path, ".gz")
	}
	return false
}

type closer interface {
	Close() error
}

// open dispatches on the input file's extension: plain, block-gzip
// (.fastq.gz), or zstd (.fastq.zst). zstd streams are not subject to the
// same truncation tolerance as gzip — the format has no multi-member
// concatenation story in this pipeline, so a cut-off zstd stream is
// always a genuine IO error.
func open(path string) (*bufio.Reader, closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, pipelineerr.Wrap(pipelineerr.IO, "opening FASTQ input", err)
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, pipelineerr.Wrap(pipelineerr.IO, "opening zstd FASTQ input", err)
		}
		return bufio.NewReaderSize(zr, 64*1024), zstdCloser{zr, f}, nil
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, pipelineerr.Wrap(pipelineerr.IO, "opening gzip FASTQ input", err)
		}
		return bufio.NewReaderSize(gz, 64*1024), multiCloser{gz, f}, nil
	default:
		return bufio.NewReaderSize(f, 64*1024), f, nil
	}
}

type multiCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (m multiCloser) Close() error {
	gzErr := m.gz.Close()
	fErr := m.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

type zstdCloser struct {
	zr *zstd.Decoder
	f  *os.File
}

func (z zstdCloser) Close() error {
	z.zr.Close()
	return z.f.Close()
}
