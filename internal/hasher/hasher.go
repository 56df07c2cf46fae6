// Package hasher is the worker pool that computes SHA-256 block digests
// for the scanner and validates blocks received from peers (spec.md §4.7).
// Workers each own an independent goroutine; callers never hash on the
// coordinator strand.
package hasher

import (
	"context"
	"crypto/sha256"
	"sync/atomic"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// Block-size selection bounds (spec.md §4.7): block size is a power of two
// chosen by file size, default 128 KiB, scaling up to 16 MiB so very large
// files keep a bounded block count.
const (
	MinBlockSize     = 128 << 10
	MaxBlockSize     = 16 << 20
	maxBlocksPerFile = 2000
)

// BlockSizeFor picks the block size for a file of the given length: the
// smallest power of two in [MinBlockSize, MaxBlockSize] that keeps the
// block count under maxBlocksPerFile.
func BlockSizeFor(fileSize int64) int32 {
	size := int64(MinBlockSize)
	for size < MaxBlockSize && fileSize/size > maxBlocksPerFile {
		size <<= 1
	}
	return int32(size)
}

// Digest is one computed block hash.
type Digest struct {
	Hash model.Hash
	Weak uint32
	Size int32
}

// Sum hashes data synchronously on the calling goroutine. Validating one
// received block goes through here; only bulk scanning pays for the pool
// round-trip.
func Sum(data []byte) Digest {
	return Digest{
		Hash: sha256.Sum256(data),
		Weak: model.ComputeWeakHash(data),
		Size: int32(len(data)),
	}
}

// Validate checks received block bytes against the expected content hash
// (spec.md §4.5: the controller validates a Response's bytes before
// handing them to the file actor).
func Validate(data []byte, expected model.Hash) error {
	if sha256.Sum256(data) != expected {
		return errs.New(errs.KindDigestMismatch, "block digest mismatch", nil)
	}
	return nil
}

type job struct {
	data  []byte
	reply chan<- Digest
}

type worker struct {
	jobs        chan job
	outstanding atomic.Int64
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			j.reply <- Sum(j.data)
			w.outstanding.Add(-1)
		}
	}
}

// Pool is a fixed set of hashing workers with a score-based balancer: each
// submission goes to the worker with the fewest outstanding jobs
// (spec.md §4.7).
type Pool struct {
	workers []*worker
	log     slog.Log
}

// NewPool starts n workers that live until ctx is cancelled.
func NewPool(ctx context.Context, n int, log slog.Log) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{log: log}
	for i := 0; i < n; i++ {
		w := &worker{jobs: make(chan job, 16)}
		p.workers = append(p.workers, w)
		go w.run(ctx)
	}
	return p
}

func (p *Pool) pick() *worker {
	best := p.workers[0]
	for _, w := range p.workers[1:] {
		if w.outstanding.Load() < best.outstanding.Load() {
			best = w
		}
	}
	return best
}

// Submit hands data to the least-loaded worker; the digest arrives on the
// returned channel. The caller must not mutate data until then.
func (p *Pool) Submit(data []byte) <-chan Digest {
	reply := make(chan Digest, 1)
	w := p.pick()
	w.outstanding.Add(1)
	w.jobs <- job{data: data, reply: reply}
	return reply
}

// HashBlocks splits data into blockSize chunks, hashes each on the pool,
// and returns the digests in block order.
func (p *Pool) HashBlocks(ctx context.Context, data []byte, blockSize int32) ([]Digest, error) {
	if blockSize <= 0 {
		return nil, errs.New(errs.KindIOError, "hasher: non-positive block size", nil)
	}
	var replies []<-chan Digest
	for off := int64(0); off < int64(len(data)); off += int64(blockSize) {
		end := off + int64(blockSize)
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		replies = append(replies, p.Submit(data[off:end]))
	}
	out := make([]Digest, 0, len(replies))
	for _, reply := range replies {
		select {
		case <-ctx.Done():
			return nil, errs.New(errs.KindCancelled, "hasher.HashBlocks", ctx.Err())
		case d := <-reply:
			out = append(out, d)
		}
	}
	return out, nil
}
