// Package pipeline implements the four-stage tile assembly graph:
// a batching Reader, a memoizing N-worker Encoder, an order-preserving
// Writer, and a Supervisor that wires them together and reports the
// run's first fatal error.
package pipeline

import (
	"sync"

	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/sourcefeed"
)

// TileEntry is the pair (TileCoord, compressed bytes) flowing from the
// encoder to the writer.
type TileEntry struct {
	Tile    coord.Tile
	Gzipped []byte
	// EncodedSize is the pre-gzip encoded byte length, used for the
	// per-zoom byte counters and the oversized-tile warning.
	EncodedSize int
}

// Batch is an ordered list of input TileFeatures plus a completion
// handle that will eventually hold an ordered list of TileEntry.
// Invariants: input order equals output order; a batch is non-empty
// at emission; a batch is completed at most once.
type Batch struct {
	Input []*sourcefeed.TileFeatures

	mu        sync.Mutex
	cond      *sync.Cond
	completed bool
	entries   []TileEntry
	err       error
}

// NewBatch creates a Batch over the given input, ready for a worker
// to Complete it exactly once.
func NewBatch(input []*sourcefeed.TileFeatures) *Batch {
	b := &Batch{Input: input}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Complete fulfills the batch's completion handle with either a
// successful ordered entry list or a failure. It panics if called
// more than once: a double-complete is a pipeline programming error,
// not a runtime condition callers should recover from.
func (b *Batch) Complete(entries []TileEntry, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed {
		panic("pipeline: batch completed more than once")
	}
	b.entries = entries
	b.err = err
	b.completed = true
	b.cond.Broadcast()
}

// Await blocks until the batch is completed and returns its result.
func (b *Batch) Await() ([]TileEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.completed {
		b.cond.Wait()
	}
	return b.entries, b.err
}
