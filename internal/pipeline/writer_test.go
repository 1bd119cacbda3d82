package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/valpere/tiledeck/internal/archive"
	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/telemetry"
)

func openWriterTestArchive(t *testing.T) archive.Archive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "writer.mbtiles")
	a, err := archive.Open(path, false)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	if err := a.SetupSchema(); err != nil {
		t.Fatalf("SetupSchema: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func completedBatch(entries []TileEntry, err error) *Batch {
	b := NewBatch(nil)
	b.Complete(entries, err)
	return b
}

func TestWriterCommitsBatchInOrder(t *testing.T) {
	a := openWriterTestArchive(t)
	counters := telemetry.New(1, 1, nil)
	w := &Writer{Archive: a, Counters: counters}

	entries := []TileEntry{
		{Tile: coord.New(1, 0, 0), Gzipped: []byte{1, 2, 3}, EncodedSize: 10},
		{Tile: coord.New(1, 1, 0), Gzipped: []byte{4, 5, 6}, EncodedSize: 12},
	}

	in := make(chan *Batch, 1)
	in <- completedBatch(entries, nil)
	close(in)

	if err := w.Run(in); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary := counters.BuildSummary()
	if summary.TotalTiles != 2 {
		t.Errorf("TotalTiles = %d, want 2", summary.TotalTiles)
	}
}

func TestWriterRejectsNonMonotonicOrderWithinBatch(t *testing.T) {
	a := openWriterTestArchive(t)
	counters := telemetry.New(1, 1, nil)
	w := &Writer{Archive: a, Counters: counters}

	// The second entry does not sort after the first: an invariant
	// violation the writer must catch and roll back, discarding even
	// the first entry's otherwise-valid write.
	entries := []TileEntry{
		{Tile: coord.New(1, 1, 0), Gzipped: []byte{1, 2, 3}},
		{Tile: coord.New(1, 0, 0), Gzipped: []byte{4, 5, 6}},
	}

	in := make(chan *Batch, 1)
	in <- completedBatch(entries, nil)
	close(in)

	err := w.Run(in)
	if err == nil {
		t.Fatal("expected a tile order invariant violation")
	}

	// The archive transaction for this batch rolled back, so neither
	// entry's bytes are persisted. The tile counter for the first
	// entry was already recorded before the violation was detected on
	// the second, since RecordTileWritten fires per entry as it is
	// written rather than once the whole batch commits.
	if summary := counters.BuildSummary(); summary.TotalTiles != 1 {
		t.Errorf("TotalTiles = %d, want 1", summary.TotalTiles)
	}
}

func TestWriterRejectsNonMonotonicOrderAcrossBatches(t *testing.T) {
	a := openWriterTestArchive(t)
	counters := telemetry.New(1, 2, nil)
	w := &Writer{Archive: a, Counters: counters}

	first := []TileEntry{{Tile: coord.New(2, 2, 2), Gzipped: []byte{1}}}
	// lastWritten persists on the Writer across batches, so a second
	// batch whose first tile does not sort after the prior batch's
	// last tile must also be rejected.
	second := []TileEntry{{Tile: coord.New(1, 0, 0), Gzipped: []byte{2}}}

	in := make(chan *Batch, 2)
	in <- completedBatch(first, nil)
	in <- completedBatch(second, nil)
	close(in)

	if err := w.Run(in); err == nil {
		t.Fatal("expected a tile order invariant violation across batches")
	}
}

func TestWriterPropagatesBatchError(t *testing.T) {
	a := openWriterTestArchive(t)
	w := &Writer{Archive: a}

	in := make(chan *Batch, 1)
	in <- completedBatch(nil, errEncoderTest)
	close(in)

	if err := w.Run(in); err == nil {
		t.Fatal("expected Run to propagate the batch's completion error")
	}
}
