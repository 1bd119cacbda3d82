package pipeline

import (
	"fmt"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/archive"
	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/telemetry"
)

// Writer is the pipeline's single archive-appending consumer. It
// drains batches in submission order — from the reader's ordered FIFO
// in the ordered topology, or from the encoder's own output channel in
// the unordered topology — awaits each batch's completion handle, and
// appends every TileEntry inside one write transaction per batch.
type Writer struct {
	Archive  archive.Archive
	Counters *telemetry.Counters

	lastWritten     coord.Tile
	haveLastWritten bool
}

// Run drains in until it is closed, writing every batch's entries to
// the archive. It returns the first error encountered: an await
// failure from a batch's completion handle, a non-monotonic tile order
// (invariant violation), or an archive I/O failure.
func (w *Writer) Run(in <-chan *Batch) error {
	for batch := range in {
		entries, err := batch.Await()
		if err != nil {
			return err
		}

		if err := w.writeBatch(entries); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeBatch(entries []TileEntry) error {
	tw, err := w.Archive.NewBatchedTileWriter()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if w.haveLastWritten && !w.lastWritten.Less(e.Tile) {
			tw.Rollback()
			return internal.NewError(internal.ErrorCodeInvariant,
				fmt.Sprintf("tile order violation: %s did not sort after %s", e.Tile, w.lastWritten), nil)
		}

		if err := tw.Write(e.Tile, e.Gzipped); err != nil {
			tw.Rollback()
			return err
		}

		w.lastWritten = e.Tile
		w.haveLastWritten = true
		if w.Counters != nil {
			w.Counters.RecordTileWritten(e.Tile)
		}
	}

	if err := tw.Commit(); err != nil {
		return err
	}

	if w.Counters != nil {
		w.Counters.RecordBatchLength(int64(len(entries)))
	}
	return nil
}
