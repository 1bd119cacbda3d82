package pipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/sourcefeed"
	"github.com/valpere/tiledeck/internal/telemetry"
	"github.com/valpere/tiledeck/internal/tilecodec"
)

var errEncoderTest = errors.New("postprocessor test error")

// runEncoderOnBatches sends batches through a single-worker Encoder
// and returns each batch's completed entries in submission order.
func runEncoderOnBatches(t *testing.T, e *Encoder, batches []*Batch) [][]TileEntry {
	t.Helper()
	in := make(chan *Batch, len(batches))
	for _, b := range batches {
		in <- b
	}
	close(in)

	out, err := e.Run(in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var results [][]TileEntry
	for b := range out {
		entries, err := b.Await()
		if err != nil {
			t.Fatalf("batch Await: %v", err)
		}
		results = append(results, entries)
	}
	return results
}

func samePropsFeatures(z, x, y int) *sourcefeed.TileFeatures {
	return sourcefeed.NewTileFeatures(coord.New(z, x, y), map[string][]tilecodec.Feature{
		"roads": {
			{ID: 1, Geometry: interiorPoint(z, x, y), Properties: map[string]interface{}{"kind": "primary"}},
		},
	})
}

func TestEncoderMemoizesIdenticalAdjacentTiles(t *testing.T) {
	// HasSameContents compares canonical layer JSON, not the tile
	// coordinate, so two tiles built from the same properties and an
	// identical point count as identical content for memoization.
	a := samePropsFeatures(5, 10, 10)
	b := sourcefeed.NewTileFeatures(coord.New(5, 11, 10), map[string][]tilecodec.Feature{
		"roads": {
			{ID: 1, Geometry: interiorPoint(5, 10, 10), Properties: map[string]interface{}{"kind": "primary"}},
		},
	})

	counters := telemetry.New(5, 5, nil)
	e := &Encoder{Workers: 1, PostProcessors: NewPostProcessorRegistry(), Counters: counters}

	batch := NewBatch([]*sourcefeed.TileFeatures{a, b})
	results := runEncoderOnBatches(t, e, []*Batch{batch})

	if len(results) != 1 || len(results[0]) != 2 {
		t.Fatalf("unexpected results shape: %+v", results)
	}
	if !bytes.Equal(results[0][0].Gzipped, results[0][1].Gzipped) {
		t.Error("expected the second tile to reuse the first tile's encoded bytes")
	}
	if got := counters.MemoizedTiles(); got != 1 {
		t.Errorf("MemoizedTiles() = %d, want 1", got)
	}
}

func TestEncoderDoesNotMemoizeDifferentContents(t *testing.T) {
	a := samePropsFeatures(5, 10, 10)
	b := sourcefeed.NewTileFeatures(coord.New(5, 11, 10), map[string][]tilecodec.Feature{
		"roads": {
			{ID: 1, Geometry: interiorPoint(5, 11, 10), Properties: map[string]interface{}{"kind": "secondary"}},
		},
	})

	counters := telemetry.New(5, 5, nil)
	e := &Encoder{Workers: 1, PostProcessors: NewPostProcessorRegistry(), Counters: counters}

	batch := NewBatch([]*sourcefeed.TileFeatures{a, b})
	runEncoderOnBatches(t, e, []*Batch{batch})

	if got := counters.MemoizedTiles(); got != 0 {
		t.Errorf("MemoizedTiles() = %d, want 0", got)
	}
}

func TestEncoderFiresOversizedTileCallback(t *testing.T) {
	tf := samePropsFeatures(4, 2, 2)
	counters := telemetry.New(4, 4, nil)

	var gotTile string
	var gotSize int
	e := &Encoder{
		Workers:            1,
		PostProcessors:     NewPostProcessorRegistry(),
		Counters:           counters,
		OversizedTileBytes: 1,
		OnOversizedTile: func(tileStr string, size int) {
			gotTile, gotSize = tileStr, size
		},
	}

	batch := NewBatch([]*sourcefeed.TileFeatures{tf})
	runEncoderOnBatches(t, e, []*Batch{batch})

	if gotTile == "" {
		t.Fatal("OnOversizedTile was not called")
	}
	if gotTile != tf.Coord().String() {
		t.Errorf("OnOversizedTile tile = %q, want %q", gotTile, tf.Coord().String())
	}
	if gotSize <= 0 {
		t.Errorf("OnOversizedTile size = %d, want > 0", gotSize)
	}
}

func TestEncoderDoesNotFireOversizedTileCallbackUnderThreshold(t *testing.T) {
	tf := samePropsFeatures(4, 2, 2)
	counters := telemetry.New(4, 4, nil)

	called := false
	e := &Encoder{
		Workers:            1,
		PostProcessors:     NewPostProcessorRegistry(),
		Counters:           counters,
		OversizedTileBytes: 1_000_000,
		OnOversizedTile:    func(string, int) { called = true },
	}

	batch := NewBatch([]*sourcefeed.TileFeatures{tf})
	runEncoderOnBatches(t, e, []*Batch{batch})

	if called {
		t.Error("OnOversizedTile fired for a tile well under the threshold")
	}
}

func TestEncoderPropagatesPostProcessorError(t *testing.T) {
	tf := samePropsFeatures(4, 2, 2)
	counters := telemetry.New(4, 4, nil)

	wantErr := errEncoderTest
	reg := NewPostProcessorRegistry()
	reg.Register("roads", func(zoom int, features []tilecodec.Feature) ([]tilecodec.Feature, error) {
		return nil, wantErr
	})

	e := &Encoder{Workers: 1, PostProcessors: reg, Counters: counters}

	batch := NewBatch([]*sourcefeed.TileFeatures{tf})
	in := make(chan *Batch, 1)
	in <- batch
	close(in)

	out, err := e.Run(in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b := <-out
	if _, err := b.Await(); err == nil {
		t.Fatal("expected batch to fail when a post-processor errors")
	}
}
