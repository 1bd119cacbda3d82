package pipeline

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/sourcefeed"
	"github.com/valpere/tiledeck/internal/tilecodec"
)

func tileFeaturesWithFeatureCount(z, x, y, n int) *sourcefeed.TileFeatures {
	features := make([]tilecodec.Feature, n)
	for i := range features {
		features[i] = tilecodec.Feature{
			ID:         uint64(i + 1),
			Geometry:   orb.Point{0, 0},
			Properties: map[string]interface{}{"i": i},
		}
	}
	return sourcefeed.NewTileFeatures(coord.New(z, x, y), map[string][]tilecodec.Feature{"pts": features})
}

// drainReader runs r.Run to completion and collects every batch it
// emitted on encoderIn (and, when ordered, on writerIn).
func drainReader(t *testing.T, r *Reader) (encoderBatches, writerBatches []*Batch) {
	t.Helper()
	encoderIn := make(chan *Batch, 100)
	var writerIn chan *Batch
	if r.EmitTilesInOrder {
		writerIn = make(chan *Batch, 100)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(encoderIn, writerIn) }()

	for b := range encoderIn {
		encoderBatches = append(encoderBatches, b)
	}
	if writerIn != nil {
		for b := range writerIn {
			writerBatches = append(writerBatches, b)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	return encoderBatches, writerBatches
}

func TestReaderSplitsBatchAtMaxTiles(t *testing.T) {
	items := []*sourcefeed.TileFeatures{
		tileFeaturesWithFeatureCount(2, 0, 0, 1),
		tileFeaturesWithFeatureCount(2, 1, 0, 1),
		tileFeaturesWithFeatureCount(2, 2, 0, 1),
		tileFeaturesWithFeatureCount(2, 3, 0, 1),
		tileFeaturesWithFeatureCount(2, 0, 1, 1),
	}
	r := &Reader{
		Stream:           sourcefeed.NewMemoryStream(items),
		MaxTilesPerBatch: 2,
	}

	batches, _ := drainReader(t, r)

	wantLens := []int{2, 2, 1}
	if len(batches) != len(wantLens) {
		t.Fatalf("got %d batches, want %d", len(batches), len(wantLens))
	}
	for i, want := range wantLens {
		if got := len(batches[i].Input); got != want {
			t.Errorf("batch %d has %d tiles, want %d", i, got, want)
		}
	}
}

func TestReaderSplitsBatchAtMaxFeatures(t *testing.T) {
	// Three tiles of 6 features each; a feature cap of 10 must split
	// after the first tile even though the tile cap alone would allow
	// all three in one batch.
	items := []*sourcefeed.TileFeatures{
		tileFeaturesWithFeatureCount(3, 0, 0, 6),
		tileFeaturesWithFeatureCount(3, 1, 0, 6),
		tileFeaturesWithFeatureCount(3, 2, 0, 6),
	}
	r := &Reader{
		Stream:              sourcefeed.NewMemoryStream(items),
		MaxTilesPerBatch:    100,
		MaxFeaturesPerBatch: 10,
	}

	batches, _ := drainReader(t, r)

	wantLens := []int{1, 1, 1}
	if len(batches) != len(wantLens) {
		t.Fatalf("got %d batches, want %d", len(batches), len(wantLens))
	}
	for i, b := range batches {
		if len(b.Input) != wantLens[i] {
			t.Errorf("batch %d has %d tiles, want %d", i, len(b.Input), wantLens[i])
		}
	}
}

func TestReaderEmitsOrderedSideChannel(t *testing.T) {
	items := []*sourcefeed.TileFeatures{
		tileFeaturesWithFeatureCount(1, 0, 0, 1),
		tileFeaturesWithFeatureCount(1, 1, 0, 1),
	}
	r := &Reader{
		Stream:           sourcefeed.NewMemoryStream(items),
		MaxTilesPerBatch: 1,
		EmitTilesInOrder: true,
	}

	encoderBatches, writerBatches := drainReader(t, r)

	if len(encoderBatches) != 2 || len(writerBatches) != 2 {
		t.Fatalf("got %d encoder batches, %d writer batches, want 2 and 2",
			len(encoderBatches), len(writerBatches))
	}
	for i := range encoderBatches {
		if encoderBatches[i] != writerBatches[i] {
			t.Errorf("batch %d: encoder and writer channels did not receive the same *Batch", i)
		}
	}
}

func TestReaderOnZoomTransitionFiresOnIncrease(t *testing.T) {
	items := []*sourcefeed.TileFeatures{
		tileFeaturesWithFeatureCount(1, 0, 0, 1),
		tileFeaturesWithFeatureCount(1, 1, 0, 1),
		tileFeaturesWithFeatureCount(2, 0, 0, 1),
		tileFeaturesWithFeatureCount(2, 1, 0, 1),
	}
	var transitions []int
	r := &Reader{
		Stream:           sourcefeed.NewMemoryStream(items),
		MaxTilesPerBatch: 100,
		OnZoomTransition: func(z int) { transitions = append(transitions, z) },
	}

	drainReader(t, r)

	if len(transitions) != 1 || transitions[0] != 2 {
		t.Errorf("transitions = %v, want [2]", transitions)
	}
}

func TestReaderEmptyStreamEmitsNoBatches(t *testing.T) {
	r := &Reader{Stream: sourcefeed.NewMemoryStream(nil)}

	batches, _ := drainReader(t, r)

	if len(batches) != 0 {
		t.Errorf("got %d batches from an empty stream, want 0", len(batches))
	}
}

// TestReaderZoomTransitionTileLandsInOwnBatch mirrors the two-zooms-
// crossing-a-batch-boundary scenario at a test-sized scale: a feature
// cap that the last same-zoom tile exactly fills forces the next
// zoom's tile into a batch of its own, even though nothing about the
// zoom change itself forces a split.
func TestReaderZoomTransitionTileLandsInOwnBatch(t *testing.T) {
	items := []*sourcefeed.TileFeatures{
		tileFeaturesWithFeatureCount(3, 0, 0, 4),
		tileFeaturesWithFeatureCount(3, 1, 0, 4),
		tileFeaturesWithFeatureCount(3, 2, 0, 4),
		tileFeaturesWithFeatureCount(4, 0, 0, 4),
	}
	var transitions []int
	r := &Reader{
		Stream:              sourcefeed.NewMemoryStream(items),
		MaxTilesPerBatch:    100,
		MaxFeaturesPerBatch: 12,
		OnZoomTransition:    func(z int) { transitions = append(transitions, z) },
	}

	batches, _ := drainReader(t, r)

	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if got := len(batches[0].Input); got != 3 {
		t.Errorf("batch 0 has %d tiles, want 3 (all of z=3)", got)
	}
	if got := len(batches[1].Input); got != 1 {
		t.Errorf("batch 1 has %d tiles, want 1 (the lone z=4 tile)", got)
	}
	if got := batches[1].Input[0].Coord().Z(); got != 4 {
		t.Errorf("batch 1's tile is at zoom %d, want 4", got)
	}
	if len(transitions) != 1 || transitions[0] != 4 {
		t.Errorf("transitions = %v, want [4]", transitions)
	}
}
