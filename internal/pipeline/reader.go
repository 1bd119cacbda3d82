package pipeline

import (
	"github.com/valpere/tiledeck/internal/sourcefeed"
)

// Default batch-forming thresholds, overridable via Reader fields
// sourced from internal/config's PipelineConfig.
const (
	DefaultMaxTilesPerBatch    = 1000
	DefaultMaxFeaturesPerBatch = 10000
)

// Reader is the pipeline's single batch-forming producer. It consumes
// an ordered, restartable-once FeatureStream and partitions it into
// Batch values bounded by a tile count and an aggregate feature count.
type Reader struct {
	Stream              sourcefeed.FeatureStream
	MaxTilesPerBatch    int
	MaxFeaturesPerBatch int

	// EmitTilesInOrder selects the ordered topology: each emitted
	// batch is pushed to both encoderIn and writerIn, in that order,
	// before the reader proceeds to the next batch.
	EmitTilesInOrder bool

	// OnZoomTransition, if set, is called once whenever the zoom of
	// consecutive TileFeatures increases.
	OnZoomTransition func(zoom int)
}

// Run drains the stream, emitting Batch values to encoderIn in
// ascending TileCoord order. When EmitTilesInOrder is set, writerIn
// receives the same batches (by pointer) as an auxiliary ordered
// side-channel the writer awaits directly. Run always closes encoderIn
// on return, and closes writerIn on return only in that ordered case.
func (r *Reader) Run(encoderIn chan<- *Batch, writerIn chan<- *Batch) error {
	defer close(encoderIn)
	if r.EmitTilesInOrder && writerIn != nil {
		defer close(writerIn)
	}

	maxTiles := r.MaxTilesPerBatch
	if maxTiles <= 0 {
		maxTiles = DefaultMaxTilesPerBatch
	}
	maxFeatures := r.MaxFeaturesPerBatch
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeaturesPerBatch
	}

	var pending []*sourcefeed.TileFeatures
	tilesInBatch := 0
	featuresInBatch := 0
	haveLastZoom := false
	lastZoom := 0

	emit := func() {
		if tilesInBatch == 0 {
			return
		}
		b := NewBatch(pending)
		encoderIn <- b
		if r.EmitTilesInOrder && writerIn != nil {
			writerIn <- b
		}
		pending = nil
		tilesInBatch = 0
		featuresInBatch = 0
	}

	for {
		tf, ok, err := r.Stream.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		z := tf.Coord().Z()
		if haveLastZoom && z > lastZoom && r.OnZoomTransition != nil {
			r.OnZoomTransition(z)
		}
		haveLastZoom = true
		lastZoom = z

		k := tf.NumFeaturesToEmit()
		if tilesInBatch > 0 && (tilesInBatch >= maxTiles || featuresInBatch+k > maxFeatures) {
			emit()
		}

		pending = append(pending, tf)
		featuresInBatch += k
		tilesInBatch++
	}

	emit()
	return nil
}
