package pipeline

import (
	"fmt"

	"github.com/sourcegraph/conc"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/sourcefeed"
	"github.com/valpere/tiledeck/internal/telemetry"
	"github.com/valpere/tiledeck/internal/tilecodec"
)

// DefaultOversizedTileBytes is the encoded (pre-gzip) byte threshold
// above which the encoder emits a warning tagged with the tile
// coordinate.
const DefaultOversizedTileBytes = 1_000_000

// Encoder is the pipeline's parallel, order-unaware tile-encoding
// stage. N persistent workers each drain whole batches from the
// shared input channel, so memoization state stays scoped to one
// worker's own sequential stream of batches.
type Encoder struct {
	Workers            int
	PostProcessors     *PostProcessorRegistry
	Counters           *telemetry.Counters
	OversizedTileBytes int
	OnOversizedTile    func(tileStr string, size int)
}

// Run spawns Encoder.Workers persistent workers that each consume
// batches from in, encode every tile in a batch in order, complete the
// batch's handle, and forward the batch pointer to out. Run returns out
// immediately; out is closed once in is closed and every worker has
// drained it.
func (e *Encoder) Run(in <-chan *Batch) (<-chan *Batch, error) {
	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}
	threshold := e.OversizedTileBytes
	if threshold <= 0 {
		threshold = DefaultOversizedTileBytes
	}

	out := make(chan *Batch, cap(in))

	var wg conc.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Go(func() {
			e.runWorker(in, out, threshold)
		})
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// workerState is the per-worker memoization scope: the last seen
// TileFeatures and its encoded/gzipped bytes, reused when the next
// tile in the batch has identical contents.
type workerState struct {
	haveLast    bool
	lastFeat    *sourcefeed.TileFeatures
	lastEncoded []byte
	lastGzipped []byte
}

func (e *Encoder) runWorker(in <-chan *Batch, out chan<- *Batch, oversizedThreshold int) {
	var st workerState
	for batch := range in {
		entries, err := e.encodeBatch(batch, &st, oversizedThreshold)
		batch.Complete(entries, err)
		out <- batch
	}
}

func (e *Encoder) encodeBatch(batch *Batch, st *workerState, oversizedThreshold int) ([]TileEntry, error) {
	entries := make([]TileEntry, 0, len(batch.Input))

	for _, tf := range batch.Input {
		var encoded, gzipped []byte

		if st.haveLast && tf.HasSameContents(st.lastFeat) {
			encoded = st.lastEncoded
			gzipped = st.lastGzipped
			if e.Counters != nil {
				e.Counters.IncMemoizedTiles()
			}
		} else {
			layers, err := tf.BuildTile()
			if err != nil {
				return nil, err
			}

			layers, err = e.PostProcessors.Apply(tf.Coord().Z(), layers)
			if err != nil {
				return nil, internal.NewError(internal.ErrorCodeEncodeFailure,
					fmt.Sprintf("post-process tile %s", tf.Coord()), err)
			}

			encoded, err = tilecodec.Encode(tf.Coord(), layers)
			if err != nil {
				return nil, err
			}

			gzipped, err = tilecodec.Gzip(encoded)
			if err != nil {
				return nil, err
			}

			st.haveLast = true
			st.lastFeat = tf
			st.lastEncoded = encoded
			st.lastGzipped = gzipped
		}

		if e.Counters != nil {
			e.Counters.AddFeaturesProcessed(tf.NumFeaturesProcessed())
			e.Counters.RecordEncodedBytes(tf.Coord(), len(encoded))
		}

		if len(encoded) > oversizedThreshold && e.OnOversizedTile != nil {
			e.OnOversizedTile(tf.Coord().String(), len(encoded))
		}

		entries = append(entries, TileEntry{
			Tile:        tf.Coord(),
			Gzipped:     gzipped,
			EncodedSize: len(encoded),
		})
	}

	return entries, nil
}
