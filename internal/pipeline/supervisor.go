package pipeline

import (
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/valpere/tiledeck/internal/archive"
	"github.com/valpere/tiledeck/internal/sourcefeed"
	"github.com/valpere/tiledeck/internal/telemetry"
)

// DefaultQueueCapacity is the bounded capacity of every inter-stage
// queue.
const DefaultQueueCapacity = 5000

// Config bundles the recognized pipeline configuration options the
// Supervisor needs to wire a run.
type Config struct {
	MinZoom, MaxZoom    int
	Threads             int
	EmitTilesInOrder    bool
	DeferIndexCreation  bool
	OptimizeDB          bool
	MaxTilesPerBatch    int
	MaxFeaturesPerBatch int
	OversizedTileBytes  int
	QueueCapacity       int
}

// Supervisor ties the four stages together: it runs the reader,
// encoder and writer concurrently, selects the queue topology, awaits
// every stage, and fails the run with the stages' errors combined.
type Supervisor struct {
	Config           Config
	Stream           sourcefeed.FeatureStream
	Archive          archive.Archive
	Counters         *telemetry.Counters
	PostProcessors   *PostProcessorRegistry
	OnOversizedTile  func(tileStr string, size int)
	OnZoomTransition func(zoom int)
}

// Run executes one complete pipeline pass over s.Stream, writing to
// s.Archive, and returns the combined error from any stage that failed
// (nil on success).
func (s *Supervisor) Run() error {
	queueCap := s.Config.QueueCapacity
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}

	encoderIn := make(chan *Batch, queueCap)

	reader := &Reader{
		Stream:              s.Stream,
		MaxTilesPerBatch:    s.Config.MaxTilesPerBatch,
		MaxFeaturesPerBatch: s.Config.MaxFeaturesPerBatch,
		EmitTilesInOrder:    s.Config.EmitTilesInOrder,
		OnZoomTransition:    s.OnZoomTransition,
	}

	encoder := &Encoder{
		Workers:            s.Config.Threads,
		PostProcessors:     s.PostProcessors,
		Counters:           s.Counters,
		OversizedTileBytes: s.Config.OversizedTileBytes,
		OnOversizedTile:    s.OnOversizedTile,
	}

	writer := &Writer{Archive: s.Archive, Counters: s.Counters}

	var writerIn chan *Batch
	if s.Config.EmitTilesInOrder {
		writerIn = make(chan *Batch, queueCap)
	}

	var wg conc.WaitGroup
	var readerErr, encoderErr, writerErr error

	wg.Go(func() {
		readerErr = reader.Run(encoderIn, writerIn)
	})

	encoderOut, _ := encoder.Run(encoderIn)

	writerSource := encoderOut
	if s.Config.EmitTilesInOrder {
		writerSource = writerIn
		// The unordered output channel still needs draining so
		// encoder workers never block on a full out queue; batches
		// were already awaited via writerIn, so their entries are
		// discarded here.
		wg.Go(func() {
			for range encoderOut {
			}
		})
	}

	wg.Go(func() {
		writerErr = writer.Run(writerSource)
	})

	wg.Wait()

	if err := multierr.Combine(readerErr, encoderErr, writerErr); err != nil {
		return err
	}

	if s.Config.OptimizeDB {
		if err := s.Archive.VacuumAnalyze(); err != nil {
			return err
		}
	}
	return s.Archive.Close()
}
