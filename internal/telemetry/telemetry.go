// Package telemetry tracks the pipeline's progress counters and
// renders the "last tile" and zoom-summary strings an external
// progress logger consumes. Counters are split between a single
// writer goroutine (tile counts, last-tile position) and concurrent
// encoder workers (byte sums, size watermarks) so neither side needs
// to lock against the other.
package telemetry

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/geo"
)

// SummaryMetadataKey is the archive metadata row name a run's Summary
// is embedded under, alongside the archive's standard MBTiles keys, so
// a later inspection can recover it without re-running the pipeline.
const SummaryMetadataKey = "tiledeck:summary"

// ZoomExtent is the tile-column range configured for one zoom level,
// used to compute the "last tile" string's horizontal-scan percentage.
type ZoomExtent struct {
	MinX, MaxX int
}

// zoomCounters holds one zoom level's counters: a single-writer tile
// count, a multi-writer cumulative byte sum, and a multi-writer
// monotonic byte-size watermark.
type zoomCounters struct {
	tileCount  atomic.Int64
	byteSum    atomic.Int64
	maxBytes   atomic.Int64
}

// Counters is the process-wide telemetry state for one pipeline run.
type Counters struct {
	minZoom, maxZoom int
	extents          map[int]ZoomExtent

	perZoom map[int]*zoomCounters

	featuresProcessed atomic.Int64
	memoizedTiles     atomic.Int64

	mu              sync.Mutex
	lastTile        coord.Tile
	haveLastTile    bool
	maxBatchLength  int64
	minBatchLength  int64
	haveBatchLength bool
}

// New creates a Counters for zoom levels [minZoom, maxZoom], with the
// given per-zoom tile-column extents used for progress percentages.
func New(minZoom, maxZoom int, extents map[int]ZoomExtent) *Counters {
	perZoom := make(map[int]*zoomCounters, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		perZoom[z] = &zoomCounters{}
	}
	return &Counters{
		minZoom: minZoom,
		maxZoom: maxZoom,
		extents: extents,
		perZoom: perZoom,
	}
}

// RecordEncodedBytes updates the per-zoom cumulative byte sum and
// max-byte watermark for one newly encoded tile. Multi-writer: called
// from any encoder worker with the tile's encoded (pre-gzip) length.
func (c *Counters) RecordEncodedBytes(tile coord.Tile, encodedBytes int) {
	zc := c.perZoom[tile.Z()]
	if zc == nil {
		return
	}
	zc.byteSum.Add(int64(encodedBytes))
	for {
		cur := zc.maxBytes.Load()
		if int64(encodedBytes) <= cur {
			break
		}
		if zc.maxBytes.CAS(cur, int64(encodedBytes)) {
			break
		}
	}
}

// RecordTileWritten is called by the writer only, exactly once per
// tile, in strictly increasing TileCoord order. It increments the
// per-zoom tile count (single-writer) and publishes lastWrittenCoord.
func (c *Counters) RecordTileWritten(tile coord.Tile) {
	if zc := c.perZoom[tile.Z()]; zc != nil {
		zc.tileCount.Inc()
	}

	c.mu.Lock()
	c.lastTile = tile
	c.haveLastTile = true
	c.mu.Unlock()
}

// RecordBatchLength updates the monotonic min/max batch-length
// accumulators. Single-writer (writer thread only).
func (c *Counters) RecordBatchLength(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveBatchLength {
		c.minBatchLength, c.maxBatchLength = n, n
		c.haveBatchLength = true
		return
	}
	if n < c.minBatchLength {
		c.minBatchLength = n
	}
	if n > c.maxBatchLength {
		c.maxBatchLength = n
	}
}

// AddFeaturesProcessed adds to the global features-processed counter.
// Multi-writer: called from any encoder worker.
func (c *Counters) AddFeaturesProcessed(n int) {
	c.featuresProcessed.Add(int64(n))
}

// IncMemoizedTiles increments the global memoized-tile counter.
// Multi-writer: called from any encoder worker.
func (c *Counters) IncMemoizedTiles() {
	c.memoizedTiles.Inc()
}

// FeaturesProcessed returns the current features-processed total.
func (c *Counters) FeaturesProcessed() int64 {
	return c.featuresProcessed.Load()
}

// MemoizedTiles returns the current memoized-tile total.
func (c *Counters) MemoizedTiles() int64 {
	return c.memoizedTiles.Load()
}

// LastTileString renders the "last tile" telemetry line:
//
//	z/x/y (zZ P%) batch sizes: MIN-MAX URL
//
// or "n/a" if no tile has been written yet.
func (c *Counters) LastTileString() string {
	c.mu.Lock()
	tile, have := c.lastTile, c.haveLastTile
	minLen, maxLen, haveLen := c.minBatchLength, c.maxBatchLength, c.haveBatchLength
	c.mu.Unlock()

	if !have {
		return "n/a"
	}

	z, x, y := tile.Decode()
	pct := 0.0
	if ext, ok := c.extents[z]; ok && ext.MaxX > ext.MinX {
		pct = 100 * float64(x+1-ext.MinX) / float64(ext.MaxX-ext.MinX)
	}

	batchSizes := "n/a"
	if haveLen {
		batchSizes = fmt.Sprintf("%d-%d", minLen, maxLen)
	}

	lon, lat := geo.TileTopLeftLonLat(z, x, y)
	url := fmt.Sprintf("https://www.openstreetmap.org/#map=%d/%.5f/%.5f", z, lat, lon)

	return fmt.Sprintf("%d/%d/%d (%dZ %.0f%%) batch sizes: %s %s", z, x, y, z, pct, batchSizes, url)
}

// ZoomSummary is one zoom level's row in the shutdown summary.
type ZoomSummary struct {
	Zoom int
	Avg  int64
	Max  int64
}

// Summary is the shutdown telemetry report: per-zoom avg/max encoded
// tile size, an overall max across all zooms ("maxMax"), and the run's
// feature/tile totals.
type Summary struct {
	PerZoom           []ZoomSummary
	MaxMax            int64
	FeaturesProcessed int64
	MemoizedTiles     int64
	TotalTiles        int64
}

// BuildSummary computes the shutdown report. MaxMax is the true
// maximum over every zoom's watermark, not a separately tracked field
// that could drift out of sync with the per-zoom watermarks.
func (c *Counters) BuildSummary() Summary {
	s := Summary{
		FeaturesProcessed: c.FeaturesProcessed(),
		MemoizedTiles:     c.MemoizedTiles(),
	}
	for z := c.minZoom; z <= c.maxZoom; z++ {
		zc := c.perZoom[z]
		if zc == nil {
			continue
		}
		tiles := zc.tileCount.Load()
		s.TotalTiles += tiles
		var avg int64
		if tiles > 0 {
			avg = zc.byteSum.Load() / tiles
		}
		maxBytes := zc.maxBytes.Load()
		s.PerZoom = append(s.PerZoom, ZoomSummary{Zoom: z, Avg: avg, Max: maxBytes})
		if maxBytes > s.MaxMax {
			s.MaxMax = maxBytes
		}
	}
	return s
}
