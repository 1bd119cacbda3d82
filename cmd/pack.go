// cmd/pack.go - Tile archive packing command
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/tiledeck/internal/archive"
	"github.com/valpere/tiledeck/internal/config"
	"github.com/valpere/tiledeck/internal/feedfetch"
	"github.com/valpere/tiledeck/internal/pipeline"
	"github.com/valpere/tiledeck/internal/sourcefeed"
	"github.com/valpere/tiledeck/internal/telemetry"
)

// packCmd represents the pack command
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Assemble a source feed into an MBTiles archive",
	Long: `Pack reads a newline-delimited JSON source feed - one line per tile,
listing that tile's features - and runs it through the encode/write
pipeline into a single MBTiles archive.

The feed can be fetched over HTTP, read from a local file, or, for
testing against real vector tiles instead of the synthetic feed
format, decoded from a directory of .mvt fixtures.

Every run needs a configured source location (--base-url or --base-path,
or their config-file equivalents), including an .mvt fixture run.

Examples:
  # Pack a remote NDJSON feed
  tiledeck pack --base-url "https://example.com" --feed "https://example.com/feed.ndjson" --output tiles.mbtiles --min-zoom 0 --max-zoom 12

  # Pack a local feed file (relative to --base-path)
  tiledeck pack --base-path /data --feed feed.ndjson --output tiles.mbtiles

  # Pack real .mvt fixtures for testing
  tiledeck pack --base-path ./testdata --mvt-fixtures ./testdata/tiles --output tiles.mbtiles`,
	RunE: runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().String("feed", "", "source feed URL or file path")
	packCmd.Flags().String("mvt-fixtures", "", "directory of real .mvt tile fixtures to decode instead of a feed")
	packCmd.Flags().StringP("output", "o", "", "output MBTiles archive path")
	packCmd.Flags().Int("min-zoom", -1, "minimum zoom level (defaults to config)")
	packCmd.Flags().Int("max-zoom", -1, "maximum zoom level (defaults to config)")
	packCmd.Flags().String("bbox", "", "bounding box for progress reporting: 'min_lon,min_lat,max_lon,max_lat'")
	packCmd.Flags().Int("threads", 0, "encoder worker count (defaults to config)")
	packCmd.Flags().Bool("ordered", false, "emit tiles to the archive in strict TileCoord order")
	packCmd.Flags().String("name", "", "archive name metadata")
	packCmd.Flags().String("description", "", "archive description metadata")
	packCmd.Flags().String("attribution", "", "archive attribution metadata")

	packCmd.MarkFlagsMutuallyExclusive("feed", "mvt-fixtures")
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	feed, _ := cmd.Flags().GetString("feed")
	fixtureDir, _ := cmd.Flags().GetString("mvt-fixtures")
	outputPath, _ := cmd.Flags().GetString("output")
	minZoomFlag, _ := cmd.Flags().GetInt("min-zoom")
	maxZoomFlag, _ := cmd.Flags().GetInt("max-zoom")
	bboxStr, _ := cmd.Flags().GetString("bbox")
	threadsFlag, _ := cmd.Flags().GetInt("threads")
	ordered, _ := cmd.Flags().GetBool("ordered")
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	attribution, _ := cmd.Flags().GetString("attribution")

	if outputPath == "" {
		return fmt.Errorf("--output is required")
	}
	if feed == "" && fixtureDir == "" {
		return fmt.Errorf("one of --feed or --mvt-fixtures is required")
	}

	minZoom, maxZoom := cfg.Pipeline.MinZoom, cfg.Pipeline.MaxZoom
	if minZoomFlag >= 0 {
		minZoom = minZoomFlag
	}
	if maxZoomFlag >= 0 {
		maxZoom = maxZoomFlag
	}
	threads := cfg.Pipeline.Threads
	if threadsFlag > 0 {
		threads = threadsFlag
	}

	var bbox *BoundingBox
	if bboxStr != "" {
		bbox, err = parseBoundingBox(bboxStr)
		if err != nil {
			return fmt.Errorf("failed to parse bounding box: %w", err)
		}
	} else if b := cfg.Pipeline.LatLonBounds; b != ([4]float64{}) {
		// No --bbox flag: fall back to the config file's lat_lon_bounds
		// (already validated as west < east, south < north).
		bbox = &BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
	}

	var stream sourcefeed.FeatureStream
	if fixtureDir != "" {
		stream, err = sourcefeed.NewMVTFixtureStream(fixtureDir)
		if err != nil {
			return fmt.Errorf("failed to load mvt fixtures: %w", err)
		}
	} else {
		factory := feedfetch.NewFetcherFactory(cfg)
		fetcher, err := factory.CreateOptimalFetcher()
		if err != nil {
			return fmt.Errorf("failed to create feed fetcher: %w", err)
		}
		resp, err := fetcher.FetchWithRetry(feedfetch.NewRequest(feed))
		if err != nil {
			return fmt.Errorf("failed to retrieve source feed: %w", err)
		}
		stream = sourcefeed.NewNDJSONStream(bytes.NewReader(resp.Data), 0)
	}

	archiveImpl, err := archive.Open(outputPath, cfg.Pipeline.DeferIndexCreation)
	if err != nil {
		return fmt.Errorf("failed to open output archive: %w", err)
	}
	if err := archiveImpl.SetupSchema(); err != nil {
		return fmt.Errorf("failed to set up archive schema: %w", err)
	}

	bounds := [4]float64{-180, -85.0511, 180, 85.0511}
	if bbox != nil {
		bounds = [4]float64{bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat}
	}
	metadata := archive.Metadata{
		Name:        name,
		Description: description,
		Attribution: attribution,
		Version:     "1.0.0",
		Type:        "baselayer",
		Bounds:      bounds,
		Center:      [3]float64{(bounds[0] + bounds[2]) / 2, (bounds[1] + bounds[3]) / 2, float64(minZoom)},
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
	}
	if err := archiveImpl.SetMetadata(metadata); err != nil {
		return fmt.Errorf("failed to write archive metadata: %w", err)
	}

	extents := zoomExtentsFromConfig(cfg.Pipeline.Extents)
	if extents == nil {
		extents = buildZoomExtents(minZoom, maxZoom, bbox)
	}
	counters := telemetry.New(minZoom, maxZoom, extents)

	verbose := viper.GetBool("logging.verbose")
	summarized := &summarizingArchive{Archive: archiveImpl, counters: counters}

	supervisor := &pipeline.Supervisor{
		Config: pipeline.Config{
			MinZoom:             minZoom,
			MaxZoom:             maxZoom,
			Threads:             threads,
			EmitTilesInOrder:    ordered,
			DeferIndexCreation:  cfg.Pipeline.DeferIndexCreation,
			OptimizeDB:          cfg.Pipeline.OptimizeDB,
			MaxTilesPerBatch:    cfg.Pipeline.MaxTilesPerBatch,
			MaxFeaturesPerBatch: cfg.Pipeline.MaxFeaturesPerBatch,
			OversizedTileBytes:  cfg.Pipeline.OversizedTileBytes,
			QueueCapacity:       cfg.Pipeline.QueueCapacity,
		},
		Stream:         stream,
		Archive:        summarized,
		Counters:       counters,
		PostProcessors: pipeline.NewPostProcessorRegistry(),
		OnOversizedTile: func(tileStr string, size int) {
			fmt.Fprintf(os.Stderr, "warning: tile %s is %d bytes, exceeds the oversized threshold\n", tileStr, size)
		},
	}

	if verbose {
		done := make(chan struct{})
		go reportProgress(counters, cfg.Pipeline.LogInterval, done)
		defer close(done)
	}

	start := time.Now()
	if err := supervisor.Run(); err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	if verbose {
		summary := counters.BuildSummary()
		fmt.Fprintf(os.Stderr, "\npacked %d tiles (%d features, %d memoized) in %v\n",
			summary.TotalTiles, summary.FeaturesProcessed, summary.MemoizedTiles, time.Since(start))
	}

	return nil
}

// summarizingArchive wraps an Archive so the run's telemetry summary
// is embedded as extra metadata just before the underlying archive
// closes, letting a later inspect pick it up without re-running.
type summarizingArchive struct {
	archive.Archive
	counters *telemetry.Counters
}

func (a *summarizingArchive) Close() error {
	summary := a.counters.BuildSummary()
	if data, err := json.Marshal(summary); err == nil {
		_ = a.SetExtra(telemetry.SummaryMetadataKey, string(data))
	}
	return a.Archive.Close()
}

func reportProgress(counters *telemetry.Counters, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s", counters.LastTileString())
		case <-done:
			return
		}
	}
}

// BoundingBox is a geographic bounding box used for progress-extent
// computation and archive bounds metadata.
type BoundingBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// parseBoundingBox parses a "min_lon,min_lat,max_lon,max_lat" string.
func parseBoundingBox(bbox string) (*BoundingBox, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bounding box must have 4 values: min_lon,min_lat,max_lon,max_lat")
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate value: %s", part)
		}
		coords[i] = val
	}

	return &BoundingBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
	}, nil
}

// zoomExtentsFromConfig converts the config file's explicit per-zoom
// extents, when present, into telemetry.ZoomExtent form. It returns
// nil when the config carries no extents, so callers fall back to
// buildZoomExtents deriving them from the bounding box instead.
func zoomExtentsFromConfig(configured map[int][2]int) map[int]telemetry.ZoomExtent {
	if len(configured) == 0 {
		return nil
	}
	extents := make(map[int]telemetry.ZoomExtent, len(configured))
	for z, minMax := range configured {
		extents[z] = telemetry.ZoomExtent{MinX: minMax[0], MaxX: minMax[1]}
	}
	return extents
}

// buildZoomExtents computes each zoom level's tile-column range for
// progress percentage reporting: the full column range when no
// bounding box is given, or the range the box covers.
func buildZoomExtents(minZoom, maxZoom int, bbox *BoundingBox) map[int]telemetry.ZoomExtent {
	extents := make(map[int]telemetry.ZoomExtent, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		var minX, maxX int
		if bbox != nil {
			minX, _ = deg2tile(bbox.MinLon, bbox.MaxLat, z)
			maxX, _ = deg2tile(bbox.MaxLon, bbox.MinLat, z)
		} else {
			maxX = (1 << uint(z)) - 1
		}
		extents[z] = telemetry.ZoomExtent{MinX: minX, MaxX: maxX}
	}
	return extents
}

// deg2tile converts geographic coordinates to tile coordinates using
// the standard web mercator tile calculation.
func deg2tile(lon, lat float64, z int) (int, int) {
	n := 1 << uint(z)
	x := int((lon + 180.0) / 360.0 * float64(n))
	latRad := lat * math.Pi / 180.0
	y := int((1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * float64(n))
	return x, y
}
