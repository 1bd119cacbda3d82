// Package sourcefeed is a stand-in for the upstream feature store the
// pipeline consumes: a lazy, finite, ordered sequence of per-tile
// feature groups. Real deployments would replace this with a feature
// store fed by an OSM reader and schema-driven classifier; this
// package exists so the pipeline is runnable and testable end to end.
// It reads one newline-delimited JSON line per tile, each describing
// that tile's features, from either a file or an in-memory slice.
package sourcefeed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/tilecodec"
)

// record is the on-the-wire NDJSON shape: one line per tile.
type record struct {
	Z      int                        `json:"z"`
	X      int                        `json:"x"`
	Y      int                        `json:"y"`
	Layers map[string][]featureRecord `json:"layers"`
}

type featureRecord struct {
	ID         uint64                 `json:"id,omitempty"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// TileFeatures is the concrete realization of the pipeline's opaque
// upstream handle: the features that fall within one tile coordinate.
type TileFeatures struct {
	tile    coord.Tile
	layers  map[string][]featureRecord
	emitted int
	canon   []byte // canonical JSON of layers, computed once, used by HasSameContents
}

// Coord returns the tile coordinate this feature group belongs to.
func (tf *TileFeatures) Coord() coord.Tile {
	return tf.tile
}

// NumFeaturesToEmit returns the count of features this group will
// produce when built into a tile.
func (tf *TileFeatures) NumFeaturesToEmit() int {
	return tf.emitted
}

// NumFeaturesProcessed returns the count of features actually consumed
// while building the tile. For this stand-in it equals NumFeaturesToEmit.
func (tf *TileFeatures) NumFeaturesProcessed() int {
	return tf.emitted
}

// HasSameContents is a content-equality predicate used by the
// encoder's per-worker memoization: two adjacent TileFeatures with
// byte-identical canonical JSON are assumed to encode identically.
func (tf *TileFeatures) HasSameContents(other *TileFeatures) bool {
	if other == nil {
		return false
	}
	if len(tf.canon) != len(other.canon) {
		return false
	}
	for i := range tf.canon {
		if tf.canon[i] != other.canon[i] {
			return false
		}
	}
	return true
}

// BuildTile decodes the raw per-feature geometry and assembles the
// tilecodec layer list ready for encoding.
func (tf *TileFeatures) BuildTile() ([]tilecodec.Layer, error) {
	names := make([]string, 0, len(tf.layers))
	for name := range tf.layers {
		names = append(names, name)
	}
	sort.Strings(names)

	layers := make([]tilecodec.Layer, 0, len(names))
	for _, name := range names {
		records := tf.layers[name]
		features := make([]tilecodec.Feature, 0, len(records))
		for _, r := range records {
			geom, err := unmarshalGeometry(r.Geometry)
			if err != nil {
				return nil, internal.NewError(internal.ErrorCodeValidation,
					fmt.Sprintf("decode geometry for tile %s layer %s", tf.tile, name), err)
			}
			features = append(features, tilecodec.Feature{
				ID:         r.ID,
				Geometry:   geom,
				Properties: r.Properties,
			})
		}
		layers = append(layers, tilecodec.Layer{Name: name, Features: features})
	}
	return layers, nil
}

func unmarshalGeometry(raw json.RawMessage) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

func marshalGeometry(g orb.Geometry) (json.RawMessage, error) {
	gj := geojson.NewGeometry(g)
	return gj.MarshalJSON()
}

// FeatureStream is an ordered, restartable-once sequence of
// TileFeatures sorted by TileCoord, exposing cumulative feature count
// for progress reporting.
type FeatureStream interface {
	// Next returns the next TileFeatures in the stream, or ok=false
	// when the stream is exhausted.
	Next() (tf *TileFeatures, ok bool, err error)
	// NumFeatures returns the cumulative number of features the
	// stream is expected to yield in total, for progress computation.
	NumFeatures() int64
}

// ndjsonStream reads one TileFeatures per line of newline-delimited
// JSON, the file-backed stand-in for the upstream feature store.
type ndjsonStream struct {
	scanner      *bufio.Scanner
	closer       io.Closer
	totalFeature int64
	lineNo       int
}

// NewNDJSONStream wraps r as a FeatureStream. totalFeatures seeds
// NumFeatures() for progress reporting when the caller already knows
// the expected count (e.g. from an index); pass 0 if unknown.
func NewNDJSONStream(r io.Reader, totalFeatures int64) FeatureStream {
	closer, _ := r.(io.Closer)
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &ndjsonStream{scanner: s, closer: closer, totalFeature: totalFeatures}
}

func (s *ndjsonStream) Next() (*TileFeatures, bool, error) {
	for s.scanner.Scan() {
		s.lineNo++
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, false, internal.NewError(internal.ErrorCodeValidation,
				fmt.Sprintf("parse source feed line %d", s.lineNo), err)
		}
		return toTileFeatures(rec), true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, false, internal.NewError(internal.ErrorCodeFileSystem, "read source feed", err)
	}
	if s.closer != nil {
		_ = s.closer.Close()
	}
	return nil, false, nil
}

func (s *ndjsonStream) NumFeatures() int64 {
	return s.totalFeature
}

func toTileFeatures(rec record) *TileFeatures {
	tf := &TileFeatures{
		tile:   coord.New(rec.Z, rec.X, rec.Y),
		layers: rec.Layers,
	}
	for _, features := range rec.Layers {
		tf.emitted += len(features)
	}
	tf.canon = canonicalize(rec.Layers)
	return tf
}

func canonicalize(layers map[string][]featureRecord) []byte {
	// json.Marshal of a Go map sorts its keys, giving a stable byte
	// representation across calls with the same logical content.
	b, _ := json.Marshal(layers)
	return b
}

// memoryStream is an in-memory FeatureStream, used by tests and small
// one-shot runs that assemble TileFeatures programmatically instead of
// parsing NDJSON.
type memoryStream struct {
	items []*TileFeatures
	pos   int
	total int64
}

// NewMemoryStream builds a FeatureStream over an in-memory, already
// TileCoord-ordered slice of TileFeatures.
func NewMemoryStream(items []*TileFeatures) FeatureStream {
	var total int64
	for _, it := range items {
		total += int64(it.NumFeaturesToEmit())
	}
	return &memoryStream{items: items, total: total}
}

func (s *memoryStream) Next() (*TileFeatures, bool, error) {
	if s.pos >= len(s.items) {
		return nil, false, nil
	}
	tf := s.items[s.pos]
	s.pos++
	return tf, true, nil
}

func (s *memoryStream) NumFeatures() int64 {
	return s.total
}

// NewTileFeatures builds a TileFeatures value directly from decoded
// layers, for tests and in-memory streams that don't round-trip
// through NDJSON.
func NewTileFeatures(tile coord.Tile, layers map[string][]tilecodec.Feature) *TileFeatures {
	recs := make(map[string][]featureRecord, len(layers))
	emitted := 0
	for name, features := range layers {
		fr := make([]featureRecord, 0, len(features))
		for _, f := range features {
			geomJSON, _ := marshalGeometry(f.Geometry)
			fr = append(fr, featureRecord{
				ID:         f.ID,
				Geometry:   geomJSON,
				Properties: f.Properties,
			})
		}
		recs[name] = fr
		emitted += len(features)
	}
	tf := &TileFeatures{tile: tile, layers: recs, emitted: emitted}
	tf.canon = canonicalize(recs)
	return tf
}
