// Package vtile decodes Mapbox Vector Tile bytes into geographic
// features and converts them to GeoJSON, so a real .mvt fixture can
// feed the archive pipeline the same way a synthetic NDJSON document
// does. It is a standalone codec: nothing here knows about batches,
// archives, or telemetry.
package vtile

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// TileDecoder unmarshals one MVT tile's Protocol Buffer bytes into its
// constituent layers and features, transforming tile-local pixel
// coordinates into Web Mercator along the way.
type TileDecoder struct {
	extent int
}

// NewTileDecoder returns a decoder using the MVT spec's default 4096
// tile extent.
func NewTileDecoder() *TileDecoder {
	return &TileDecoder{extent: 4096}
}

// NewTileDecoderWithExtent returns a decoder for tiles encoded at a
// non-default extent.
func NewTileDecoderWithExtent(extent int) *TileDecoder {
	return &TileDecoder{extent: extent}
}

// DecodedTile holds every layer decoded from one tile's bytes.
type DecodedTile struct {
	Layers  map[string]*DecodedLayer `json:"layers"`
	Extent  int                      `json:"extent"`
	Version int                      `json:"version"`
	TileID  TileID                   `json:"tile_id"`
}

// DecodedLayer is one named layer within a decoded tile.
type DecodedLayer struct {
	Name     string            `json:"name"`
	Features []*DecodedFeature `json:"features"`
	Extent   int               `json:"extent"`
	Version  int               `json:"version"`
	Keys     []string          `json:"keys,omitempty"`
	Values   []interface{}     `json:"values,omitempty"`
}

// DecodedFeature is one feature within a layer, with its geometry
// already transformed out of tile-local pixel space.
type DecodedFeature struct {
	ID       *uint64                `json:"id,omitempty"`
	Tags     map[string]interface{} `json:"tags"`
	Type     geojson.GeometryType   `json:"type"`
	Geometry orb.Geometry           `json:"geometry"`
}

// TileID identifies a tile by zoom and tile-grid column/row.
type TileID struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Decode parses data as the MVT bytes for tile (z, x, y) and returns
// its layers with geometry in Web Mercator coordinates.
func (d *TileDecoder) Decode(data []byte, z, x, y int) (*DecodedTile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty tile data")
	}

	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal mvt data: %w", err)
	}

	decodedTile := &DecodedTile{
		Layers:  make(map[string]*DecodedLayer),
		Extent:  d.extent,
		Version: 2,
		TileID:  TileID{Z: z, X: x, Y: y},
	}

	for layerName, layer := range layers {
		decodedLayer, err := d.decodeLayer(layerName, layer, z, x, y)
		if err != nil {
			return nil, fmt.Errorf("decode layer %s: %w", layerName, err)
		}
		decodedTile.Layers[layerName] = decodedLayer
	}

	return decodedTile, nil
}

func (d *TileDecoder) decodeLayer(layerName string, layer *mvt.Layer, z, x, y int) (*DecodedLayer, error) {
	decodedLayer := &DecodedLayer{
		Name:     layerName,
		Features: make([]*DecodedFeature, 0, len(layer.Features)),
		Extent:   int(layer.Extent),
		Version:  int(layer.Version),
	}

	for _, feature := range layer.Features {
		decodedFeature, err := d.decodeFeature(feature, z, x, y)
		if err != nil {
			// Malformed individual features are skipped rather than
			// failing the whole tile.
			continue
		}
		decodedLayer.Features = append(decodedLayer.Features, decodedFeature)
	}

	return decodedLayer, nil
}

func (d *TileDecoder) decodeFeature(feature *mvt.Feature, z, x, y int) (*DecodedFeature, error) {
	geometry := feature.Geometry
	if geometry == nil {
		return nil, fmt.Errorf("feature has no geometry")
	}

	transformedGeometry := d.transformGeometry(geometry, z, x, y)

	decodedFeature := &DecodedFeature{
		Tags:     feature.Tags,
		Geometry: transformedGeometry,
	}
	if feature.ID != nil {
		decodedFeature.ID = feature.ID
	}

	switch transformedGeometry.(type) {
	case orb.Point:
		decodedFeature.Type = geojson.TypePoint
	case orb.MultiPoint:
		decodedFeature.Type = geojson.TypeMultiPoint
	case orb.LineString:
		decodedFeature.Type = geojson.TypeLineString
	case orb.MultiLineString:
		decodedFeature.Type = geojson.TypeMultiLineString
	case orb.Polygon:
		decodedFeature.Type = geojson.TypePolygon
	case orb.MultiPolygon:
		decodedFeature.Type = geojson.TypeMultiPolygon
	default:
		return nil, fmt.Errorf("unsupported geometry type: %T", transformedGeometry)
	}

	return decodedFeature, nil
}

// transformGeometry maps tile-local pixel coordinates to Web Mercator.
func (d *TileDecoder) transformGeometry(geometry orb.Geometry, z, x, y int) orb.Geometry {
	n := float64(uint64(1) << uint(z))
	tileSize := float64(d.extent)

	const webMercatorMax = 20037508.342789244

	transform := func(point orb.Point) orb.Point {
		tileX := point[0] / tileSize
		tileY := point[1] / tileSize

		globalX := (float64(x) + tileX) / n
		globalY := (float64(y) + tileY) / n

		mercatorX := (globalX*2.0 - 1.0) * webMercatorMax
		mercatorY := (1.0 - globalY*2.0) * webMercatorMax

		return orb.Point{mercatorX, mercatorY}
	}

	return applyGeometryTransform(geometry, transform)
}

// LayerNames returns the tile's layer names in sorted order.
func (dt *DecodedTile) LayerNames() []string {
	names := make([]string, 0, len(dt.Layers))
	for name := range dt.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FeatureCount returns the total number of features across all layers.
func (dt *DecodedTile) FeatureCount() int {
	count := 0
	for _, layer := range dt.Layers {
		count += len(layer.Features)
	}
	return count
}

// IsEmpty reports whether the tile has no features in any layer.
func (dt *DecodedTile) IsEmpty() bool {
	return dt.FeatureCount() == 0
}

// String renders the tile ID as "z/x/y".
func (tid TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", tid.Z, tid.X, tid.Y)
}

// Validate reports whether x and y are in range for zoom z under the
// standard slippy-map tile grid.
func (tid TileID) Validate() error {
	if tid.Z < 0 || tid.Z > 22 {
		return fmt.Errorf("invalid zoom level %d: must be between 0 and 22", tid.Z)
	}

	maxTile := 1 << uint(tid.Z)
	if tid.X < 0 || tid.X >= maxTile {
		return fmt.Errorf("invalid x %d for zoom %d: must be between 0 and %d", tid.X, tid.Z, maxTile-1)
	}
	if tid.Y < 0 || tid.Y >= maxTile {
		return fmt.Errorf("invalid y %d for zoom %d: must be between 0 and %d", tid.Y, tid.Z, maxTile-1)
	}

	return nil
}
