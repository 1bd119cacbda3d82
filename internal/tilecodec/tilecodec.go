// Package tilecodec encodes feature layers into Mapbox Vector Tile bytes
// and gzips the result deterministically, clipping and projecting each
// layer's geometry into the target tile before serializing it.
package tilecodec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/coord"
)

var zeroTime time.Time

// DefaultExtent is the MVT tile extent used when a layer does not
// specify its own.
const DefaultExtent = 4096

// Feature is one geographic feature destined for a tile layer. Geometry
// is in WGS84 lon/lat; Encode projects it into tile-local pixel space.
type Feature struct {
	ID         uint64
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Layer groups features under a named MVT layer.
type Layer struct {
	Name     string
	Features []Feature
}

// Encode projects layers onto the given tile and marshals them into
// MVT protobuf bytes, clipping each layer's features to the tile bound
// before projecting them into tile-local pixel space.
func Encode(tile coord.Tile, layers []Layer) ([]byte, error) {
	z, x, y := tile.Decode()
	mt := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	tileBound := mt.Bound()

	mvtLayers := make(mvt.Layers, 0, len(layers))
	for _, l := range layers {
		fc := geojson.NewFeatureCollection()
		for _, f := range l.Features {
			gf := geojson.NewFeature(f.Geometry)
			gf.Properties = f.Properties
			if f.ID != 0 {
				gf.ID = f.ID
			}
			fc.Append(gf)
		}
		if len(fc.Features) == 0 {
			continue
		}
		layer := mvt.NewLayer(l.Name, fc)
		layer.Clip(tileBound)
		layer.ProjectToTile(mt)
		layer.RemoveEmpty(0.5, 0.5)
		if len(layer.Features) == 0 {
			continue
		}
		mvtLayers = append(mvtLayers, layer)
	}

	data, err := mvt.Marshal(mvtLayers)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeEncodeFailure,
			fmt.Sprintf("marshal mvt for tile %s", tile), err)
	}
	return data, nil
}

// Gzip compresses data deterministically: the gzip header's mtime is
// zeroed and its OS field fixed so identical inputs always produce identical
// bytes, which the pipeline's per-worker memoization relies on for
// observability (identical gzip output implies identical source bytes).
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeEncodeFailure, "create gzip writer", err)
	}
	zw.Header.ModTime = zeroTime
	zw.Header.OS = 255 // "unknown", the value gzip.Writer writes by default

	if _, err := zw.Write(data); err != nil {
		return nil, internal.NewError(internal.ErrorCodeEncodeFailure, "write gzip stream", err)
	}
	if err := zw.Close(); err != nil {
		return nil, internal.NewError(internal.ErrorCodeEncodeFailure, "close gzip stream", err)
	}
	return buf.Bytes(), nil
}
