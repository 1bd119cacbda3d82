package vtile

import (
	"fmt"
	"log"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// Coordinate system constants for ConversionOptions.CoordinateSystem.
const (
	CoordSystemWebMercator = "web-mercator"
	CoordSystemWGS84       = "wgs84"
)

// ConversionOptions configures FixtureConverter.Convert.
type ConversionOptions struct {
	IncludeMetadata  bool     `json:"include_metadata"`
	LayerFilter      []string `json:"layer_filter,omitempty"`
	PropertyFilter   []string `json:"property_filter,omitempty"`
	SimplifyGeometry bool     `json:"simplify_geometry"`
	CoordinateSystem string   `json:"coordinate_system"`
}

// ConversionMetadata describes one converted tile's provenance.
type ConversionMetadata struct {
	Layers       []string `json:"layers"`
	FeatureCount int      `json:"feature_count"`
	Version      int      `json:"version"`
	Extent       int      `json:"extent"`
	TileID       string   `json:"tile_id"`
}

// FixtureConverter turns one real .mvt tile's bytes into a GeoJSON
// FeatureCollection, the shape internal/sourcefeed needs to build a
// TileFeatures from a tile fixture on disk. CoordinateSystem must be
// CoordSystemWGS84 for that caller: TileFeatures geometry is always
// lon/lat, never Web Mercator.
type FixtureConverter struct {
	decoder *TileDecoder
	options *ConversionOptions
}

// NewFixtureConverter builds a converter with custom options.
func NewFixtureConverter(options *ConversionOptions) (*FixtureConverter, error) {
	if err := ValidateConversionOptions(options); err != nil {
		return nil, fmt.Errorf("invalid conversion options: %w", err)
	}

	return &FixtureConverter{
		decoder: NewTileDecoder(),
		options: options,
	}, nil
}

// Convert decodes data as tile (z, x, y) and returns its features as a
// GeoJSON FeatureCollection (as a generic map, ready for json.Marshal)
// alongside the tile's metadata.
func (c *FixtureConverter) Convert(data []byte, z, x, y int) (map[string]interface{}, *ConversionMetadata, error) {
	decodedTile, err := c.decoder.Decode(data, z, x, y)
	if err != nil {
		return nil, nil, fmt.Errorf("decode tile: %w", err)
	}

	featureCollection := &geojson.FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*geojson.Feature, 0),
	}

	var conversionErrors []error

	for layerName, layer := range decodedTile.Layers {
		if len(c.options.LayerFilter) > 0 && !contains(c.options.LayerFilter, layerName) {
			continue
		}

		for _, feature := range layer.Features {
			if feature.Geometry == nil {
				log.Printf("vtile: skipping feature with nil geometry in layer %s", layerName)
				continue
			}

			geoJSONFeature, err := c.convertFeatureToGeoJSON(feature, layerName)
			if err != nil {
				conversionErrors = append(conversionErrors, fmt.Errorf("layer %s: %w", layerName, err))
				continue
			}

			if c.options.SimplifyGeometry && geoJSONFeature.Geometry != nil {
				geoJSONFeature.Geometry = simplify.DouglasPeucker(1.0).Simplify(geoJSONFeature.Geometry)
			}

			featureCollection.Features = append(featureCollection.Features, geoJSONFeature)
		}
	}

	if len(conversionErrors) > 0 {
		log.Printf("vtile: conversion completed with %d errors", len(conversionErrors))
		for _, err := range conversionErrors {
			log.Printf("vtile: conversion error: %v", err)
		}
	}

	if c.options.CoordinateSystem == CoordSystemWGS84 {
		c.transformToWGS84(featureCollection)
	}

	metadata := &ConversionMetadata{
		Layers:       decodedTile.LayerNames(),
		FeatureCount: len(featureCollection.Features),
		Version:      decodedTile.Version,
		Extent:       decodedTile.Extent,
		TileID:       decodedTile.TileID.String(),
	}

	result := map[string]interface{}{
		"type":     featureCollection.Type,
		"features": featureCollection.Features,
	}
	if c.options.IncludeMetadata {
		result["metadata"] = metadata
	}

	return result, metadata, nil
}

func (c *FixtureConverter) convertFeatureToGeoJSON(feature *DecodedFeature, layerName string) (*geojson.Feature, error) {
	geoJSONFeature := &geojson.Feature{
		Type:     "Feature",
		Geometry: feature.Geometry,
	}
	if feature.ID != nil {
		geoJSONFeature.ID = *feature.ID
	}

	properties := make(map[string]interface{})
	for key, value := range feature.Tags {
		if len(c.options.PropertyFilter) > 0 && !contains(c.options.PropertyFilter, key) {
			continue
		}
		properties[key] = value
	}
	properties["_layer"] = layerName
	geoJSONFeature.Properties = properties

	return geoJSONFeature, nil
}

func (c *FixtureConverter) transformToWGS84(featureCollection *geojson.FeatureCollection) {
	for _, feature := range featureCollection.Features {
		if feature.Geometry != nil {
			feature.Geometry = c.transformGeometryToWGS84(feature.Geometry)
		}
	}
}

// transformGeometryToWGS84 converts Web Mercator meters to lon/lat
// degrees via the standard inverse spherical Mercator projection.
func (c *FixtureConverter) transformGeometryToWGS84(geometry orb.Geometry) orb.Geometry {
	const webMercatorMax = 20037508.342789244

	transform := func(point orb.Point) orb.Point {
		x, y := point[0], point[1]

		lon := (x / webMercatorMax) * 180.0

		lat := y / webMercatorMax
		lat = 180.0 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi)) - math.Pi/2.0)

		return orb.Point{lon, lat}
	}

	return applyGeometryTransform(geometry, transform)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ValidateConversionOptions checks that options names a supported
// coordinate system.
func ValidateConversionOptions(options *ConversionOptions) error {
	if options.CoordinateSystem != CoordSystemWebMercator && options.CoordinateSystem != CoordSystemWGS84 {
		return fmt.Errorf("invalid coordinate system: %s, must be %q or %q",
			options.CoordinateSystem, CoordSystemWebMercator, CoordSystemWGS84)
	}
	return nil
}
