package vtile

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestNewFixtureConverterWithOptions(t *testing.T) {
	options := &ConversionOptions{
		CoordinateSystem: CoordSystemWGS84,
		SimplifyGeometry: true,
	}

	converter, err := NewFixtureConverter(options)
	if err != nil {
		t.Fatalf("NewFixtureConverter: %v", err)
	}
	if converter.options.CoordinateSystem != CoordSystemWGS84 {
		t.Errorf("CoordinateSystem = %s, want %s", converter.options.CoordinateSystem, CoordSystemWGS84)
	}
}

func TestNewFixtureConverterRejectsUnknownCoordSystem(t *testing.T) {
	_, err := NewFixtureConverter(&ConversionOptions{CoordinateSystem: "invalid"})
	if err == nil {
		t.Fatal("expected an error for an unknown coordinate system")
	}
}

func TestValidateConversionOptions(t *testing.T) {
	tests := []struct {
		name    string
		options *ConversionOptions
		wantErr bool
	}{
		{"web-mercator", &ConversionOptions{CoordinateSystem: CoordSystemWebMercator}, false},
		{"wgs84", &ConversionOptions{CoordinateSystem: CoordSystemWGS84}, false},
		{"unknown", &ConversionOptions{CoordinateSystem: "invalid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversionOptions(tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConversionOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransformGeometryToWGS84(t *testing.T) {
	converter, err := NewFixtureConverter(&ConversionOptions{CoordinateSystem: CoordSystemWGS84})
	if err != nil {
		t.Fatalf("NewFixtureConverter: %v", err)
	}

	// Roughly New York City in Web Mercator.
	webMercatorPoint := orb.Point{-8238310.24, 4969803.34}
	transformed := converter.transformGeometryToWGS84(webMercatorPoint)
	point := transformed.(orb.Point)

	wantLon, wantLat, tolerance := -74.006, 40.7128, 0.1
	if abs(point[0]-wantLon) > tolerance {
		t.Errorf("longitude = %f, want ~%f", point[0], wantLon)
	}
	if abs(point[1]-wantLat) > tolerance {
		t.Errorf("latitude = %f, want ~%f", point[1], wantLat)
	}
}

func TestContains(t *testing.T) {
	slice := []string{"water", "roads", "buildings"}
	if !contains(slice, "water") {
		t.Error("expected \"water\" to be found")
	}
	if contains(slice, "parks") {
		t.Error("expected \"parks\" not to be found")
	}
}

func TestConvertFeatureToGeoJSON(t *testing.T) {
	converter, err := NewFixtureConverter(&ConversionOptions{CoordinateSystem: CoordSystemWebMercator})
	if err != nil {
		t.Fatalf("NewFixtureConverter: %v", err)
	}

	id := uint64(7)
	feature := &DecodedFeature{
		ID:       &id,
		Tags:     map[string]interface{}{"name": "Test", "type": "example"},
		Geometry: orb.Point{1.0, 2.0},
	}

	geoJSONFeature, err := converter.convertFeatureToGeoJSON(feature, "test-layer")
	if err != nil {
		t.Fatalf("convertFeatureToGeoJSON: %v", err)
	}
	if geoJSONFeature.ID != id {
		t.Errorf("ID = %v, want %v", geoJSONFeature.ID, id)
	}
	if geoJSONFeature.Properties["_layer"] != "test-layer" {
		t.Errorf("_layer = %v, want test-layer", geoJSONFeature.Properties["_layer"])
	}
	if geoJSONFeature.Properties["name"] != "Test" {
		t.Errorf("name = %v, want Test", geoJSONFeature.Properties["name"])
	}
}

func TestConvertFeatureToGeoJSONAppliesPropertyFilter(t *testing.T) {
	converter, err := NewFixtureConverter(&ConversionOptions{
		PropertyFilter:   []string{"name"},
		CoordinateSystem: CoordSystemWebMercator,
	})
	if err != nil {
		t.Fatalf("NewFixtureConverter: %v", err)
	}

	feature := &DecodedFeature{
		Tags: map[string]interface{}{
			"name":        "Test",
			"type":        "example",
			"description": "should be filtered out",
		},
		Geometry: orb.Point{1.0, 2.0},
	}

	geoJSONFeature, err := converter.convertFeatureToGeoJSON(feature, "test-layer")
	if err != nil {
		t.Fatalf("convertFeatureToGeoJSON: %v", err)
	}
	if geoJSONFeature.Properties["name"] != "Test" {
		t.Error("expected \"name\" property to be included")
	}
	if _, exists := geoJSONFeature.Properties["description"]; exists {
		t.Error("expected \"description\" property to be filtered out")
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
