package vtile

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestNewTileDecoder(t *testing.T) {
	decoder := NewTileDecoder()
	if decoder.extent != 4096 {
		t.Errorf("extent = %d, want 4096", decoder.extent)
	}
}

func TestNewTileDecoderWithExtent(t *testing.T) {
	decoder := NewTileDecoderWithExtent(512)
	if decoder.extent != 512 {
		t.Errorf("extent = %d, want 512", decoder.extent)
	}
}

func TestDecodeEmptyData(t *testing.T) {
	decoder := NewTileDecoder()
	_, err := decoder.Decode([]byte{}, 1, 1, 1)
	if err == nil {
		t.Fatal("expected an error for empty tile data")
	}
	if err.Error() != "empty tile data" {
		t.Errorf("err = %q, want %q", err.Error(), "empty tile data")
	}
}

func TestTileIDString(t *testing.T) {
	tid := TileID{Z: 14, X: 8362, Y: 5956}
	if got, want := tid.String(), "14/8362/5956"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTileIDValidate(t *testing.T) {
	tests := []struct {
		name    string
		tid     TileID
		wantErr bool
	}{
		{"valid coordinates", TileID{14, 8362, 5956}, false},
		{"negative zoom", TileID{-1, 0, 0}, true},
		{"zoom too high", TileID{23, 0, 0}, true},
		{"negative x", TileID{1, -1, 0}, true},
		{"x too high", TileID{1, 2, 0}, true},
		{"negative y", TileID{1, 0, -1}, true},
		{"y too high", TileID{1, 0, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tid.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyGeometryTransform(t *testing.T) {
	identity := func(p orb.Point) orb.Point { return p }

	point := orb.Point{1.0, 2.0}
	if result := applyGeometryTransform(point, identity); result != point {
		t.Errorf("Point: got %v, want %v", result, point)
	}

	lineString := orb.LineString{{1.0, 2.0}, {3.0, 4.0}}
	result := applyGeometryTransform(lineString, identity)
	if got := len(result.(orb.LineString)); got != 2 {
		t.Errorf("LineString: got %d points, want 2", got)
	}
}

func TestDecodedTileLayerNames(t *testing.T) {
	dt := &DecodedTile{
		Layers: map[string]*DecodedLayer{
			"water":  {},
			"roads":  {},
			"places": {},
		},
	}

	names := dt.LayerNames()
	want := []string{"places", "roads", "water"}
	if len(names) != len(want) {
		t.Fatalf("LayerNames() = %v, want %v", names, want)
	}
	for i, name := range names {
		if name != want[i] {
			t.Errorf("LayerNames()[%d] = %s, want %s", i, name, want[i])
		}
	}
}

func TestDecodedTileIsEmpty(t *testing.T) {
	empty := &DecodedTile{Layers: map[string]*DecodedLayer{}}
	if !empty.IsEmpty() {
		t.Error("expected empty tile to report IsEmpty() == true")
	}

	nonEmpty := &DecodedTile{
		Layers: map[string]*DecodedLayer{
			"test": {Features: []*DecodedFeature{{}}},
		},
	}
	if nonEmpty.IsEmpty() {
		t.Error("expected non-empty tile to report IsEmpty() == false")
	}
}
