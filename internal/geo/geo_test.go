package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestTileTopLeftLonLatOrigin(t *testing.T) {
	lon, lat := TileTopLeftLonLat(0, 0, 0)
	if lon != -180 {
		t.Errorf("lon = %v, want -180", lon)
	}
	if math.Abs(lat-85.05113) > 1e-3 {
		t.Errorf("lat = %v, want ~85.05113", lat)
	}
}

func TestTileTopLeftLonLatCenterTile(t *testing.T) {
	z := 2
	n := 1 << uint(z)
	lon, _ := TileTopLeftLonLat(z, n/2, n/2)
	if lon != 0 {
		t.Errorf("lon at center column = %v, want 0", lon)
	}
}

func TestWebMercatorRoundTrip(t *testing.T) {
	pts := []orb.Point{
		{0, 0},
		{10, 20},
		{-122.4194, 37.7749},
		{179, -85},
	}
	for _, p := range pts {
		merc := LonLatToWebMercator(p)
		back := WebMercatorToLonLat(merc)
		if math.Abs(back[0]-p[0]) > 1e-6 || math.Abs(back[1]-p[1]) > 1e-6 {
			t.Errorf("round trip for %v: got %v", p, back)
		}
	}
}

func TestSimplifyReducesOrPreservesPoints(t *testing.T) {
	line := orb.LineString{{0, 0}, {0.001, 0.001}, {1, 1}, {2, 2.001}, {2, 2}}
	simplified := Simplify(line, 1.0)
	ls, ok := simplified.(orb.LineString)
	if !ok {
		t.Fatalf("expected LineString, got %T", simplified)
	}
	if len(ls) > len(line) {
		t.Errorf("simplified line grew: %d > %d", len(ls), len(line))
	}
}
