// Package geo carries the world-Mercator projection and geometry
// simplification helpers the pipeline's telemetry and post-processors
// need: tile-to-lon/lat conversion for progress URLs, and coordinate
// transforms used when normalizing feature geometry before encoding.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

const webMercatorMax = 20037508.342789244

// TileTopLeftLonLat returns the longitude/latitude of the top-left
// corner of tile (z, x, y), rounded to 5 fractional digits as the
// telemetry "last tile" OpenStreetMap deep link requires.
func TileTopLeftLonLat(z, x, y int) (lon, lat float64) {
	n := math.Exp2(float64(z))
	lon = float64(x)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	lat = latRad * 180.0 / math.Pi
	return round5(lon), round5(lat)
}

func round5(v float64) float64 {
	const scale = 1e5
	return math.Round(v*scale) / scale
}

// WebMercatorToLonLat converts a Web Mercator point to WGS84 lon/lat.
func WebMercatorToLonLat(p orb.Point) orb.Point {
	lon := (p[0] / webMercatorMax) * 180.0
	lat := p[1] / webMercatorMax
	lat = 180.0 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi)) - math.Pi/2.0)
	return orb.Point{lon, lat}
}

// LonLatToWebMercator is the inverse of WebMercatorToLonLat.
func LonLatToWebMercator(p orb.Point) orb.Point {
	x := p[0] / 180.0 * webMercatorMax
	latRad := p[1] * math.Pi / 180.0
	y := math.Log(math.Tan(math.Pi/4+latRad/2)) / math.Pi * webMercatorMax
	return orb.Point{x, y}
}

// Simplify applies Douglas-Peucker simplification at the given
// tolerance. Exposed so a post-processor can opt into it per layer
// instead of globally.
func Simplify(g orb.Geometry, tolerance float64) orb.Geometry {
	return simplify.DouglasPeucker(tolerance).Simplify(g)
}
