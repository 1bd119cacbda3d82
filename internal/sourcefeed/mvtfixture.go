// Package sourcefeed: real .mvt fixture decoding, an alternative to the
// synthetic NDJSON feed for tests and demos that want to exercise the
// pipeline against genuine vector tile bytes.
package sourcefeed

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/coord"
	"github.com/valpere/tiledeck/internal/tilecodec"
	"github.com/valpere/tiledeck/pkg/vtile"
)

// mvtPathPattern matches a trailing "<z>/<x>/<y>.mvt" or "<z>-<x>-<y>.mvt"
// path segment, the two directory conventions real tile caches use.
var mvtPathPattern = regexp.MustCompile(`(\d+)[/_-](\d+)[/_-](\d+)\.mvt$`)

// NewMVTFixtureStream builds a FeatureStream by decoding real .mvt tile
// fixtures under dir through pkg/vtile rather than parsing NDJSON. File
// paths must end in "<z>/<x>/<y>.mvt" or "<z>-<x>-<y>.mvt"; anything
// else under dir is skipped.
func NewMVTFixtureStream(dir string) (FeatureStream, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && mvtPathPattern.MatchString(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeFileSystem,
			fmt.Sprintf("scan mvt fixture dir %s", dir), err)
	}
	sort.Strings(paths)

	converter, err := vtile.NewFixtureConverter(&vtile.ConversionOptions{
		CoordinateSystem: vtile.CoordSystemWGS84,
	})
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "build mvt fixture converter", err)
	}

	items := make([]*TileFeatures, 0, len(paths))
	for _, path := range paths {
		z, x, y, err := parseMVTFilename(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, internal.NewError(internal.ErrorCodeFileSystem,
				fmt.Sprintf("read mvt fixture %s", path), err)
		}
		tf, err := decodeMVTFixture(converter, coord.New(z, x, y), data)
		if err != nil {
			return nil, err
		}
		items = append(items, tf)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].tile.Less(items[j].tile) })
	return NewMemoryStream(items), nil
}

func parseMVTFilename(path string) (z, x, y int, err error) {
	m := mvtPathPattern.FindStringSubmatch(path)
	if m == nil {
		return 0, 0, 0, internal.NewError(internal.ErrorCodeValidation,
			fmt.Sprintf("mvt fixture %s does not match <z>/<x>/<y>.mvt naming", path), nil)
	}
	z, _ = strconv.Atoi(m[1])
	x, _ = strconv.Atoi(m[2])
	y, _ = strconv.Atoi(m[3])
	return z, x, y, nil
}

// decodeMVTFixture converts one real MVT tile's bytes into a
// TileFeatures by way of the WGS84 GeoJSON conversion pkg/vtile already
// does for single-tile decoding; tilecodec.Feature expects WGS84
// lon/lat geometry, the same input BuildTile produces from NDJSON.
func decodeMVTFixture(converter *vtile.FixtureConverter, tile coord.Tile, data []byte) (*TileFeatures, error) {
	z, x, y := tile.Decode()
	result, _, err := converter.Convert(data, z, x, y)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation,
			fmt.Sprintf("decode mvt fixture for tile %s", tile), err)
	}

	features, _ := result["features"].([]*geojson.Feature)
	layers := make(map[string][]tilecodec.Feature)
	for _, gf := range features {
		layerName, _ := gf.Properties["_layer"].(string)
		if layerName == "" {
			layerName = "default"
		}

		props := make(map[string]interface{}, len(gf.Properties))
		for k, v := range gf.Properties {
			if k == "_layer" {
				continue
			}
			props[k] = v
		}

		var id uint64
		switch v := gf.ID.(type) {
		case uint64:
			id = v
		case float64:
			id = uint64(v)
		}

		layers[layerName] = append(layers[layerName], tilecodec.Feature{
			ID:         id,
			Geometry:   gf.Geometry,
			Properties: props,
		})
	}

	return NewTileFeatures(tile, layers), nil
}
