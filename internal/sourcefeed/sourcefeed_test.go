package sourcefeed

import (
	"strings"
	"testing"

	"github.com/valpere/tiledeck/internal/coord"
)

const sampleNDJSON = `{"z":5,"x":3,"y":7,"layers":{"roads":[{"id":1,"geometry":{"type":"Point","coordinates":[10,20]},"properties":{"kind":"primary"}}]}}
{"z":5,"x":3,"y":8,"layers":{"roads":[{"id":2,"geometry":{"type":"Point","coordinates":[11,21]},"properties":{"kind":"secondary"}}]}}
`

func TestNDJSONStreamYieldsInOrder(t *testing.T) {
	stream := NewNDJSONStream(strings.NewReader(sampleNDJSON), 2)

	first, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("first Next: ok=%v err=%v", ok, err)
	}
	if got, want := first.Coord(), coord.New(5, 3, 7); got != want {
		t.Errorf("first coord = %v, want %v", got, want)
	}

	second, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("second Next: ok=%v err=%v", ok, err)
	}
	if got, want := second.Coord(), coord.New(5, 3, 8); got != want {
		t.Errorf("second coord = %v, want %v", got, want)
	}

	_, ok, err = stream.Next()
	if err != nil || ok {
		t.Fatalf("expected exhausted stream, got ok=%v err=%v", ok, err)
	}
}

func TestNDJSONStreamBuildTile(t *testing.T) {
	stream := NewNDJSONStream(strings.NewReader(sampleNDJSON), 0)
	tf, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}

	layers, err := tf.BuildTile()
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	if len(layers) != 1 || layers[0].Name != "roads" {
		t.Fatalf("unexpected layers: %+v", layers)
	}
	if len(layers[0].Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(layers[0].Features))
	}
}

func TestHasSameContentsReflexiveAndDistinct(t *testing.T) {
	stream := NewNDJSONStream(strings.NewReader(sampleNDJSON), 0)
	a, _, _ := stream.Next()
	b, _, _ := stream.Next()

	if !a.HasSameContents(a) {
		t.Error("expected HasSameContents to be reflexive")
	}
	if a.HasSameContents(b) {
		t.Error("expected distinct tiles to differ in contents")
	}
	if a.HasSameContents(nil) {
		t.Error("expected HasSameContents(nil) to be false")
	}
}

func TestMemoryStreamNumFeatures(t *testing.T) {
	tf1 := NewTileFeatures(coord.New(1, 0, 0), nil)
	stream := NewMemoryStream([]*TileFeatures{tf1})
	if got := stream.NumFeatures(); got != 0 {
		t.Errorf("NumFeatures = %d, want 0", got)
	}

	_, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	_, ok, _ = stream.Next()
	if ok {
		t.Fatal("expected exhausted memory stream")
	}
}
