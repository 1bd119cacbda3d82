package pipeline

import "github.com/valpere/tiledeck/internal/tilecodec"

// PostProcessor transforms a layer's features before encoding. A nil
// return means "keep the original features unchanged".
type PostProcessor func(zoom int, features []tilecodec.Feature) ([]tilecodec.Feature, error)

// PostProcessorRegistry holds one optional PostProcessor per layer
// name. The pipeline does not serialize calls within a worker; a
// registered PostProcessor must be safe for concurrent use across
// workers (it is invoked from every encoder worker that touches its
// layer, never with internal synchronization from this registry).
type PostProcessorRegistry struct {
	byLayer map[string]PostProcessor
}

// NewPostProcessorRegistry creates an empty registry.
func NewPostProcessorRegistry() *PostProcessorRegistry {
	return &PostProcessorRegistry{byLayer: make(map[string]PostProcessor)}
}

// Register associates a PostProcessor with a layer name, replacing
// any previously registered one.
func (r *PostProcessorRegistry) Register(layer string, fn PostProcessor) {
	r.byLayer[layer] = fn
}

// Apply runs layers through any registered post-processors, replacing
// a layer's features in place when its processor returns a non-nil
// slice.
func (r *PostProcessorRegistry) Apply(zoom int, layers []tilecodec.Layer) ([]tilecodec.Layer, error) {
	if r == nil || len(r.byLayer) == 0 {
		return layers, nil
	}
	for i, l := range layers {
		fn, ok := r.byLayer[l.Name]
		if !ok || fn == nil {
			continue
		}
		replaced, err := fn(zoom, l.Features)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			layers[i].Features = replaced
		}
	}
	return layers, nil
}
