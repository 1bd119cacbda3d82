// internal/feedfetch/fetcher_factory.go - Fetcher selection
package feedfetch

import (
	"fmt"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/config"
)

// FetcherFactory creates the appropriate Fetcher based on configuration.
type FetcherFactory struct {
	config *config.Config
}

// NewFetcherFactory creates a new fetcher factory.
func NewFetcherFactory(cfg *config.Config) *FetcherFactory {
	return &FetcherFactory{config: cfg}
}

// CreateFetcherForType creates a fetcher for an explicit source type.
func (f *FetcherFactory) CreateFetcherForType(sourceType internal.SourceType) (Fetcher, error) {
	switch sourceType {
	case internal.SourceTypeHTTP:
		if f.config.Server.BaseURL == "" {
			return nil, fmt.Errorf("base_url is required for HTTP source")
		}
		return NewHTTPFetcher(f.config), nil
	case internal.SourceTypeLocal:
		if f.config.Local.BasePath == "" {
			return nil, fmt.Errorf("base_path is required for local source")
		}
		return NewLocalFetcher(f.config), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// GetSupportedSourceTypes returns the source types the current
// configuration has enough information to construct.
func (f *FetcherFactory) GetSupportedSourceTypes() []internal.SourceType {
	var supported []internal.SourceType
	if f.config.Server.BaseURL != "" {
		supported = append(supported, internal.SourceTypeHTTP)
	}
	if f.config.Local.BasePath != "" {
		supported = append(supported, internal.SourceTypeLocal)
	}
	return supported
}

// CreateOptimalFetcher picks a fetcher using the configured source
// type, or auto-detects one when the configuration supports exactly
// one kind of source.
func (f *FetcherFactory) CreateOptimalFetcher() (Fetcher, error) {
	supported := f.GetSupportedSourceTypes()
	if len(supported) == 0 {
		return nil, fmt.Errorf("no valid feed source configuration found")
	}
	if len(supported) == 1 {
		return f.CreateFetcherForType(supported[0])
	}
	return f.CreateFetcherForType(f.config.DetermineSourceType())
}
