package search

import (
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// FromConfig builds the search provider named in the configuration.
func FromConfig(cfg *config.Config) (research.SearchProvider, error) {
	switch cfg.SearchProvider {
	case "searchapi", "":
		return NewSearchAPI(cfg.SearchAPIKey), nil
	case "tavily":
		return NewTavily(cfg.TavilyAPIKey, ""), nil
	case "arxiv":
		return NewArxiv(), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.SearchProvider)
	}
}
