package config

import (
	"github.com/keywordlens/keywordlens/internal/providers"
)

// ToProviderRegistryConfig converts the configuration into provider client
// settings, expanding ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	return providers.RegistryConfig{
		Scoring: providers.EmbeddingConfig{
			APIKey:     ResolveEnvVars(c.Scoring.APIKey),
			BaseURL:    c.Scoring.BaseURL,
			Model:      c.Scoring.Model,
			Dimensions: c.Scoring.Dimensions,
		},
		Vision: providers.VisionConfig{
			APIKey:  ResolveEnvVars(c.Vision.APIKey),
			BaseURL: c.Vision.BaseURL,
			Model:   c.Vision.Model,
		},
		Search: providers.SearchConfig{
			BaseURL:    c.Search.BaseURL,
			Domain:     c.Search.Domain,
			MaxResults: c.Search.MaxResults,
		},
	}
}
