package providers

import (
	"log/slog"
	"sync"
)

// RegistryConfig holds resolved provider settings (API keys already expanded).
type RegistryConfig struct {
	Scoring EmbeddingConfig
	Vision  VisionConfig
	Search  SearchConfig
}

// Registry holds the external service clients and supports config-driven
// instantiation with hot reload. Access is thread-safe.
type Registry struct {
	mu      sync.RWMutex
	scoring ScoringService
	vision  VisionService
	search  SearchProvider
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Reload rebuilds all clients from the given config.
// Callers holding a client from before the reload keep using the old one;
// in-flight work is not interrupted.
func (r *Registry) Reload(cfg RegistryConfig) {
	scoring := NewEmbeddingClient(cfg.Scoring)
	vision := NewVisionClient(cfg.Vision)
	search := NewSearchClient(cfg.Search)

	r.mu.Lock()
	r.scoring = scoring
	r.vision = vision
	r.search = search
	logger := r.logger
	r.mu.Unlock()

	if logger != nil {
		logger.Info("provider registry reloaded",
			"scoring_model", cfg.Scoring.Model,
			"vision_model", cfg.Vision.Model,
			"search_domain", cfg.Search.Domain)
	}
}

// Use swaps in explicit service implementations, bypassing config-driven
// construction. Intended for tests.
func (r *Registry) Use(scoring ScoringService, vision VisionService, search SearchProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoring = scoring
	r.vision = vision
	r.search = search
}

// Scoring returns the current embedding service.
func (r *Registry) Scoring() ScoringService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scoring
}

// Vision returns the current vision judge.
func (r *Registry) Vision() VisionService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vision
}

// Search returns the current search provider.
func (r *Registry) Search() SearchProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.search
}
