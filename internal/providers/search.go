package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// SearchConfig holds configuration for the search client.
type SearchConfig struct {
	BaseURL    string // Companion scraper service endpoint
	Domain     string // Marketplace domain to search (e.g. amazon.com)
	MaxResults int    // Ceiling on returned URLs per query
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// SearchClient implements SearchProvider against the companion scraper
// service, which performs the actual page scraping and returns product
// image URLs as JSON.
type SearchClient struct {
	baseURL    string
	domain     string
	maxResults int
	client     *http.Client
}

// NewSearchClient creates a new search client.
func NewSearchClient(cfg SearchConfig) *SearchClient {
	if cfg.Domain == "" {
		cfg.Domain = "amazon.com"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &SearchClient{
		baseURL:    cfg.BaseURL,
		domain:     cfg.Domain,
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

// searchResponse is the scraper service's reply.
type searchResponse struct {
	Keyword   string   `json:"keyword"`
	ImageURLs []string `json:"image_urls"`
	Count     int      `json:"count"`
}

// Search returns up to maxResults product image URLs for the keyword,
// capped by the configured ceiling. A non-positive maxResults means the
// ceiling. A keyword with no results returns an empty slice, not an error.
func (c *SearchClient) Search(ctx context.Context, keyword string, maxResults int) ([]string, error) {
	if maxResults <= 0 || maxResults > c.maxResults {
		maxResults = c.maxResults
	}

	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("domain", c.domain)
	q.Set("max_results", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search error (status %d): %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}

	urls := result.ImageURLs
	if maxResults > 0 && len(urls) > maxResults {
		urls = urls[:maxResults]
	}
	return urls, nil
}

// Verify interface compliance
var _ SearchProvider = (*SearchClient)(nil)
