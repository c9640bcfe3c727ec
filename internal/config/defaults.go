package config

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds: ThresholdsConfig{
			High: 0.6,
			Low:  0.45,
		},
		Scoring: ScoringConfig{
			BaseURL:    "https://open.bigmodel.cn/api/paas/v4",
			APIKey:     "${ZHIPU_API_KEY}",
			Model:      "embedding-3",
			Dimensions: 2048,
		},
		Vision: VisionConfig{
			BaseURL: "https://open.bigmodel.cn/api/paas/v4",
			APIKey:  "${ZHIPU_API_KEY}",
			Model:   "glm-4.6v-flash",
		},
		Search: SearchConfig{
			BaseURL:    "http://127.0.0.1:8090",
			Domain:     "amazon.com",
			MaxResults: 20,
		},
		Verification: VerificationConfig{
			Workers:     3,
			MaxImages:   10,
			GridColumns: 5,
			CellSize:    150,
		},
		Grid: GridConfig{
			DownloadWorkers: 10,
			TimeoutSeconds:  10,
			Retries:         3,
		},
		Review: ReviewConfig{
			BrowserURL: "http://127.0.0.1:4444",
		},
	}
}
