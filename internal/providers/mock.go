package providers

import (
	"context"
	"fmt"
	"sync"
)

// MockScoring is a ScoringService for tests. Vectors are looked up by text;
// unknown texts get the Default vector. Set FailBatches to make specific
// Embed calls (0-indexed, in call order) return an error.
type MockScoring struct {
	mu          sync.Mutex
	Vectors     map[string][]float64
	Default     []float64
	FailBatches map[int]bool
	calls       int
}

// Embed returns canned vectors for the given texts.
func (m *MockScoring) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.FailBatches[call] {
		return nil, fmt.Errorf("mock embed failure (call %d)", call)
	}

	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := m.Vectors[t]; ok {
			out[i] = v
		} else if m.Default != nil {
			out[i] = m.Default
		} else {
			out[i] = []float64{0}
		}
	}
	return out, nil
}

// Calls returns how many Embed calls were made.
func (m *MockScoring) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockVision is a VisionService for tests.
type MockVision struct {
	Result *VisionResult
	Err    error
}

// Analyze returns the canned result.
func (m *MockVision) Analyze(ctx context.Context, refImage, gridImage []byte, contextText string) (*VisionResult, error) {
	if m.Err != nil {
		return &VisionResult{Decision: false, Reason: m.Err.Error()}, m.Err
	}
	return m.Result, nil
}

// MockSearch is a SearchProvider for tests. URLs are looked up by keyword.
type MockSearch struct {
	URLs map[string][]string
	Err  error
}

// Search returns the canned URLs for the keyword.
func (m *MockSearch) Search(ctx context.Context, keyword string, maxResults int) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	urls := m.URLs[keyword]
	if maxResults > 0 && len(urls) > maxResults {
		urls = urls[:maxResults]
	}
	return urls, nil
}

// Verify interface compliance
var (
	_ ScoringService = (*MockScoring)(nil)
	_ VisionService  = (*MockVision)(nil)
	_ SearchProvider = (*MockSearch)(nil)
)
