// Package browser manages the long-lived remote browser session used for
// manual review. It speaks the WebDriver wire protocol to a remote driver
// (chromedriver or a Selenium hub).
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Config holds configuration for the browser session.
type Config struct {
	// DriverURL is the remote WebDriver endpoint (e.g. http://127.0.0.1:4444).
	DriverURL string
	Timeout   time.Duration
	Logger    *slog.Logger
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Session is a handle to one long-lived remote browser.
// It is safe for concurrent use; at most one underlying WebDriver session
// exists at a time.
type Session struct {
	driverURL string
	client    *http.Client
	logger    *slog.Logger

	mu        sync.Mutex
	sessionID string
}

// New creates a new Session. No WebDriver session is opened until Open.
func New(cfg Config) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Session{
		driverURL: cfg.DriverURL,
		client:    client,
		logger:    logger.With("component", "browser"),
	}
}

// Open ensures a live session exists. If a session handle exists but fails
// the liveness probe, it is discarded and a fresh session is created.
// Idempotent and safe to call repeatedly.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID != "" {
		if err := s.probe(ctx, s.sessionID); err == nil {
			return nil
		}
		s.logger.Warn("browser session unresponsive, recreating")
		s.sessionID = ""
	}

	id, err := s.create(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser session: %w", err)
	}
	s.sessionID = id
	s.logger.Info("browser session opened", "session_id", id)
	return nil
}

// Discard drops the current session handle without contacting the driver.
// The next Open creates a fresh session.
func (s *Session) Discard() {
	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
}

// Navigate loads the given URL in the browser.
// Returns an error if no session is open or navigation fails.
func (s *Session) Navigate(ctx context.Context, pageURL string) error {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()

	if id == "" {
		return fmt.Errorf("no browser session open")
	}

	body := map[string]string{"url": pageURL}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/session/%s/url", id), body, nil); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Close ends the session if one is open.
func (s *Session) Close() error {
	s.mu.Lock()
	id := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()

	if id == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.do(ctx, http.MethodDelete, "/session/"+id, nil, nil); err != nil {
		return fmt.Errorf("failed to close browser session: %w", err)
	}
	return nil
}

// probe checks session liveness by listing window handles.
func (s *Session) probe(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodGet, fmt.Sprintf("/session/%s/window/handles", id), nil, nil)
}

// create opens a new WebDriver session and returns its ID.
func (s *Session) create(ctx context.Context) (string, error) {
	req := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
			},
		},
	}

	var resp struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := s.do(ctx, http.MethodPost, "/session", req, &resp); err != nil {
		return "", err
	}
	if resp.Value.SessionID == "" {
		return "", fmt.Errorf("driver returned empty session id")
	}
	return resp.Value.SessionID, nil
}

// do performs one WebDriver wire request.
func (s *Session) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.driverURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("driver request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read driver response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("driver error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal driver response: %w", err)
		}
	}
	return nil
}

// SearchURL builds the marketplace search page URL for a keyword.
func SearchURL(domain, keyword string) string {
	return fmt.Sprintf("https://www.%s/s?k=%s", domain, url.QueryEscape(keyword))
}
