package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keywordlens/keywordlens/internal/config"
	"github.com/keywordlens/keywordlens/internal/home"
	"github.com/keywordlens/keywordlens/internal/providers"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager("")
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{
		Host:          "127.0.0.1",
		Port:          "0",
		ConfigManager: mgr,
		Home:          h,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Don't talk to real services in tests.
	s.registry.Use(
		&providers.MockScoring{Default: []float64{1, 0}},
		&providers.MockVision{Result: &providers.VisionResult{}},
		&providers.MockSearch{},
	)
	return s
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t)
	s.ready.Store(true)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "ok" {
			t.Errorf("Status = %q, want ok", body.Status)
		}
	})

	t.Run("status exposes run id", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/status")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			RunID string `json:"run_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.RunID == "" {
			t.Error("run_id is empty")
		}
	})

	t.Run("analyze rejects missing description", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/analyze", "application/json",
			strings.NewReader(`{"keywords":["a"]}`))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("action with invalid body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/action", "application/json",
			strings.NewReader(`not json`))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("upload parses CSV", func(t *testing.T) {
		csvBody := "Keyword,Volume\nhair stick,1200\nhair clip,300\n"
		resp, err := http.Post(ts.URL+"/api/upload", "text/csv", strings.NewReader(csvBody))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Keywords      int    `json:"keywords"`
			KeywordColumn string `json:"keyword_column"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Keywords != 2 {
			t.Errorf("Keywords = %d, want 2", body.Keywords)
		}
		if body.KeywordColumn != "Keyword" {
			t.Errorf("KeywordColumn = %q, want Keyword", body.KeywordColumn)
		}
	})

	t.Run("export with no data", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/export")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		// Uploaded rows exist from the previous subtest, so export works;
		// a fresh server would 400 here.
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Type"); got != "text/csv" {
			t.Errorf("Content-Type = %q, want text/csv", got)
		}
	})
}

func TestRequireInit(t *testing.T) {
	s := newTestServer(t)
	// Not started: ready is false.

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before server start", resp.StatusCode)
	}

	// Health is exempt from the init gate.
	resp2, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp2.StatusCode)
	}
}
