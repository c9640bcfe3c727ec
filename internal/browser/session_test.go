package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeDriver is a minimal WebDriver endpoint for tests.
type fakeDriver struct {
	sessions  atomic.Int32
	probeFail atomic.Bool
}

func (d *fakeDriver) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		n := d.sessions.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"value": map[string]any{"sessionId": "sess-" + string(rune('0'+n))},
		})
	})
	mux.HandleFunc("GET /session/{id}/window/handles", func(w http.ResponseWriter, r *http.Request) {
		if d.probeFail.Load() {
			http.Error(w, `{"value":{"error":"invalid session id"}}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"value": []string{"h1"}})
	})
	mux.HandleFunc("POST /session/{id}/url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": nil})
	})
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": nil})
	})
	return mux
}

func TestSession(t *testing.T) {
	t.Run("open is idempotent", func(t *testing.T) {
		driver := &fakeDriver{}
		server := httptest.NewServer(driver.handler())
		defer server.Close()

		s := New(Config{DriverURL: server.URL})
		ctx := context.Background()

		if err := s.Open(ctx); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := s.Open(ctx); err != nil {
			t.Fatalf("second Open() error = %v", err)
		}
		if got := driver.sessions.Load(); got != 1 {
			t.Errorf("created %d sessions, want 1", got)
		}
	})

	t.Run("failed probe recreates session", func(t *testing.T) {
		driver := &fakeDriver{}
		server := httptest.NewServer(driver.handler())
		defer server.Close()

		s := New(Config{DriverURL: server.URL})
		ctx := context.Background()

		if err := s.Open(ctx); err != nil {
			t.Fatalf("Open() error = %v", err)
		}

		driver.probeFail.Store(true)
		if err := s.Open(ctx); err != nil {
			t.Fatalf("Open() after dead probe error = %v", err)
		}
		if got := driver.sessions.Load(); got != 2 {
			t.Errorf("created %d sessions, want 2", got)
		}
	})

	t.Run("navigate without session fails", func(t *testing.T) {
		s := New(Config{DriverURL: "http://127.0.0.1:1"})
		if err := s.Navigate(context.Background(), "https://example.com"); err == nil {
			t.Error("expected error navigating without a session")
		}
	})

	t.Run("navigate after open succeeds", func(t *testing.T) {
		driver := &fakeDriver{}
		server := httptest.NewServer(driver.handler())
		defer server.Close()

		s := New(Config{DriverURL: server.URL})
		ctx := context.Background()
		if err := s.Open(ctx); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := s.Navigate(ctx, "https://www.amazon.com/s?k=test"); err != nil {
			t.Errorf("Navigate() error = %v", err)
		}
	})
}

func TestSearchURL(t *testing.T) {
	got := SearchURL("amazon.com", "hair stick gold")
	want := "https://www.amazon.com/s?k=hair+stick+gold"
	if got != want {
		t.Errorf("SearchURL() = %q, want %q", got, want)
	}
}
