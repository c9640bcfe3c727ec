package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchClient(t *testing.T) {
	t.Run("returns image URLs", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("keyword"); got != "hair stick" {
				t.Errorf("keyword = %q, want %q", got, "hair stick")
			}
			if got := r.URL.Query().Get("max_results"); got != "10" {
				t.Errorf("max_results = %q, want 10", got)
			}
			json.NewEncoder(w).Encode(searchResponse{
				Keyword:   "hair stick",
				ImageURLs: []string{"https://img/1.jpg", "https://img/2.jpg"},
				Count:     2,
			})
		}))
		defer server.Close()

		client := NewSearchClient(SearchConfig{BaseURL: server.URL})
		urls, err := client.Search(context.Background(), "hair stick", 10)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(urls) != 2 {
			t.Fatalf("got %d urls, want 2", len(urls))
		}
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{Keyword: "nothing", Count: 0})
		}))
		defer server.Close()

		client := NewSearchClient(SearchConfig{BaseURL: server.URL})
		urls, err := client.Search(context.Background(), "nothing", 10)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(urls) != 0 {
			t.Errorf("got %d urls, want 0", len(urls))
		}
	})

	t.Run("truncates to max results", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{
				ImageURLs: []string{"a", "b", "c", "d"},
				Count:     4,
			})
		}))
		defer server.Close()

		client := NewSearchClient(SearchConfig{BaseURL: server.URL})
		urls, err := client.Search(context.Background(), "kw", 2)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(urls) != 2 {
			t.Errorf("got %d urls, want 2", len(urls))
		}
	})

	t.Run("configured ceiling caps the request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("max_results"); got != "3" {
				t.Errorf("max_results = %q, want 3", got)
			}
			json.NewEncoder(w).Encode(searchResponse{
				ImageURLs: []string{"a", "b", "c", "d"},
				Count:     4,
			})
		}))
		defer server.Close()

		client := NewSearchClient(SearchConfig{BaseURL: server.URL, MaxResults: 3})

		// Asking above the ceiling is clamped to it.
		urls, err := client.Search(context.Background(), "kw", 50)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(urls) != 3 {
			t.Errorf("got %d urls, want 3", len(urls))
		}

		// No explicit limit means the ceiling.
		if _, err := client.Search(context.Background(), "kw", 0); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "scraper busy", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewSearchClient(SearchConfig{BaseURL: server.URL})
		if _, err := client.Search(context.Background(), "kw", 10); err == nil {
			t.Error("expected error for 503 response")
		}
	})
}
