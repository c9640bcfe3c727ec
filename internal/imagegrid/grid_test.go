package imagegrid

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testImage renders a small solid-color PNG.
func testImage(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAssemble(t *testing.T) {
	t.Run("tiles images into rows", func(t *testing.T) {
		data := testImage(t, color.RGBA{R: 200, A: 255})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(data)
		}))
		defer server.Close()

		urls := make([]string, 13)
		for i := range urls {
			urls[i] = fmt.Sprintf("%s/img/%d.png", server.URL, i)
		}

		a := New(Config{Columns: 5, CellSize: 50})
		grid, err := a.Assemble(context.Background(), urls)
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}

		// 13 cells at 5 columns is 3 rows.
		bounds := grid.Image.Bounds()
		if got, want := bounds.Dx(), 5*50; got != want {
			t.Errorf("width = %d, want %d", got, want)
		}
		if got, want := bounds.Dy(), 3*50; got != want {
			t.Errorf("height = %d, want %d", got, want)
		}
		if len(grid.Failed) != 0 {
			t.Errorf("Failed = %v, want none", grid.Failed)
		}

		// Same set at 3 columns needs 5 rows.
		narrow := New(Config{Columns: 3, CellSize: 50})
		grid, err = narrow.Assemble(context.Background(), urls)
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		bounds = grid.Image.Bounds()
		if got, want := bounds.Dx(), 3*50; got != want {
			t.Errorf("width = %d, want %d", got, want)
		}
		if got, want := bounds.Dy(), 5*50; got != want {
			t.Errorf("height = %d, want %d", got, want)
		}
	})

	t.Run("placement follows original index", func(t *testing.T) {
		colors := []color.RGBA{
			{R: 255, A: 255},
			{G: 255, A: 255},
			{B: 255, A: 255},
			{R: 255, G: 255, A: 255},
		}
		images := make([][]byte, len(colors))
		for i, c := range colors {
			images[i] = testImage(t, c)
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var idx int
			fmt.Sscanf(r.URL.Path, "/img/%d.png", &idx)
			// Earlier indexes respond slower, so downloads complete in
			// reverse order.
			time.Sleep(time.Duration(len(images)-idx) * 20 * time.Millisecond)
			w.Write(images[idx])
		}))
		defer server.Close()

		urls := make([]string, len(colors))
		for i := range urls {
			urls[i] = fmt.Sprintf("%s/img/%d.png", server.URL, i)
		}

		a := New(Config{Columns: 2, CellSize: 50, Workers: 4})
		grid, err := a.Assemble(context.Background(), urls)
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}

		// Cell centers, row-major: index i sits at (i%2, i/2).
		for i, want := range colors {
			x := (i%2)*50 + 25
			y := (i/2)*50 + 25
			if got := grid.Image.RGBAAt(x, y); got != want {
				t.Errorf("cell %d pixel at (%d,%d) = %v, want %v", i, x, y, got, want)
			}
		}
	})

	t.Run("tls failure falls back to one insecure attempt", func(t *testing.T) {
		data := testImage(t, color.RGBA{R: 200, A: 255})
		var calls atomic.Int32
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write(data)
		}))
		defer server.Close()

		// The self-signed certificate fails verification on the normal
		// client; only the insecure fallback request reaches the server.
		a := New(Config{Columns: 2, CellSize: 50, Retries: 1})
		grid, err := a.Assemble(context.Background(), []string{server.URL + "/1.png"})
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if len(grid.Failed) != 0 {
			t.Errorf("Failed = %v, want none", grid.Failed)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("server saw %d requests, want 1 insecure fallback", got)
		}
	})

	t.Run("partial failure keeps going", func(t *testing.T) {
		data := testImage(t, color.RGBA{B: 200, A: 255})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "bad") {
				http.Error(w, "gone", http.StatusNotFound)
				return
			}
			w.Write(data)
		}))
		defer server.Close()

		urls := []string{
			server.URL + "/ok/1.png",
			server.URL + "/bad/2.png",
			server.URL + "/ok/3.png",
		}

		a := New(Config{Columns: 5, CellSize: 50})
		grid, err := a.Assemble(context.Background(), urls)
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if len(grid.Failed) != 1 || grid.Failed[0] != urls[1] {
			t.Errorf("Failed = %v, want [%s]", grid.Failed, urls[1])
		}
	})

	t.Run("all failures is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer server.Close()

		a := New(Config{Columns: 5, CellSize: 50})
		_, err := a.Assemble(context.Background(), []string{server.URL + "/1.png", server.URL + "/2.png"})
		if err == nil {
			t.Fatal("expected error when zero downloads succeed")
		}
	})

	t.Run("no urls is an error", func(t *testing.T) {
		a := New(Config{})
		if _, err := a.Assemble(context.Background(), nil); err == nil {
			t.Error("expected error for empty url list")
		}
	})

	t.Run("retries transient status", func(t *testing.T) {
		data := testImage(t, color.RGBA{G: 200, A: 255})
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			w.Write(data)
		}))
		defer server.Close()

		a := New(Config{Columns: 2, CellSize: 50, Retries: 3})
		grid, err := a.Assemble(context.Background(), []string{server.URL + "/1.png"})
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if len(grid.Failed) != 0 {
			t.Errorf("Failed = %v, want none", grid.Failed)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("server saw %d requests, want 2", got)
		}
	})

	t.Run("honors download timeout", func(t *testing.T) {
		data := testImage(t, color.RGBA{R: 200, A: 255})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write(data)
		}))
		defer server.Close()

		a := New(Config{Columns: 2, CellSize: 50, Retries: 1, Timeout: 20 * time.Millisecond})
		if _, err := a.Assemble(context.Background(), []string{server.URL + "/1.png"}); err == nil {
			t.Fatal("expected error when every download times out")
		}
	})

	t.Run("does not retry hard failure", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer server.Close()

		a := New(Config{Columns: 2, CellSize: 50, Retries: 3, Timeout: time.Second})
		_, err := a.Assemble(context.Background(), []string{server.URL + "/1.png"})
		if err == nil {
			t.Fatal("expected error")
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("server saw %d requests, want 1", got)
		}
	})
}

func TestTransientStatus(t *testing.T) {
	transient := []int{429, 500, 502, 503, 504}
	for _, code := range transient {
		if !transientStatus(code) {
			t.Errorf("transientStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 301, 400, 403, 404} {
		if transientStatus(code) {
			t.Errorf("transientStatus(%d) = true, want false", code)
		}
	}
}

func TestEncodeJPEG(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 100, 100))
	grid := &Grid{Image: canvas}

	data, err := grid.EncodeJPEG()
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("output is not valid JPEG: %v", err)
	}
}
