package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keywordlens/keywordlens/internal/browser"
	"github.com/keywordlens/keywordlens/internal/config"
	"github.com/keywordlens/keywordlens/internal/export"
	"github.com/keywordlens/keywordlens/internal/home"
	"github.com/keywordlens/keywordlens/internal/progress"
	"github.com/keywordlens/keywordlens/internal/providers"
	"github.com/keywordlens/keywordlens/internal/triage"
)

const productDesc = "gold hair stick for women"

// holdVision blocks every Analyze call until release is closed.
type holdVision struct {
	release chan struct{}
}

func (v *holdVision) Analyze(ctx context.Context, refImage, gridImage []byte, contextText string) (*providers.VisionResult, error) {
	<-v.release
	return &providers.VisionResult{Decision: true, Score: 0.5}, nil
}

// pngServer serves one tiny PNG for every path.
func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

// fakeDriver accepts every WebDriver call.
func fakeDriverServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": map[string]any{"sessionId": "sess"}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": nil})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestEngine(t *testing.T, scoring providers.ScoringService) *Engine {
	t.Helper()

	dir := t.TempDir()
	h, err := home.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	registry := providers.NewRegistry()
	registry.Use(scoring, &providers.MockVision{Result: &providers.VisionResult{Decision: true, Score: 0.9}}, &providers.MockSearch{})

	cfg := config.DefaultConfig()
	return New(Config{
		Cfg:      &cfg,
		Home:     h,
		Tracker:  progress.NewTracker(h.CheckpointPath(), nil),
		Registry: registry,
		Session:  browser.New(browser.Config{DriverURL: fakeDriverServer(t).URL}),
	})
}

func defaultScoring() *providers.MockScoring {
	return &providers.MockScoring{
		Vectors: map[string][]float64{
			productDesc:  {1, 0},
			"hair stick": {0.95, 0.1}, // manual tier
			"hair clip":  {0.5, 0.85}, // gray tier
			"usb cable":  {0, 1},      // dropped tier
		},
		Default: []float64{0, 1},
	}
}

// waitIdle polls until the engine finishes analyzing.
func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !e.Status().Analyzing {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("analysis did not finish")
}

func TestEngine(t *testing.T) {
	keywords := []string{"hair stick", "hair clip", "usb cable"}

	t.Run("analysis populates queues", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())

		err := e.StartAnalysis(context.Background(), keywords, productDesc, nil)
		if err != nil {
			t.Fatalf("StartAnalysis() error = %v", err)
		}
		waitIdle(t, e)

		snap := e.Status()
		if snap.Queue.Total != 3 {
			t.Errorf("Total = %d, want 3", snap.Queue.Total)
		}
		if snap.Queue.ReviewTotal != 1 {
			t.Errorf("ReviewTotal = %d, want 1", snap.Queue.ReviewTotal)
		}
		if !strings.Contains(snap.Message, "analysis complete") {
			t.Errorf("Message = %q", snap.Message)
		}
		if snap.CurrentKeyword != "hair stick" {
			t.Errorf("CurrentKeyword = %q, want hair stick", snap.CurrentKeyword)
		}
	})

	t.Run("analysis requires keywords and description", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())

		if err := e.StartAnalysis(context.Background(), nil, productDesc, nil); err == nil {
			t.Error("expected error without keywords")
		}
		if err := e.StartAnalysis(context.Background(), keywords, "  ", nil); err == nil {
			t.Error("expected error without description")
		}
	})

	t.Run("failed analysis reports and resets", func(t *testing.T) {
		e := newTestEngine(t, &providers.MockScoring{FailBatches: map[int]bool{0: true}})

		if err := e.StartAnalysis(context.Background(), keywords, productDesc, nil); err != nil {
			t.Fatalf("StartAnalysis() error = %v", err)
		}
		waitIdle(t, e)

		snap := e.Status()
		if !strings.Contains(snap.Message, "analysis failed") {
			t.Errorf("Message = %q, want failure note", snap.Message)
		}
		if snap.Queue.Total != 0 {
			t.Errorf("Total = %d, want 0 after failed analysis", snap.Queue.Total)
		}
	})

	t.Run("action drives the review queue", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())
		if err := e.StartAnalysis(context.Background(), keywords, productDesc, nil); err != nil {
			t.Fatal(err)
		}
		waitIdle(t, e)

		it, next, err := e.Action(-1, "keep")
		if err != nil {
			t.Fatalf("Action() error = %v", err)
		}
		if it.Status != triage.StatusKept {
			t.Errorf("status = %q, want kept", it.Status)
		}
		if next != 1 {
			t.Errorf("next = %d, want 1 (end of single-item queue)", next)
		}

		if _, _, err := e.Action(0, "promote"); err == nil {
			t.Error("expected error for unknown action")
		}
	})

	t.Run("concurrent verification starts launch one pool", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())
		server := pngServer(t)
		vision := &holdVision{release: make(chan struct{})}
		e.registry.Use(defaultScoring(), vision, &providers.MockSearch{
			URLs: map[string][]string{"hair clip": {server.URL + "/1.png"}},
		})

		if err := e.StartAnalysis(context.Background(), keywords, productDesc, nil); err != nil {
			t.Fatal(err)
		}
		waitIdle(t, e)

		var started atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := e.StartVerification(context.Background()); err == nil {
					started.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := started.Load(); got != 1 {
			t.Errorf("%d starts succeeded, want exactly 1", got)
		}

		close(vision.release)
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && e.Status().Verification.Running {
			time.Sleep(5 * time.Millisecond)
		}
		if e.Status().Verification.Running {
			t.Error("verification run did not finish")
		}
	})

	t.Run("verification with empty queue is a no-op", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())

		msg, err := e.StartVerification(context.Background())
		if err != nil {
			t.Fatalf("StartVerification() error = %v", err)
		}
		if !strings.Contains(msg, "no keywords") {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("configure review queues gray tier for verification", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())
		if err := e.StartAnalysis(context.Background(), keywords, productDesc, nil); err != nil {
			t.Fatal(err)
		}
		waitIdle(t, e)

		n := e.ConfigureReview(true, false, false)
		if n != 1 {
			t.Errorf("queue length = %d, want 1", n)
		}
		pending := e.store.PendingVerification()
		if len(pending) != 1 || pending[0].Keyword != "hair clip" {
			t.Errorf("PendingVerification = %v, want [hair clip]", pending)
		}
	})

	t.Run("rows provide keywords and export merges", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())

		rows := &export.Rows{
			Header: []string{"Keyword", "Volume"},
			Records: [][]string{
				{"hair stick", "1200"},
				{"hair clip", "300"},
				{"usb cable", "90"},
				{"", "0"},
			},
		}
		got, err := e.SetRows(rows)
		if err != nil {
			t.Fatalf("SetRows() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("keywords = %v, want 3", got)
		}

		// Analyze from the uploaded rows.
		if err := e.StartAnalysis(context.Background(), nil, productDesc, nil); err != nil {
			t.Fatal(err)
		}
		waitIdle(t, e)

		merged, path, err := e.Export()
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		wantHeader := []string{"Keyword", "Score", "Status", "Volume"}
		if len(merged.Header) != len(wantHeader) {
			t.Fatalf("Header = %v, want %v", merged.Header, wantHeader)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("export file not written: %v", err)
		}

		// The blank row never entered the pipeline.
		last := merged.Records[len(merged.Records)-1]
		if last[2] != export.StatusUnprocessed {
			t.Errorf("blank row status = %q, want unprocessed", last[2])
		}
	})

	t.Run("export without data is an error", func(t *testing.T) {
		e := newTestEngine(t, defaultScoring())
		if _, _, err := e.Export(); err == nil {
			t.Error("expected error exporting an empty run")
		}
	})

	t.Run("run ids are unique", func(t *testing.T) {
		a := newTestEngine(t, defaultScoring())
		b := newTestEngine(t, defaultScoring())
		if a.ID() == b.ID() {
			t.Error("two engines share a run ID")
		}
	})
}
