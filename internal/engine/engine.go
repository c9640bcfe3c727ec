// Package engine orchestrates one triage run: classification, manual
// review, automated verification, and export. All server endpoints operate
// on a single run-scoped Engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keywordlens/keywordlens/internal/browser"
	"github.com/keywordlens/keywordlens/internal/config"
	"github.com/keywordlens/keywordlens/internal/export"
	"github.com/keywordlens/keywordlens/internal/home"
	"github.com/keywordlens/keywordlens/internal/imagegrid"
	"github.com/keywordlens/keywordlens/internal/progress"
	"github.com/keywordlens/keywordlens/internal/providers"
	"github.com/keywordlens/keywordlens/internal/review"
	"github.com/keywordlens/keywordlens/internal/triage"
	"github.com/keywordlens/keywordlens/internal/verify"
)

// Config holds the engine's collaborators.
type Config struct {
	Cfg      *config.Config
	Home     *home.Dir
	Tracker  *progress.Tracker
	Registry *providers.Registry
	Logger   *slog.Logger
	// Session overrides the browser session built from Cfg (tests).
	Session *browser.Session
}

// Snapshot is the engine state returned by the status endpoint.
type Snapshot struct {
	RunID          string         `json:"run_id"`
	Message        string         `json:"message,omitempty"`
	Analyzing      bool           `json:"analyzing"`
	Progress       float64        `json:"progress"`
	Queue          triage.Summary `json:"queue"`
	CurrentKeyword string         `json:"current_keyword,omitempty"`
	NavStatus      string         `json:"nav_status,omitempty"`
	Verification   verify.Stats   `json:"verification"`
	Checkpoint     string         `json:"checkpoint_status"`
}

// Engine owns the state of one triage run.
type Engine struct {
	id       string
	cfg      *config.Config
	home     *home.Dir
	tracker  *progress.Tracker
	registry *providers.Registry
	logger   *slog.Logger

	store      *triage.Store
	session    *browser.Session
	controller *review.Controller

	mu          sync.Mutex
	rows        *export.Rows
	refImage    []byte
	description string
	message     string
	progress    float64
	analyzing   bool
	pool        *verify.Pool
}

// New creates an Engine with a fresh run ID and empty queues.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session := cfg.Session
	if session == nil {
		session = browser.New(browser.Config{
			DriverURL: cfg.Cfg.Review.BrowserURL,
			Logger:    logger,
		})
	}

	store := triage.NewStore()
	controller := review.NewController(review.Config{
		Store:   store,
		Session: session,
		Domain:  cfg.Cfg.Search.Domain,
		Logger:  logger,
	})

	id := uuid.NewString()
	return &Engine{
		id:         id,
		cfg:        cfg.Cfg,
		home:       cfg.Home,
		tracker:    cfg.Tracker,
		registry:   cfg.Registry,
		logger:     logger.With("component", "engine", "run_id", id),
		store:      store,
		session:    session,
		controller: controller,
	}
}

// ID returns the run ID.
func (e *Engine) ID() string {
	return e.id
}

// StartAnalysis launches classification in the background. Keywords may be
// empty when a table was uploaded first; they are then taken from its
// keyword column. The new classification replaces all queues wholesale.
func (e *Engine) StartAnalysis(ctx context.Context, keywords []string, description string, refImage []byte) error {
	e.mu.Lock()
	if e.analyzing {
		e.mu.Unlock()
		return fmt.Errorf("analysis already running")
	}
	if len(keywords) == 0 && e.rows != nil {
		keywords = keywordsFromRows(e.rows)
	}
	if len(keywords) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("no keywords to analyze: provide them or upload a table first")
	}
	if strings.TrimSpace(description) == "" {
		e.mu.Unlock()
		return fmt.Errorf("product description is required")
	}
	e.analyzing = true
	e.progress = 0
	e.message = "analyzing keywords"
	e.refImage = refImage
	e.description = description
	e.mu.Unlock()

	if err := e.tracker.SetStatus("analyzing"); err != nil {
		e.logger.Warn("failed to checkpoint status", "error", err)
	}

	classifier := triage.NewClassifier(triage.ClassifierConfig{
		Scoring:       e.registry.Scoring(),
		HighThreshold: e.cfg.Thresholds.High,
		LowThreshold:  e.cfg.Thresholds.Low,
		Logger:        e.logger,
	})

	// The run outlives the request that started it.
	bg := context.WithoutCancel(ctx)
	go func() {
		result, err := classifier.Classify(bg, description, keywords, func(p float64) {
			e.mu.Lock()
			e.progress = p
			e.mu.Unlock()
		})

		e.mu.Lock()
		e.analyzing = false
		if err != nil {
			e.message = fmt.Sprintf("analysis failed: %v", err)
			e.mu.Unlock()
			e.logger.Error("classification failed", "error", err)
			if terr := e.tracker.SetStatus("idle"); terr != nil {
				e.logger.Warn("failed to checkpoint status", "error", terr)
			}
			return
		}
		e.message = fmt.Sprintf("analysis complete: %d for review, %d borderline, %d dropped",
			len(result.Manual), len(result.Gray), len(result.Dropped))
		e.mu.Unlock()

		e.store.SetQueues(result)
		if err := e.tracker.SetStatus("reviewing"); err != nil {
			e.logger.Warn("failed to checkpoint status", "error", err)
		}

		if len(result.Manual) > 0 {
			// Best effort: review works without a browser.
			if err := e.controller.OpenBrowser(bg); err != nil {
				e.logger.Warn("failed to open review browser", "error", err)
			}
		}
	}()

	return nil
}

// StartVerification launches the verification pool over the queued gray
// keywords. An empty verification queue is a no-op, not an error.
func (e *Engine) StartVerification(ctx context.Context) (string, error) {
	pending := e.store.PendingVerification()
	if len(pending) == 0 {
		return "no keywords awaiting verification", nil
	}

	e.mu.Lock()
	if e.pool != nil && e.pool.Stats().Running {
		e.mu.Unlock()
		return "", fmt.Errorf("verification already running")
	}
	refImage := e.refImage
	description := e.description
	pool := verify.NewPool(verify.PoolConfig{
		Search: e.registry.Search(),
		Vision: e.registry.Vision(),
		Grid: imagegrid.New(imagegrid.Config{
			Columns:  e.cfg.Verification.GridColumns,
			CellSize: e.cfg.Verification.CellSize,
			Workers:  e.cfg.Grid.DownloadWorkers,
			Retries:  e.cfg.Grid.Retries,
			Timeout:  time.Duration(e.cfg.Grid.TimeoutSeconds) * time.Second,
			Logger:   e.logger,
		}),
		Store:     e.store,
		Tracker:   e.tracker,
		Workers:   e.cfg.Verification.Workers,
		MaxImages: e.cfg.Verification.MaxImages,
		GridDir:   e.home.GridsDir(),
		Logger:    e.logger,
	})
	// Start under the lock so a concurrent call observes the running pool
	// before we publish it. Start only launches goroutines, it never blocks.
	if err := pool.Start(context.WithoutCancel(ctx), refImage, description); err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.pool = pool
	e.mu.Unlock()

	return fmt.Sprintf("verifying %d keywords", len(pending)), nil
}

// ConfigureReview rebuilds the review queue from the chosen tiers and
// checkpoints the resulting verification backlog. Returns the new queue
// length.
func (e *Engine) ConfigureReview(includeManual, includeGray, includeDropped bool) int {
	n := e.controller.Configure(includeManual, includeGray, includeDropped)

	pending := e.store.PendingVerification()
	backlog := make([]string, len(pending))
	for i, it := range pending {
		backlog[i] = it.Keyword
	}
	if err := e.tracker.SetPendingVerification(backlog); err != nil {
		e.logger.Warn("failed to checkpoint verification backlog", "error", err)
	}
	return n
}

// Status returns a snapshot of the run.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	message := e.message
	prog := e.progress
	analyzing := e.analyzing
	pool := e.pool
	e.mu.Unlock()

	snap := Snapshot{
		RunID:      e.id,
		Message:    message,
		Analyzing:  analyzing,
		Progress:   prog,
		Queue:      e.store.Summarize(),
		NavStatus:  e.controller.NavStatus(),
		Checkpoint: e.tracker.Snapshot().Status,
	}
	if pool != nil {
		snap.Verification = pool.Stats()
	}
	if it, err := e.store.ItemAt(snap.Queue.Cursor); err == nil {
		snap.CurrentKeyword = it.Keyword
	}
	return snap
}

// ReviewList returns the manual review queue.
func (e *Engine) ReviewList() []triage.Item {
	return e.store.ReviewList()
}

// AllItems returns every classified item.
func (e *Engine) AllItems() []triage.Item {
	return e.store.AllItems()
}

// Action applies a manual decision. Valid actions are "keep", "delete" and
// "undecided". A negative index targets the current cursor item.
func (e *Engine) Action(index int, action string) (triage.Item, int, error) {
	switch action {
	case "keep":
		return e.controller.Decide(index, triage.StatusKept)
	case "delete":
		return e.controller.Decide(index, triage.StatusDeleted)
	case "undecided":
		return e.controller.Decide(index, triage.StatusUndecided)
	default:
		return triage.Item{}, 0, fmt.Errorf("unknown action %q: want keep, delete or undecided", action)
	}
}

// Navigate jumps the review cursor to index.
func (e *Engine) Navigate(index int) (triage.Item, error) {
	return e.controller.Navigate(index)
}

// SetRows stores the uploaded keyword table and returns its keywords.
func (e *Engine) SetRows(rows *export.Rows) ([]string, error) {
	if rows == nil || len(rows.Header) == 0 {
		return nil, fmt.Errorf("uploaded table is empty")
	}
	keywords := keywordsFromRows(rows)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("no keywords found in column %d", export.KeywordColumn(rows.Header))
	}

	e.mu.Lock()
	e.rows = rows
	e.mu.Unlock()
	return keywords, nil
}

// Export merges triage outcomes into the uploaded table, persists a copy
// under the home exports directory, and returns the merged rows with the
// saved path.
func (e *Engine) Export() (*export.Rows, string, error) {
	e.mu.Lock()
	rows := e.rows
	e.mu.Unlock()

	if rows == nil {
		// No uploaded table: synthesize one from the queues.
		items := e.store.AllItems()
		if len(items) == 0 {
			return nil, "", fmt.Errorf("nothing to export")
		}
		rows = &export.Rows{Header: []string{"Keyword"}}
		for _, it := range items {
			rows.Records = append(rows.Records, []string{it.Keyword})
		}
	}

	merged, err := export.Merge(rows, e.store.Statuses())
	if err != nil {
		return nil, "", err
	}

	path := filepath.Join(e.home.ExportsDir(), fmt.Sprintf("keywords-%s.csv", uuid.NewString()[:8]))
	if err := export.WriteCSV(path, merged); err != nil {
		return nil, "", err
	}

	e.logger.Info("results exported", "path", path, "rows", len(merged.Records))
	return merged, path, nil
}

// OpenBrowser ensures the review browser is up and showing the current
// item.
func (e *Engine) OpenBrowser(ctx context.Context) error {
	return e.controller.OpenBrowser(ctx)
}

// Shutdown releases the run's external resources.
func (e *Engine) Shutdown() error {
	if err := e.session.Close(); err != nil {
		e.logger.Warn("failed to close browser session", "error", err)
		return err
	}
	return nil
}

// keywordsFromRows pulls non-blank keywords out of the table's keyword
// column.
func keywordsFromRows(rows *export.Rows) []string {
	col := export.KeywordColumn(rows.Header)
	var out []string
	for _, rec := range rows.Records {
		if col >= len(rec) {
			continue
		}
		if kw := strings.TrimSpace(rec[col]); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
