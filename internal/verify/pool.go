// Package verify runs automated verification: for each queued keyword it
// searches the marketplace for product images, tiles them into a grid, asks
// the vision judge whether they match the reference product, and writes the
// verdict back to the triage store.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/keywordlens/keywordlens/internal/imagegrid"
	"github.com/keywordlens/keywordlens/internal/progress"
	"github.com/keywordlens/keywordlens/internal/providers"
	"github.com/keywordlens/keywordlens/internal/triage"
)

// PoolConfig holds the pool's collaborators and settings.
type PoolConfig struct {
	Search  providers.SearchProvider
	Vision  providers.VisionService
	Grid    *imagegrid.Assembler
	Store   *triage.Store
	Tracker *progress.Tracker

	// Workers is the number of concurrent verification workers.
	Workers int
	// MaxImages caps search results per keyword.
	MaxImages int
	// GridDir, when set, receives a JPEG copy of each assembled grid so a
	// verdict can be inspected after the fact.
	GridDir string
	Logger  *slog.Logger
}

// Stats is a point-in-time view of a verification run.
type Stats struct {
	Running   bool `json:"running"`
	Total     int  `json:"total"`
	Processed int  `json:"processed"`
	Kept      int  `json:"kept"`
	Dropped   int  `json:"dropped"`
	Failed    int  `json:"failed"`
}

// Pool verifies queued keywords with a fixed set of workers. One run at a
// time; Start on a running pool is an error.
type Pool struct {
	search  providers.SearchProvider
	vision  providers.VisionService
	grid    *imagegrid.Assembler
	store   *triage.Store
	tracker *progress.Tracker

	workers   int
	maxImages int
	gridDir   string
	logger    *slog.Logger

	running   atomic.Bool
	wg        sync.WaitGroup
	total     atomic.Int64
	processed atomic.Int64
	kept      atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a Pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		search:    cfg.Search,
		vision:    cfg.Vision,
		grid:      cfg.Grid,
		store:     cfg.Store,
		tracker:   cfg.Tracker,
		workers:   cfg.Workers,
		maxImages: cfg.MaxImages,
		gridDir:   cfg.GridDir,
		logger:    logger.With("component", "verify"),
	}
}

// Start launches a verification run over every keyword currently queued for
// verification. refImage is the reference product photo shown to the vision
// judge; description gives it textual context. Returns without blocking;
// use Wait or Stats to follow the run.
func (p *Pool) Start(ctx context.Context, refImage []byte, description string) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("verification already running")
	}

	items := p.store.PendingVerification()
	if len(items) == 0 {
		p.running.Store(false)
		return fmt.Errorf("no keywords queued for verification")
	}

	p.total.Store(int64(len(items)))
	p.processed.Store(0)
	p.kept.Store(0)
	p.dropped.Store(0)
	p.failed.Store(0)

	pending := make([]string, len(items))
	for i, it := range items {
		pending[i] = it.Keyword
	}
	if err := p.tracker.SetPendingVerification(pending); err != nil {
		p.logger.Warn("failed to checkpoint verification backlog", "error", err)
	}
	if err := p.tracker.SetStatus("verifying"); err != nil {
		p.logger.Warn("failed to checkpoint status", "error", err)
	}

	queue := make(chan triage.Item)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for it := range queue {
				p.verifyOne(ctx, worker, it, refImage, description)
			}
		}(i)
	}

	go func() {
		defer close(queue)
		for _, it := range items {
			select {
			case queue <- it:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		p.wg.Wait()
		if err := p.tracker.SetStatus("verified"); err != nil {
			p.logger.Warn("failed to checkpoint status", "error", err)
		}
		p.running.Store(false)
		p.logger.Info("verification run finished",
			"total", p.total.Load(), "kept", p.kept.Load(),
			"dropped", p.dropped.Load(), "failed", p.failed.Load())
	}()

	p.logger.Info("verification run started", "keywords", len(items), "workers", p.workers)
	return nil
}

// Wait blocks until the current run's workers finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stats returns run progress counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   p.running.Load(),
		Total:     int(p.total.Load()),
		Processed: int(p.processed.Load()),
		Kept:      int(p.kept.Load()),
		Dropped:   int(p.dropped.Load()),
		Failed:    int(p.failed.Load()),
	}
}

// verifyOne runs the search, grid, judge pipeline for a single keyword.
// Failures leave the item queued (status auto) and checkpoint it as failed
// for a later retry.
func (p *Pool) verifyOne(ctx context.Context, worker int, it triage.Item, refImage []byte, description string) {
	defer p.processed.Add(1)
	logger := p.logger.With("worker", worker, "keyword", it.Keyword)

	fail := func(stage string, err error) {
		p.failed.Add(1)
		logger.Warn("verification failed", "stage", stage, "error", err)
		if terr := p.tracker.FailVerification(it.Keyword, err); terr != nil {
			logger.Warn("failed to checkpoint failure", "error", terr)
		}
	}

	// A keyword with no product images, or whose images cannot be
	// assembled, is a drop verdict rather than a retryable failure: the
	// marketplace has nothing to show for it.
	drop := func(reason string) {
		if err := p.store.ApplyVerification(it.Keyword, triage.StatusVerifiedDrop, 0, 0, reason); err != nil {
			fail("store", err)
			return
		}
		p.dropped.Add(1)
		if terr := p.tracker.CompleteVerification(it.Keyword); terr != nil {
			logger.Warn("failed to checkpoint completion", "error", terr)
		}
		logger.Info("keyword verified", "status", triage.StatusVerifiedDrop, "reason", reason)
	}

	urls, err := p.search.Search(ctx, it.Keyword, p.maxImages)
	if err != nil {
		fail("search", err)
		return
	}
	if len(urls) == 0 {
		drop("no product images found")
		return
	}

	grid, err := p.grid.Assemble(ctx, urls)
	if err != nil {
		drop(fmt.Sprintf("image grid failed: %v", err))
		return
	}
	gridJPEG, err := grid.EncodeJPEG()
	if err != nil {
		fail("grid", err)
		return
	}
	p.saveGrid(it.Keyword, gridJPEG, logger)

	contextText := fmt.Sprintf("Search keyword: %s\nProduct description: %s", it.Keyword, description)
	verdict, err := p.vision.Analyze(ctx, refImage, gridJPEG, contextText)
	if err != nil {
		fail("vision", err)
		return
	}

	status := triage.StatusVerifiedDrop
	if verdict.Decision {
		status = triage.StatusVerifiedKeep
	}

	if err := p.store.ApplyVerification(it.Keyword, status, verdict.Score, verdict.MatchCount, verdict.Reason); err != nil {
		fail("store", err)
		return
	}
	if verdict.Decision {
		p.kept.Add(1)
	} else {
		p.dropped.Add(1)
	}
	if err := p.tracker.CompleteVerification(it.Keyword); err != nil {
		logger.Warn("failed to checkpoint completion", "error", err)
	}

	logger.Info("keyword verified", "status", status,
		"score", verdict.Score, "matches", verdict.MatchCount)
}

// saveGrid writes the assembled grid next to the run's other artifacts.
// Best effort; verification does not depend on it.
func (p *Pool) saveGrid(keyword string, data []byte, logger *slog.Logger) {
	if p.gridDir == "" {
		return
	}
	name := gridFileName(keyword)
	if err := os.WriteFile(filepath.Join(p.gridDir, name), data, 0o644); err != nil {
		logger.Warn("failed to save grid image", "error", err)
	}
}

// gridFileName maps a keyword to a filesystem-safe JPEG name.
func gridFileName(keyword string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, keyword)
	if safe == "" {
		safe = "keyword"
	}
	return safe + "_grid.jpg"
}
