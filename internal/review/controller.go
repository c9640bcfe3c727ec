// Package review drives the manual review flow: it walks the review queue,
// records keep/drop decisions, and steers the shared browser session to
// each keyword's marketplace search page.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keywordlens/keywordlens/internal/browser"
	"github.com/keywordlens/keywordlens/internal/triage"
)

// navTimeout bounds one navigation attempt, including a session recreate.
const navTimeout = 30 * time.Second

// Config holds the controller's collaborators.
type Config struct {
	Store   *triage.Store
	Session *browser.Session
	// Domain is the marketplace domain searched during review.
	Domain string
	Logger *slog.Logger
}

// Controller coordinates manual review over the triage store's review
// queue. Decisions are synchronous; browser navigation happens in the
// background so a dead browser never blocks reviewing.
type Controller struct {
	store   *triage.Store
	session *browser.Session
	domain  string
	logger  *slog.Logger

	mu        sync.Mutex
	navStatus string
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   cfg.Store,
		session: cfg.Session,
		domain:  cfg.Domain,
		logger:  logger.With("component", "review"),
	}
}

// OpenBrowser ensures the shared browser session is alive and shows the
// current review item, if any.
func (c *Controller) OpenBrowser(ctx context.Context) error {
	if err := c.session.Open(ctx); err != nil {
		return err
	}
	cursor := c.store.Cursor()
	if it, err := c.store.ItemAt(cursor); err == nil {
		c.navigateAsync(it.Keyword)
	}
	return nil
}

// Configure rebuilds the review queue from the chosen tiers and steers the
// browser to the first item. Returns the new queue length.
func (c *Controller) Configure(includeManual, includeGray, includeDropped bool) int {
	c.store.Reconfigure(includeManual, includeGray, includeDropped)

	review := c.store.ReviewList()
	if len(review) > 0 {
		c.navigateAsync(review[0].Keyword)
	}
	c.logger.Info("review queue reconfigured",
		"manual", includeManual, "gray", includeGray, "dropped", includeDropped,
		"queue_length", len(review))
	return len(review)
}

// Decide records a decision for the review item at index (the current
// cursor when index is negative), advances the cursor, and steers the
// browser toward the next item.
func (c *Controller) Decide(index int, status triage.Status) (triage.Item, int, error) {
	if index < 0 {
		index = c.store.Cursor()
	}

	it, err := c.store.Decide(index, status)
	if err != nil {
		return triage.Item{}, 0, err
	}

	next := index + 1
	if err := c.store.SetCursor(next); err != nil {
		// Past the end: review is finished, leave the cursor alone.
		next = c.store.Cursor()
	} else if nextItem, err := c.store.ItemAt(next); err == nil {
		c.navigateAsync(nextItem.Keyword)
	}

	c.logger.Info("review decision", "keyword", it.Keyword, "status", it.Status, "next", next)
	return it, next, nil
}

// Navigate jumps the cursor to index and steers the browser to that item.
func (c *Controller) Navigate(index int) (triage.Item, error) {
	it, err := c.store.ItemAt(index)
	if err != nil {
		return triage.Item{}, err
	}
	if err := c.store.SetCursor(index); err != nil {
		return triage.Item{}, err
	}
	c.navigateAsync(it.Keyword)
	return it, nil
}

// NavStatus returns the outcome message of the most recent navigation.
func (c *Controller) NavStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navStatus
}

// navigateAsync loads the keyword's search page in the background.
// Navigation failures are never fatal to the review flow: the attempt is
// retried once on a fresh session and the outcome is kept for status
// reporting.
func (c *Controller) navigateAsync(keyword string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), navTimeout)
		defer cancel()

		url := browser.SearchURL(c.domain, keyword)
		err := c.session.Navigate(ctx, url)
		if err != nil {
			// The session may have died under us; recreate and retry once.
			c.session.Discard()
			if err = c.session.Open(ctx); err == nil {
				err = c.session.Navigate(ctx, url)
			}
		}

		c.mu.Lock()
		if err != nil {
			c.navStatus = fmt.Sprintf("navigation to %q failed: %v", keyword, err)
		} else {
			c.navStatus = fmt.Sprintf("showing %q", keyword)
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("browser navigation failed", "keyword", keyword, "error", err)
		}
	}()
}
