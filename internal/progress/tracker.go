// Package progress persists pipeline state to a JSON checkpoint so a run
// can resume after a crash or restart.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// FailedKeyword pairs a keyword with the error that failed its
// verification.
type FailedKeyword struct {
	Keyword string `json:"keyword"`
	Error   string `json:"error"`
}

// Record is the durable checkpoint. Slices hold keyword or folder names and
// contain no duplicates.
type Record struct {
	// Status is the coarse run phase: idle, analyzing, reviewing,
	// verifying, done.
	Status string `json:"status"`
	// CurrentFolder is the work unit in flight, if any.
	CurrentFolder string `json:"current_folder,omitempty"`
	// CompletedFolders lists work units already fully processed.
	CompletedFolders []string `json:"completed_folders"`
	// FailedKeywords lists keywords whose verification failed, with the
	// error, so they can be retried.
	FailedKeywords []FailedKeyword `json:"failed_keywords"`
	// PendingVerification lists keywords queued for verification.
	PendingVerification []string `json:"pending_verification"`
	// CompletedVerification lists keywords with a verification verdict.
	CompletedVerification []string `json:"completed_verification"`
	// UpdatedAt is the time of the last save.
	UpdatedAt time.Time `json:"updated_at"`
}

func newRecord() Record {
	return Record{
		Status:                "idle",
		CompletedFolders:      []string{},
		FailedKeywords:        []FailedKeyword{},
		PendingVerification:   []string{},
		CompletedVerification: []string{},
	}
}

// Tracker owns the checkpoint file. All mutations persist immediately.
// Safe for concurrent use.
type Tracker struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	record Record
}

// NewTracker loads the checkpoint at path, or starts fresh when the file is
// missing or unreadable. A corrupt checkpoint is never fatal: losing resume
// state is better than refusing to start.
func NewTracker(path string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		path:   path,
		logger: logger.With("component", "progress"),
		record: newRecord(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("failed to read checkpoint, starting fresh", "path", path, "error", err)
		}
		return t
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.logger.Warn("corrupt checkpoint, starting fresh", "path", path, "error", err)
		return t
	}

	// Nil slices can appear in hand-edited files.
	if rec.CompletedFolders == nil {
		rec.CompletedFolders = []string{}
	}
	if rec.FailedKeywords == nil {
		rec.FailedKeywords = []FailedKeyword{}
	}
	if rec.PendingVerification == nil {
		rec.PendingVerification = []string{}
	}
	if rec.CompletedVerification == nil {
		rec.CompletedVerification = []string{}
	}
	if rec.Status == "" {
		rec.Status = "idle"
	}
	t.record = rec
	return t
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

// SetStatus updates the run phase.
func (t *Tracker) SetStatus(status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.Status = status
	return t.saveLocked()
}

// SetCurrentFolder records the work unit in flight.
func (t *Tracker) SetCurrentFolder(folder string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.CurrentFolder = folder
	return t.saveLocked()
}

// CompleteFolder marks a work unit done and clears it if current.
func (t *Tracker) CompleteFolder(folder string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.CompletedFolders = appendUnique(t.record.CompletedFolders, folder)
	if t.record.CurrentFolder == folder {
		t.record.CurrentFolder = ""
	}
	return t.saveLocked()
}

// IsFolderDone reports whether a work unit was already processed.
func (t *Tracker) IsFolderDone(folder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.record.CompletedFolders, folder)
}

// SetPendingVerification replaces the verification backlog.
func (t *Tracker) SetPendingVerification(keywords []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.PendingVerification = dedupe(keywords)
	return t.saveLocked()
}

// CompleteVerification moves a keyword from pending to completed.
func (t *Tracker) CompleteVerification(keyword string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.PendingVerification = remove(t.record.PendingVerification, keyword)
	t.record.FailedKeywords = removeFailed(t.record.FailedKeywords, keyword)
	t.record.CompletedVerification = appendUnique(t.record.CompletedVerification, keyword)
	return t.saveLocked()
}

// FailVerification moves a keyword from pending to failed, recording the
// error so the keyword can be retried later.
func (t *Tracker) FailVerification(keyword string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	t.record.PendingVerification = remove(t.record.PendingVerification, keyword)
	t.record.FailedKeywords = removeFailed(t.record.FailedKeywords, keyword)
	t.record.FailedKeywords = append(t.record.FailedKeywords, FailedKeyword{Keyword: keyword, Error: msg})
	return t.saveLocked()
}

// Reset discards all state and persists an empty record.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record = newRecord()
	return t.saveLocked()
}

// saveLocked writes the record atomically: temp file in the same directory,
// then rename. Callers hold t.mu.
func (t *Tracker) saveLocked() error {
	t.record.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(t.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

func (t *Tracker) copyLocked() Record {
	rec := t.record
	rec.CompletedFolders = slices.Clone(rec.CompletedFolders)
	rec.FailedKeywords = slices.Clone(rec.FailedKeywords)
	rec.PendingVerification = slices.Clone(rec.PendingVerification)
	rec.CompletedVerification = slices.Clone(rec.CompletedVerification)
	return rec
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == v })
}

func removeFailed(list []FailedKeyword, keyword string) []FailedKeyword {
	return slices.DeleteFunc(list, func(f FailedKeyword) bool { return f.Keyword == keyword })
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
