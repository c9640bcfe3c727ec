package triage

import (
	"fmt"
	"sort"
	"sync"
)

// Store holds the three tier queues and the manual-review view over them.
// One mutex guards everything: classification swaps, review decisions, and
// verification verdicts all serialize here, so concurrent verification
// workers and HTTP handlers never observe a half-updated queue.
type Store struct {
	mu      sync.Mutex
	manual  []*Item
	gray    []*Item
	dropped []*Item

	// review lists the items currently offered for manual decisions, in
	// presentation order. Entries point into the tier queues.
	review []*Item
	cursor int
}

// Summary is a point-in-time view of queue state for status reporting.
type Summary struct {
	Total       int            `json:"total"`
	Manual      int            `json:"manual"`
	Gray        int            `json:"gray"`
	Dropped     int            `json:"dropped"`
	ReviewTotal int            `json:"review_total"`
	Cursor      int            `json:"cursor"`
	Counts      map[Status]int `json:"counts"`
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// SetQueues replaces all queues with a fresh classification result. The
// manual tier becomes the review queue and the cursor resets.
func (s *Store) SetQueues(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manual = toPointers(result.Manual)
	s.gray = toPointers(result.Gray)
	s.dropped = toPointers(result.Dropped)

	s.review = make([]*Item, len(s.manual))
	copy(s.review, s.manual)
	s.cursor = 0
}

// Reconfigure rebuilds the review queue from the chosen tiers. Items in an
// included tier return to pending and join the review queue in tier order;
// items in an excluded tier take that tier's default outcome: kept for the
// manual tier, auto (queued for verification) for gray, deleted for
// dropped. The cursor resets.
func (s *Store) Reconfigure(includeManual, includeGray, includeDropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.review = s.review[:0]

	apply := func(queue []*Item, included bool, excludedStatus Status) {
		for _, it := range queue {
			if included {
				it.Status = StatusPending
				s.review = append(s.review, it)
			} else {
				it.Status = excludedStatus
			}
		}
	}
	apply(s.manual, includeManual, StatusKept)
	apply(s.gray, includeGray, StatusAuto)
	apply(s.dropped, includeDropped, StatusDeleted)

	s.cursor = 0
}

// ReviewList returns copies of the items in the review queue, undecided
// work first. Decided items sink to the back; within each group the queue
// order is preserved. Presentation only: Decide and the cursor index the
// underlying queue order.
func (s *Store) ReviewList() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := copyItems(s.review)
	sort.SliceStable(out, func(i, j int) bool {
		return undecidedRank(out[i].Status) < undecidedRank(out[j].Status)
	})
	return out
}

func undecidedRank(s Status) int {
	if s == StatusPending || s == StatusUndecided {
		return 0
	}
	return 1
}

// AllItems returns copies of every classified item sorted by score
// descending.
func (s *Store) AllItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.manual)+len(s.gray)+len(s.dropped))
	for _, q := range [][]*Item{s.manual, s.gray, s.dropped} {
		for _, it := range q {
			out = append(out, *it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// PendingVerification returns copies of the items awaiting automated
// verification.
func (s *Store) PendingVerification() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for _, it := range s.gray {
		if it.Status == StatusAuto {
			out = append(out, *it)
		}
	}
	return out
}

// Decide records a manual decision for the review item at index. Valid
// outcomes are kept, deleted, and undecided.
func (s *Store) Decide(index int, status Status) (Item, error) {
	if status != StatusKept && status != StatusDeleted && status != StatusUndecided {
		return Item{}, fmt.Errorf("invalid review decision %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.review) {
		return Item{}, fmt.Errorf("review index %d out of range [0, %d)", index, len(s.review))
	}
	it := s.review[index]
	it.Status = status
	return *it, nil
}

// Cursor returns the current review position.
func (s *Store) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SetCursor moves the review position. The end-of-queue position
// (len(review)) is valid: it means review is finished.
func (s *Store) SetCursor(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index > len(s.review) {
		return fmt.Errorf("cursor %d out of range [0, %d]", index, len(s.review))
	}
	s.cursor = index
	return nil
}

// ItemAt returns a copy of the review item at index.
func (s *Store) ItemAt(index int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.review) {
		return Item{}, fmt.Errorf("review index %d out of range [0, %d)", index, len(s.review))
	}
	return *s.review[index], nil
}

// ApplyVerification records an automated verdict for a keyword. Only
// verified statuses are accepted.
func (s *Store) ApplyVerification(keyword string, status Status, visionScore float64, similarCount int, reason string) error {
	if status != StatusVerifiedKeep && status != StatusVerifiedDrop {
		return fmt.Errorf("invalid verification status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range [][]*Item{s.gray, s.manual, s.dropped} {
		for _, it := range q {
			if it.Keyword != keyword {
				continue
			}
			it.Status = status
			it.Reason = reason
			score := visionScore
			count := similarCount
			it.VisionScore = &score
			it.SimilarCount = &count
			return nil
		}
	}
	return fmt.Errorf("keyword %q not found in any queue", keyword)
}

// Statuses returns keyword to status and score, for export.
func (s *Store) Statuses() map[string]Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Item, len(s.manual)+len(s.gray)+len(s.dropped))
	for _, q := range [][]*Item{s.manual, s.gray, s.dropped} {
		for _, it := range q {
			out[it.Keyword] = *it
		}
	}
	return out
}

// Summarize returns queue totals and per-status counts.
func (s *Store) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, q := range [][]*Item{s.manual, s.gray, s.dropped} {
		for _, it := range q {
			counts[it.Status]++
		}
	}
	return Summary{
		Total:       len(s.manual) + len(s.gray) + len(s.dropped),
		Manual:      len(s.manual),
		Gray:        len(s.gray),
		Dropped:     len(s.dropped),
		ReviewTotal: len(s.review),
		Cursor:      s.cursor,
		Counts:      counts,
	}
}

func toPointers(items []Item) []*Item {
	out := make([]*Item, len(items))
	for i := range items {
		it := items[i]
		out[i] = &it
	}
	return out
}

func copyItems(items []*Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = *it
	}
	return out
}
