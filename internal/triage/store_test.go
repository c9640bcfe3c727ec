package triage

import (
	"sync"
	"testing"
)

func seedStore() *Store {
	s := NewStore()
	s.SetQueues(&Result{
		Manual: []Item{
			{Keyword: "hair stick", Score: 0.9, Tier: TierManual, Status: StatusPending},
			{Keyword: "hair pin", Score: 0.7, Tier: TierManual, Status: StatusPending},
		},
		Gray: []Item{
			{Keyword: "hair clip", Score: 0.5, Tier: TierGray, Status: StatusAuto},
		},
		Dropped: []Item{
			{Keyword: "phone case", Score: 0.1, Tier: TierDropped, Status: StatusDeleted},
		},
	})
	return s
}

func TestStore(t *testing.T) {
	t.Run("set queues seeds review from manual tier", func(t *testing.T) {
		s := seedStore()

		review := s.ReviewList()
		if len(review) != 2 {
			t.Fatalf("review length = %d, want 2", len(review))
		}
		if review[0].Keyword != "hair stick" {
			t.Errorf("review[0] = %q, want hair stick", review[0].Keyword)
		}
		if s.Cursor() != 0 {
			t.Errorf("cursor = %d, want 0", s.Cursor())
		}
	})

	t.Run("decide updates status", func(t *testing.T) {
		s := seedStore()

		it, err := s.Decide(0, StatusKept)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if it.Status != StatusKept {
			t.Errorf("status = %q, want kept", it.Status)
		}

		it, err = s.Decide(1, StatusDeleted)
		if err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if it.Status != StatusDeleted {
			t.Errorf("status = %q, want deleted", it.Status)
		}

		counts := s.Summarize().Counts
		if counts[StatusKept] != 1 || counts[StatusDeleted] != 2 {
			t.Errorf("counts = %v", counts)
		}
	})

	t.Run("decide rejects non-review status", func(t *testing.T) {
		s := seedStore()
		if _, err := s.Decide(0, StatusVerifiedKeep); err == nil {
			t.Error("expected error for non-review decision status")
		}
	})

	t.Run("decided items sink in review list", func(t *testing.T) {
		s := seedStore()
		if _, err := s.Decide(0, StatusKept); err != nil {
			t.Fatal(err)
		}

		review := s.ReviewList()
		if review[0].Keyword != "hair pin" {
			t.Errorf("review[0] = %q, want the undecided item first", review[0].Keyword)
		}
		if review[1].Keyword != "hair stick" {
			t.Errorf("review[1] = %q, want the decided item last", review[1].Keyword)
		}
	})

	t.Run("all items sorted by score descending", func(t *testing.T) {
		s := seedStore()
		items := s.AllItems()
		for i := 1; i < len(items); i++ {
			if items[i].Score > items[i-1].Score {
				t.Fatalf("items out of order at %d: %v", i, items)
			}
		}
	})

	t.Run("decide out of range", func(t *testing.T) {
		s := seedStore()
		if _, err := s.Decide(5, StatusKept); err == nil {
			t.Error("expected error for out-of-range index")
		}
		if _, err := s.Decide(-1, StatusKept); err == nil {
			t.Error("expected error for negative index")
		}
	})

	t.Run("cursor allows end-of-queue position", func(t *testing.T) {
		s := seedStore()
		if err := s.SetCursor(2); err != nil {
			t.Errorf("SetCursor(2) error = %v", err)
		}
		if err := s.SetCursor(3); err == nil {
			t.Error("expected error for cursor past end")
		}
	})

	t.Run("reconfigure routes excluded tiers", func(t *testing.T) {
		s := seedStore()

		// Only gray in review: manual keywords are kept outright, dropped
		// ones deleted.
		s.Reconfigure(false, true, false)

		review := s.ReviewList()
		if len(review) != 1 || review[0].Keyword != "hair clip" {
			t.Fatalf("review = %v, want [hair clip]", review)
		}
		if review[0].Status != StatusPending {
			t.Errorf("review status = %q, want pending", review[0].Status)
		}

		counts := s.Summarize().Counts
		if counts[StatusKept] != 2 {
			t.Errorf("kept = %d, want 2 (excluded manual tier)", counts[StatusKept])
		}
		if counts[StatusDeleted] != 1 {
			t.Errorf("deleted = %d, want 1 (excluded dropped tier)", counts[StatusDeleted])
		}
	})

	t.Run("reconfigure is idempotent", func(t *testing.T) {
		s := seedStore()
		s.Reconfigure(true, true, true)
		once := s.Summarize()
		review := s.ReviewList()

		s.Reconfigure(true, true, true)
		twice := s.Summarize()

		if once.Total != twice.Total || once.ReviewTotal != twice.ReviewTotal {
			t.Errorf("partitions differ: %+v vs %+v", once, twice)
		}
		if once.Total != 4 || once.ReviewTotal != 4 {
			t.Errorf("summary = %+v, want all 4 items in review", once)
		}
		for i, it := range s.ReviewList() {
			if it.Keyword != review[i].Keyword || it.Status != review[i].Status {
				t.Errorf("review[%d] = %+v, want %+v", i, it, review[i])
			}
		}
	})

	t.Run("excluded gray tier queues for verification", func(t *testing.T) {
		s := seedStore()
		s.Reconfigure(true, false, false)

		pending := s.PendingVerification()
		if len(pending) != 1 || pending[0].Keyword != "hair clip" {
			t.Fatalf("PendingVerification() = %v, want [hair clip]", pending)
		}
		if pending[0].Status != StatusAuto {
			t.Errorf("status = %q, want auto", pending[0].Status)
		}
	})

	t.Run("apply verification", func(t *testing.T) {
		s := seedStore()
		s.Reconfigure(true, false, false)

		err := s.ApplyVerification("hair clip", StatusVerifiedKeep, 0.8, 7, "grid matches")
		if err != nil {
			t.Fatalf("ApplyVerification() error = %v", err)
		}

		for _, it := range s.AllItems() {
			if it.Keyword != "hair clip" {
				continue
			}
			if it.Status != StatusVerifiedKeep {
				t.Errorf("status = %q, want verified_keep", it.Status)
			}
			if it.VisionScore == nil || *it.VisionScore != 0.8 {
				t.Errorf("VisionScore = %v, want 0.8", it.VisionScore)
			}
			if it.SimilarCount == nil || *it.SimilarCount != 7 {
				t.Errorf("SimilarCount = %v, want 7", it.SimilarCount)
			}
		}

		if len(s.PendingVerification()) != 0 {
			t.Error("verified item still pending verification")
		}
	})

	t.Run("apply verification rejects non-verified status", func(t *testing.T) {
		s := seedStore()
		if err := s.ApplyVerification("hair clip", StatusKept, 0.8, 1, ""); err == nil {
			t.Error("expected error for non-verified status")
		}
	})

	t.Run("apply verification unknown keyword", func(t *testing.T) {
		s := seedStore()
		if err := s.ApplyVerification("missing", StatusVerifiedDrop, 0, 0, ""); err == nil {
			t.Error("expected error for unknown keyword")
		}
	})

	t.Run("statuses map for export", func(t *testing.T) {
		s := seedStore()
		got := s.Statuses()
		if len(got) != 4 {
			t.Fatalf("Statuses() has %d entries, want 4", len(got))
		}
		if got["phone case"].Status != StatusDeleted {
			t.Errorf("phone case status = %q, want deleted", got["phone case"].Status)
		}
	})

	t.Run("concurrent decisions stay consistent", func(t *testing.T) {
		s := seedStore()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			status := StatusKept
			if i%2 == 1 {
				status = StatusDeleted
			}
			go func(status Status) {
				defer wg.Done()
				s.Decide(0, status)
				s.Summarize()
			}(status)
		}
		wg.Wait()

		it, err := s.ItemAt(0)
		if err != nil {
			t.Fatal(err)
		}
		if it.Status != StatusKept && it.Status != StatusDeleted {
			t.Errorf("status = %q, want a decided status", it.Status)
		}
	})
}
