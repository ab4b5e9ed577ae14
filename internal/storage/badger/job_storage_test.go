package badger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badger-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestCreateJobDuplicateSlug(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("alice", "Alice", "https://platform.local/u/alice")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	dup := models.NewJob("alice", "Alice Again", "https://platform.local/u/alice")
	err := storage.CreateJob(ctx, dup)
	if !errors.Is(err, ErrJobExists) {
		t.Fatalf("Expected ErrJobExists for duplicate slug, got %v", err)
	}

	// Original record is untouched
	got, err := storage.GetJobBySlug(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to load job by slug: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("Expected name Alice, got %s", got.Name)
	}
}

func TestApplyChangesetPartialUpdate(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("bob", "Bob", "https://platform.local/u/bob")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Set a cursor without touching any other field
	cs := models.NewJobChangeset().SetCursor(12345)
	updated, err := storage.ApplyChangeset(ctx, job.ID, cs)
	if err != nil {
		t.Fatalf("Failed to apply changeset: %v", err)
	}
	if updated.Cursor == nil || *updated.Cursor != 12345 {
		t.Fatalf("Expected cursor 12345, got %v", updated.Cursor)
	}
	if updated.Status != models.JobStatusWaitingFetch {
		t.Errorf("Status changed unexpectedly: %s", updated.Status)
	}
	if updated.Name != "Bob" {
		t.Errorf("Name changed unexpectedly: %s", updated.Name)
	}

	// An empty changeset is a no-op read
	unchanged, err := storage.ApplyChangeset(ctx, job.ID, models.NewJobChangeset())
	if err != nil {
		t.Fatal(err)
	}
	if unchanged.Cursor == nil || *unchanged.Cursor != 12345 {
		t.Errorf("Empty changeset altered cursor: %v", unchanged.Cursor)
	}
}

func TestTransitionJobValidation(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("carol", "Carol", "https://platform.local/u/carol")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// waiting_fetch cannot jump straight to analyzing
	if _, err := storage.TransitionJob(ctx, job.ID, models.JobStatusAnalyzing, ""); err == nil {
		t.Fatal("Expected error for invalid transition waiting_fetch->analyzing")
	}

	updated, err := storage.TransitionJob(ctx, job.ID, models.JobStatusFetching, "")
	if err != nil {
		t.Fatalf("Failed valid transition: %v", err)
	}
	if updated.FetchStartedAt == nil {
		t.Error("Expected FetchStartedAt to be stamped")
	}

	// Error states require a message
	if _, err := storage.TransitionJob(ctx, job.ID, models.JobStatusFetchError, ""); err == nil {
		t.Fatal("Expected error for fetch_error without message")
	}
	failed, err := storage.TransitionJob(ctx, job.ID, models.JobStatusFetchError, "connection refused")
	if err != nil {
		t.Fatal(err)
	}
	if failed.ErrorMessage != "connection refused" {
		t.Errorf("Expected error message to be stored, got %q", failed.ErrorMessage)
	}
}

func TestTransitionClearsCursorOnFetchCompletion(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("dave", "Dave", "https://platform.local/u/dave")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.TransitionJob(ctx, job.ID, models.JobStatusFetching, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.ApplyChangeset(ctx, job.ID, models.NewJobChangeset().SetCursor(999)); err != nil {
		t.Fatal(err)
	}

	done, err := storage.TransitionJob(ctx, job.ID, models.JobStatusWaitingAnalyze, "")
	if err != nil {
		t.Fatal(err)
	}
	if done.Cursor != nil {
		t.Errorf("Expected cursor cleared after fetch completion, got %v", *done.Cursor)
	}
}

func TestClaimOldestWaitingOrder(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := models.NewJob("first", "First", "https://platform.local/u/first")
	first.JoinedQueueAt = time.Now().Add(-2 * time.Hour)
	second := models.NewJob("second", "Second", "https://platform.local/u/second")
	second.JoinedQueueAt = time.Now().Add(-1 * time.Hour)

	// Insert out of order; claim must still honour queue-join time
	if err := storage.CreateJob(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := storage.CreateJob(ctx, first); err != nil {
		t.Fatal(err)
	}

	claimed, err := storage.ClaimOldestWaiting(ctx)
	if err != nil {
		t.Fatalf("Failed to claim job: %v", err)
	}
	if claimed.Slug != "first" {
		t.Errorf("Expected oldest job claimed first, got %s", claimed.Slug)
	}
	if claimed.Status != models.JobStatusFetching {
		t.Errorf("Expected claimed job to be fetching, got %s", claimed.Status)
	}

	claimed2, err := storage.ClaimOldestWaiting(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claimed2.Slug != "second" {
		t.Errorf("Expected second job claimed next, got %s", claimed2.Slug)
	}

	if _, err := storage.ClaimOldestWaiting(ctx); !errors.Is(err, ErrNoWaitingJobs) {
		t.Fatalf("Expected ErrNoWaitingJobs on empty queue, got %v", err)
	}
}

func TestClaimOldestWaitingConcurrent(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("solo", "Solo", "https://platform.local/u/solo")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Many goroutines race for one waiting job; exactly one wins
	const claimers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := storage.ClaimOldestWaiting(ctx); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("Expected exactly 1 successful claim, got %d", winners)
	}
}

func TestResetFetchingJobs(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("eve", "Eve", "https://platform.local/u/eve")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.TransitionJob(ctx, job.ID, models.JobStatusFetching, ""); err != nil {
		t.Fatal(err)
	}
	// A committed cursor survives the reset so the re-fetch resumes
	if _, err := storage.ApplyChangeset(ctx, job.ID, models.NewJobChangeset().SetCursor(500)); err != nil {
		t.Fatal(err)
	}

	count, err := storage.ResetFetchingJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 job reset, got %d", count)
	}

	got, err := storage.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobStatusWaitingFetch {
		t.Errorf("Expected waiting_fetch after reset, got %s", got.Status)
	}
	if got.Cursor == nil || *got.Cursor != 500 {
		t.Errorf("Expected cursor preserved across reset, got %v", got.Cursor)
	}
}

func TestMarkShown(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("frank", "Frank", "https://platform.local/u/frank")
	if err := storage.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	first, err := storage.MarkShown(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.ViewCount != 1 {
		t.Errorf("Expected view count 1, got %d", first.ViewCount)
	}
	if first.FirstShownAt == nil || first.LastShownAt == nil {
		t.Fatal("Expected shown timestamps to be stamped")
	}

	second, err := storage.MarkShown(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.ViewCount != 2 {
		t.Errorf("Expected view count 2, got %d", second.ViewCount)
	}
	if !second.FirstShownAt.Equal(*first.FirstShownAt) {
		t.Error("FirstShownAt must not change on later views")
	}
}

func TestQueuePosition(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Hour)
	var last *models.Job
	for i, slug := range []string{"a", "b", "c"} {
		j := models.NewJob(slug, slug, "https://platform.local/u/"+slug)
		j.JoinedQueueAt = base.Add(time.Duration(i) * time.Minute)
		if err := storage.CreateJob(ctx, j); err != nil {
			t.Fatal(err)
		}
		last = j
	}

	pos, err := storage.QueuePosition(ctx, last)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 2 {
		t.Errorf("Expected 2 jobs ahead, got %d", pos)
	}
}
