package worker

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/analyzers"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/crawler"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/models"
	storage "github.com/ternarybob/recap/internal/storage/badger"
	"github.com/ternarybob/recap/internal/timeline"
)

type stubSource struct {
	events  []models.TimelineEvent
	pageErr error
}

func (s *stubSource) FetchPage(ctx context.Context, slug string, maxID int64) (*models.TimelinePage, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	page := &models.TimelinePage{}
	for _, ev := range s.events {
		if ev.OperationID <= maxID {
			page.Events = append(page.Events, ev)
			page.OldestOperationID = ev.OperationID
		}
	}
	return page, nil
}

func (s *stubSource) VerifyUser(ctx context.Context, slug string) (string, error) {
	return "Tester", nil
}

type stubSplitter struct {
	err error
}

func (s stubSplitter) Split(ctx context.Context, text string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return strings.Fields(text), nil
}

type stubFeed struct{}

func (stubFeed) Appearances(ctx context.Context, urls []string, start, end time.Time) ([]models.RankAppearance, error) {
	return nil, nil
}

type poolEnv struct {
	pool      *Pool
	jobs      interfaces.JobStorage
	artifacts interfaces.ArtifactStorage
}

func newPoolEnv(t *testing.T, source interfaces.TimelineSource, splitter interfaces.WordSplitter) *poolEnv {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pool-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	logger := arbor.NewLogger()
	db, err := storage.NewBadgerDB(logger, &common.BadgerConfig{Path: tmpDir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	jobs := storage.NewJobStorage(db, logger)
	events := storage.NewEventStorage(db, logger)
	artifacts := storage.NewArtifactStorage(db, logger)

	cfg := common.NewDefaultConfig()
	cfg.Queue.PollInterval = "20ms"
	cfg.Queue.Concurrency = 2
	cfg.Fetcher.MaxAttempts = 2
	cfg.Fetcher.InitialBackoff = "1ms"
	cfg.Fetcher.MaxBackoff = "2ms"
	cfg.Fetcher.RequestDelay = "1ms"
	cfg.Fetcher.RandomDelay = "1ms"

	fetcher, err := crawler.NewFetcher(cfg, source, jobs, events, logger)
	if err != nil {
		t.Fatal(err)
	}

	registry := analyzers.NewRegistry(cfg, events, artifacts, splitter, stubFeed{}, logger)
	pool := NewPool(&cfg.Queue, jobs, fetcher, registry, logger)
	t.Cleanup(pool.Stop)

	return &poolEnv{pool: pool, jobs: jobs, artifacts: artifacts}
}

func waitForStatus(t *testing.T, jobs interfaces.JobStorage, jobID string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := jobs.GetJob(context.Background(), jobID)
	t.Fatalf("Job never reached %s, stuck at %s (%s)", want, job.Status, job.ErrorMessage)
	return nil
}

func inWindowEvents() []models.TimelineEvent {
	return []models.TimelineEvent{
		{
			OperationID:    300,
			Type:           models.EventTypeCommentArticle,
			OccurredAt:     time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC),
			FetchedAt:      time.Now().UTC(),
			CommentContent: "nice post",
		},
		{
			OperationID: 200,
			Type:        models.EventTypeLikeArticle,
			OccurredAt:  time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
			FetchedAt:   time.Now().UTC(),
		},
	}
}

func TestPoolProcessesJobEndToEnd(t *testing.T) {
	env := newPoolEnv(t, &stubSource{events: inWindowEvents()}, stubSplitter{})
	ctx := context.Background()

	job := models.NewJob("alice", "Alice", "https://platform.local/u/alice")
	if err := env.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	env.pool.Start()
	done := waitForStatus(t, env.jobs, job.ID, models.JobStatusDone)

	if done.Cursor != nil {
		t.Errorf("Expected cursor cleared on done job, got %v", *done.Cursor)
	}
	if done.FetchStartedAt == nil || done.FetchEndedAt == nil ||
		done.AnalyzeStartedAt == nil || done.AnalyzeEndedAt == nil {
		t.Error("Expected all phase timestamps stamped")
	}

	// All six artifacts exist
	if _, err := env.artifacts.GetActivityCalendar(ctx, job.ID); err != nil {
		t.Errorf("Missing activity calendar: %v", err)
	}
	if _, err := env.artifacts.GetWordFrequency(ctx, job.ID); err != nil {
		t.Errorf("Missing word frequency: %v", err)
	}
	if _, err := env.artifacts.GetInteractionBreakdown(ctx, job.ID); err != nil {
		t.Errorf("Missing interaction breakdown: %v", err)
	}
	if _, err := env.artifacts.GetHourlyProfile(ctx, job.ID); err != nil {
		t.Errorf("Missing hourly profile: %v", err)
	}
	if _, err := env.artifacts.GetInteractionSummary(ctx, job.ID); err != nil {
		t.Errorf("Missing interaction summary: %v", err)
	}
	if _, err := env.artifacts.GetRankingHistory(ctx, job.ID); err != nil {
		t.Errorf("Missing ranking history: %v", err)
	}
}

func TestPoolRecordsFetchError(t *testing.T) {
	source := &stubSource{pageErr: &timeline.HTTPStatusError{StatusCode: http.StatusNotFound, URL: "https://platform.local"}}
	env := newPoolEnv(t, source, stubSplitter{})
	ctx := context.Background()

	job := models.NewJob("bob", "Bob", "https://platform.local/u/bob")
	if err := env.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	env.pool.Start()
	failed := waitForStatus(t, env.jobs, job.ID, models.JobStatusFetchError)

	if !strings.Contains(failed.ErrorMessage, "timeline fetch failed") {
		t.Errorf("Unexpected error message: %q", failed.ErrorMessage)
	}
}

func TestPoolNamesFailingAnalyzer(t *testing.T) {
	env := newPoolEnv(t, &stubSource{events: inWindowEvents()}, stubSplitter{err: errors.New("split service down")})
	ctx := context.Background()

	job := models.NewJob("carol", "Carol", "https://platform.local/u/carol")
	if err := env.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	env.pool.Start()
	failed := waitForStatus(t, env.jobs, job.ID, models.JobStatusAnalyzeError)

	if !strings.Contains(failed.ErrorMessage, "word_frequency") {
		t.Errorf("Expected failing analyzer named in message, got %q", failed.ErrorMessage)
	}

	// Analyzers before the failure keep their artifacts, the ones after
	// it never run
	if _, err := env.artifacts.GetActivityCalendar(ctx, job.ID); err != nil {
		t.Errorf("Expected activity calendar from before the failure: %v", err)
	}
	if _, err := env.artifacts.GetWordFrequency(ctx, job.ID); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("Expected no word frequency artifact, got %v", err)
	}
	if _, err := env.artifacts.GetInteractionBreakdown(ctx, job.ID); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("Expected no interaction breakdown artifact, got %v", err)
	}
	if _, err := env.artifacts.GetHourlyProfile(ctx, job.ID); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("Expected no hourly profile artifact, got %v", err)
	}
	if _, err := env.artifacts.GetInteractionSummary(ctx, job.ID); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("Expected no interaction summary artifact, got %v", err)
	}
	if _, err := env.artifacts.GetRankingHistory(ctx, job.ID); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("Expected no ranking history artifact, got %v", err)
	}
}

func TestPoolRecoverRequeuesStrandedJobs(t *testing.T) {
	env := newPoolEnv(t, &stubSource{events: inWindowEvents()}, stubSplitter{})
	ctx := context.Background()

	job := models.NewJob("dave", "Dave", "https://platform.local/u/dave")
	if err := env.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := env.jobs.TransitionJob(ctx, job.ID, models.JobStatusFetching, ""); err != nil {
		t.Fatal(err)
	}

	if err := env.pool.Recover(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := env.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobStatusWaitingFetch {
		t.Errorf("Expected stranded job requeued, got %s", got.Status)
	}
}

func TestPoolProcessesJobsInQueueOrder(t *testing.T) {
	env := newPoolEnv(t, &stubSource{events: inWindowEvents()}, stubSplitter{})
	ctx := context.Background()

	older := models.NewJob("older", "Older", "https://platform.local/u/older")
	older.JoinedQueueAt = time.Now().Add(-time.Hour)
	newer := models.NewJob("newer", "Newer", "https://platform.local/u/newer")

	if err := env.jobs.CreateJob(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := env.jobs.CreateJob(ctx, older); err != nil {
		t.Fatal(err)
	}

	env.pool.Start()
	waitForStatus(t, env.jobs, older.ID, models.JobStatusDone)
	waitForStatus(t, env.jobs, newer.ID, models.JobStatusDone)
}
