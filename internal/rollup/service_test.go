package rollup

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/models"
	storage "github.com/ternarybob/recap/internal/storage/badger"
)

type rollupEnv struct {
	service   *Service
	jobs      interfaces.JobStorage
	artifacts interfaces.ArtifactStorage
	rollups   interfaces.RollupStorage
	ctx       context.Context
}

func newRollupEnv(t *testing.T) *rollupEnv {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "rollup-test")
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
	artifacts := storage.NewArtifactStorage(db, logger)
	rollups := storage.NewRollupStorage(db, logger)

	cfg := common.NewDefaultConfig()
	cfg.Rollup.LeaderboardSize = 2

	service, err := NewService(cfg, jobs, artifacts, rollups, logger)
	if err != nil {
		t.Fatal(err)
	}
	return &rollupEnv{service: service, jobs: jobs, artifacts: artifacts, rollups: rollups, ctx: context.Background()}
}

func (e *rollupEnv) addDoneJob(t *testing.T, slug string, views int, days map[string]int) {
	t.Helper()

	job := models.NewJob(slug, slug, "https://platform.local/u/"+slug)
	if err := e.jobs.CreateJob(e.ctx, job); err != nil {
		t.Fatal(err)
	}
	for _, next := range []models.JobStatus{
		models.JobStatusFetching,
		models.JobStatusWaitingAnalyze,
		models.JobStatusAnalyzing,
		models.JobStatusDone,
	} {
		if _, err := e.jobs.TransitionJob(e.ctx, job.ID, next, ""); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < views; i++ {
		if _, err := e.jobs.MarkShown(e.ctx, job.ID); err != nil {
			t.Fatal(err)
		}
	}

	total := 0
	maxDay := 0
	for _, c := range days {
		total += c
		if c > maxDay {
			maxDay = c
		}
	}
	calendar := &models.ActivityCalendar{
		ID:          common.NewArtifactID(),
		JobID:       job.ID,
		Available:   true,
		Days:        days,
		MaxDayCount: maxDay,
		TotalCount:  total,
		ActiveDays:  len(days),
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.artifacts.ReplaceActivityCalendar(e.ctx, calendar); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateAggregatesAcrossJobs(t *testing.T) {
	env := newRollupEnv(t)

	env.addDoneJob(t, "alice", 3, map[string]int{"2025-03-01": 5, "2025-03-02": 2})
	env.addDoneJob(t, "bob", 7, map[string]int{"2025-03-01": 4})
	env.addDoneJob(t, "carol", 1, map[string]int{"2025-06-10": 9})

	if err := env.service.Generate(env.ctx); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rollup, err := env.rollups.GetLatest(env.ctx)
	if err != nil {
		t.Fatal(err)
	}

	if rollup.TotalJobs != 3 {
		t.Errorf("Expected 3 total jobs, got %d", rollup.TotalJobs)
	}
	if rollup.DailyActivity["2025-03-01"] != 9 {
		t.Errorf("Expected 9 interactions on 2025-03-01, got %d", rollup.DailyActivity["2025-03-01"])
	}
	if rollup.TotalInteractions != 20 {
		t.Errorf("Expected 20 total interactions, got %d", rollup.TotalInteractions)
	}
	// Every window day is present, quiet ones as zero
	if len(rollup.DailyActivity) != 365 {
		t.Errorf("Expected 365 window days, got %d", len(rollup.DailyActivity))
	}
	if rollup.MinDayCount != 0 {
		t.Errorf("Expected min day count 0, got %d", rollup.MinDayCount)
	}
	if rollup.MaxDayCount != 9 {
		t.Errorf("Expected max day count 9, got %d", rollup.MaxDayCount)
	}

	// Leaderboard capped at 2, highest views first
	if len(rollup.TopViewed) != 2 {
		t.Fatalf("Expected leaderboard of 2, got %d", len(rollup.TopViewed))
	}
	if rollup.TopViewed[0].Slug != "bob" || rollup.TopViewed[0].ViewCount != 7 {
		t.Errorf("Unexpected leaderboard head: %+v", rollup.TopViewed[0])
	}
}

func TestGenerateSkipsOverlappingRun(t *testing.T) {
	env := newRollupEnv(t)

	env.service.mu.Lock()
	env.service.isProcessing = true
	env.service.mu.Unlock()

	if err := env.service.Generate(env.ctx); err != ErrAlreadyRunning {
		t.Fatalf("Expected ErrAlreadyRunning, got %v", err)
	}

	env.service.mu.Lock()
	env.service.isProcessing = false
	env.service.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.service.Generate(env.ctx)
	}()
	wg.Wait()

	if _, err := env.rollups.GetLatest(env.ctx); err != nil {
		t.Fatalf("Expected rollup after unblocked run: %v", err)
	}
}

func TestGenerateReplacesPreviousRollup(t *testing.T) {
	env := newRollupEnv(t)

	if err := env.service.Generate(env.ctx); err != nil {
		t.Fatal(err)
	}
	first, err := env.rollups.GetLatest(env.ctx)
	if err != nil {
		t.Fatal(err)
	}

	env.addDoneJob(t, "alice", 1, map[string]int{"2025-03-01": 5})
	if err := env.service.Generate(env.ctx); err != nil {
		t.Fatal(err)
	}
	second, err := env.rollups.GetLatest(env.ctx)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID == second.ID {
		t.Error("Expected a fresh rollup document")
	}
	if second.TotalJobs != 1 {
		t.Errorf("Expected updated totals, got %d", second.TotalJobs)
	}
}
