package rollup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/metrics"
	"github.com/ternarybob/recap/internal/models"
	storage "github.com/ternarybob/recap/internal/storage/badger"
)

const dayFormat = "2006-01-02"

// Service periodically regenerates the global rollup: totals and a
// site-wide daily activity curve aggregated from every completed job, plus
// the most-viewed leaderboard.
type Service struct {
	cfg         *common.RollupConfig
	windowStart time.Time
	windowEnd   time.Time
	jobs        interfaces.JobStorage
	artifacts   interfaces.ArtifactStorage
	rollups     interfaces.RollupStorage
	cron        *cron.Cron
	logger      arbor.ILogger

	mu           sync.Mutex // Protects isProcessing
	isProcessing bool
}

// NewService creates a rollup service.
func NewService(cfg *common.Config, jobs interfaces.JobStorage, artifacts interfaces.ArtifactStorage, rollups interfaces.RollupStorage, logger arbor.ILogger) (*Service, error) {
	start, end, err := cfg.Window.Bounds()
	if err != nil {
		return nil, fmt.Errorf("invalid window configuration: %w", err)
	}

	return &Service{
		cfg:         &cfg.Rollup,
		windowStart: start,
		windowEnd:   end,
		jobs:        jobs,
		artifacts:   artifacts,
		rollups:     rollups,
		cron:        cron.New(),
		logger:      logger,
	}, nil
}

// Start schedules periodic rollup generation.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Rollup generation disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.runScheduled); err != nil {
		return fmt.Errorf("failed to schedule rollup: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Msg("Rollup schedule started")
	return nil
}

// Stop halts the schedule. A generation already in flight finishes.
func (s *Service) Stop() {
	s.cron.Stop()
}

func (s *Service) runScheduled() {
	if err := s.Generate(context.Background()); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.logger.Warn().Msg("Previous rollup still running, skipping this tick")
			return
		}
		s.logger.Error().Err(err).Msg("Rollup generation failed")
	}
}

// ErrAlreadyRunning is returned when a generation overlaps a running one.
var ErrAlreadyRunning = errors.New("rollup generation already in progress")

// Generate builds a fresh rollup and swaps it in. Only one generation runs
// at a time; overlapping calls return ErrAlreadyRunning.
func (s *Service) Generate(ctx context.Context) error {
	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	started := time.Now()

	totalJobs, err := s.jobs.CountJobs(ctx)
	if err != nil {
		return fmt.Errorf("counting jobs: %w", err)
	}

	rollup := &models.GlobalRollup{
		ID:            common.NewRollupID(),
		GeneratedAt:   time.Now().UTC(),
		TotalJobs:     totalJobs,
		DailyActivity: s.zeroFilledWindow(),
	}

	doneJobs, err := s.jobs.GetJobsByStatus(ctx, models.JobStatusDone)
	if err != nil {
		return fmt.Errorf("loading completed jobs: %w", err)
	}

	for i := range doneJobs {
		calendar, err := s.artifacts.GetActivityCalendar(ctx, doneJobs[i].ID)
		if err != nil {
			if errors.Is(err, storage.ErrArtifactNotFound) {
				continue
			}
			return fmt.Errorf("loading calendar for job %s: %w", doneJobs[i].ID, err)
		}
		for day, count := range calendar.Days {
			if _, inWindow := rollup.DailyActivity[day]; !inWindow {
				continue
			}
			rollup.DailyActivity[day] += count
			rollup.TotalInteractions += count
		}
	}

	first := true
	for _, count := range rollup.DailyActivity {
		if first {
			rollup.MinDayCount = count
			rollup.MaxDayCount = count
			first = false
			continue
		}
		if count < rollup.MinDayCount {
			rollup.MinDayCount = count
		}
		if count > rollup.MaxDayCount {
			rollup.MaxDayCount = count
		}
	}

	topViewed, err := s.jobs.TopViewedDone(ctx, s.cfg.LeaderboardSize)
	if err != nil {
		return fmt.Errorf("loading leaderboard: %w", err)
	}
	for i := range topViewed {
		rollup.TopViewed = append(rollup.TopViewed, models.RollupLeader{
			Name:      topViewed[i].Name,
			Slug:      topViewed[i].Slug,
			ViewCount: topViewed[i].ViewCount,
		})
	}

	if err := s.rollups.ReplaceRollup(ctx, rollup); err != nil {
		return err
	}

	metrics.RollupDuration.Observe(time.Since(started).Seconds())
	s.logger.Info().
		Int("total_jobs", totalJobs).
		Int("contributing_jobs", len(doneJobs)).
		Dur("elapsed", time.Since(started)).
		Msg("Rollup generated")
	return nil
}

// zeroFilledWindow pre-seeds one entry per window day so quiet days render
// as zero instead of disappearing.
func (s *Service) zeroFilledWindow() map[string]int {
	days := make(map[string]int)
	for d := s.windowStart; !d.After(s.windowEnd); d = d.AddDate(0, 0, 1) {
		days[d.Format(dayFormat)] = 0
	}
	return days
}
