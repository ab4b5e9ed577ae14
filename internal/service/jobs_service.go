package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/metrics"
	"github.com/ternarybob/recap/internal/models"
	storage "github.com/ternarybob/recap/internal/storage/badger"
)

var (
	// ErrInvalidUserURL is returned for malformed or off-platform URLs.
	ErrInvalidUserURL = errors.New("invalid user profile URL")
	// ErrJobNotReady is returned when a report is requested before the job
	// finished processing.
	ErrJobNotReady = errors.New("job has not finished processing")
)

// JobsService is the boundary consumers (web UI, CLI) talk to. It owns
// signup validation, queue introspection, and report assembly; everything
// else happens asynchronously in the worker pool.
type JobsService struct {
	platformHost string
	jobs         interfaces.JobStorage
	artifacts    interfaces.ArtifactStorage
	rollups      interfaces.RollupStorage
	source       interfaces.TimelineSource
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewJobsService creates a jobs service.
func NewJobsService(platformBaseURL string, jobs interfaces.JobStorage, artifacts interfaces.ArtifactStorage, rollups interfaces.RollupStorage, source interfaces.TimelineSource, logger arbor.ILogger) (*JobsService, error) {
	parsed, err := url.Parse(platformBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid platform base URL: %w", err)
	}

	return &JobsService{
		platformHost: parsed.Host,
		jobs:         jobs,
		artifacts:    artifacts,
		rollups:      rollups,
		source:       source,
		validate:     validator.New(),
		logger:       logger,
	}, nil
}

// Create registers a new job for the platform user behind the given profile
// URL. The user is verified against the platform before anything is stored;
// a second job for the same user fails with storage.ErrJobExists.
func (s *JobsService) Create(ctx context.Context, userURL string) (*models.Job, error) {
	slug, err := s.slugFromURL(userURL)
	if err != nil {
		return nil, err
	}

	name, err := s.source.VerifyUser(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("verifying platform user: %w", err)
	}

	job := models.NewJob(slug, name, userURL)
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	metrics.JobsCreated.Inc()
	s.logger.Info().
		Str("job_id", job.ID).
		Str("slug", slug).
		Msg("Job created")
	return job, nil
}

// slugFromURL validates the profile URL and extracts the user identifier
// from its last path segment.
func (s *JobsService) slugFromURL(userURL string) (string, error) {
	if err := s.validate.Var(userURL, "required,url"); err != nil {
		return "", ErrInvalidUserURL
	}

	parsed, err := url.Parse(userURL)
	if err != nil || parsed.Host != s.platformHost {
		return "", ErrInvalidUserURL
	}

	slug := parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	if slug == "" {
		return "", ErrInvalidUserURL
	}
	return slug, nil
}

// Status returns a job with its current queue position. Position is zero
// for jobs past the queue.
func (s *JobsService) Status(ctx context.Context, slug string) (*models.Job, int, error) {
	job, err := s.jobs.GetJobBySlug(ctx, slug)
	if err != nil {
		return nil, 0, err
	}

	if job.Status != models.JobStatusWaitingFetch {
		return job, 0, nil
	}
	position, err := s.jobs.QueuePosition(ctx, job)
	if err != nil {
		return nil, 0, err
	}
	return job, position, nil
}

// Report bundles every artifact of a completed job.
type Report struct {
	Job       *models.Job
	Calendar  *models.ActivityCalendar
	Words     *models.WordFrequency
	Breakdown *models.InteractionBreakdown
	Hourly    *models.HourlyProfile
	Summary   *models.InteractionSummary
	Ranking   *models.RankingHistory
}

// Report assembles the full report for a done job and counts the view.
func (s *JobsService) Report(ctx context.Context, slug string) (*Report, error) {
	job, err := s.jobs.GetJobBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusDone {
		return nil, fmt.Errorf("%w: status %s", ErrJobNotReady, job.Status)
	}

	job, err = s.jobs.MarkShown(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("recording report view: %w", err)
	}

	report := &Report{Job: job}
	if report.Calendar, err = s.artifacts.GetActivityCalendar(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("loading activity calendar: %w", err)
	}
	if report.Words, err = s.artifacts.GetWordFrequency(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("loading word frequency: %w", err)
	}
	if report.Breakdown, err = s.artifacts.GetInteractionBreakdown(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("loading interaction breakdown: %w", err)
	}
	if report.Hourly, err = s.artifacts.GetHourlyProfile(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("loading hourly profile: %w", err)
	}
	if report.Summary, err = s.artifacts.GetInteractionSummary(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("loading interaction summary: %w", err)
	}
	if report.Ranking, err = s.artifacts.GetRankingHistory(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("loading ranking history: %w", err)
	}
	return report, nil
}

// Rollup returns the latest global rollup.
func (s *JobsService) Rollup(ctx context.Context) (*models.GlobalRollup, error) {
	return s.rollups.GetLatest(ctx)
}

// IsDuplicate reports whether the error marks an already-registered user.
func IsDuplicate(err error) bool {
	return errors.Is(err, storage.ErrJobExists)
}
