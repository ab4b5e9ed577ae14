package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

var (
	// ErrJobNotFound is returned when no job exists for the given id or slug.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a job for the platform user already exists.
	ErrJobExists = errors.New("job already exists for this user")
	// ErrNoWaitingJobs is returned by ClaimOldestWaiting when the queue is empty.
	ErrNoWaitingJobs = errors.New("no jobs waiting for fetch")
)

// JobStorage persists jobs and owns every status transition write. All
// read-modify-write paths run under one mutex, which is what makes the
// "claim only if still waiting" step atomic across workers sharing this
// process (Badger has no conditional update primitive).
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job. The unique index on Slug enforces exactly one
// job per platform user.
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Slug == "" {
		return fmt.Errorf("job slug is required")
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrUniqueExists) {
			return ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob loads a job by internal id.
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobBySlug loads a job by its platform user identifier.
func (s *JobStorage) GetJobBySlug(ctx context.Context, slug string) (*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Slug").Eq(slug)); err != nil {
		return nil, fmt.Errorf("failed to find job by slug: %w", err)
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return &jobs[0], nil
}

// ApplyChangeset loads the current job record, applies only the fields the
// changeset declares, and writes the result back. Partial-write semantics:
// a concurrently updated field outside the changeset is never clobbered.
func (s *JobStorage) ApplyChangeset(ctx context.Context, jobID string, cs *models.JobChangeset) (*models.Job, error) {
	if cs.Empty() {
		return s.GetJob(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyChangesetLocked(jobID, cs)
}

func (s *JobStorage) applyChangesetLocked(jobID string, cs *models.JobChangeset) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job for update: %w", err)
	}

	if err := cs.Apply(&job); err != nil {
		return nil, err
	}

	if err := s.db.Store().Upsert(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to save job update: %w", err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Strs("fields", cs.Fields()).
		Msg("Job fields updated")

	return &job, nil
}

// TransitionJob moves a job to the next status atomically: the status check
// and the write happen under the storage lock, so two workers racing the
// same transition see exactly one winner.
func (s *JobStorage) TransitionJob(ctx context.Context, jobID string, next models.JobStatus, errMsg string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job for transition: %w", err)
	}

	cs, err := job.Transition(next, errMsg)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyChangesetLocked(jobID, cs)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("from", string(job.Status)).
		Str("to", string(next)).
		Msg("Job status transition")

	return updated, nil
}

// ClaimOldestWaiting atomically claims the oldest waiting_fetch job (by
// queue-join time) and transitions it to fetching. Returns ErrNoWaitingJobs
// when the queue is empty.
func (s *JobStorage) ClaimOldestWaiting(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusWaitingFetch).
		SortBy("JoinedQueueAt").Limit(1)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to query waiting jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil, ErrNoWaitingJobs
	}

	job := jobs[0]
	cs, err := job.Transition(models.JobStatusFetching, "")
	if err != nil {
		return nil, err
	}

	return s.applyChangesetLocked(job.ID, cs)
}

// ResetFetchingJobs returns every job stuck in fetching to waiting_fetch.
// Run once at startup to recover from a crash mid-fetch; committed cursors
// make the subsequent re-fetch resume instead of restart.
func (s *JobStorage) ResetFetchingJobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusFetching)); err != nil {
		return 0, fmt.Errorf("failed to find fetching jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		cs, err := jobs[i].Transition(models.JobStatusWaitingFetch, "")
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to reset fetching job")
			continue
		}
		if _, err := s.applyChangesetLocked(jobs[i].ID, cs); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to save reset job")
			continue
		}
		count++
	}

	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("Unfinished fetch jobs returned to queue")
	}
	return count, nil
}

// MarkShown increments the view counter and stamps first/last shown times.
func (s *JobStorage) MarkShown(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	now := time.Now().UTC()
	cs := models.NewJobChangeset().IncrementViewCount().SetLastShownAt(now)
	if job.FirstShownAt == nil {
		cs.SetFirstShownAt(now)
	}

	return s.applyChangesetLocked(jobID, cs)
}

// QueuePosition counts the processing jobs that joined the queue before the
// given job; consumers display it as "N jobs ahead of you".
func (s *JobStorage) QueuePosition(ctx context.Context, job *models.Job) (int, error) {
	processing := []interface{}{
		models.JobStatusWaitingFetch,
		models.JobStatusFetching,
		models.JobStatusWaitingAnalyze,
		models.JobStatusAnalyzing,
	}
	count, err := s.db.Store().Count(&models.Job{},
		badgerhold.Where("Status").In(processing...).And("JoinedQueueAt").Lt(job.JoinedQueueAt))
	if err != nil {
		return 0, fmt.Errorf("failed to count queued jobs: %w", err)
	}
	return int(count), nil
}

// CountJobs returns the total number of jobs.
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// GetJobsByStatus returns all jobs with the given status.
func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}
	return jobs, nil
}

// TopViewedDone returns the completed jobs with the highest view counts.
func (s *JobStorage) TopViewedDone(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(models.JobStatusDone).
		SortBy("ViewCount").Reverse().Limit(limit)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to get top viewed jobs: %w", err)
	}
	return jobs, nil
}
