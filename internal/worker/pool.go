package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/analyzers"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/crawler"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/metrics"
	"github.com/ternarybob/recap/internal/models"
	storage "github.com/ternarybob/recap/internal/storage/badger"
)

// Pool runs a fixed number of workers over the job queue. Each worker claims
// the oldest waiting job, fetches its timeline, then runs the analyzers;
// failures park the job in the matching error state with a message instead
// of crashing the worker.
type Pool struct {
	jobs         interfaces.JobStorage
	fetcher      *crawler.Fetcher
	analyzers    []analyzers.Analyzer
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(cfg *common.QueueConfig, jobs interfaces.JobStorage, fetcher *crawler.Fetcher, registry []analyzers.Analyzer, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:         jobs,
		fetcher:      fetcher,
		analyzers:    registry,
		concurrency:  cfg.Concurrency,
		pollInterval: common.MustDuration(cfg.PollInterval),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the workers. Call Recover first so jobs stranded in
// fetching by a previous run rejoin the queue before workers poll.
func (p *Pool) Start() {
	p.logger.Info().
		Int("concurrency", p.concurrency).
		Dur("poll_interval", p.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < p.concurrency; i++ {
		go p.worker(i)
	}
}

// Stop gracefully stops the worker pool
func (p *Pool) Stop() {
	p.logger.Info().Msg("Stopping worker pool")
	p.cancel()
}

// Recover returns jobs left mid-fetch by an unclean shutdown to the queue.
func (p *Pool) Recover(ctx context.Context) error {
	_, err := p.jobs.ResetFetchingJobs(ctx)
	return err
}

func (p *Pool) worker(workerID int) {
	// Stagger worker starts to reduce claim contention, spreading workers
	// evenly across the poll interval
	staggerDelay := (p.pollInterval / time.Duration(p.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	p.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		case <-ticker.C:
			p.drainQueue(workerID)
		}
	}
}

// drainQueue processes jobs until the queue is empty, so a burst of signups
// is not throttled to one job per poll interval.
func (p *Pool) drainQueue(workerID int) {
	for {
		job, err := p.jobs.ClaimOldestWaiting(p.ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrNoWaitingJobs) {
				p.logger.Warn().Err(err).Int("worker_id", workerID).Msg("Failed to claim job")
			}
			return
		}

		p.processJob(workerID, job)

		select {
		case <-p.ctx.Done():
			return
		default:
		}
	}
}

// processJob drives one claimed job through fetch and analysis. The claim
// already moved it to fetching.
func (p *Pool) processJob(workerID int, job *models.Job) {
	errorStatus := models.JobStatusFetchError

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker_id", workerID).
				Str("job_id", job.ID).
				Msgf("Panic while processing job: %v", r)
			p.failJob(job, errorStatus, fmt.Sprintf("internal error: %v", r))
		}
	}()

	p.logger.Info().
		Int("worker_id", workerID).
		Str("job_id", job.ID).
		Str("slug", job.Slug).
		Msg("Processing job")

	fetchStart := time.Now()
	if err := p.fetcher.Fetch(p.ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-fetch: leave the job in fetching so startup
			// recovery requeues it with its cursor intact
			return
		}
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Timeline fetch failed")
		p.failJob(job, models.JobStatusFetchError, fmt.Sprintf("timeline fetch failed: %v", err))
		return
	}

	metrics.ObserveJobPhase("fetch", fetchStart)

	job, err := p.jobs.TransitionJob(p.ctx, job.ID, models.JobStatusWaitingAnalyze, "")
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record fetch completion")
		return
	}
	job, err = p.jobs.TransitionJob(p.ctx, job.ID, models.JobStatusAnalyzing, "")
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to start analysis")
		return
	}
	errorStatus = models.JobStatusAnalyzeError
	analyzeStart := time.Now()

	for _, analyzer := range p.analyzers {
		if err := analyzer.Run(p.ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Str("analyzer", analyzer.Name()).
				Msg("Analyzer failed")
			p.failJob(job, models.JobStatusAnalyzeError, fmt.Sprintf("analyzer %s failed: %v", analyzer.Name(), err))
			return
		}
	}

	metrics.ObserveJobPhase("analyze", analyzeStart)

	if _, err := p.jobs.TransitionJob(p.ctx, job.ID, models.JobStatusDone, ""); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job done")
		return
	}
	metrics.JobsCompleted.Inc()
	p.logger.Info().
		Int("worker_id", workerID).
		Str("job_id", job.ID).
		Str("slug", job.Slug).
		Msg("Job complete")
}

func (p *Pool) failJob(job *models.Job, status models.JobStatus, message string) {
	phase := "fetch"
	if status == models.JobStatusAnalyzeError {
		phase = "analyze"
	}
	metrics.JobsFailed.WithLabelValues(phase).Inc()

	if _, err := p.jobs.TransitionJob(context.Background(), job.ID, status, message); err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("target_status", string(status)).
			Msg("Failed to record job failure")
	}
}
