package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/metrics"
	"github.com/ternarybob/recap/internal/models"
)

// initialMaxID sits above any real operation id, so the first page of a
// fresh fetch starts from the newest entry.
const initialMaxID int64 = 1_000_000_000

// FetchError marks a crawl failure the retry policy could not resolve. The
// walking position is carried so an operator can correlate it with the
// committed cursor.
type FetchError struct {
	Slug  string
	MaxID int64
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching timeline for %s at max_id %d: %v", e.Slug, e.MaxID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher walks a user's timeline from newest to oldest, storing events
// that fall inside the configured window. Progress is committed batch by
// batch through the job cursor, so an interrupted fetch resumes where the
// last flush left off instead of starting over.
type Fetcher struct {
	source      interfaces.TimelineSource
	jobs        interfaces.JobStorage
	events      interfaces.EventStorage
	retry       *RetryPolicy
	pacer       *Pacer
	batchSize   int
	windowStart time.Time
	windowEnd   time.Time
	logger      arbor.ILogger
}

// NewFetcher creates a fetcher wired to the given timeline source and storage.
func NewFetcher(cfg *common.Config, source interfaces.TimelineSource, jobs interfaces.JobStorage, events interfaces.EventStorage, logger arbor.ILogger) (*Fetcher, error) {
	start, end, err := cfg.Window.Bounds()
	if err != nil {
		return nil, fmt.Errorf("invalid window configuration: %w", err)
	}

	return &Fetcher{
		source:      source,
		jobs:        jobs,
		events:      events,
		retry:       NewRetryPolicy(&cfg.Fetcher),
		pacer:       NewPacer(&cfg.Fetcher),
		batchSize:   cfg.Fetcher.BatchSize,
		windowStart: start,
		windowEnd:   end,
		logger:      logger,
	}, nil
}

// Fetch acquires the job's full timeline window. Returns once the walk
// passes the window start, exhausts the timeline, or fails a page after all
// retries.
func (f *Fetcher) Fetch(ctx context.Context, job *models.Job) error {
	maxID := initialMaxID
	if job.Cursor != nil {
		maxID = *job.Cursor
		f.logger.Warn().
			Str("job_id", job.ID).
			Int64("cursor", maxID).
			Msg("Previous fetch incomplete, resuming from committed cursor")
	}

	buffer := make([]models.TimelineEvent, 0, f.batchSize)
	pages := 0

walk:
	for {
		var page *models.TimelinePage
		err := f.retry.ExecuteWithRetry(ctx, f.logger, func() error {
			var ferr error
			page, ferr = f.source.FetchPage(ctx, job.Slug, maxID)
			return ferr
		})
		if err != nil {
			return &FetchError{Slug: job.Slug, MaxID: maxID, Err: err}
		}
		pages++
		metrics.PagesFetched.Inc()

		if page.Empty() {
			break
		}

		for i := range page.Events {
			ev := page.Events[i]

			if !ev.Type.Allowed() {
				// The default adapter validates tags itself, but the
				// allow-list guards every Source implementation
				f.logger.Warn().
					Str("job_id", job.ID).
					Str("type", string(ev.Type)).
					Int64("operation_id", ev.OperationID).
					Msg("Skipping event with off-list type")
				continue
			}
			if ev.OccurredAt.After(f.windowEnd) {
				// Newer than the window; keep walking backwards
				continue
			}
			if ev.OccurredAt.Before(f.windowStart) {
				// Operation ids decrease monotonically, so everything
				// beyond this point is older still
				break walk
			}

			ev.JobID = job.ID
			ev.Key = models.EventKey(job.ID, ev.OperationID)
			buffer = append(buffer, ev)

			if len(buffer) == f.batchSize {
				if err := f.flush(ctx, job, buffer); err != nil {
					return err
				}
				buffer = buffer[:0]
			}
		}

		maxID = page.OldestOperationID - 1

		if err := f.pacer.Wait(ctx); err != nil {
			return err
		}
	}

	if len(buffer) > 0 {
		if err := f.flush(ctx, job, buffer); err != nil {
			return err
		}
	}

	f.logger.Info().
		Str("job_id", job.ID).
		Str("slug", job.Slug).
		Int("pages", pages).
		Msg("Timeline fetch complete")

	return nil
}

// flush persists a batch and then commits the cursor. Order matters: events
// first, cursor second, so a crash between the two re-fetches rows that the
// idempotent event keys absorb harmlessly.
func (f *Fetcher) flush(ctx context.Context, job *models.Job, batch []models.TimelineEvent) error {
	if err := f.events.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("flushing event batch: %w", err)
	}
	metrics.EventsStored.Add(float64(len(batch)))

	oldest := batch[len(batch)-1].OperationID
	cs := models.NewJobChangeset().SetCursor(oldest - 1)
	if _, err := f.jobs.ApplyChangeset(ctx, job.ID, cs); err != nil {
		return fmt.Errorf("committing cursor: %w", err)
	}

	f.logger.Debug().
		Str("job_id", job.ID).
		Int("events", len(batch)).
		Int64("cursor", oldest-1).
		Msg("Event batch flushed")

	return nil
}
