package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventStorage persists timeline events. Events are keyed by job id plus
// operation id, so re-fetching a page a crashed run already flushed
// overwrites the same records instead of duplicating them.
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) *EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

// SaveBatch upserts a batch of events. Callers flush in fixed-size batches
// during a fetch; this call must succeed before the job cursor advances.
func (s *EventStorage) SaveBatch(ctx context.Context, events []models.TimelineEvent) error {
	for i := range events {
		ev := &events[i]
		if ev.Key == "" {
			ev.Key = models.EventKey(ev.JobID, ev.OperationID)
		}
		if err := s.db.Store().Upsert(ev.Key, ev); err != nil {
			return fmt.Errorf("failed to save event %s: %w", ev.Key, err)
		}
	}

	s.logger.Debug().Int("count", len(events)).Msg("Event batch saved")
	return nil
}

// GetByJob returns all events for a job, newest first.
func (s *EventStorage) GetByJob(ctx context.Context, jobID string) ([]models.TimelineEvent, error) {
	var events []models.TimelineEvent
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("OccurredAt").Reverse()
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get events for job: %w", err)
	}
	return events, nil
}

// GetByJobAndType returns a job's events of one type, newest first.
func (s *EventStorage) GetByJobAndType(ctx context.Context, jobID string, eventType models.EventType) ([]models.TimelineEvent, error) {
	var events []models.TimelineEvent
	query := badgerhold.Where("JobID").Eq(jobID).And("Type").Eq(eventType).
		SortBy("OccurredAt").Reverse()
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}
	return events, nil
}

// CountByJob returns the number of stored events for a job.
func (s *EventStorage) CountByJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.TimelineEvent{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}

// HasOperation reports whether an event with the given operation id is
// already stored for the job.
func (s *EventStorage) HasOperation(ctx context.Context, jobID string, opID int64) (bool, error) {
	var ev models.TimelineEvent
	err := s.db.Store().Get(models.EventKey(jobID, opID), &ev)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check for event: %w", err)
	}
	return true, nil
}

// DeleteByJob removes all events for a job.
func (s *EventStorage) DeleteByJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.TimelineEvent{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete events for job: %w", err)
	}
	return nil
}
