package interfaces

import (
	"context"

	"github.com/ternarybob/recap/internal/models"
)

// JobStorage - interface for job persistence and status transitions
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	GetJobBySlug(ctx context.Context, slug string) (*models.Job, error)

	// ApplyChangeset writes only the fields the changeset declares.
	ApplyChangeset(ctx context.Context, jobID string, cs *models.JobChangeset) (*models.Job, error)
	// TransitionJob validates and applies a status transition atomically.
	TransitionJob(ctx context.Context, jobID string, next models.JobStatus, errMsg string) (*models.Job, error)
	// ClaimOldestWaiting atomically hands the oldest waiting job to a worker.
	ClaimOldestWaiting(ctx context.Context) (*models.Job, error)
	ResetFetchingJobs(ctx context.Context) (int, error)

	MarkShown(ctx context.Context, jobID string) (*models.Job, error)
	QueuePosition(ctx context.Context, job *models.Job) (int, error)
	CountJobs(ctx context.Context) (int, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)
	TopViewedDone(ctx context.Context, limit int) ([]models.Job, error)
}

// EventStorage - interface for timeline event persistence
type EventStorage interface {
	SaveBatch(ctx context.Context, events []models.TimelineEvent) error
	GetByJob(ctx context.Context, jobID string) ([]models.TimelineEvent, error)
	GetByJobAndType(ctx context.Context, jobID string, eventType models.EventType) ([]models.TimelineEvent, error)
	CountByJob(ctx context.Context, jobID string) (int, error)
	HasOperation(ctx context.Context, jobID string, opID int64) (bool, error)
	DeleteByJob(ctx context.Context, jobID string) error
}

// ArtifactStorage - interface for analysis artifact persistence.
// Replace methods are full swaps, never field merges.
type ArtifactStorage interface {
	ReplaceActivityCalendar(ctx context.Context, a *models.ActivityCalendar) error
	GetActivityCalendar(ctx context.Context, jobID string) (*models.ActivityCalendar, error)

	ReplaceWordFrequency(ctx context.Context, a *models.WordFrequency) error
	GetWordFrequency(ctx context.Context, jobID string) (*models.WordFrequency, error)

	ReplaceInteractionBreakdown(ctx context.Context, a *models.InteractionBreakdown) error
	GetInteractionBreakdown(ctx context.Context, jobID string) (*models.InteractionBreakdown, error)

	ReplaceHourlyProfile(ctx context.Context, a *models.HourlyProfile) error
	GetHourlyProfile(ctx context.Context, jobID string) (*models.HourlyProfile, error)

	ReplaceInteractionSummary(ctx context.Context, a *models.InteractionSummary) error
	GetInteractionSummary(ctx context.Context, jobID string) (*models.InteractionSummary, error)

	ReplaceRankingHistory(ctx context.Context, a *models.RankingHistory) error
	GetRankingHistory(ctx context.Context, jobID string) (*models.RankingHistory, error)
}

// RollupStorage - interface for the periodic global rollup
type RollupStorage interface {
	ReplaceRollup(ctx context.Context, rollup *models.GlobalRollup) error
	GetLatest(ctx context.Context) (*models.GlobalRollup, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	EventStorage() EventStorage
	ArtifactStorage() ArtifactStorage
	RollupStorage() RollupStorage
	Close() error
}
