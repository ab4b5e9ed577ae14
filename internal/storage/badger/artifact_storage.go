package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrArtifactNotFound is returned when a job has no stored artifact of the
// requested kind.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStorage persists analysis artifacts. Writes are full replacements:
// re-running analysis deletes the job's existing artifact of each kind and
// inserts the new one, so a done job never mixes results from two runs.
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) *ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArtifactStorage) replace(jobID string, dataType interface{}, key string, record interface{}) error {
	if err := s.db.Store().DeleteMatching(dataType, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete previous artifact: %w", err)
	}
	if err := s.db.Store().Insert(key, record); err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// ReplaceActivityCalendar replaces the job's activity calendar artifact.
func (s *ArtifactStorage) ReplaceActivityCalendar(ctx context.Context, a *models.ActivityCalendar) error {
	return s.replace(a.JobID, &models.ActivityCalendar{}, a.ID, a)
}

// GetActivityCalendar returns the job's activity calendar artifact.
func (s *ArtifactStorage) GetActivityCalendar(ctx context.Context, jobID string) (*models.ActivityCalendar, error) {
	var out []models.ActivityCalendar
	if err := s.db.Store().Find(&out, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get activity calendar: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &out[0], nil
}

// ReplaceWordFrequency replaces the job's word frequency artifact.
func (s *ArtifactStorage) ReplaceWordFrequency(ctx context.Context, a *models.WordFrequency) error {
	return s.replace(a.JobID, &models.WordFrequency{}, a.ID, a)
}

// GetWordFrequency returns the job's word frequency artifact.
func (s *ArtifactStorage) GetWordFrequency(ctx context.Context, jobID string) (*models.WordFrequency, error) {
	var out []models.WordFrequency
	if err := s.db.Store().Find(&out, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get word frequency: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &out[0], nil
}

// ReplaceInteractionBreakdown replaces the job's interaction breakdown artifact.
func (s *ArtifactStorage) ReplaceInteractionBreakdown(ctx context.Context, a *models.InteractionBreakdown) error {
	return s.replace(a.JobID, &models.InteractionBreakdown{}, a.ID, a)
}

// GetInteractionBreakdown returns the job's interaction breakdown artifact.
func (s *ArtifactStorage) GetInteractionBreakdown(ctx context.Context, jobID string) (*models.InteractionBreakdown, error) {
	var out []models.InteractionBreakdown
	if err := s.db.Store().Find(&out, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get interaction breakdown: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &out[0], nil
}

// ReplaceHourlyProfile replaces the job's hourly profile artifact.
func (s *ArtifactStorage) ReplaceHourlyProfile(ctx context.Context, a *models.HourlyProfile) error {
	return s.replace(a.JobID, &models.HourlyProfile{}, a.ID, a)
}

// GetHourlyProfile returns the job's hourly profile artifact.
func (s *ArtifactStorage) GetHourlyProfile(ctx context.Context, jobID string) (*models.HourlyProfile, error) {
	var out []models.HourlyProfile
	if err := s.db.Store().Find(&out, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get hourly profile: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &out[0], nil
}

// ReplaceInteractionSummary replaces the job's interaction summary artifact.
func (s *ArtifactStorage) ReplaceInteractionSummary(ctx context.Context, a *models.InteractionSummary) error {
	return s.replace(a.JobID, &models.InteractionSummary{}, a.ID, a)
}

// GetInteractionSummary returns the job's interaction summary artifact.
func (s *ArtifactStorage) GetInteractionSummary(ctx context.Context, jobID string) (*models.InteractionSummary, error) {
	var out []models.InteractionSummary
	if err := s.db.Store().Find(&out, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get interaction summary: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &out[0], nil
}

// ReplaceRankingHistory replaces the job's ranking history artifact.
func (s *ArtifactStorage) ReplaceRankingHistory(ctx context.Context, a *models.RankingHistory) error {
	return s.replace(a.JobID, &models.RankingHistory{}, a.ID, a)
}

// GetRankingHistory returns the job's ranking history artifact.
func (s *ArtifactStorage) GetRankingHistory(ctx context.Context, jobID string) (*models.RankingHistory, error) {
	var out []models.RankingHistory
	if err := s.db.Store().Find(&out, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to get ranking history: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &out[0], nil
}
