package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrNoRollup is returned when no global rollup has been generated yet.
var ErrNoRollup = errors.New("no rollup available")

// RollupStorage persists the periodic global rollup. Only the latest rollup
// is kept: each write deletes the previous generation and inserts the new one.
type RollupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRollupStorage creates a new RollupStorage instance
func NewRollupStorage(db *BadgerDB, logger arbor.ILogger) *RollupStorage {
	return &RollupStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceRollup atomically swaps in a freshly generated rollup.
func (s *RollupStorage) ReplaceRollup(ctx context.Context, rollup *models.GlobalRollup) error {
	if err := s.db.Store().DeleteMatching(&models.GlobalRollup{}, nil); err != nil {
		return fmt.Errorf("failed to delete previous rollup: %w", err)
	}
	if err := s.db.Store().Insert(rollup.ID, rollup); err != nil {
		return fmt.Errorf("failed to insert rollup: %w", err)
	}

	s.logger.Info().
		Int("total_jobs", rollup.TotalJobs).
		Int("total_interactions", rollup.TotalInteractions).
		Msg("Global rollup replaced")
	return nil
}

// GetLatest returns the most recently generated rollup.
func (s *RollupStorage) GetLatest(ctx context.Context) (*models.GlobalRollup, error) {
	var rollups []models.GlobalRollup
	query := &badgerhold.Query{}
	query = query.SortBy("GeneratedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&rollups, query); err != nil {
		return nil, fmt.Errorf("failed to get rollup: %w", err)
	}
	if len(rollups) == 0 {
		return nil, ErrNoRollup
	}
	return &rollups[0], nil
}
