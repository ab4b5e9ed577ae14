package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	job      interfaces.JobStorage
	event    interfaces.EventStorage
	artifact interfaces.ArtifactStorage
	rollup   interfaces.RollupStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		job:      NewJobStorage(db, logger),
		event:    NewEventStorage(db, logger),
		artifact: NewArtifactStorage(db, logger),
		rollup:   NewRollupStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// EventStorage returns the Event storage interface
func (m *Manager) EventStorage() interfaces.EventStorage {
	return m.event
}

// ArtifactStorage returns the Artifact storage interface
func (m *Manager) ArtifactStorage() interfaces.ArtifactStorage {
	return m.artifact
}

// RollupStorage returns the Rollup storage interface
func (m *Manager) RollupStorage() interfaces.RollupStorage {
	return m.rollup
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
