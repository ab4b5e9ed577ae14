package analyzers

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/models"
)

// HourlyAnalyzer counts a job's events per hour of day. The fixed-size
// array keeps quiet hours present as zeros.
type HourlyAnalyzer struct {
	events    interfaces.EventStorage
	artifacts interfaces.ArtifactStorage
	logger    arbor.ILogger
}

func NewHourlyAnalyzer(events interfaces.EventStorage, artifacts interfaces.ArtifactStorage, logger arbor.ILogger) *HourlyAnalyzer {
	return &HourlyAnalyzer{events: events, artifacts: artifacts, logger: logger}
}

func (a *HourlyAnalyzer) Name() string { return "hourly_profile" }

func (a *HourlyAnalyzer) Run(ctx context.Context, job *models.Job) error {
	events, err := a.events.GetByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}

	artifact := &models.HourlyProfile{
		ID:        common.NewArtifactID(),
		JobID:     job.ID,
		CreatedAt: time.Now().UTC(),
	}

	for i := range events {
		artifact.Hours[events[i].OccurredAt.UTC().Hour()]++
		artifact.Total++
	}
	artifact.Available = artifact.Total > 0

	return a.artifacts.ReplaceHourlyProfile(ctx, artifact)
}
