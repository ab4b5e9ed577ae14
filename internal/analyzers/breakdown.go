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

// BreakdownAnalyzer counts a job's events per canonical type. Registration
// is stored like any other event but never shown as an interaction, so it
// stays out of the counts.
type BreakdownAnalyzer struct {
	events    interfaces.EventStorage
	artifacts interfaces.ArtifactStorage
	logger    arbor.ILogger
}

func NewBreakdownAnalyzer(events interfaces.EventStorage, artifacts interfaces.ArtifactStorage, logger arbor.ILogger) *BreakdownAnalyzer {
	return &BreakdownAnalyzer{events: events, artifacts: artifacts, logger: logger}
}

func (a *BreakdownAnalyzer) Name() string { return "interaction_breakdown" }

func (a *BreakdownAnalyzer) Run(ctx context.Context, job *models.Job) error {
	events, err := a.events.GetByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}

	artifact := &models.InteractionBreakdown{
		ID:        common.NewArtifactID(),
		JobID:     job.ID,
		Counts:    make(map[models.EventType]int),
		CreatedAt: time.Now().UTC(),
	}

	for i := range events {
		if events[i].Type == models.EventTypeJoinSite {
			continue
		}
		artifact.Counts[events[i].Type]++
		artifact.Total++
	}
	artifact.Available = artifact.Total > 0

	return a.artifacts.ReplaceInteractionBreakdown(ctx, artifact)
}
