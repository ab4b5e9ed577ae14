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

const dayFormat = "2006-01-02"

// ActivityAnalyzer buckets a job's events by calendar day.
type ActivityAnalyzer struct {
	events    interfaces.EventStorage
	artifacts interfaces.ArtifactStorage
	logger    arbor.ILogger
}

func NewActivityAnalyzer(events interfaces.EventStorage, artifacts interfaces.ArtifactStorage, logger arbor.ILogger) *ActivityAnalyzer {
	return &ActivityAnalyzer{events: events, artifacts: artifacts, logger: logger}
}

func (a *ActivityAnalyzer) Name() string { return "activity_calendar" }

func (a *ActivityAnalyzer) Run(ctx context.Context, job *models.Job) error {
	events, err := a.events.GetByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}

	artifact := &models.ActivityCalendar{
		ID:        common.NewArtifactID(),
		JobID:     job.ID,
		Days:      make(map[string]int),
		CreatedAt: time.Now().UTC(),
	}

	for i := range events {
		day := events[i].OccurredAt.UTC().Format(dayFormat)
		artifact.Days[day]++
		artifact.TotalCount++
		if artifact.Days[day] > artifact.MaxDayCount {
			artifact.MaxDayCount = artifact.Days[day]
		}
	}
	artifact.ActiveDays = len(artifact.Days)
	artifact.Available = artifact.TotalCount > 0

	return a.artifacts.ReplaceActivityCalendar(ctx, artifact)
}
