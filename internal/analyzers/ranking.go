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

// RankingAnalyzer checks how often the user's published articles appeared
// on the platform's daily ranking during the window. A user who never
// published gets an unavailable artifact; a user whose articles never
// ranked gets an available artifact with zero appearances.
type RankingAnalyzer struct {
	sampleSize  int
	windowStart time.Time
	windowEnd   time.Time
	events      interfaces.EventStorage
	artifacts   interfaces.ArtifactStorage
	feed        interfaces.RankingFeed
	logger      arbor.ILogger
}

func NewRankingAnalyzer(cfg *common.Config, events interfaces.EventStorage, artifacts interfaces.ArtifactStorage, feed interfaces.RankingFeed, logger arbor.ILogger) *RankingAnalyzer {
	start, end, _ := cfg.Window.Bounds()
	return &RankingAnalyzer{
		sampleSize:  cfg.Analyzer.RankingSample,
		windowStart: start,
		windowEnd:   end,
		events:      events,
		artifacts:   artifacts,
		feed:        feed,
		logger:      logger,
	}
}

func (a *RankingAnalyzer) Name() string { return "ranking_history" }

func (a *RankingAnalyzer) Run(ctx context.Context, job *models.Job) error {
	published, err := a.events.GetByJobAndType(ctx, job.ID, models.EventTypePublishArticle)
	if err != nil {
		return fmt.Errorf("loading publish events: %w", err)
	}

	artifact := &models.RankingHistory{
		ID:        common.NewArtifactID(),
		JobID:     job.ID,
		CreatedAt: time.Now().UTC(),
	}

	urls := make([]string, 0, len(published))
	for i := range published {
		if published[i].TargetArticle != nil && published[i].TargetArticle.URL != "" {
			urls = append(urls, published[i].TargetArticle.URL)
		}
	}
	if len(urls) == 0 {
		return a.artifacts.ReplaceRankingHistory(ctx, artifact)
	}

	appearances, err := a.feed.Appearances(ctx, urls, a.windowStart, a.windowEnd)
	if err != nil {
		return fmt.Errorf("querying ranking feed: %w", err)
	}

	artifact.Available = true
	artifact.AppearanceCount = len(appearances)
	for _, app := range appearances {
		if artifact.BestRank == 0 || app.Rank < artifact.BestRank {
			artifact.BestRank = app.Rank
		}
	}
	if len(appearances) > a.sampleSize {
		appearances = appearances[:a.sampleSize]
	}
	artifact.Appearances = appearances

	return a.artifacts.ReplaceRankingHistory(ctx, artifact)
}
