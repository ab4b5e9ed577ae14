package analyzers

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/models"
)

// Analyzer derives one artifact from a job's stored events. Analyzers never
// mutate events; each run fully replaces the artifact it owns, so running an
// analyzer twice over the same events produces the same stored result.
type Analyzer interface {
	Name() string
	Run(ctx context.Context, job *models.Job) error
}

// NewRegistry returns all analyzers in their execution order. The worker
// runs them sequentially and reports the first failure by analyzer name.
func NewRegistry(
	cfg *common.Config,
	events interfaces.EventStorage,
	artifacts interfaces.ArtifactStorage,
	splitter interfaces.WordSplitter,
	feed interfaces.RankingFeed,
	logger arbor.ILogger,
) []Analyzer {
	return []Analyzer{
		NewActivityAnalyzer(events, artifacts, logger),
		NewWordFrequencyAnalyzer(cfg.Analyzer.TopWords, events, artifacts, splitter, logger),
		NewBreakdownAnalyzer(events, artifacts, logger),
		NewHourlyAnalyzer(events, artifacts, logger),
		NewSummaryAnalyzer(events, artifacts, logger),
		NewRankingAnalyzer(cfg, events, artifacts, feed, logger),
	}
}
