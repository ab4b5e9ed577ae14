package analyzers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/interfaces"
	"github.com/ternarybob/recap/internal/models"
)

// WordFrequencyAnalyzer splits every comment the user wrote and keeps the
// most frequent words. Ordering is count descending with first-seen order
// breaking ties, so results are stable across runs.
type WordFrequencyAnalyzer struct {
	topWords  int
	events    interfaces.EventStorage
	artifacts interfaces.ArtifactStorage
	splitter  interfaces.WordSplitter
	logger    arbor.ILogger
}

func NewWordFrequencyAnalyzer(topWords int, events interfaces.EventStorage, artifacts interfaces.ArtifactStorage, splitter interfaces.WordSplitter, logger arbor.ILogger) *WordFrequencyAnalyzer {
	return &WordFrequencyAnalyzer{
		topWords:  topWords,
		events:    events,
		artifacts: artifacts,
		splitter:  splitter,
		logger:    logger,
	}
}

func (a *WordFrequencyAnalyzer) Name() string { return "word_frequency" }

func (a *WordFrequencyAnalyzer) Run(ctx context.Context, job *models.Job) error {
	comments, err := a.events.GetByJobAndType(ctx, job.ID, models.EventTypeCommentArticle)
	if err != nil {
		return fmt.Errorf("loading comment events: %w", err)
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	seq := 0

	for i := range comments {
		if comments[i].CommentContent == "" {
			continue
		}
		words, err := a.splitter.Split(ctx, comments[i].CommentContent)
		if err != nil {
			return fmt.Errorf("splitting comment text: %w", err)
		}
		for _, w := range words {
			if _, ok := counts[w]; !ok {
				firstSeen[w] = seq
				seq++
			}
			counts[w]++
		}
	}

	ordered := make([]models.WordCount, 0, len(counts))
	for w, c := range counts {
		ordered = append(ordered, models.WordCount{Word: w, Count: c})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Count != ordered[j].Count {
			return ordered[i].Count > ordered[j].Count
		}
		return firstSeen[ordered[i].Word] < firstSeen[ordered[j].Word]
	})
	if len(ordered) > a.topWords {
		ordered = ordered[:a.topWords]
	}

	artifact := &models.WordFrequency{
		ID:            common.NewArtifactID(),
		JobID:         job.ID,
		Available:     len(comments) > 0,
		Words:         ordered,
		TotalComments: len(comments),
		CreatedAt:     time.Now().UTC(),
	}
	return a.artifacts.ReplaceWordFrequency(ctx, artifact)
}
