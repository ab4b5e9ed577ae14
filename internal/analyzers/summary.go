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

// SummaryAnalyzer computes the headline numbers for a job: per-type totals,
// the busiest day, and the peers most often liked and commented on. Peer
// aggregations exclude the job's own user, keyed by profile URL.
type SummaryAnalyzer struct {
	events    interfaces.EventStorage
	artifacts interfaces.ArtifactStorage
	logger    arbor.ILogger
}

func NewSummaryAnalyzer(events interfaces.EventStorage, artifacts interfaces.ArtifactStorage, logger arbor.ILogger) *SummaryAnalyzer {
	return &SummaryAnalyzer{events: events, artifacts: artifacts, logger: logger}
}

func (a *SummaryAnalyzer) Name() string { return "interaction_summary" }

func (a *SummaryAnalyzer) Run(ctx context.Context, job *models.Job) error {
	events, err := a.events.GetByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}

	artifact := &models.InteractionSummary{
		ID:        common.NewArtifactID(),
		JobID:     job.ID,
		Available: len(events) > 0,
		CreatedAt: time.Now().UTC(),
	}

	days := make(map[string]int)
	likedPeers := make(map[string]*models.PeerCount)
	commentedPeers := make(map[string]*models.PeerCount)

	for i := range events {
		ev := &events[i]

		switch ev.Type {
		case models.EventTypeLikeArticle:
			artifact.LikesGiven++
			countPeer(likedPeers, ev, job.URL)
		case models.EventTypeCommentArticle:
			artifact.CommentsWritten++
			countPeer(commentedPeers, ev, job.URL)
		case models.EventTypeRewardArticle:
			artifact.RewardsGiven++
		case models.EventTypeFollowUser:
			artifact.UsersFollowed++
		case models.EventTypePublishArticle:
			artifact.ArticlesPublished++
		}

		days[ev.OccurredAt.UTC().Format(dayFormat)]++
	}

	artifact.BusiestDay = busiestDay(days)
	artifact.MostLiked = topPeer(likedPeers)
	artifact.MostCommented = topPeer(commentedPeers)

	return a.artifacts.ReplaceInteractionSummary(ctx, artifact)
}

// countPeer attributes one interaction to its target user, skipping events
// with no target and events pointing back at the job's own profile.
func countPeer(peers map[string]*models.PeerCount, ev *models.TimelineEvent, selfURL string) {
	if ev.TargetUser == nil || ev.TargetUser.URL == "" || ev.TargetUser.URL == selfURL {
		return
	}
	peer, ok := peers[ev.TargetUser.URL]
	if !ok {
		peer = &models.PeerCount{Name: ev.TargetUser.Name, URL: ev.TargetUser.URL}
		peers[ev.TargetUser.URL] = peer
	}
	peer.Count++
}

func busiestDay(days map[string]int) *models.DayCount {
	if len(days) == 0 {
		return nil
	}
	keys := make([]string, 0, len(days))
	for d := range days {
		keys = append(keys, d)
	}
	// Deterministic winner when counts tie: earliest day
	sort.Strings(keys)

	best := &models.DayCount{}
	for _, d := range keys {
		if days[d] > best.Count {
			best = &models.DayCount{Day: d, Count: days[d]}
		}
	}
	return best
}

func topPeer(peers map[string]*models.PeerCount) *models.PeerCount {
	if len(peers) == 0 {
		return nil
	}
	urls := make([]string, 0, len(peers))
	for u := range peers {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var best *models.PeerCount
	for _, u := range urls {
		if best == nil || peers[u].Count > best.Count {
			best = peers[u]
		}
	}
	return best
}
