package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/recap/internal/models"
)

// TimelineSource fetches pages of a platform user's interaction timeline.
// Pages walk backwards in time: each record's operation id is lower than the
// one before it, and maxID bounds the newest operation a page may contain.
type TimelineSource interface {
	// FetchPage returns the timeline page whose operations are all at or
	// below maxID, newest first. An empty page means the timeline is
	// exhausted.
	FetchPage(ctx context.Context, slug string, maxID int64) (*models.TimelinePage, error)

	// VerifyUser checks that the platform user exists and returns their
	// display name.
	VerifyUser(ctx context.Context, slug string) (string, error)
}

// WordSplitter segments comment text into words for frequency analysis.
type WordSplitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// RankingFeed exposes the platform's historical daily ranking lists.
type RankingFeed interface {
	// Appearances returns ranking rows matching any of the given article
	// URLs with dates between start and end inclusive.
	Appearances(ctx context.Context, articleURLs []string, start, end time.Time) ([]models.RankAppearance, error)
}
