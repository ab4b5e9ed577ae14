package models

import (
	"fmt"
	"time"
)

// EventType is the canonical, internal name for an interaction kind,
// decoupled from the platform's raw timeline tags.
type EventType string

const (
	EventTypeLikeArticle      EventType = "like_article"
	EventTypeCommentArticle   EventType = "comment_article"
	EventTypeLikeComment      EventType = "like_comment"
	EventTypeFollowUser       EventType = "follow_user"
	EventTypePublishArticle   EventType = "publish_article"
	EventTypeFollowCollection EventType = "follow_collection"
	EventTypeFollowNotebook   EventType = "follow_notebook"
	EventTypeRewardArticle    EventType = "reward_article"
	// EventTypeJoinSite marks account registration. Stored like any other
	// event but excluded from interaction breakdowns - joining the platform
	// is not an interaction.
	EventTypeJoinSite EventType = "join_site"
)

// AllowedEventTypes is the canonical allow-list: timeline records of any
// other type are discarded by the crawler before storage.
var AllowedEventTypes = []EventType{
	EventTypeLikeArticle,
	EventTypeCommentArticle,
	EventTypeLikeComment,
	EventTypeFollowUser,
	EventTypePublishArticle,
	EventTypeFollowCollection,
	EventTypeFollowNotebook,
	EventTypeRewardArticle,
	EventTypeJoinSite,
}

var allowedEventTypes = func() map[EventType]bool {
	m := make(map[EventType]bool, len(AllowedEventTypes))
	for _, t := range AllowedEventTypes {
		m[t] = true
	}
	return m
}()

// Allowed reports whether the type is on the canonical allow-list.
func (t EventType) Allowed() bool {
	return allowedEventTypes[t]
}

// UserRef identifies another platform user appearing in an event.
type UserRef struct {
	Name string
	URL  string
}

// ArticleRef identifies an article appearing in an event.
type ArticleRef struct {
	Title string
	URL   string
}

// TimelineEvent is one stored interaction record. Immutable once stored;
// analyzers only read events. Events outside the configured window are never
// stored.
type TimelineEvent struct {
	// Key is jobID|operationID. Re-inserting an event with the same
	// operation id replaces the prior copy, never duplicates it.
	Key         string
	JobID       string    `badgerhold:"index"`
	OperationID int64     // Strictly decreasing per user in platform return order
	Type        EventType `badgerhold:"index"`
	OccurredAt  time.Time `badgerhold:"index"`
	FetchedAt   time.Time

	Actor          UserRef
	TargetUser     *UserRef
	TargetArticle  *ArticleRef
	CommentContent string // Set for comment events only
}

// EventKey builds the storage key for a job's event.
func EventKey(jobID string, operationID int64) string {
	return fmt.Sprintf("%s|%d", jobID, operationID)
}

// TimelinePage is one fetched page of a user's timeline. Events holds the
// entries that mapped to a canonical type; OldestOperationID is the lowest
// operation id the raw page carried, which the crawler needs to advance even
// when every entry on the page was skipped.
type TimelinePage struct {
	Events            []TimelineEvent
	OldestOperationID int64
}

// Empty reports whether the raw page carried no entries at all, meaning the
// timeline is exhausted.
func (p *TimelinePage) Empty() bool {
	return p.OldestOperationID == 0
}
