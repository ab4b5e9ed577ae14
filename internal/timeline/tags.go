package timeline

import "github.com/ternarybob/recap/internal/models"

// The platform timeline markup carries its own operation tags, which do not
// line up one-to-one with the canonical event types we store. This table is
// the single place the translation happens; a tag missing here is skipped by
// the adapter rather than stored raw.
var tagToEventType = map[string]models.EventType{
	"like_note":       models.EventTypeLikeArticle,
	"comment_note":    models.EventTypeCommentArticle,
	"like_comment":    models.EventTypeLikeComment,
	"like_user":       models.EventTypeFollowUser,
	"share_note":      models.EventTypePublishArticle,
	"like_collection": models.EventTypeFollowCollection,
	"like_notebook":   models.EventTypeFollowNotebook,
	"reward_note":     models.EventTypeRewardArticle,
	"join_site":       models.EventTypeJoinSite,
}

// MapTag translates a raw timeline tag to its canonical event type. The
// second return is false for tags the pipeline does not analyze.
func MapTag(tag string) (models.EventType, bool) {
	et, ok := tagToEventType[tag]
	return et, ok
}
