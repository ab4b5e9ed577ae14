package models

import "time"

// Derived artifacts are owned 1:1 by a Job and fully replaced on every
// analysis run. Each carries enough pre-computed scalars that the rendering
// layer needs no further aggregation, and an Available flag so an empty
// event set produces a well-formed "nothing to show" document instead of an
// error.

// ActivityCalendar groups a job's events by calendar day.
type ActivityCalendar struct {
	ID        string
	JobID     string `badgerhold:"unique"`
	Available bool
	// Days maps ISO dates (2006-01-02) to interaction counts. Days without
	// events are absent.
	Days        map[string]int
	MaxDayCount int
	TotalCount  int
	ActiveDays  int
	CreatedAt   time.Time
}

// WordCount is one entry of a word-frequency artifact. Stored as a slice to
// preserve the count-descending, first-seen-tie-break ordering.
type WordCount struct {
	Word  string
	Count int
}

// WordFrequency holds the top comment words for a job.
type WordFrequency struct {
	ID            string
	JobID         string `badgerhold:"unique"`
	Available     bool
	Words         []WordCount
	TotalComments int
	CreatedAt     time.Time
}

// InteractionBreakdown counts a job's events per canonical type, excluding
// the registration type.
type InteractionBreakdown struct {
	ID        string
	JobID     string `badgerhold:"unique"`
	Available bool
	Counts    map[EventType]int
	Total     int
	CreatedAt time.Time
}

// HourlyProfile counts a job's events per hour of day. Hours without events
// are zero-filled so the output always has 24 entries.
type HourlyProfile struct {
	ID        string
	JobID     string `badgerhold:"unique"`
	Available bool
	Hours     [24]int
	Total     int
	CreatedAt time.Time
}

// DayCount pairs a calendar day with its interaction count.
type DayCount struct {
	Day   string // ISO date
	Count int
}

// PeerCount pairs another platform user with an interaction count.
type PeerCount struct {
	Name  string
	URL   string
	Count int
}

// InteractionSummary aggregates a job's headline numbers. Sub-results that
// have no matching events are left nil rather than failing the analyzer.
type InteractionSummary struct {
	ID        string
	JobID     string `badgerhold:"unique"`
	Available bool

	LikesGiven        int
	CommentsWritten   int
	RewardsGiven      int
	UsersFollowed     int
	ArticlesPublished int

	BusiestDay *DayCount

	// MostLiked and MostCommented exclude the job's own user: a self-like
	// or self-comment never makes someone their own favourite author.
	MostLiked     *PeerCount
	MostCommented *PeerCount

	CreatedAt time.Time
}

// RankAppearance is one ranking-feed row matched to a job's article.
type RankAppearance struct {
	Date         time.Time
	Rank         int
	ArticleTitle string
	ArticleURL   string
}

// RankingHistory records how often a job's published articles appeared on
// the platform ranking during the window. Appearances keeps a capped sample;
// AppearanceCount is the full total.
type RankingHistory struct {
	ID              string
	JobID           string `badgerhold:"unique"`
	Available       bool
	AppearanceCount int
	BestRank        int // Lowest rank number seen; 0 when unavailable
	Appearances     []RankAppearance
	CreatedAt       time.Time
}
