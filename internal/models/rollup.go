package models

import "time"

// RollupLeader is one most-viewed entry of the global rollup leaderboard.
type RollupLeader struct {
	Name      string
	Slug      string
	ViewCount int
}

// GlobalRollup summarizes participation across all jobs. A single document
// exists at a time; every rollup run deletes the prior one and inserts a
// fresh copy.
type GlobalRollup struct {
	ID          string
	GeneratedAt time.Time
	TotalJobs   int
	// DailyActivity sums every completed job's activity calendar per window
	// day. Days with zero interactions across all users still appear as 0.
	DailyActivity     map[string]int
	MinDayCount       int
	MaxDayCount       int
	TotalInteractions int
	TopViewed         []RollupLeader
}
