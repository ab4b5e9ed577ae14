package models

import (
	"fmt"
	"time"

	"github.com/ternarybob/recap/internal/common"
)

// JobStatus represents the lifecycle state of a recap job
type JobStatus string

const (
	JobStatusWaitingFetch   JobStatus = "waiting_fetch"
	JobStatusFetching       JobStatus = "fetching"
	JobStatusWaitingAnalyze JobStatus = "waiting_analyze"
	JobStatusAnalyzing      JobStatus = "analyzing"
	JobStatusDone           JobStatus = "done"
	JobStatusFetchError     JobStatus = "fetch_error"
	JobStatusAnalyzeError   JobStatus = "analyze_error"
)

// transitions is the authoritative lifecycle graph. The fetching ->
// waiting_fetch edge exists only for startup recovery after a crash
// mid-fetch; the automated pipeline never walks it during normal operation.
var transitions = map[JobStatus][]JobStatus{
	JobStatusWaitingFetch:   {JobStatusFetching},
	JobStatusFetching:       {JobStatusWaitingAnalyze, JobStatusFetchError, JobStatusWaitingFetch},
	JobStatusWaitingAnalyze: {JobStatusAnalyzing},
	JobStatusAnalyzing:      {JobStatusDone, JobStatusAnalyzeError},
}

// IsProcessing reports whether the job is still moving through the pipeline.
func (s JobStatus) IsProcessing() bool {
	switch s {
	case JobStatusWaitingFetch, JobStatusFetching, JobStatusWaitingAnalyze, JobStatusAnalyzing:
		return true
	}
	return false
}

// IsError reports whether the job stopped in an error state.
func (s JobStatus) IsError() bool {
	return s == JobStatusFetchError || s == JobStatusAnalyzeError
}

// IsTerminal reports whether the automated pipeline is finished with the job.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s.IsError()
}

// CanTransition reports whether next is reachable from s.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job tracks one platform user's request through the fetch and analyze
// phases. Exactly one Job exists per platform user slug.
type Job struct {
	ID     string
	Slug   string    `badgerhold:"unique"` // Platform user identifier
	Name   string    // Display name
	URL    string    // Platform profile URL
	Status JobStatus `badgerhold:"index"`

	// Cursor is the committed crawl resumption position (the next max
	// operation id to request). Non-nil only while a fetch is incomplete
	// or paused.
	Cursor *int64

	// ErrorMessage is set only by transitions into an error status.
	ErrorMessage string

	JoinedQueueAt    time.Time
	FetchStartedAt   *time.Time
	FetchEndedAt     *time.Time
	AnalyzeStartedAt *time.Time
	AnalyzeEndedAt   *time.Time
	FirstShownAt     *time.Time
	LastShownAt      *time.Time

	ViewCount int
}

// NewJob creates a Job in the initial waiting_fetch state.
func NewJob(slug, name, url string) *Job {
	return &Job{
		ID:            common.NewJobID(),
		Slug:          slug,
		Name:          name,
		URL:           url,
		Status:        JobStatusWaitingFetch,
		JoinedQueueAt: time.Now().UTC(),
	}
}

// Transition validates the move to next and returns the changeset that
// carries the status, the transition timestamps, and (for error states) the
// message. Transitions are the only writers of lifecycle timestamps and
// error messages.
func (j *Job) Transition(next JobStatus, errMsg string) (*JobChangeset, error) {
	if !j.Status.CanTransition(next) {
		return nil, fmt.Errorf("invalid job transition %s -> %s for job %s", j.Status, next, j.ID)
	}
	if next.IsError() && errMsg == "" {
		return nil, fmt.Errorf("transition to %s requires an error message for job %s", next, j.ID)
	}
	if !next.IsError() && errMsg != "" {
		return nil, fmt.Errorf("transition to %s must not carry an error message for job %s", next, j.ID)
	}

	now := time.Now().UTC()
	cs := NewJobChangeset().SetStatus(next)

	switch next {
	case JobStatusFetching:
		cs.SetFetchStartedAt(now)
	case JobStatusWaitingAnalyze:
		// Fetch is complete; no resumption position remains.
		cs.SetFetchEndedAt(now)
		cs.ClearCursor()
	case JobStatusAnalyzing:
		cs.SetAnalyzeStartedAt(now)
	case JobStatusDone:
		cs.SetAnalyzeEndedAt(now)
	case JobStatusFetchError:
		cs.SetFetchEndedAt(now)
		cs.SetErrorMessage(errMsg)
	case JobStatusAnalyzeError:
		cs.SetAnalyzeEndedAt(now)
		cs.SetErrorMessage(errMsg)
	case JobStatusWaitingFetch:
		// Startup recovery; the fetch start timestamp is rewritten when a
		// worker claims the job again.
	}

	return cs, nil
}
