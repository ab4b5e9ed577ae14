package models

import (
	"fmt"
	"sort"
	"time"
)

// Job field names a changeset may carry. Declaring them here keeps partial
// updates auditable and rejects unknown fields at Apply time.
const (
	fieldStatus           = "status"
	fieldCursor           = "cursor"
	fieldErrorMessage     = "error_message"
	fieldFetchStartedAt   = "fetch_started_at"
	fieldFetchEndedAt     = "fetch_ended_at"
	fieldAnalyzeStartedAt = "analyze_started_at"
	fieldAnalyzeEndedAt   = "analyze_ended_at"
	fieldFirstShownAt     = "first_shown_at"
	fieldLastShownAt      = "last_shown_at"
	fieldViewCountDelta   = "view_count_delta"
)

// JobChangeset records the Job fields mutated since load. Storage applies
// only the recorded fields, so one worker's progress update cannot clobber a
// concurrently-read-but-unmodified field. Fields outside the declared set
// are unrepresentable: the only way in is through a typed setter.
type JobChangeset struct {
	fields map[string]interface{}
}

// NewJobChangeset creates an empty changeset.
func NewJobChangeset() *JobChangeset {
	return &JobChangeset{fields: make(map[string]interface{})}
}

// Empty reports whether no fields have been set.
func (c *JobChangeset) Empty() bool {
	return len(c.fields) == 0
}

// Fields returns the names of the recorded fields, sorted for stable logs.
func (c *JobChangeset) Fields() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *JobChangeset) SetStatus(s JobStatus) *JobChangeset {
	c.fields[fieldStatus] = s
	return c
}

func (c *JobChangeset) SetCursor(cursor int64) *JobChangeset {
	c.fields[fieldCursor] = &cursor
	return c
}

func (c *JobChangeset) ClearCursor() *JobChangeset {
	c.fields[fieldCursor] = (*int64)(nil)
	return c
}

func (c *JobChangeset) SetErrorMessage(msg string) *JobChangeset {
	c.fields[fieldErrorMessage] = msg
	return c
}

func (c *JobChangeset) SetFetchStartedAt(t time.Time) *JobChangeset {
	c.fields[fieldFetchStartedAt] = &t
	return c
}

func (c *JobChangeset) SetFetchEndedAt(t time.Time) *JobChangeset {
	c.fields[fieldFetchEndedAt] = &t
	return c
}

func (c *JobChangeset) SetAnalyzeStartedAt(t time.Time) *JobChangeset {
	c.fields[fieldAnalyzeStartedAt] = &t
	return c
}

func (c *JobChangeset) SetAnalyzeEndedAt(t time.Time) *JobChangeset {
	c.fields[fieldAnalyzeEndedAt] = &t
	return c
}

func (c *JobChangeset) SetFirstShownAt(t time.Time) *JobChangeset {
	c.fields[fieldFirstShownAt] = &t
	return c
}

func (c *JobChangeset) SetLastShownAt(t time.Time) *JobChangeset {
	c.fields[fieldLastShownAt] = &t
	return c
}

// IncrementViewCount records a relative counter bump rather than an absolute
// value, so concurrent shows cannot lose increments.
func (c *JobChangeset) IncrementViewCount() *JobChangeset {
	delta, _ := c.fields[fieldViewCountDelta].(int)
	c.fields[fieldViewCountDelta] = delta + 1
	return c
}

// Apply writes the recorded fields onto job. An unknown field name is a
// programming error and fails immediately.
func (c *JobChangeset) Apply(job *Job) error {
	for name, value := range c.fields {
		switch name {
		case fieldStatus:
			job.Status = value.(JobStatus)
		case fieldCursor:
			job.Cursor = value.(*int64)
		case fieldErrorMessage:
			job.ErrorMessage = value.(string)
		case fieldFetchStartedAt:
			job.FetchStartedAt = value.(*time.Time)
		case fieldFetchEndedAt:
			job.FetchEndedAt = value.(*time.Time)
		case fieldAnalyzeStartedAt:
			job.AnalyzeStartedAt = value.(*time.Time)
		case fieldAnalyzeEndedAt:
			job.AnalyzeEndedAt = value.(*time.Time)
		case fieldFirstShownAt:
			job.FirstShownAt = value.(*time.Time)
		case fieldLastShownAt:
			job.LastShownAt = value.(*time.Time)
		case fieldViewCountDelta:
			job.ViewCount += value.(int)
		default:
			return fmt.Errorf("changeset field %q is not declared on Job", name)
		}
	}
	return nil
}
