// -----------------------------------------------------------------------
// Job - durable record for a bulk content generation run
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a content generation job
type JobStatus string

const (
	JobStatusEnqueued         JobStatus = "enqueued"
	JobStatusResearching      JobStatus = "researching"
	JobStatusResearchComplete JobStatus = "research_complete"
	JobStatusGenerating       JobStatus = "generating"
	JobStatusComplete         JobStatus = "complete"
	JobStatusPartialComplete  JobStatus = "partial_complete"
	JobStatusFailed           JobStatus = "failed"
)

// BlogType is one of the four article allocation categories
type BlogType string

const (
	BlogTypeFunctional    BlogType = "functional"
	BlogTypeTransactional BlogType = "transactional"
	BlogTypeCommercial    BlogType = "commercial"
	BlogTypeInformational BlogType = "informational"
)

// BlogTypes lists the allocation categories in plan order.
var BlogTypes = []BlogType{
	BlogTypeFunctional,
	BlogTypeTransactional,
	BlogTypeCommercial,
	BlogTypeInformational,
}

// Tones is the closed set of accepted article tones.
var Tones = map[string]bool{
	"professional":   true,
	"conversational": true,
	"authoritative":  true,
	"friendly":       true,
	"technical":      true,
	"casual":         true,
}

// Job is the top-level unit of work. One row per submitted request; the
// owning worker is the only mutator once the job leaves the queue.
type Job struct {
	ID     string `json:"id" badgerhold:"key"`
	UserID string `json:"user_id" badgerholdIndex:"UserID"`

	// Request snapshot (immutable after admission)
	Niche             string           `json:"niche"`
	ValuePropositions []string         `json:"value_propositions"`
	Tone              string           `json:"tone"`
	TotalBlogs        int              `json:"total_blogs"`
	Allocations       map[BlogType]int `json:"blog_type_allocations"`
	TargetWordCount   int              `json:"target_word_count"`

	// Runtime state
	Status                JobStatus `json:"status" badgerholdIndex:"Status"`
	Progress              int       `json:"progress"`
	TotalContentGenerated int       `json:"total_content_generated"`
	FailedContentCount    int       `json:"failed_content_count"`
	Scenarios             []Scenario `json:"scenarios,omitempty"`
	ErrorMessage          string    `json:"error_message,omitempty"`

	// Credits
	CreditsCost     int `json:"credits_cost"`
	CreditsRefunded int `json:"credits_refunded"`

	// Cancellation and stall tracking
	CancelRequested bool `json:"cancel_requested"`
	Stalls          int  `json:"stalls"`

	// Timestamps
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// IsTerminal returns true if the job has reached a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusComplete ||
		j.Status == JobStatusPartialComplete ||
		j.Status == JobStatusFailed
}

// MarkStarted marks the job as picked up by a worker
func (j *Job) MarkStarted() {
	now := time.Now()
	j.StartedAt = &now
	j.LastHeartbeat = &now
}

// AllocationSum returns the total of the per-type allocation counts
func (j *Job) AllocationSum() int {
	sum := 0
	for _, n := range j.Allocations {
		sum += n
	}
	return sum
}

// EstimatedSecondsRemaining reports a coarse completion estimate for status
// polling: a flat figure while researching, ten seconds per outstanding
// article while generating.
func (j *Job) EstimatedSecondsRemaining() int {
	switch j.Status {
	case JobStatusEnqueued, JobStatusResearching, JobStatusResearchComplete:
		return 60
	case JobStatusGenerating:
		remaining := j.TotalBlogs - j.TotalContentGenerated - j.FailedContentCount
		if remaining < 0 {
			remaining = 0
		}
		return remaining * 10
	default:
		return 0
	}
}
