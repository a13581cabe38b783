package models

import (
	"time"
)

// TaskTypeGenerateContent is the queue task type for the two-phase pipeline.
const TaskTypeGenerateContent = "generate-content"

// QueueMessage is the immutable task payload sent to the queue. One message
// per job; the JobID doubles as the deduplication key so a job can never have
// two pipelines in flight.
type QueueMessage struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
