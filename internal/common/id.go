package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewContentID generates a unique content ID with the "content_" prefix
// Format: content_<uuid>
func NewContentID() string {
	return "content_" + uuid.New().String()
}
