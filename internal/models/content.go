package models

import (
	"time"
)

// ContentStatus marks whether an article item succeeded or failed
type ContentStatus string

const (
	ContentStatusOK     ContentStatus = "ok"
	ContentStatusFailed ContentStatus = "failed"
)

// Content is one rendered article. Rows are written exactly once when the
// Phase B item finishes (ok or failed) and never updated.
type Content struct {
	ID               string        `json:"id" badgerhold:"key"`
	JobID            string        `json:"job_id" badgerholdIndex:"JobID"`
	ScenarioID       int           `json:"scenario_id"`        // 1-based position in the generation plan
	SourceScenarioID int           `json:"source_scenario_id"` // Scenario this item was generated from
	BlogTitle        string        `json:"blog_title"`
	PersonaArchetype string        `json:"persona_archetype"`
	Keywords         []string      `json:"keywords"`
	BlogContent      string        `json:"blog_content"` // Markdown
	WordCount        int           `json:"word_count"`
	Slug             string        `json:"slug"`
	MetaDescription  string        `json:"meta_description"`
	BlogType         BlogType      `json:"blog_type"`
	ImageURLs        []ImageRef    `json:"image_urls,omitempty"`
	GenerationTimeMs int64         `json:"generation_time_ms"`
	ModelUsed        string        `json:"model_used"`
	Status           ContentStatus `json:"status"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ContentStats aggregates the rendered articles of one job
type ContentStats struct {
	TotalPosts          int   `json:"totalPosts"`
	AvgWordCount        int   `json:"avgWordCount"`
	TotalWords          int   `json:"totalWords"`
	AvgGenerationTimeMs int64 `json:"avgGenerationTimeMs"`
}
