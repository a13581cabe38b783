package models

// Scenario is a research artifact produced by Phase A: a persona with a pain
// point, a goal, a headline, and keywords that seed one or more articles.
// BlogType is assigned by the planner, never by the model.
type Scenario struct {
	ScenarioID        int        `json:"scenario_id"`
	PersonaName       string     `json:"persona_name"`
	PersonaArchetype  string     `json:"persona_archetype"`
	PainPointDetail   string     `json:"pain_point_detail"`
	GoalFocus         string     `json:"goal_focus"`
	BlogTopicHeadline string     `json:"blog_topic_headline"`
	TargetKeywords    []string   `json:"target_keywords"`
	RequiredWordCount int        `json:"required_word_count"`
	ResearchInsight   string     `json:"research_insight,omitempty"`
	ImageURLs         []ImageRef `json:"image_urls,omitempty"`
	BlogType          BlogType   `json:"blog_type,omitempty"`
}

// ImageRef is an image descriptor with attribution metadata
type ImageRef struct {
	URL             string `json:"url"`
	Alt             string `json:"alt,omitempty"`
	Photographer    string `json:"photographer,omitempty"`
	PhotographerURL string `json:"photographer_url,omitempty"`
}
