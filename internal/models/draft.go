package models

import "time"

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Draft is a named, versioned snapshot of the whole working state.
type Draft struct {
	ID                string                     `json:"id"`
	Name              string                     `json:"name"`
	Version           int                        `json:"version"`
	Context           ApplicationContext         `json:"context"`
	ChatHistory       []ChatMessage              `json:"chatHistory"`
	PopulatedSections []TemplatePopulationResult `json:"populatedSections,omitempty"`
	CreatedAt         time.Time                  `json:"createdAt"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
	Metadata          map[string]string          `json:"metadata,omitempty"`
}

// DraftState is what the caller hands over when a draft is saved.
type DraftState struct {
	Name              string
	Context           *ApplicationContext
	ChatHistory       []ChatMessage
	PopulatedSections []TemplatePopulationResult
	Metadata          map[string]string
}

// TemplatePopulationResult is the rendered state of one template subsection.
type TemplatePopulationResult struct {
	TemplateID          string            `json:"templateId"`
	SectionID           string            `json:"sectionId"`
	SubsectionID        string            `json:"subsectionId"`
	Title               string            `json:"title"`
	Content             string            `json:"content"`
	ExtractedFields     map[string]string `json:"extractedFields,omitempty"`
	Completeness        int               `json:"completeness"`
	MissingRequirements []string          `json:"missingRequirements"`
	WordCount           int               `json:"wordCount"`
	WordLimit           int               `json:"wordLimit"`
}
