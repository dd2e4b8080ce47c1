package templates

import (
	"encoding/json"
	"time"

	"grant-assistant/internal/models"
)

// RenderPayload is what the document renderer consumes. Section content uses
// a small markdown dialect: # headings, •, - or * bullets and **bold**.
type RenderPayload struct {
	TemplateID   string                            `json:"templateId"`
	TemplateName string                            `json:"templateName"`
	GeneratedAt  time.Time                         `json:"generatedAt"`
	Sections     []models.TemplatePopulationResult `json:"sections"`
	Context      models.ApplicationContext         `json:"context"`
	Validation   *ValidationReport                 `json:"validation,omitempty"`
}

// BuildRenderPayload populates the template, validates the result and packs
// both with the context for the renderer.
func (m *Manager) BuildRenderPayload(templateID string, c models.ApplicationContext) (*RenderPayload, error) {
	t, err := m.Template(templateID)
	if err != nil {
		return nil, err
	}
	results, err := m.PopulateTemplate(templateID, c)
	if err != nil {
		return nil, err
	}
	report := ValidateTemplate(results, t)
	return &RenderPayload{
		TemplateID:   t.ID,
		TemplateName: t.Name,
		GeneratedAt:  m.now().UTC(),
		Sections:     results,
		Context:      *c.Clone(),
		Validation:   &report,
	}, nil
}

// JSON encodes the payload with indentation.
func (p *RenderPayload) JSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
