package templates

import (
	"context"

	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/models"
)

// Message is one turn handed to the text-generation service.
type Message struct {
	Role    models.ChatRole `json:"role"`
	Content string          `json:"content"`
}

// Completer drafts prose from a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// GenerateSection populates one subsection, asks completer to draft it and
// merges the draft into the populated text.
func (m *Manager) GenerateSection(ctx context.Context, completer Completer, req PromptRequest) (models.TemplatePopulationResult, error) {
	results, err := m.GenerateSections(ctx, completer, req, []string{req.SubsectionID})
	if len(results) == 0 {
		return models.TemplatePopulationResult{}, err
	}
	return results[0], err
}

// GenerateSections drafts every listed subsection of req.TemplateID, or all
// of them when ids is empty, and merges the drafts into the populated
// template. req.SubsectionID is ignored. On a completer failure the populated
// results are returned unmerged together with the error.
func (m *Manager) GenerateSections(ctx context.Context, completer Completer, req PromptRequest, ids []string) ([]models.TemplatePopulationResult, error) {
	populated, err := m.PopulateTemplate(req.TemplateID, req.Context)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		for _, r := range populated {
			ids = append(ids, r.SubsectionID)
		}
	}

	prompts := make([]string, len(ids))
	for i, id := range ids {
		sub := req
		sub.SubsectionID = id
		if prompts[i], err = m.GenerateAIPrompt(sub); err != nil {
			return nil, err
		}
	}
	wanted := pick(populated, ids)

	generated := make(map[string]string, len(ids))
	for i, id := range ids {
		text, err := completer.Complete(ctx, []Message{
			{Role: models.RoleSystem, Content: "You write clear, specific and evaluator-friendly EU grant proposals."},
			{Role: models.RoleUser, Content: prompts[i]},
		})
		if err != nil {
			m.logger.WithError(err).Warn("section generation failed", map[string]interface{}{
				"templateId":   req.TemplateID,
				"subsectionId": id,
			})
			return wanted, apperrors.NewGenerationFailedError(err)
		}
		generated[id] = text
	}

	return m.MergeBySubsection(wanted, generated, &req.Context), nil
}

// pick returns the results for ids in the order of ids.
func pick(results []models.TemplatePopulationResult, ids []string) []models.TemplatePopulationResult {
	byID := make(map[string]models.TemplatePopulationResult, len(results))
	for _, r := range results {
		byID[r.SubsectionID] = r
	}
	out := make([]models.TemplatePopulationResult, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
