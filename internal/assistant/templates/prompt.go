package templates

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"grant-assistant/internal/models"
)

// maxExcerptRunes bounds the template excerpt embedded in prompts.
const maxExcerptRunes = 1200

// PromptRequest identifies the subsection to draft and the author's own notes.
type PromptRequest struct {
	TemplateID   string
	SubsectionID string
	Context      models.ApplicationContext
	UserNotes    string
}

// GenerateAIPrompt builds the drafting prompt for one subsection. It only
// builds text and never calls the generation service.
func (m *Manager) GenerateAIPrompt(req PromptRequest) (string, error) {
	t, sub, err := m.subsection(req.TemplateID, req.SubsectionID)
	if err != nil {
		return "", err
	}
	c := &req.Context

	var parts []string
	parts = append(parts, fmt.Sprintf("You are an experienced EU grant writer drafting the %q subsection of a %s proposal.", sub.Title, t.Name))

	if summary := contextSummary(c); len(summary) > 0 {
		parts = append(parts, "\nProject facts:")
		parts = append(parts, summary...)
	}

	if len(sub.EvaluationCriteria) > 0 {
		parts = append(parts, "\nEvaluators will score this subsection on:")
		for _, crit := range sub.EvaluationCriteria {
			parts = append(parts, "- "+crit)
		}
	}

	tips := append(append([]string(nil), sub.Tips...), t.AuthoringTips...)
	if len(tips) > 0 {
		parts = append(parts, "\nAuthoring tips:")
		for _, tip := range tips {
			parts = append(parts, "- "+tip)
		}
	}

	parts = append(parts, "\nTemplate excerpt:")
	parts = append(parts, truncateRunes(sub.Template, maxExcerptRunes))

	if notes := strings.TrimSpace(req.UserNotes); notes != "" {
		parts = append(parts, "\nAuthor notes:")
		parts = append(parts, notes)
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, fmt.Sprintf("- Stay under %d words", sub.WordLimit))
	parts = append(parts, "- Replace every bracketed placeholder with concrete content")
	parts = append(parts, "- Separate paragraphs with a blank line; use • for bullets and # for headings")
	parts = append(parts, "- Do not invent partners, figures or results that are not in the project facts")

	parts = append(parts, "\nDraft:")
	return strings.Join(parts, "\n"), nil
}

func contextSummary(c *models.ApplicationContext) []string {
	var out []string
	add := func(label string, v *string) {
		if v != nil && *v != "" {
			out = append(out, fmt.Sprintf("- %s: %s", label, *v))
		}
	}
	add("Organisation", c.OrganizationName)
	add("Country", c.Country)
	add("Project title", c.ProjectTitle)
	add("Acronym", c.Acronym)
	add("Call", c.Call)
	add("Description", c.Description)
	if c.ProgramType != nil {
		out = append(out, "- Programme: "+ProgramLabel(*c.ProgramType))
	}
	if c.Duration != nil {
		out = append(out, fmt.Sprintf("- Duration: %d months", *c.Duration))
	}
	if len(c.Keywords) > 0 {
		out = append(out, "- Keywords: "+strings.Join(c.Keywords, ", "))
	}
	if len(c.Consortium) > 0 {
		names := make([]string, 0, len(c.Consortium))
		for _, p := range c.Consortium {
			if p.Country != "" {
				names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.Country))
			} else {
				names = append(names, p.Name)
			}
		}
		out = append(out, "- Consortium: "+strings.Join(names, ", "))
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
