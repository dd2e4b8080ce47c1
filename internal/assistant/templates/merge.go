package templates

import (
	"regexp"
	"strings"

	"grant-assistant/internal/models"
	"grant-assistant/pkg/registry"
)

// mergeThreshold is the placeholder count a paragraph must exceed before
// generated text replaces it.
const mergeThreshold = 0

var paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range paragraphSplitRe.Split(strings.TrimSpace(s), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isFlagged(paragraph string) bool {
	return len(registry.PlaceholderPattern.FindAllString(paragraph, -1)) > mergeThreshold
}

// MergeAIContent replaces the placeholder-bearing paragraphs of result with
// generated paragraphs. When both sides have the same number of paragraphs
// the replacement is positional; otherwise flagged paragraphs take generated
// paragraphs in order and any generated paragraphs left over are appended.
// The input is not modified.
func (m *Manager) MergeAIContent(result models.TemplatePopulationResult, generated string, c *models.ApplicationContext) models.TemplatePopulationResult {
	templated := splitParagraphs(result.Content)
	gen := splitParagraphs(generated)
	if len(gen) == 0 {
		return result
	}

	flagged := 0
	for _, p := range templated {
		if isFlagged(p) {
			flagged++
		}
	}
	if flagged == 0 {
		return result
	}

	merged := make([]string, 0, len(templated)+len(gen))
	if len(templated) == len(gen) {
		for i, p := range templated {
			if isFlagged(p) {
				merged = append(merged, gen[i])
			} else {
				merged = append(merged, p)
			}
		}
	} else {
		next := 0
		for _, p := range templated {
			if isFlagged(p) && next < len(gen) {
				merged = append(merged, gen[next])
				next++
				continue
			}
			merged = append(merged, p)
		}
		merged = append(merged, gen[next:]...)
		m.logger.Debug("paragraph counts differ, merged in order", map[string]interface{}{
			"subsectionId": result.SubsectionID,
			"templated":    len(templated),
			"generated":    len(gen),
		})
	}

	out := result
	out.Content = strings.Join(merged, "\n\n")
	out.WordCount = wordCount(out.Content)
	out.ExtractedFields = copyStrings(result.ExtractedFields)
	out.MissingRequirements = append([]string{}, result.MissingRequirements...)
	out.Completeness = ScoreCompleteness(out.Content, out.WordLimit, c)
	return out
}

// MergeBySubsection merges generated text keyed by subsection id. Results
// without generated text are returned unchanged.
func (m *Manager) MergeBySubsection(results []models.TemplatePopulationResult, generated map[string]string, c *models.ApplicationContext) []models.TemplatePopulationResult {
	out := make([]models.TemplatePopulationResult, len(results))
	for i, r := range results {
		if text, ok := generated[r.SubsectionID]; ok {
			out[i] = m.MergeAIContent(r, text, c)
			continue
		}
		out[i] = r
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
