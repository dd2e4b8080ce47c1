package templates

import (
	"fmt"
	"math"
	"strings"

	"grant-assistant/internal/models"
	"grant-assistant/pkg/registry"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

type Issue struct {
	Severity     Severity `json:"severity"`
	SubsectionID string   `json:"subsectionId"`
	Message      string   `json:"message"`
}

type ValidationReport struct {
	Valid        bool    `json:"valid"`
	OverallScore int     `json:"overallScore"`
	Errors       []Issue `json:"errors"`
	Warnings     []Issue `json:"warnings"`
}

// ValidateTemplate checks results against the template they were populated
// from. Missing subsections are critical; word-limit overruns, leftover
// placeholders and unmet required fields are errors; content under half the
// word limit is a warning. Results for subsections the template does not
// declare are warned about, and are errors when placeholders remain in them.
// OverallScore is the mean completeness.
func ValidateTemplate(results []models.TemplatePopulationResult, t *registry.GrantTemplate) ValidationReport {
	report := ValidationReport{Errors: []Issue{}, Warnings: []Issue{}}
	byID := make(map[string]models.TemplatePopulationResult, len(results))
	for _, r := range results {
		byID[r.SubsectionID] = r
	}
	fail := func(sev Severity, subID, format string, args ...interface{}) {
		report.Errors = append(report.Errors, Issue{Severity: sev, SubsectionID: subID, Message: fmt.Sprintf(format, args...)})
	}

	declared := make(map[string]bool)
	for _, sec := range t.Sections {
		for _, sub := range sec.Subsections {
			declared[sub.ID] = true
			r, ok := byID[sub.ID]
			if !ok {
				fail(SeverityCritical, sub.ID, "subsection %q produced no content", sub.Title)
				continue
			}

			words := wordCount(r.Content)
			if sub.WordLimit > 0 {
				switch {
				case words > sub.WordLimit:
					fail(SeverityError, sub.ID, "%d words exceeds the limit of %d", words, sub.WordLimit)
				case words < sub.WordLimit/2:
					report.Warnings = append(report.Warnings, Issue{
						Severity:     SeverityWarning,
						SubsectionID: sub.ID,
						Message:      fmt.Sprintf("only %d of %d words used", words, sub.WordLimit),
					})
				}
			}

			if tokens := uniqueTokens(r.Content); len(tokens) > 0 {
				fail(SeverityError, sub.ID, "unresolved placeholders: %s", strings.Join(tokens, ", "))
			}
			if len(r.MissingRequirements) > 0 {
				fail(SeverityError, sub.ID, "missing required fields: %s", strings.Join(r.MissingRequirements, ", "))
			}
		}
	}

	for _, r := range results {
		if declared[r.SubsectionID] {
			continue
		}
		report.Warnings = append(report.Warnings, Issue{
			Severity:     SeverityWarning,
			SubsectionID: r.SubsectionID,
			Message:      fmt.Sprintf("subsection is not part of template %s", t.ID),
		})
		if tokens := uniqueTokens(r.Content); len(tokens) > 0 {
			fail(SeverityError, r.SubsectionID, "unresolved placeholders: %s", strings.Join(tokens, ", "))
		}
	}

	if len(results) > 0 {
		total := 0
		for _, r := range results {
			total += r.Completeness
		}
		report.OverallScore = int(math.Round(float64(total) / float64(len(results))))
	}
	report.Valid = len(report.Errors) == 0
	return report
}

func uniqueTokens(content string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range registry.PlaceholderPattern.FindAllString(content, -1) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
