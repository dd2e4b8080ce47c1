package templates

import (
	"fmt"
	"regexp"
	"strings"

	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/models"
	"grant-assistant/pkg/registry"
)

// Score weights.
const (
	scoreActionType      = 30
	scoreKeyword         = 5
	scoreKeywordCap      = 15
	scoreOrganizationFit = 20
	scoreConsortiumSize  = 15
	scorePriorityPartner = 20
	scoreCountryTailored = 15
	scoreProgram         = 25

	consortiumSweetMin = 3
	consortiumSweetMax = 10
)

// Candidate is a template that passed every hard filter.
type Candidate struct {
	TemplateID string   `json:"templateId"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Rejection records why a template was filtered out.
type Rejection struct {
	TemplateID string `json:"templateId"`
	Reason     string `json:"reason"`
}

// Selection is the outcome of SelectTemplate. Template is nil when no
// candidate scored above zero.
type Selection struct {
	Template   *registry.GrantTemplate `json:"-"`
	TemplateID string                  `json:"templateId,omitempty"`
	Score      int                     `json:"score"`
	Candidates []Candidate             `json:"candidates"`
	Rejected   []Rejection             `json:"rejected,omitempty"`
}

// Found reports whether a template was selected.
func (s Selection) Found() bool {
	return s.Template != nil
}

// SelectTemplate filters the registry by budget, TRL and call keyword, then
// scores what remains. The highest score wins; on a tie the template listed
// first in the registry is kept.
func (m *Manager) SelectTemplate(c models.ApplicationContext) Selection {
	var sel Selection
	for i := range m.registry.Templates {
		t := &m.registry.Templates[i]
		if reason := hardFilter(t, &c); reason != "" {
			sel.Rejected = append(sel.Rejected, Rejection{TemplateID: t.ID, Reason: reason})
			continue
		}
		score, reasons := scoreTemplate(t, &c)
		sel.Candidates = append(sel.Candidates, Candidate{TemplateID: t.ID, Score: score, Reasons: reasons})
		if score > 0 && score > sel.Score {
			sel.Template = t
			sel.TemplateID = t.ID
			sel.Score = score
		}
	}

	outcome := "miss"
	if sel.Found() {
		outcome = "selected"
	}
	metrics.TemplateSelections.WithLabelValues(outcome).Inc()
	m.logger.Debug("template selection", map[string]interface{}{
		"outcome":    outcome,
		"templateId": sel.TemplateID,
		"score":      sel.Score,
		"candidates": len(sel.Candidates),
		"rejected":   len(sel.Rejected),
	})
	return sel
}

func hardFilter(t *registry.GrantTemplate, c *models.ApplicationContext) string {
	if c.Budget != nil && t.BudgetRange != "" {
		if lo, hi, ok := registry.BudgetBounds(t.BudgetRange); ok && (*c.Budget < lo || *c.Budget > hi) {
			return fmt.Sprintf("budget %.0f outside %s", *c.Budget, t.BudgetRange)
		}
	}

	if r := t.TRLRange; r != nil && (c.TRLStart != nil || c.TRLEnd != nil) {
		start, end := trlSpan(c)
		if start < r.Min || end > r.Max {
			return fmt.Sprintf("TRL %d-%d outside %d-%d", start, end, r.Min, r.Max)
		}
	}

	if c.Call != nil && t.CallKeyword != "" &&
		!strings.Contains(strings.ToUpper(*c.Call), strings.ToUpper(t.CallKeyword)) {
		return fmt.Sprintf("call %s does not match %s", *c.Call, t.CallKeyword)
	}
	return ""
}

// trlSpan fills a one-sided TRL span from the side that is known.
func trlSpan(c *models.ApplicationContext) (int, int) {
	var start, end int
	if c.TRLStart != nil {
		start = *c.TRLStart
	}
	if c.TRLEnd != nil {
		end = *c.TRLEnd
	}
	if c.TRLStart == nil {
		start = end
	}
	if c.TRLEnd == nil {
		end = start
	}
	return start, end
}

func scoreTemplate(t *registry.GrantTemplate, c *models.ApplicationContext) (int, []string) {
	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, fmt.Sprintf("+%d %s", points, reason))
	}

	if c.Call != nil && t.ActionType != "" && containsToken(*c.Call, t.ActionType) {
		add(scoreActionType, "action type "+t.ActionType+" in call")
	}

	if kw := keywordPoints(t, c); kw > 0 {
		add(kw, "keyword match")
	}

	if c.OrganizationType != nil {
		for _, fit := range t.OrganizationFit {
			if fit == string(*c.OrganizationType) {
				add(scoreOrganizationFit, "organization type "+fit)
				break
			}
		}
	}

	if n := len(c.Consortium); n >= consortiumSweetMin && n <= consortiumSweetMax {
		add(scoreConsortiumSize, fmt.Sprintf("consortium of %d", n))
	}

	if t.PriorityCountry != "" && c.HasPartnerFrom(t.PriorityCountry) {
		add(scorePriorityPartner, "partner from "+t.PriorityCountry)
		if t.CountryTailored {
			add(scoreCountryTailored, "tailored to "+t.PriorityCountry)
		}
	}

	if c.ProgramType != nil && string(*c.ProgramType) == t.ProgramType {
		add(scoreProgram, "programme "+t.ProgramType)
	}
	return score, reasons
}

// containsToken matches token as a dash or space separated segment of s.
func containsToken(s, token string) bool {
	token = strings.ToUpper(token)
	for _, part := range strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return r == '-' || r == ' ' || r == '_' || r == '/'
	}) {
		if part == token {
			return true
		}
	}
	return false
}

func keywordPoints(t *registry.GrantTemplate, c *models.ApplicationContext) int {
	var text []string
	for _, s := range []*string{c.Call, c.ProjectTitle, c.Description, c.Abstract} {
		if s != nil {
			text = append(text, *s)
		}
	}
	text = append(text, c.Keywords...)
	haystack := strings.ToLower(strings.Join(text, " "))
	if haystack == "" {
		return 0
	}

	points := 0
	for _, kw := range t.Keywords {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`)
		if err == nil && re.MatchString(haystack) {
			points += scoreKeyword
		}
	}
	if points > scoreKeywordCap {
		points = scoreKeywordCap
	}
	return points
}
