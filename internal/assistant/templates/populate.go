package templates

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/models"
	"grant-assistant/pkg/registry"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var organizationLabels = map[models.OrganizationType]string{
	models.OrgUniversity:      "university",
	models.OrgResearch:        "research organisation",
	models.OrgSME:             "SME",
	models.OrgLargeEnterprise: "large enterprise",
	models.OrgNGO:             "NGO",
	models.OrgPublicBody:      "public body",
	models.OrgOther:           "organisation",
}

var programLabels = map[models.ProgramType]string{
	models.ProgramHorizonEurope:  "Horizon Europe",
	models.ProgramErasmusPlus:    "Erasmus+",
	models.ProgramCreativeEurope: "Creative Europe",
	models.ProgramLIFE:           "LIFE",
	models.ProgramDigitalEurope:  "Digital Europe",
	models.ProgramCERV:           "CERV",
	models.ProgramInterreg:       "Interreg",
	models.ProgramOther:          "EU programme",
}

// ProgramLabel returns the display name of a programme.
func ProgramLabel(p models.ProgramType) string {
	if l, ok := programLabels[p]; ok {
		return l
	}
	return string(p)
}

// PopulateTemplate fills every subsection of the template from c. Tokens
// without a value stay in place so that scoring and validation see them.
func (m *Manager) PopulateTemplate(templateID string, c models.ApplicationContext) ([]models.TemplatePopulationResult, error) {
	t, err := m.Template(templateID)
	if err != nil {
		return nil, err
	}

	values := placeholderValues(t, &c)
	var results []models.TemplatePopulationResult
	for _, sec := range t.Sections {
		for _, sub := range sec.Subsections {
			results = append(results, m.populateSubsection(t, sec, sub, &c, values))
		}
	}

	m.logger.Debug("template populated", map[string]interface{}{
		"templateId":  t.ID,
		"subsections": len(results),
	})
	return results, nil
}

func (m *Manager) populateSubsection(t *registry.GrantTemplate, sec registry.Section, sub registry.Subsection, c *models.ApplicationContext, values map[string]string) models.TemplatePopulationResult {
	text := sub.Template
	if t.PriorityCountry == "" || !c.HasPartnerFrom(t.PriorityCountry) {
		text = pruneSentences(text, registry.PHPriorityPartner)
	}

	extracted := map[string]string{}
	for _, token := range registry.PlaceholderPattern.FindAllString(text, -1) {
		if v, ok := values[token]; ok {
			extracted[strings.Trim(token, "[]")] = v
		}
	}
	content := registry.PlaceholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		if v, ok := values[token]; ok {
			return v
		}
		return token
	})
	content = tidy(content)

	res := models.TemplatePopulationResult{
		TemplateID:          t.ID,
		SectionID:           sec.ID,
		SubsectionID:        sub.ID,
		Title:               sub.Title,
		Content:             content,
		ExtractedFields:     extracted,
		MissingRequirements: missingRequirements(sub, c),
		WordCount:           wordCount(content),
		WordLimit:           sub.WordLimit,
	}
	res.Completeness = ScoreCompleteness(content, sub.WordLimit, c)
	metrics.SubsectionCompleteness.WithLabelValues(t.ID).Observe(float64(res.Completeness))
	return res
}

// placeholderValues resolves every token that c can answer.
func placeholderValues(t *registry.GrantTemplate, c *models.ApplicationContext) map[string]string {
	v := map[string]string{}
	putString := func(token string, s *string) {
		if s != nil && *s != "" {
			v[token] = *s
		}
	}
	putInt := func(token string, n *int) {
		if n != nil {
			v[token] = strconv.Itoa(*n)
		}
	}
	printer := printerFor(c.Metadata.Language)

	putString(registry.PHOrganizationName, c.OrganizationName)
	if c.OrganizationType != nil {
		v[registry.PHOrganizationType] = organizationLabels[*c.OrganizationType]
	}
	putString(registry.PHCountry, c.Country)
	putString(registry.PHProjectTitle, c.ProjectTitle)
	putString(registry.PHAcronym, c.Acronym)
	putString(registry.PHDescription, c.Description)
	putString(registry.PHAbstract, c.Abstract)
	if len(c.Keywords) > 0 {
		v[registry.PHKeywords] = strings.Join(c.Keywords, ", ")
	}
	putString(registry.PHCallID, c.Call)
	if c.ProgramType != nil {
		v[registry.PHProgram] = ProgramLabel(*c.ProgramType)
	}
	putInt(registry.PHDuration, c.Duration)
	putInt(registry.PHTRLStart, c.TRLStart)
	putInt(registry.PHTRLEnd, c.TRLEnd)

	rate := t.DefaultFundingRate
	if c.FundingRate != nil {
		rate = *c.FundingRate
	}
	if rate > 0 {
		v[registry.PHFundingRate] = strconv.FormatFloat(rate, 'f', -1, 64) + "%"
	}
	if c.Budget != nil {
		v[registry.PHBudget] = formatEuro(printer, *c.Budget)
		v[registry.PHEUContribution] = formatEuro(printer, *c.Budget)
	}
	switch {
	case c.TotalBudget != nil:
		v[registry.PHTotalBudget] = formatEuro(printer, *c.TotalBudget)
		if c.Budget == nil && rate > 0 {
			v[registry.PHEUContribution] = formatEuro(printer, *c.TotalBudget*rate/100)
		}
	case c.Budget != nil && rate > 0:
		v[registry.PHTotalBudget] = formatEuro(printer, *c.Budget*100/rate)
	}

	if len(c.Consortium) > 0 {
		countries := c.Countries()
		v[registry.PHPartnerCount] = strconv.Itoa(len(c.Consortium))
		if len(countries) > 0 {
			v[registry.PHCountryCount] = strconv.Itoa(len(countries))
			v[registry.PHPartnerCountries] = joinList(countries)
		}
		v[registry.PHPartnerList] = partnerList(c.Consortium)
	}

	if coord, ok := c.Coordinator(); ok {
		v[registry.PHCoordinator] = coord.Name
		if coord.Country != "" {
			v[registry.PHCoordinatorCountry] = coord.Country
		}
	} else if c.OrganizationName != nil {
		v[registry.PHCoordinator] = *c.OrganizationName
		putString(registry.PHCoordinatorCountry, c.Country)
	}

	if t.PriorityCountry != "" {
		v[registry.PHPriorityCountry] = t.PriorityCountry
		for _, p := range c.Consortium {
			if p.Country == t.PriorityCountry {
				v[registry.PHPriorityPartner] = p.Name
				break
			}
		}
	}
	return v
}

func printerFor(lang string) *message.Printer {
	tag := language.English
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			tag = parsed
		}
	}
	return message.NewPrinter(tag)
}

// formatEuro renders whole euros with locale digit grouping, e.g. €3,000,000.
func formatEuro(p *message.Printer, amount float64) string {
	return p.Sprintf("€%d", int64(math.Round(amount)))
}

// joinList renders "A", "A and B" or "A, B and C".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func partnerList(partners []models.Partner) string {
	lines := make([]string, 0, len(partners))
	for _, p := range partners {
		var attrs []string
		if p.Country != "" {
			attrs = append(attrs, p.Country)
		}
		if p.Type != "" {
			attrs = append(attrs, organizationLabels[p.Type])
		}
		if p.Role != "" && p.Role != models.RolePartner {
			attrs = append(attrs, string(p.Role))
		}
		line := "• " + p.Name
		if len(attrs) > 0 {
			line += " (" + strings.Join(attrs, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func missingRequirements(sub registry.Subsection, c *models.ApplicationContext) []string {
	missing := []string{}
	for _, f := range sub.Fields {
		if f.Required && !c.Has(models.FieldName(f.Name)) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// pruneSentences drops every sentence that mentions token. Lines left empty
// are removed.
func pruneSentences(text, token string) string {
	if !strings.Contains(text, token) {
		return text
	}
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if !strings.Contains(line, token) {
			out = append(out, line)
			continue
		}
		var kept []string
		for _, s := range splitSentences(line) {
			if !strings.Contains(s, token) {
				kept = append(kept, s)
			}
		}
		if joined := strings.TrimSpace(strings.Join(kept, " ")); joined != "" {
			out = append(out, joined)
		}
	}
	return strings.Join(out, "\n")
}

func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '.', '!', '?':
			if i+1 == len(line) || line[i+1] == ' ' {
				if s := strings.TrimSpace(line[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(line[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

func tidy(s string) string {
	return strings.TrimSpace(blankRunRe.ReplaceAllString(s, "\n\n"))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
