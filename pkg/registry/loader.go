package registry

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultRegistry []byte

// Placeholder tokens understood by the population step.
const (
	PHOrganizationName   = "[ORGANIZATION_NAME]"
	PHOrganizationType   = "[ORGANIZATION_TYPE]"
	PHCountry            = "[COUNTRY]"
	PHProjectTitle       = "[PROJECT_TITLE]"
	PHAcronym            = "[ACRONYM]"
	PHDescription        = "[DESCRIPTION]"
	PHAbstract           = "[ABSTRACT]"
	PHKeywords           = "[KEYWORDS]"
	PHCallID             = "[CALL_ID]"
	PHProgram            = "[PROGRAM]"
	PHDuration           = "[DURATION]"
	PHBudget             = "[BUDGET]"
	PHTotalBudget        = "[TOTAL_BUDGET]"
	PHFundingRate        = "[FUNDING_RATE]"
	PHEUContribution     = "[EU_CONTRIBUTION]"
	PHTRLStart           = "[TRL_START]"
	PHTRLEnd             = "[TRL_END]"
	PHPartnerCount       = "[PARTNER_COUNT]"
	PHCountryCount       = "[COUNTRY_COUNT]"
	PHPartnerCountries   = "[PARTNER_COUNTRIES]"
	PHPartnerList        = "[PARTNER_LIST]"
	PHCoordinator        = "[COORDINATOR]"
	PHCoordinatorCountry = "[COORDINATOR_COUNTRY]"
	PHPriorityCountry    = "[PRIORITY_COUNTRY]"
	PHPriorityPartner    = "[PRIORITY_PARTNER]"
)

// Placeholders is the complete token vocabulary.
var Placeholders = []string{
	PHOrganizationName, PHOrganizationType, PHCountry, PHProjectTitle, PHAcronym,
	PHDescription, PHAbstract, PHKeywords, PHCallID, PHProgram, PHDuration,
	PHBudget, PHTotalBudget, PHFundingRate, PHEUContribution, PHTRLStart, PHTRLEnd,
	PHPartnerCount, PHCountryCount, PHPartnerCountries, PHPartnerList,
	PHCoordinator, PHCoordinatorCountry, PHPriorityCountry, PHPriorityPartner,
}

// AuthorPlaceholders have no context source; they stay in populated text until
// generated prose replaces the paragraph holding them.
var AuthorPlaceholders = []string{"[OBJECTIVE_ONE]", "[OBJECTIVE_TWO]", "[METHODOLOGY_DETAILS]"}

// PlaceholderPattern matches any bracketed ALL-CAPS token, known or not.
var PlaceholderPattern = regexp.MustCompile(`\[[A-Z][A-Z0-9_]*\]`)

func isKnownPlaceholder(token string) bool {
	for _, p := range Placeholders {
		if p == token {
			return true
		}
	}
	for _, p := range AuthorPlaceholders {
		if p == token {
			return true
		}
	}
	return false
}

// Default returns the registry compiled into the binary.
func Default() (*TemplateRegistry, error) {
	return Parse(defaultRegistry)
}

// LoadFile reads and validates a registry from disk.
func LoadFile(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML (JSON is valid YAML too) and validates the result.
func Parse(data []byte) (*TemplateRegistry, error) {
	var reg TemplateRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if problems := Validate(&reg); len(problems) > 0 {
		return nil, fmt.Errorf("registry invalid: %s", strings.Join(problems, "; "))
	}
	return &reg, nil
}

// Validate returns every structural problem found in reg.
func Validate(reg *TemplateRegistry) []string {
	var problems []string
	if len(reg.Templates) == 0 {
		return []string{"no templates defined"}
	}

	seen := map[string]bool{}
	for i, t := range reg.Templates {
		where := fmt.Sprintf("templates[%d]", i)
		if t.ID == "" {
			problems = append(problems, where+": missing id")
		} else {
			where = t.ID
			if seen[t.ID] {
				problems = append(problems, where+": duplicate id")
			}
			seen[t.ID] = true
		}
		if t.ProgramType == "" {
			problems = append(problems, where+": missing programType")
		}
		if t.BudgetRange != "" {
			if _, _, ok := BudgetBounds(t.BudgetRange); !ok {
				problems = append(problems, fmt.Sprintf("%s: unreadable budgetRange %q", where, t.BudgetRange))
			}
		}
		if r := t.TRLRange; r != nil && (r.Min < 1 || r.Max > 9 || r.Min > r.Max) {
			problems = append(problems, fmt.Sprintf("%s: trlRange %d-%d outside 1-9", where, r.Min, r.Max))
		}
		if t.CountryTailored && t.PriorityCountry == "" {
			problems = append(problems, where+": countryTailored without priorityCountry")
		}
		if len(t.Sections) == 0 {
			problems = append(problems, where+": no sections")
		}

		subIDs := map[string]bool{}
		for _, sec := range t.Sections {
			if len(sec.Subsections) == 0 {
				problems = append(problems, fmt.Sprintf("%s/%s: no subsections", where, sec.ID))
			}
			for _, sub := range sec.Subsections {
				at := fmt.Sprintf("%s/%s/%s", where, sec.ID, sub.ID)
				if sub.ID == "" {
					problems = append(problems, at+": missing subsection id")
				} else if subIDs[sub.ID] {
					problems = append(problems, at+": duplicate subsection id")
				}
				subIDs[sub.ID] = true
				if sub.WordLimit <= 0 {
					problems = append(problems, at+": wordLimit must be positive")
				}
				for _, token := range PlaceholderPattern.FindAllString(sub.Template, -1) {
					if !isKnownPlaceholder(token) {
						problems = append(problems, fmt.Sprintf("%s: unknown placeholder %s", at, token))
					}
				}
			}
		}
	}
	return problems
}

// Find returns the template with id.
func (r *TemplateRegistry) Find(id string) (*GrantTemplate, bool) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			return &r.Templates[i], true
		}
	}
	return nil, false
}
