package validator

import (
	"regexp"
	"strings"

	"grant-assistant/internal/models"
)

type Kind int

const (
	KindText Kind = iota
	KindEnum
	KindInteger
	KindDecimal
	KindList
	KindConsortium
)

// Rule describes how one context field is checked.
type Rule struct {
	Field     models.FieldName
	Label     string
	Kind      Kind
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	// PatternMessage is the rejection reason when Pattern does not match.
	PatternMessage string
	Min, Max       float64
	Enum           []string
	Aliases        map[string]string
	// Check is an extra predicate returning a rejection reason, or "".
	Check    func(value interface{}) string
	Examples []string
	// Generic enables the filler-phrase check for text values.
	Generic bool
}

var (
	letterRe     = regexp.MustCompile(`\p{L}`)
	callRe       = regexp.MustCompile(`[0-9-]`)
	countryRe    = regexp.MustCompile(`^\p{L}[\p{L} .'-]*$`)
	acronymRe    = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}+&-]*$`)
	templateIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

func requireLetter(label string) func(interface{}) string {
	return func(v interface{}) string {
		if s, ok := v.(string); ok && !letterRe.MatchString(s) {
			return label + " must contain at least one letter"
		}
		return ""
	}
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

var organizationTypeAliases = map[string]string{
	"uni":                   string(models.OrgUniversity),
	"universität":           string(models.OrgUniversity),
	"université":            string(models.OrgUniversity),
	"higher_education":      string(models.OrgUniversity),
	"research":              string(models.OrgResearch),
	"research_organization": string(models.OrgResearch),
	"research_institute":    string(models.OrgResearch),
	"rto":                   string(models.OrgResearch),
	"small_business":        string(models.OrgSME),
	"startup":               string(models.OrgSME),
	"kmu":                   string(models.OrgSME),
	"pme":                   string(models.OrgSME),
	"company":               string(models.OrgLargeEnterprise),
	"enterprise":            string(models.OrgLargeEnterprise),
	"corporation":           string(models.OrgLargeEnterprise),
	"non_profit":            string(models.OrgNGO),
	"nonprofit":             string(models.OrgNGO),
	"association":           string(models.OrgNGO),
	"foundation":            string(models.OrgNGO),
	"e.v.":                  string(models.OrgNGO),
	"verein":                string(models.OrgNGO),
	"public_authority":      string(models.OrgPublicBody),
	"municipality":          string(models.OrgPublicBody),
	"ministry":              string(models.OrgPublicBody),
	"public":                string(models.OrgPublicBody),
}

var programTypeAliases = map[string]string{
	"horizon":         string(models.ProgramHorizonEurope),
	"horizon_2020":    string(models.ProgramHorizonEurope),
	"he":              string(models.ProgramHorizonEurope),
	"erasmus":         string(models.ProgramErasmusPlus),
	"erasmus+":        string(models.ProgramErasmusPlus),
	"erasmusplus":     string(models.ProgramErasmusPlus),
	"creative":        string(models.ProgramCreativeEurope),
	"crea":            string(models.ProgramCreativeEurope),
	"life_programme":  string(models.ProgramLIFE),
	"digital":         string(models.ProgramDigitalEurope),
	"dep":             string(models.ProgramDigitalEurope),
	"citizens":        string(models.ProgramCERV),
	"interreg_europe": string(models.ProgramInterreg),
}

var roleAliases = map[string]string{
	"lead":               string(models.RoleCoordinator),
	"lead_partner":       string(models.RoleCoordinator),
	"koordinator":        string(models.RoleCoordinator),
	"coordinateur":       string(models.RoleCoordinator),
	"beneficiary":        string(models.RolePartner),
	"associated_partner": string(models.RoleAssociated),
	"affiliated_entity":  string(models.RoleAffiliated),
}

// DefaultRules returns the field rule table.
func DefaultRules() map[models.FieldName]Rule {
	rules := []Rule{
		{
			Field: models.FieldOrganizationName, Label: "Organization name", Kind: KindText,
			MinLength: 3, MaxLength: 200, Generic: true,
			Check:    requireLetter("Organization name"),
			Examples: []string{"Deutsche Umwelthilfe e.V.", "Technical University of Munich"},
		},
		{
			Field: models.FieldOrganizationType, Label: "Organization type", Kind: KindEnum,
			Enum: enumValues(models.OrganizationTypes), Aliases: organizationTypeAliases,
		},
		{
			Field: models.FieldCountry, Label: "Country", Kind: KindText,
			MinLength: 2, MaxLength: 60, Generic: true,
			Pattern: countryRe, PatternMessage: "Country must be a country name",
			Examples: []string{"Germany", "Ukraine", "France"},
		},
		{
			Field: models.FieldProjectTitle, Label: "Project title", Kind: KindText,
			MinLength: 5, MaxLength: 250, Generic: true,
			Check:    requireLetter("Project title"),
			Examples: []string{"Climate-resilient cities through nature-based solutions"},
		},
		{
			Field: models.FieldAcronym, Label: "Acronym", Kind: KindText,
			MinLength: 2, MaxLength: 20, Generic: true,
			Pattern: acronymRe, PatternMessage: "Acronym must be a single word of letters, digits or dashes",
			Examples: []string{"GREENCITY", "CLIM-ADAPT"},
		},
		{
			Field: models.FieldDescription, Label: "Project description", Kind: KindText,
			MinLength: 20, MaxLength: 5000, Generic: true,
			Check:    requireLetter("Project description"),
			Examples: []string{"We will pilot nature-based cooling measures in five mid-sized European cities."},
		},
		{
			Field: models.FieldAbstract, Label: "Abstract", Kind: KindText,
			MinLength: 50, MaxLength: 2000, Generic: true,
			Check: requireLetter("Abstract"),
		},
		{
			Field: models.FieldKeywords, Label: "Keywords", Kind: KindList,
			MinLength: 2, MaxLength: 50, Min: 1, Max: 15, Generic: true,
			Examples: []string{"climate adaptation, urban heat, nature-based solutions"},
		},
		{
			Field: models.FieldProgramType, Label: "Programme", Kind: KindEnum,
			Enum: enumValues(models.ProgramTypes), Aliases: programTypeAliases,
		},
		{
			Field: models.FieldCall, Label: "Call identifier", Kind: KindText,
			MinLength: 3, MaxLength: 100, Generic: true,
			Check: func(v interface{}) string {
				if s, ok := v.(string); ok && !callRe.MatchString(s) {
					return "Call identifier must contain a digit or a dash"
				}
				return ""
			},
			Examples: []string{"HORIZON-CL5-2024-D1-01", "ERASMUS-EDU-2025-PCOOP-ENGO"},
		},
		{
			Field: models.FieldSelectedTemplate, Label: "Template", Kind: KindText,
			MinLength: 3, MaxLength: 64,
			Pattern: templateIDRe, PatternMessage: "Template must be a registry id",
		},
		{
			Field: models.FieldDuration, Label: "Duration", Kind: KindInteger, Min: 1, Max: 120,
			Examples: []string{"36"},
		},
		{
			Field: models.FieldBudget, Label: "Requested budget", Kind: KindDecimal, Min: 1, Max: 1e9,
			Examples: []string{"3,000,000", "€2.5M"},
		},
		{
			Field: models.FieldTotalBudget, Label: "Total budget", Kind: KindDecimal, Min: 1, Max: 1e9,
		},
		{
			Field: models.FieldFundingRate, Label: "Funding rate", Kind: KindDecimal, Min: 1, Max: 100,
			Examples: []string{"70", "100"},
		},
		{Field: models.FieldTRLStart, Label: "Starting TRL", Kind: KindInteger, Min: 1, Max: 9},
		{Field: models.FieldTRLEnd, Label: "Target TRL", Kind: KindInteger, Min: 1, Max: 9},
		{
			Field: models.FieldConsortium, Label: "Consortium", Kind: KindConsortium, Min: 1, Max: 50,
		},
	}

	out := make(map[models.FieldName]Rule, len(rules))
	for _, r := range rules {
		out[r.Field] = r
	}
	return out
}

// normalizeEnumKey maps "Research Organisation" to "research_organisation".
func normalizeEnumKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "_")
	return strings.ReplaceAll(s, "-", "_")
}
