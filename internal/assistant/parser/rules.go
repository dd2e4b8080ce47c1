package parser

import (
	"regexp"
	"strconv"
	"strings"

	"grant-assistant/internal/assistant/validator"
	"grant-assistant/internal/models"
)

// Rule is an explicit extraction rule. Trigger gates the rule on the raw
// clause; Patterns are tried in order and the first capture wins.
type Rule struct {
	Name    string
	Field   models.FieldName
	Trigger *regexp.Regexp
	// Unless suppresses the rule when it matches the clause.
	Unless   *regexp.Regexp
	Patterns []*regexp.Regexp
	Group    int
	// Tighten narrows a capture to a known identifier format when it matches.
	Tighten *regexp.Regexp
	Convert func(raw string) (interface{}, bool)
	// Line rules see the whole input line instead of one clause. Their
	// capture ends where the next labelled field starts.
	Line bool
}

func (r Rule) extract(clause string) (interface{}, bool) {
	if r.Trigger != nil && !r.Trigger.MatchString(clause) {
		return nil, false
	}
	if r.Unless != nil && r.Unless.MatchString(clause) {
		return nil, false
	}
	group := r.Group
	if group == 0 {
		group = 1
	}
	for _, p := range r.Patterns {
		m := p.FindStringSubmatch(clause)
		if m == nil || len(m) <= group {
			continue
		}
		raw := m[group]
		if r.Line {
			raw = cutAtLabel(raw)
		}
		raw = cleanCapture(raw)
		if r.Tighten != nil {
			if t := r.Tighten.FindString(raw); t != "" {
				raw = t
			}
		}
		if raw == "" {
			continue
		}
		if r.Convert == nil {
			return raw, true
		}
		if v, ok := r.Convert(raw); ok {
			return v, true
		}
	}
	return nil, false
}

// labelBoundaryRe finds "; acronym:" or ". Budget:" inside a free-text capture.
var labelBoundaryRe = regexp.MustCompile(`(?i)[;.]\s*(?:organi[sz]ation(?:\s+(?:name|type))?|institution|applicant|(?:project\s+)?(?:title|name|description)|acronym|abstract|summary|keywords?|partners|consortium|call(?:\s+id)?|topic|duration|(?:total\s+)?budget|funding\s+rate|template|country|TRL)\s*[:=]`)

func cutAtLabel(s string) string {
	if loc := labelBoundaryRe.FindStringIndex(s); loc != nil {
		return s[:loc[0]]
	}
	return s
}

func cleanCapture(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'“”‘’`)
	return strings.TrimRight(s, " ,")
}

var (
	callCodeRe = regexp.MustCompile(`\b(?:HORIZON|ERASMUS|CREA|LIFE|DIGITAL|CERV|INTERREG)(?:-[A-Z0-9]+)+\b`)

	orgTypeWords = `(university|universität|université|sme|startup|ngo|non-profit|nonprofit|research (?:organi[sz]ation|institute)|rto|public (?:body|authority)|municipality|ministry|large enterprise|foundation|association)`

	amountExpr = `((?:€|eur\s*)?\s*\d[\d.,' ]*\s*(?:million|mio\.?|mln|m|thousand|k|tsd\.?)?)`
)

func mustRe(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

// DefaultRules returns the explicit rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "organization-name",
			Field: models.FieldOrganizationName,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:organi[sz]ation(?:\s+name)?|institution|applicant)\s*(?::|=|is called|is named)\s*(.+)$`),
			},
			Line: true,
		},
		{
			Name:  "organization-type",
			Line:  true,
			Field: models.FieldOrganizationType,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\borgani[sz]ation\s+type\s*[:=]\s*(.+)$`),
				mustRe(`(?i)\b(?:we are|we're|i am|i'm|as)\s+(?:an?\s+|the\s+)?` + orgTypeWords + `\b`),
			},
		},
		{
			Name:     "country",
			Field:    models.FieldCountry,
			Patterns: []*regexp.Regexp{countryRe},
			Convert:  canonicalCountry,
		},
		{
			Name:  "project-title",
			Line:  true,
			Field: models.FieldProjectTitle,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:project\s+title|title|project\s+name)\s*[:=]\s*(.+)$`),
			},
		},
		{
			Name:  "acronym",
			Field: models.FieldAcronym,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\bacronym\s*(?::|=|is)\s*([\p{L}\p{N}+&-]+)`),
			},
		},
		{
			Name:  "description",
			Line:  true,
			Field: models.FieldDescription,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:project\s+)?description\s*[:=]\s*(.+)$`),
			},
		},
		{
			Name:  "abstract",
			Line:  true,
			Field: models.FieldAbstract,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:abstract|summary)\s*[:=]\s*(.+)$`),
			},
		},
		{
			Name:  "keywords",
			Line:  true,
			Field: models.FieldKeywords,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\bkeywords?\s*[:=]\s*(.+)$`),
			},
		},
		{
			Name:    "call",
			Field:   models.FieldCall,
			Trigger: mustRe(`(?i)\b(?:call|topic)\b|` + callCodeRe.String()),
			Patterns: []*regexp.Regexp{
				mustRe(`(` + callCodeRe.String() + `)`),
				mustRe(`(?i)\b(?:call|topic)(?:\s+(?:id|identifier|code))?\s*(?::|=|is)\s*([A-Za-z0-9][\w.-]*)`),
			},
			Tighten: callCodeRe,
		},
		{
			Name:  "program",
			Field: models.FieldProgramType,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(horizon europe|erasmus\+|erasmus plus|creative europe|digital europe|life programme|cerv|interreg)`),
			},
		},
		{
			Name:  "template",
			Field: models.FieldSelectedTemplate,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\btemplate\s*[:=]\s*([a-z0-9][a-z0-9-]*)`),
			},
			Convert: func(raw string) (interface{}, bool) { return strings.ToLower(raw), true },
		},
		{
			Name:  "duration",
			Field: models.FieldDuration,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\bduration\s*(?::|=|is|of)?\s*(\d{1,3}\s*(?:months?|years?)?)`),
				mustRe(`(?i)\b(\d{1,3}\s*(?:months?|years?))\b`),
			},
			Convert: parseDuration,
		},
		{
			Name:  "total-budget",
			Field: models.FieldTotalBudget,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\btotal\s+(?:project\s+)?(?:budget|costs?)\s*(?::|=|is|of)?\s*` + amountExpr),
			},
			Convert: parseAmount,
		},
		{
			Name:   "budget",
			Field:  models.FieldBudget,
			Unless: mustRe(`(?i)\btotal\s+(?:project\s+)?(?:budget|costs?)\b`),
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:requested\s+)?(?:budget|eu contribution|grant amount|funding request)\s*(?::|=|is|of)?\s*` + amountExpr),
				mustRe(`(?i)\b(?:request(?:ing)?|apply(?:ing)? for|need)\s+` + amountExpr),
			},
			Convert: parseAmount,
		},
		{
			Name:  "funding-rate",
			Field: models.FieldFundingRate,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\bfunding\s+rate\s*(?::|=|is|of)?\s*(\d{1,3}(?:[.,]\d+)?)\s*%?`),
				mustRe(`(?i)(\d{1,3}(?:[.,]\d+)?)\s*%\s*(?:co-?)?(?:funding|funded|reimbursement)`),
			},
			Convert: parsePercent,
		},
		{
			Name:  "trl-start",
			Field: models.FieldTRLStart,
			Patterns: []*regexp.Regexp{
				trlRangeRe,
				mustRe(`(?i)\b(?:starting|start|current)\s+TRL\s*(?::|=|is|of)?\s*(\d)\b`),
				mustRe(`(?i)\bfrom\s+TRL\s*(\d)\b`),
			},
			Convert: parseInt,
		},
		{
			Name:     "trl-end",
			Field:    models.FieldTRLEnd,
			Group:    2,
			Patterns: []*regexp.Regexp{trlRangeRe},
			Convert:  parseInt,
		},
		{
			Name:  "trl-target",
			Field: models.FieldTRLEnd,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:target|final|end)\s+TRL\s*(?::|=|is|of)?\s*(\d)\b`),
				mustRe(`(?i)\bto\s+TRL\s*(\d)\b`),
			},
			Convert: parseInt,
		},
		{
			Name:  "consortium",
			Line:  true,
			Field: models.FieldConsortium,
			Patterns: []*regexp.Regexp{
				mustRe(`(?i)\b(?:partners|consortium)\s*[:=]\s*(.+)$`),
			},
			Convert: parsePartners,
		},
	}
}

var trlRangeRe = mustRe(`(?i)\bTRL\s*(\d)\s*(?:-|–|to)\s*(?:TRL\s*)?(\d)\b`)

// Inference maps a question in the previous assistant message to the field a
// short reply most likely answers.
type Inference struct {
	Field    models.FieldName
	Question *regexp.Regexp
	Convert  func(raw string) (interface{}, bool)
}

// DefaultInferences returns the contextual inference table. The first
// matching question wins, so more specific questions come first.
func DefaultInferences() []Inference {
	return []Inference{
		{Field: models.FieldOrganizationType, Question: mustRe(`(?i)(type of organi[sz]ation|organi[sz]ation type|kind of organi[sz]ation)`)},
		{Field: models.FieldOrganizationName, Question: mustRe(`(?i)(name of your organi[sz]ation|organi[sz]ation'?s? name|which organi[sz]ation|who is applying)`)},
		{Field: models.FieldCountry, Question: mustRe(`(?i)(which country|what country|where is your organi[sz]ation|where are you based)`), Convert: canonicalOrRaw},
		{Field: models.FieldAcronym, Question: mustRe(`(?i)\bacronym\b`)},
		{Field: models.FieldProjectTitle, Question: mustRe(`(?i)(project title|title of (?:your|the) project|name of (?:your|the) project)`)},
		{Field: models.FieldDescription, Question: mustRe(`(?i)(describe your project|project description|what is your project about)`)},
		{Field: models.FieldCall, Question: mustRe(`(?i)(which call|call identifier|call id|topic id)`)},
		{Field: models.FieldProgramType, Question: mustRe(`(?i)(which (?:funding )?program(?:me)?|funding program(?:me)?)`)},
		{Field: models.FieldDuration, Question: mustRe(`(?i)(how long|duration)`), Convert: parseDuration},
		{Field: models.FieldTotalBudget, Question: mustRe(`(?i)total (?:project )?(?:budget|costs?)`), Convert: parseAmount},
		{Field: models.FieldFundingRate, Question: mustRe(`(?i)(funding rate|co-?funding)`), Convert: parsePercent},
		{Field: models.FieldBudget, Question: mustRe(`(?i)(budget|how much funding|requested amount|eu contribution)`), Convert: parseAmount},
		{Field: models.FieldKeywords, Question: mustRe(`(?i)\bkeywords?\b`)},
	}
}

// callPrefixes derives a programme from the first segment of a call code.
var callPrefixes = map[string]models.ProgramType{
	"HORIZON":  models.ProgramHorizonEurope,
	"ERASMUS":  models.ProgramErasmusPlus,
	"CREA":     models.ProgramCreativeEurope,
	"LIFE":     models.ProgramLIFE,
	"DIGITAL":  models.ProgramDigitalEurope,
	"CERV":     models.ProgramCERV,
	"INTERREG": models.ProgramInterreg,
}

// ProgramFromCall classifies a call identifier by its prefix.
func ProgramFromCall(call string) (models.ProgramType, bool) {
	prefix, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(call)), "-")
	p, ok := callPrefixes[prefix]
	return p, ok
}

func parseAmount(raw string) (interface{}, bool) {
	v, ok := validator.ParseAmount(raw)
	if !ok {
		return nil, false
	}
	return v, true
}

func parsePercent(raw string) (interface{}, bool) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil, false
	}
	return v, true
}

func parseInt(raw string) (interface{}, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	return n, true
}

var durationRe = mustRe(`(?i)^(\d{1,3})\s*(months?|years?)?`)

// parseDuration reads "36", "36 months" or "3 years" as a number of months.
func parseDuration(raw string) (interface{}, bool) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "year") {
		n *= 12
	}
	return n, true
}

var partnerRe = mustRe(`^(.+?)\s*\(([^)]*)\)$`)

// parsePartners reads "Green Org (Germany, coordinator); Lab X (France)".
func parsePartners(raw string) (interface{}, bool) {
	var out []models.Partner
	for _, item := range splitOutsideParens(raw) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		p := models.Partner{Name: item}
		if m := partnerRe.FindStringSubmatch(item); m != nil {
			p.Name = strings.TrimSpace(m[1])
			for _, attr := range strings.Split(m[2], ",") {
				attr = strings.TrimSpace(attr)
				switch {
				case attr == "":
				case isRole(attr):
					p.Role = models.PartnerRole(strings.ToLower(attr))
				default:
					if c, ok := lookupCountry(attr); ok {
						p.Country = c
					} else {
						p.Type = models.OrganizationType(attr)
					}
				}
			}
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func isRole(s string) bool {
	switch strings.ToLower(s) {
	case "coordinator", "lead", "partner", "associated", "affiliated":
		return true
	}
	return false
}

func splitOutsideParens(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',', ';':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
