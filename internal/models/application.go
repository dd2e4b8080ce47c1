// internal/models/application.go
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FieldName addresses one validated field of an ApplicationContext.
type FieldName string

const (
	FieldOrganizationName FieldName = "organizationName"
	FieldOrganizationType FieldName = "organizationType"
	FieldCountry          FieldName = "country"
	FieldProjectTitle     FieldName = "projectTitle"
	FieldAcronym          FieldName = "acronym"
	FieldDescription      FieldName = "description"
	FieldAbstract         FieldName = "abstract"
	FieldKeywords         FieldName = "keywords"
	FieldProgramType      FieldName = "programType"
	FieldCall             FieldName = "call"
	FieldSelectedTemplate FieldName = "selectedTemplate"
	FieldDuration         FieldName = "duration"
	FieldBudget           FieldName = "budget"
	FieldTotalBudget      FieldName = "totalBudget"
	FieldFundingRate      FieldName = "fundingRate"
	FieldTRLStart         FieldName = "trlStart"
	FieldTRLEnd           FieldName = "trlEnd"
	FieldConsortium       FieldName = "consortium"
)

// AllFields lists every context field in canonical order.
var AllFields = []FieldName{
	FieldOrganizationName, FieldOrganizationType, FieldCountry,
	FieldProjectTitle, FieldAcronym, FieldDescription, FieldAbstract, FieldKeywords,
	FieldProgramType, FieldCall, FieldSelectedTemplate,
	FieldDuration, FieldBudget, FieldTotalBudget, FieldFundingRate, FieldTRLStart, FieldTRLEnd,
	FieldConsortium,
}

// IsKnown reports whether f is a context field.
func (f FieldName) IsKnown() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

type OrganizationType string

const (
	OrgUniversity      OrganizationType = "university"
	OrgResearch        OrganizationType = "research_organisation"
	OrgSME             OrganizationType = "sme"
	OrgLargeEnterprise OrganizationType = "large_enterprise"
	OrgNGO             OrganizationType = "ngo"
	OrgPublicBody      OrganizationType = "public_body"
	OrgOther           OrganizationType = "other"
)

var OrganizationTypes = []OrganizationType{
	OrgUniversity, OrgResearch, OrgSME, OrgLargeEnterprise, OrgNGO, OrgPublicBody, OrgOther,
}

func (t OrganizationType) IsValid() bool {
	for _, v := range OrganizationTypes {
		if t == v {
			return true
		}
	}
	return false
}

type ProgramType string

const (
	ProgramHorizonEurope  ProgramType = "horizon_europe"
	ProgramErasmusPlus    ProgramType = "erasmus_plus"
	ProgramCreativeEurope ProgramType = "creative_europe"
	ProgramLIFE           ProgramType = "life"
	ProgramDigitalEurope  ProgramType = "digital_europe"
	ProgramCERV           ProgramType = "cerv"
	ProgramInterreg       ProgramType = "interreg"
	ProgramOther          ProgramType = "other"
)

var ProgramTypes = []ProgramType{
	ProgramHorizonEurope, ProgramErasmusPlus, ProgramCreativeEurope, ProgramLIFE,
	ProgramDigitalEurope, ProgramCERV, ProgramInterreg, ProgramOther,
}

func (p ProgramType) IsValid() bool {
	for _, v := range ProgramTypes {
		if p == v {
			return true
		}
	}
	return false
}

type PartnerRole string

const (
	RoleCoordinator PartnerRole = "coordinator"
	RolePartner     PartnerRole = "partner"
	RoleAssociated  PartnerRole = "associated"
	RoleAffiliated  PartnerRole = "affiliated"
)

var PartnerRoles = []PartnerRole{RoleCoordinator, RolePartner, RoleAssociated, RoleAffiliated}

func (r PartnerRole) IsValid() bool {
	for _, v := range PartnerRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Partner is one consortium member.
type Partner struct {
	Name    string           `json:"name"`
	Type    OrganizationType `json:"type,omitempty"`
	Country string           `json:"country,omitempty"`
	Role    PartnerRole      `json:"role,omitempty"`
	Budget  *float64         `json:"budget,omitempty"`
}

// ContextMetadata carries bookkeeping that is not subject to field validation.
type ContextMetadata struct {
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Language    string     `json:"language,omitempty"`
}

// ApplicationContext is everything known about one in-progress grant application.
// Absent fields are nil. Writes go through Set after validation.
type ApplicationContext struct {
	OrganizationName *string           `json:"organizationName,omitempty"`
	OrganizationType *OrganizationType `json:"organizationType,omitempty"`
	Country          *string           `json:"country,omitempty"`

	ProjectTitle *string  `json:"projectTitle,omitempty"`
	Acronym      *string  `json:"acronym,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Abstract     *string  `json:"abstract,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`

	ProgramType      *ProgramType `json:"programType,omitempty"`
	Call             *string      `json:"call,omitempty"`
	SelectedTemplate *string      `json:"selectedTemplate,omitempty"`

	Duration    *int     `json:"duration,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	TotalBudget *float64 `json:"totalBudget,omitempty"`
	FundingRate *float64 `json:"fundingRate,omitempty"`
	TRLStart    *int     `json:"trlStart,omitempty"`
	TRLEnd      *int     `json:"trlEnd,omitempty"`

	Consortium []Partner `json:"consortium,omitempty"`

	Sections map[string]*SectionProgress `json:"sections,omitempty"`
	Metadata ContextMetadata             `json:"metadata"`
}

// Values returns every present field with its canonical Go type: string for text
// and enum fields, int for months and TRL, float64 for amounts, []string for
// keywords and []Partner for the consortium.
func (c *ApplicationContext) Values() map[FieldName]interface{} {
	out := make(map[FieldName]interface{})
	if c == nil {
		return out
	}
	putString := func(f FieldName, v *string) {
		if v != nil {
			out[f] = *v
		}
	}
	putString(FieldOrganizationName, c.OrganizationName)
	if c.OrganizationType != nil {
		out[FieldOrganizationType] = string(*c.OrganizationType)
	}
	putString(FieldCountry, c.Country)
	putString(FieldProjectTitle, c.ProjectTitle)
	putString(FieldAcronym, c.Acronym)
	putString(FieldDescription, c.Description)
	putString(FieldAbstract, c.Abstract)
	if len(c.Keywords) > 0 {
		out[FieldKeywords] = append([]string(nil), c.Keywords...)
	}
	if c.ProgramType != nil {
		out[FieldProgramType] = string(*c.ProgramType)
	}
	putString(FieldCall, c.Call)
	putString(FieldSelectedTemplate, c.SelectedTemplate)
	if c.Duration != nil {
		out[FieldDuration] = *c.Duration
	}
	if c.Budget != nil {
		out[FieldBudget] = *c.Budget
	}
	if c.TotalBudget != nil {
		out[FieldTotalBudget] = *c.TotalBudget
	}
	if c.FundingRate != nil {
		out[FieldFundingRate] = *c.FundingRate
	}
	if c.TRLStart != nil {
		out[FieldTRLStart] = *c.TRLStart
	}
	if c.TRLEnd != nil {
		out[FieldTRLEnd] = *c.TRLEnd
	}
	if len(c.Consortium) > 0 {
		out[FieldConsortium] = clonePartners(c.Consortium)
	}
	return out
}

// Has reports whether field is present.
func (c *ApplicationContext) Has(field FieldName) bool {
	_, ok := c.Values()[field]
	return ok
}

// PresentFields returns the names of present fields in canonical order.
func (c *ApplicationContext) PresentFields() []FieldName {
	values := c.Values()
	out := make([]FieldName, 0, len(values))
	for _, f := range AllFields {
		if _, ok := values[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Set assigns a canonical value (see Values) to field.
func (c *ApplicationContext) Set(field FieldName, value interface{}) error {
	mismatch := func() error {
		return fmt.Errorf("field %s: unexpected value type %T", field, value)
	}
	str := func() (*string, error) {
		s, ok := value.(string)
		if !ok {
			return nil, mismatch()
		}
		return &s, nil
	}

	var err error
	switch field {
	case FieldOrganizationName:
		c.OrganizationName, err = str()
	case FieldCountry:
		c.Country, err = str()
	case FieldProjectTitle:
		c.ProjectTitle, err = str()
	case FieldAcronym:
		c.Acronym, err = str()
	case FieldDescription:
		c.Description, err = str()
	case FieldAbstract:
		c.Abstract, err = str()
	case FieldCall:
		c.Call, err = str()
	case FieldSelectedTemplate:
		c.SelectedTemplate, err = str()
	case FieldOrganizationType:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		t := OrganizationType(s)
		c.OrganizationType = &t
	case FieldProgramType:
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		p := ProgramType(s)
		c.ProgramType = &p
	case FieldKeywords:
		kw, ok := value.([]string)
		if !ok {
			return mismatch()
		}
		c.Keywords = append([]string(nil), kw...)
	case FieldDuration, FieldTRLStart, FieldTRLEnd:
		n, ok := value.(int)
		if !ok {
			return mismatch()
		}
		switch field {
		case FieldDuration:
			c.Duration = &n
		case FieldTRLStart:
			c.TRLStart = &n
		default:
			c.TRLEnd = &n
		}
	case FieldBudget, FieldTotalBudget, FieldFundingRate:
		f, ok := value.(float64)
		if !ok {
			return mismatch()
		}
		switch field {
		case FieldBudget:
			c.Budget = &f
		case FieldTotalBudget:
			c.TotalBudget = &f
		default:
			c.FundingRate = &f
		}
	case FieldConsortium:
		p, ok := value.([]Partner)
		if !ok {
			return mismatch()
		}
		c.Consortium = clonePartners(p)
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return err
}

// Unset removes field from the context.
func (c *ApplicationContext) Unset(field FieldName) {
	switch field {
	case FieldOrganizationName:
		c.OrganizationName = nil
	case FieldOrganizationType:
		c.OrganizationType = nil
	case FieldCountry:
		c.Country = nil
	case FieldProjectTitle:
		c.ProjectTitle = nil
	case FieldAcronym:
		c.Acronym = nil
	case FieldDescription:
		c.Description = nil
	case FieldAbstract:
		c.Abstract = nil
	case FieldKeywords:
		c.Keywords = nil
	case FieldProgramType:
		c.ProgramType = nil
	case FieldCall:
		c.Call = nil
	case FieldSelectedTemplate:
		c.SelectedTemplate = nil
	case FieldDuration:
		c.Duration = nil
	case FieldBudget:
		c.Budget = nil
	case FieldTotalBudget:
		c.TotalBudget = nil
	case FieldFundingRate:
		c.FundingRate = nil
	case FieldTRLStart:
		c.TRLStart = nil
	case FieldTRLEnd:
		c.TRLEnd = nil
	case FieldConsortium:
		c.Consortium = nil
	}
}

// Clone returns a deep copy.
func (c *ApplicationContext) Clone() *ApplicationContext {
	out := &ApplicationContext{}
	if c == nil {
		return out
	}
	for f, v := range c.Values() {
		_ = out.Set(f, v)
	}
	if c.Sections != nil {
		out.Sections = make(map[string]*SectionProgress, len(c.Sections))
		for id, p := range c.Sections {
			out.Sections[id] = p.Clone()
		}
	}
	out.Metadata.Language = c.Metadata.Language
	if c.Metadata.LastUpdated != nil {
		ts := *c.Metadata.LastUpdated
		out.Metadata.LastUpdated = &ts
	}
	return out
}

// Coordinator returns the consortium member with the coordinator role.
func (c *ApplicationContext) Coordinator() (Partner, bool) {
	if c == nil {
		return Partner{}, false
	}
	for _, p := range c.Consortium {
		if p.Role == RoleCoordinator {
			return p, true
		}
	}
	return Partner{}, false
}

// Countries returns the distinct partner countries, sorted.
func (c *ApplicationContext) Countries() []string {
	seen := map[string]bool{}
	var out []string
	if c == nil {
		return out
	}
	for _, p := range c.Consortium {
		if p.Country != "" && !seen[p.Country] {
			seen[p.Country] = true
			out = append(out, p.Country)
		}
	}
	sort.Strings(out)
	return out
}

// HasPartnerFrom reports whether any consortium member is based in country,
// ignoring case and surrounding space.
func (c *ApplicationContext) HasPartnerFrom(country string) bool {
	country = strings.TrimSpace(country)
	if c == nil || country == "" {
		return false
	}
	for _, p := range c.Consortium {
		if strings.EqualFold(strings.TrimSpace(p.Country), country) {
			return true
		}
	}
	return false
}

func clonePartners(in []Partner) []Partner {
	out := make([]Partner, len(in))
	for i, p := range in {
		out[i] = p
		if p.Budget != nil {
			b := *p.Budget
			out[i].Budget = &b
		}
	}
	return out
}
