// pkg/registry/schema.go
package registry

// TemplateRegistry is the on-disk shape of the grant template registry.
type TemplateRegistry struct {
	Version     string          `yaml:"version" json:"version"`
	LastUpdated string          `yaml:"lastUpdated" json:"lastUpdated"`
	Templates   []GrantTemplate `yaml:"templates" json:"templates"`
}

// GrantTemplate is a predefined proposal structure for one programme and action type.
type GrantTemplate struct {
	ID                 string    `yaml:"id" json:"id"`
	Name               string    `yaml:"name" json:"name"`
	ProgramType        string    `yaml:"programType" json:"programType"`
	ActionType         string    `yaml:"actionType" json:"actionType"`
	CallKeyword        string    `yaml:"callKeyword" json:"callKeyword"`
	BudgetRange        string    `yaml:"budgetRange" json:"budgetRange"`
	TRLRange           *TRLRange `yaml:"trlRange,omitempty" json:"trlRange,omitempty"`
	Keywords           []string  `yaml:"keywords" json:"keywords"`
	OrganizationFit    []string  `yaml:"organizationFit" json:"organizationFit"`
	PriorityCountry    string    `yaml:"priorityCountry,omitempty" json:"priorityCountry,omitempty"`
	CountryTailored    bool      `yaml:"countryTailored" json:"countryTailored"`
	Sections           []Section `yaml:"sections" json:"sections"`
	AuthoringTips      []string  `yaml:"authoringTips,omitempty" json:"authoringTips,omitempty"`
	DefaultFundingRate float64   `yaml:"defaultFundingRate,omitempty" json:"defaultFundingRate,omitempty"`
}

type TRLRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

type Section struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Subsections []Subsection `yaml:"subsections" json:"subsections"`
}

type Subsection struct {
	ID                 string            `yaml:"id" json:"id"`
	Title              string            `yaml:"title" json:"title"`
	WordLimit          int               `yaml:"wordLimit" json:"wordLimit"`
	EvaluationWeight   float64           `yaml:"evaluationWeight" json:"evaluationWeight"`
	EvaluationCriteria []string          `yaml:"evaluationCriteria" json:"evaluationCriteria"`
	Tips               []string          `yaml:"tips,omitempty" json:"tips,omitempty"`
	Template           string            `yaml:"template" json:"template"`
	Fields             []FieldDefinition `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// FieldDefinition names a context field the subsection depends on.
type FieldDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Required    bool   `yaml:"required" json:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Subsection looks up a subsection by id across all sections.
func (t *GrantTemplate) Subsection(id string) (Section, Subsection, bool) {
	for _, sec := range t.Sections {
		for _, sub := range sec.Subsections {
			if sub.ID == id {
				return sec, sub, true
			}
		}
	}
	return Section{}, Subsection{}, false
}

// SubsectionCount returns the number of subsections across all sections.
func (t *GrantTemplate) SubsectionCount() int {
	n := 0
	for _, sec := range t.Sections {
		n += len(sec.Subsections)
	}
	return n
}
