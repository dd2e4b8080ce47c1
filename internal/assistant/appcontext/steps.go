package appcontext

import (
	"fmt"
	"math"

	"grant-assistant/internal/models"
)

// Step is one stage of the guided application workflow.
type Step string

const (
	StepIntroduction Step = "introduction"
	StepOrganization Step = "organization"
	StepProject      Step = "project"
	StepConsortium   Step = "consortium"
	StepBudget       Step = "budget"
	StepSections     Step = "sections"
	StepReview       Step = "review"
)

// Steps lists the workflow in order.
var Steps = []Step{
	StepIntroduction, StepOrganization, StepProject, StepConsortium, StepBudget, StepSections, StepReview,
}

func (s Step) index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Step) IsValid() bool {
	return s.index() >= 0
}

var stepRequirements = map[Step][]models.FieldName{
	StepIntroduction: {models.FieldOrganizationName, models.FieldProjectTitle, models.FieldCall},
	StepOrganization: {models.FieldOrganizationName, models.FieldOrganizationType, models.FieldCountry},
	StepProject:      {models.FieldProjectTitle, models.FieldAcronym, models.FieldDescription, models.FieldDuration},
	StepConsortium:   {models.FieldConsortium},
	StepBudget:       {models.FieldBudget, models.FieldFundingRate},
	StepSections:     {models.FieldSelectedTemplate},
	StepReview:       nil,
}

// Requirements returns the fields a step needs before it can be left.
func Requirements(step Step) []models.FieldName {
	return append([]models.FieldName(nil), stepRequirements[step]...)
}

// StepValidation reports how far a step's required fields are filled.
type StepValidation struct {
	Step                 Step               `json:"step"`
	IsValid              bool               `json:"isValid"`
	MissingFields        []models.FieldName `json:"missingFields"`
	CompletionPercentage int                `json:"completionPercentage"`
}

// AdvanceDecision is the answer to a step transition request.
type AdvanceDecision struct {
	Allowed       bool               `json:"allowed"`
	Reason        string             `json:"reason,omitempty"`
	BlockingStep  Step               `json:"blockingStep,omitempty"`
	MissingFields []models.FieldName `json:"missingFields,omitempty"`
}

func validateStep(c *models.ApplicationContext, step Step) (StepValidation, error) {
	required, ok := stepRequirements[step]
	if !ok {
		return StepValidation{}, fmt.Errorf("unknown step %q", step)
	}

	missing := []models.FieldName{}
	for _, f := range required {
		if !c.Has(f) {
			missing = append(missing, f)
		}
	}
	pct := 100
	if len(required) > 0 {
		present := len(required) - len(missing)
		pct = int(math.Round(float64(present) / float64(len(required)) * 100))
	}
	return StepValidation{
		Step:                 step,
		IsValid:              len(missing) == 0,
		MissingFields:        missing,
		CompletionPercentage: pct,
	}, nil
}

// leaveRule is an extra condition for moving past a step.
type leaveRule func(c *models.ApplicationContext) string

var leaveRules = map[Step]leaveRule{
	StepIntroduction: func(c *models.ApplicationContext) string {
		if c.Has(models.FieldSelectedTemplate) || c.Has(models.FieldProgramType) {
			return ""
		}
		return "choose a template or a funding programme before continuing"
	},
	StepConsortium: func(c *models.ApplicationContext) string {
		if _, ok := c.Coordinator(); ok {
			return ""
		}
		return "the consortium needs a coordinator"
	},
}

// canAdvance checks every step from `from` up to, but not including, `to`.
// Going back or staying put is always allowed.
func canAdvance(c *models.ApplicationContext, from, to Step) AdvanceDecision {
	fi, ti := from.index(), to.index()
	if fi < 0 {
		return AdvanceDecision{Reason: fmt.Sprintf("unknown step %q", from)}
	}
	if ti < 0 {
		return AdvanceDecision{Reason: fmt.Sprintf("unknown step %q", to)}
	}
	if ti <= fi {
		return AdvanceDecision{Allowed: true}
	}

	for _, step := range Steps[fi:ti] {
		v, _ := validateStep(c, step)
		if !v.IsValid {
			return AdvanceDecision{
				Reason:        fmt.Sprintf("complete the %s step first", step),
				BlockingStep:  step,
				MissingFields: v.MissingFields,
			}
		}
		if rule, ok := leaveRules[step]; ok {
			if reason := rule(c); reason != "" {
				return AdvanceDecision{Reason: reason, BlockingStep: step}
			}
		}
	}
	return AdvanceDecision{Allowed: true}
}
