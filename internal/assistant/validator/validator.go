// Package validator checks single context fields and detects filler input.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/models"
)

// Result is the outcome of validating one field value. A rejected value is
// never partially accepted: SanitizedValue is only set when IsValid is true.
type Result struct {
	IsValid        bool        `json:"isValid"`
	Reason         string      `json:"reason,omitempty"`
	SanitizedValue interface{} `json:"sanitizedValue,omitempty"`
	Suggestions    []string    `json:"suggestions,omitempty"`
}

type Validator struct {
	rules     map[models.FieldName]Rule
	blacklist *Blacklist
	logger    logger.Logger
}

// New builds a validator over the default rule table.
func New(blacklist *Blacklist, log logger.Logger) *Validator {
	return &Validator{
		rules:     DefaultRules(),
		blacklist: blacklist,
		logger:    logger.Component(log, "validator"),
	}
}

// IsGenericPhrase reports whether text is filler rather than a real answer.
func (v *Validator) IsGenericPhrase(text string) bool {
	return v.blacklist.IsGenericPhrase(text)
}

// Rule returns the rule for field.
func (v *Validator) Rule(field models.FieldName) (Rule, bool) {
	r, ok := v.rules[field]
	return r, ok
}

// Validate checks value against the rule for field and returns the canonical
// sanitized value on success.
func (v *Validator) Validate(field models.FieldName, value interface{}) Result {
	res := v.validate(field, value)

	outcome := "accepted"
	if !res.IsValid {
		outcome = "rejected"
		v.logger.Debug("field rejected", map[string]interface{}{
			"field":  string(field),
			"reason": res.Reason,
		})
	}
	metrics.FieldValidations.WithLabelValues(string(field), outcome).Inc()
	return res
}

func (v *Validator) validate(field models.FieldName, value interface{}) Result {
	rule, ok := v.rules[field]
	if !ok {
		return Result{IsValid: false, Reason: fmt.Sprintf("unknown field %q", field)}
	}
	if value == nil {
		return reject(rule, rule.Label+" is required")
	}

	switch rule.Kind {
	case KindText:
		return v.validateText(rule, value)
	case KindEnum:
		return validateEnum(rule, value)
	case KindInteger:
		return validateNumber(rule, value, true)
	case KindDecimal:
		return validateNumber(rule, value, false)
	case KindList:
		return v.validateList(rule, value)
	case KindConsortium:
		return v.validateConsortium(rule, value)
	}
	return reject(rule, "unsupported field kind")
}

func reject(rule Rule, reason string) Result {
	res := Result{IsValid: false, Reason: reason}
	if len(rule.Examples) > 0 {
		res.Suggestions = append([]string(nil), rule.Examples...)
	} else if len(rule.Enum) > 0 {
		res.Suggestions = append([]string(nil), rule.Enum...)
	}
	return res
}

func accept(value interface{}) Result {
	return Result{IsValid: true, SanitizedValue: value}
}

// checkText applies length, pattern, predicate and filler checks to an already sanitized string.
func (v *Validator) checkText(rule Rule, s string) string {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return rule.Label + " is required"
	}
	if rule.Generic {
		if m, generic := v.blacklist.Classify(s); generic {
			return fmt.Sprintf("%s looks like a generic phrase (%s)", rule.Label, m.Detail)
		}
	}
	if rule.MinLength > 0 && n < rule.MinLength {
		return fmt.Sprintf("%s must be at least %d characters", rule.Label, rule.MinLength)
	}
	if rule.MaxLength > 0 && n > rule.MaxLength {
		return fmt.Sprintf("%s must be at most %d characters", rule.Label, rule.MaxLength)
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(s) {
		return rule.PatternMessage
	}
	if rule.Check != nil {
		if reason := rule.Check(s); reason != "" {
			return reason
		}
	}
	return ""
}

func (v *Validator) validateText(rule Rule, value interface{}) Result {
	raw, ok := value.(string)
	if !ok {
		return reject(rule, rule.Label+" must be text")
	}
	s := Sanitize(raw)
	if reason := v.checkText(rule, s); reason != "" {
		return reject(rule, reason)
	}
	return accept(s)
}

func validateEnum(rule Rule, value interface{}) Result {
	raw, ok := toString(value)
	if !ok {
		return reject(rule, rule.Label+" must be text")
	}
	key := normalizeEnumKey(Sanitize(raw))
	if alias, ok := rule.Aliases[key]; ok {
		key = alias
	}
	for _, allowed := range rule.Enum {
		if key == allowed {
			return accept(allowed)
		}
	}
	if key == "" {
		return reject(rule, rule.Label+" is required")
	}
	return reject(rule, fmt.Sprintf("%s must be one of: %s", rule.Label, strings.Join(rule.Enum, ", ")))
}

func validateNumber(rule Rule, value interface{}, integer bool) Result {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return reject(rule, rule.Label+" must be a number")
	}
	if integer && f != math.Trunc(f) {
		return reject(rule, rule.Label+" must be a whole number")
	}
	if f < rule.Min || f > rule.Max {
		return reject(rule, fmt.Sprintf("%s must be between %s and %s", rule.Label, formatBound(rule.Min), formatBound(rule.Max)))
	}
	if integer {
		return accept(int(f))
	}
	return accept(f)
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (v *Validator) validateList(rule Rule, value interface{}) Result {
	var items []string
	switch t := value.(type) {
	case string:
		items = splitList(t)
	case []string:
		items = t
	case []interface{}:
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				return reject(rule, rule.Label+" must be a list of text items")
			}
			items = append(items, s)
		}
	default:
		return reject(rule, rule.Label+" must be a list of text items")
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := Sanitize(item)
		if s == "" {
			continue
		}
		if reason := v.checkText(rule, s); reason != "" {
			return reject(rule, fmt.Sprintf("%q: %s", s, reason))
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	if len(out) < int(rule.Min) {
		return reject(rule, rule.Label+" is required")
	}
	if len(out) > int(rule.Max) {
		return reject(rule, fmt.Sprintf("%s allows at most %d items", rule.Label, int(rule.Max)))
	}
	return accept(out)
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
}

func (v *Validator) validateConsortium(rule Rule, value interface{}) Result {
	partners, err := toPartners(value)
	if err != nil {
		return reject(rule, rule.Label+" must be a list of partners")
	}
	if len(partners) < int(rule.Min) {
		return reject(rule, rule.Label+" needs at least one partner")
	}
	if len(partners) > int(rule.Max) {
		return reject(rule, fmt.Sprintf("%s allows at most %d partners", rule.Label, int(rule.Max)))
	}

	nameRule := v.rules[models.FieldOrganizationName]
	nameRule.Label = "Partner name"
	nameRule.MinLength = 2
	nameRule.Check = requireLetter("Partner name")
	countryRule := v.rules[models.FieldCountry]
	typeRule := v.rules[models.FieldOrganizationType]
	roleRule := Rule{Label: "Partner role", Enum: enumValues(models.PartnerRoles), Aliases: roleAliases}

	out := make([]models.Partner, 0, len(partners))
	coordinators := 0
	for i, p := range partners {
		at := fmt.Sprintf("partner %d", i+1)
		name := Sanitize(p.Name)
		if reason := v.checkText(nameRule, name); reason != "" {
			return reject(rule, fmt.Sprintf("%s: %s", at, reason))
		}
		clean := models.Partner{Name: name}

		if p.Country != "" {
			country := Sanitize(p.Country)
			if reason := v.checkText(countryRule, country); reason != "" {
				return reject(rule, fmt.Sprintf("%s: %s", at, reason))
			}
			clean.Country = country
		}
		if p.Type != "" {
			res := validateEnum(typeRule, string(p.Type))
			if !res.IsValid {
				return reject(rule, fmt.Sprintf("%s: %s", at, res.Reason))
			}
			clean.Type = models.OrganizationType(res.SanitizedValue.(string))
		}
		if p.Role != "" {
			res := validateEnum(roleRule, string(p.Role))
			if !res.IsValid {
				return reject(rule, fmt.Sprintf("%s: %s", at, res.Reason))
			}
			clean.Role = models.PartnerRole(res.SanitizedValue.(string))
		}
		if clean.Role == models.RoleCoordinator {
			coordinators++
		}
		if p.Budget != nil {
			if *p.Budget <= 0 || math.IsNaN(*p.Budget) || math.IsInf(*p.Budget, 0) {
				return reject(rule, fmt.Sprintf("%s: budget must be positive", at))
			}
			b := *p.Budget
			clean.Budget = &b
		}
		out = append(out, clean)
	}
	if coordinators > 1 {
		return reject(rule, rule.Label+" can have only one coordinator")
	}
	return accept(out)
}

// toPartners accepts typed partners or their decoded JSON form.
func toPartners(value interface{}) ([]models.Partner, error) {
	switch t := value.(type) {
	case []models.Partner:
		return t, nil
	case []interface{}, []map[string]interface{}:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var out []models.Partner
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported consortium value %T", value)
}

func toString(value interface{}) (string, bool) {
	switch t := value.(type) {
	case string:
		return t, true
	case models.OrganizationType:
		return string(t), true
	case models.ProgramType:
		return string(t), true
	case models.PartnerRole:
		return string(t), true
	}
	return "", false
}

func toFloat(value interface{}) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		if s == "" {
			return 0, false
		}
		return ParseFigure(s)
	}
	return 0, false
}
