// Package parser turns free-form chat replies into validated context fields.
package parser

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"grant-assistant/internal/assistant/validator"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/models"
)

const (
	TierExplicit   = "explicit"
	TierContextual = "contextual"
	TierDerived    = "derived"
)

// maxContextualReply bounds the replies considered for contextual inference.
const maxContextualReply = 300

// FieldStore is the write path for extracted values. The session manager
// satisfies it.
type FieldStore interface {
	Probe(field models.FieldName, value interface{}) validator.Result
	ValidateAndStore(ctx context.Context, field models.FieldName, value interface{}) (validator.Result, error)
}

// ParsingContext carries what the parser needs to know about the conversation.
type ParsingContext struct {
	// Existing holds the fields already known; they are never overwritten.
	Existing models.ApplicationContext
	// LastAssistantMessage is the message the user is replying to.
	LastAssistantMessage string
}

// Extraction records where an accepted value came from.
type Extraction struct {
	Field models.FieldName `json:"field"`
	Tier  string           `json:"tier"`
	Rule  string           `json:"rule"`
}

type Result struct {
	Updates         map[models.FieldName]interface{} `json:"updates"`
	ValidatedFields []models.FieldName               `json:"validatedFields"`
	Rejected        map[models.FieldName]string      `json:"rejected,omitempty"`
	Extractions     []Extraction                     `json:"extractions,omitempty"`
}

type Parser struct {
	store      FieldStore
	rules      []Rule
	inferences []Inference
	logger     logger.Logger
}

func New(store FieldStore, log logger.Logger) *Parser {
	return &Parser{
		store:      store,
		rules:      DefaultRules(),
		inferences: DefaultInferences(),
		logger:     logger.Component(log, "parser"),
	}
}

type candidate struct {
	field models.FieldName
	value interface{}
	tier  string
	rule  string
}

var clauseSplitRe = regexp.MustCompile(`;+|\.\s+`)

// ParseUserInput extracts field values from text. Explicit rules run first over
// each clause; when they find nothing, the previous assistant message decides
// which field a short reply answers. Every candidate is probed before it is
// stored, so a rejected candidate never counts as an invalid attempt.
func (p *Parser) ParseUserInput(ctx context.Context, text string, pc ParsingContext) (Result, error) {
	res := Result{
		Updates:  map[models.FieldName]interface{}{},
		Rejected: map[models.FieldName]string{},
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return res, nil
	}

	candidates := p.explicit(text)
	if len(candidates) == 0 {
		if c, ok := p.contextual(text, pc.LastAssistantMessage); ok {
			candidates = append(candidates, c)
		}
	}

	for _, c := range candidates {
		if err := p.accept(ctx, &res, pc, c); err != nil {
			return res, err
		}
	}

	if c, ok := p.derived(pc, res); ok {
		if err := p.accept(ctx, &res, pc, c); err != nil {
			return res, err
		}
	}

	if len(res.ValidatedFields) > 0 || len(res.Rejected) > 0 {
		p.logger.Debug("user input parsed", map[string]interface{}{
			"accepted": res.ValidatedFields,
			"rejected": len(res.Rejected),
		})
	}
	return res, nil
}

// explicit runs the rules line by line. Free-text rules see the whole line;
// the others run on each clause, split on semicolons and sentence ends.
func (p *Parser) explicit(text string) []candidate {
	var out []candidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, r := range p.rules {
			if !r.Line {
				continue
			}
			if v, ok := r.extract(line); ok {
				out = append(out, candidate{field: r.Field, value: v, tier: TierExplicit, rule: r.Name})
			}
		}
		for _, clause := range clauseSplitRe.Split(line, -1) {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			for _, r := range p.rules {
				if r.Line {
					continue
				}
				if v, ok := r.extract(clause); ok {
					out = append(out, candidate{field: r.Field, value: v, tier: TierExplicit, rule: r.Name})
				}
			}
		}
	}
	return out
}

func (p *Parser) contextual(text, lastAssistant string) (candidate, bool) {
	if lastAssistant == "" || utf8.RuneCountInString(text) > maxContextualReply {
		return candidate{}, false
	}
	for _, inf := range p.inferences {
		if !inf.Question.MatchString(lastAssistant) {
			continue
		}
		var value interface{} = text
		if inf.Convert != nil {
			v, ok := inf.Convert(text)
			if !ok {
				return candidate{}, false
			}
			value = v
		}
		return candidate{field: inf.Field, value: value, tier: TierContextual, rule: string(inf.Field)}, true
	}
	return candidate{}, false
}

// derived classifies the programme from the call prefix when neither the
// existing context nor this reply named one.
func (p *Parser) derived(pc ParsingContext, res Result) (candidate, bool) {
	if pc.Existing.Has(models.FieldProgramType) {
		return candidate{}, false
	}
	if _, ok := res.Updates[models.FieldProgramType]; ok {
		return candidate{}, false
	}
	call, ok := res.Updates[models.FieldCall].(string)
	if !ok {
		return candidate{}, false
	}
	program, ok := ProgramFromCall(call)
	if !ok {
		return candidate{}, false
	}
	return candidate{field: models.FieldProgramType, value: string(program), tier: TierDerived, rule: "call-prefix"}, true
}

// accept probes c and stores it when it passes. Fields already known, or
// already extracted earlier in this call, are left alone.
func (p *Parser) accept(ctx context.Context, res *Result, pc ParsingContext, c candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pc.Existing.Has(c.field) {
		return nil
	}
	if _, done := res.Updates[c.field]; done {
		return nil
	}

	probe := p.store.Probe(c.field, c.value)
	if !probe.IsValid {
		metrics.ParsedFields.WithLabelValues(c.tier, "rejected").Inc()
		if _, seen := res.Rejected[c.field]; !seen {
			res.Rejected[c.field] = probe.Reason
		}
		return nil
	}

	stored, err := p.store.ValidateAndStore(ctx, c.field, c.value)
	if err != nil {
		return err
	}
	if !stored.IsValid {
		metrics.ParsedFields.WithLabelValues(c.tier, "rejected").Inc()
		res.Rejected[c.field] = stored.Reason
		return nil
	}

	metrics.ParsedFields.WithLabelValues(c.tier, "accepted").Inc()
	delete(res.Rejected, c.field)
	res.Updates[c.field] = stored.SanitizedValue
	res.ValidatedFields = append(res.ValidatedFields, c.field)
	res.Extractions = append(res.Extractions, Extraction{Field: c.field, Tier: c.tier, Rule: c.rule})
	return nil
}
