package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"grant-assistant/internal/assistant/appcontext"
	"grant-assistant/internal/assistant/parser"
	"grant-assistant/internal/models"
)

var questions = map[models.FieldName]string{
	models.FieldOrganizationName: "What is the name of your organisation?",
	models.FieldOrganizationType: "What type of organisation is it (university, research centre, SME, NGO, public body)?",
	models.FieldCountry:          "In which country is your organisation based?",
	models.FieldProjectTitle:     "What is the title of your project?",
	models.FieldAcronym:          "Which acronym will the project use?",
	models.FieldDescription:      "Describe the project in a few sentences.",
	models.FieldDuration:         "How many months will the project run?",
	models.FieldCall:             "Which call are you applying to?",
	models.FieldConsortium:       "Who are your partners? Give name, country and role for each.",
	models.FieldBudget:           "How much EU funding are you requesting?",
	models.FieldFundingRate:      "What funding rate applies (in percent)?",
	models.FieldSelectedTemplate: "Which template should the proposal follow?",
}

// Turn is the outcome of one user reply.
type Turn struct {
	Parsed   parser.Result   `json:"parsed"`
	Step     appcontext.Step `json:"step"`
	Selected string          `json:"selectedTemplate,omitempty"`
	Reply    string          `json:"reply"`
}

// Conversation drives the guided interview: it asks for the next missing
// field, feeds replies through the parser and keeps the chat history.
type Conversation struct {
	app *App

	mu      sync.Mutex
	history []models.ChatMessage
	now     func() time.Time
}

func (a *App) NewConversation() *Conversation {
	return &Conversation{app: a, now: time.Now}
}

// Opening returns the first question and records it.
func (c *Conversation) Opening() string {
	q := c.question()
	c.record(models.RoleAssistant, q)
	return q
}

// Reply parses text, stores what it could extract and returns the follow-up.
func (c *Conversation) Reply(ctx context.Context, text string) (Turn, error) {
	last := c.lastAssistant()
	c.record(models.RoleUser, text)

	res, err := c.app.Parser.ParseUserInput(ctx, text, parser.ParsingContext{
		Existing:             c.app.Sessions.GetValidatedContext(),
		LastAssistantMessage: last,
	})
	if err != nil {
		return Turn{}, err
	}

	turn := Turn{Parsed: res}
	if err := c.autoSelect(ctx, &turn); err != nil {
		return Turn{}, err
	}
	turn.Step = c.app.Context.NextStep()

	var b strings.Builder
	if len(res.ValidatedFields) > 0 {
		names := make([]string, len(res.ValidatedFields))
		for i, f := range res.ValidatedFields {
			names[i] = string(f)
		}
		fmt.Fprintf(&b, "Noted: %s. ", strings.Join(names, ", "))
	}
	for _, f := range sortedKeys(res.Rejected) {
		fmt.Fprintf(&b, "I could not accept %s: %s. ", f, res.Rejected[f])
	}
	if turn.Selected != "" {
		fmt.Fprintf(&b, "Selected template %s. ", turn.Selected)
	}
	b.WriteString(c.question())
	turn.Reply = strings.TrimSpace(b.String())

	c.record(models.RoleAssistant, turn.Reply)
	return turn, nil
}

// autoSelect picks a template once the budget step is through and none is
// chosen yet.
func (c *Conversation) autoSelect(ctx context.Context, turn *Turn) error {
	if c.app.Context.NextStep() != appcontext.StepSections {
		return nil
	}
	current := c.app.Sessions.GetValidatedContext()
	if current.Has(models.FieldSelectedTemplate) {
		return nil
	}
	sel := c.app.Templates.SelectTemplate(current)
	if !sel.Found() {
		return nil
	}
	res, err := c.app.Sessions.ValidateAndStore(ctx, models.FieldSelectedTemplate, sel.TemplateID)
	if err != nil {
		return err
	}
	if res.IsValid {
		turn.Selected = sel.TemplateID
	}
	return nil
}

// question asks for the first missing field of the current step.
func (c *Conversation) question() string {
	step := c.app.Context.NextStep()
	v, err := c.app.Context.ValidateStepRequirements(step)
	if err == nil {
		for _, f := range v.MissingFields {
			if q, ok := questions[f]; ok {
				return q
			}
		}
	}
	switch step {
	case appcontext.StepIntroduction:
		return "Which funding programme are you targeting?"
	case appcontext.StepConsortium:
		return "Which partner coordinates the consortium?"
	case appcontext.StepReview:
		return "Everything needed is in place. Run populate to see the proposal."
	}
	return fmt.Sprintf("Tell me more about the %s.", step)
}

func (c *Conversation) record(role models.ChatRole, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, models.ChatMessage{Role: role, Content: content, Timestamp: c.now().UTC()})
}

func (c *Conversation) lastAssistant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Role == models.RoleAssistant {
			return c.history[i].Content
		}
	}
	return ""
}

// History returns a copy of the messages exchanged so far.
func (c *Conversation) History() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.history...)
}

// DraftState snapshots the conversation for the draft manager. It reports
// false while nothing has been said yet.
func (c *Conversation) DraftState() (models.DraftState, bool) {
	history := c.History()
	if len(history) == 0 {
		return models.DraftState{}, false
	}
	validated := c.app.Sessions.GetValidatedContext()
	return models.DraftState{Context: &validated, ChatHistory: history}, true
}

func sortedKeys(m map[models.FieldName]string) []models.FieldName {
	keys := make([]models.FieldName, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
