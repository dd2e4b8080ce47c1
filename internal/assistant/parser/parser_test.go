package parser

import (
	"context"
	"testing"

	"grant-assistant/internal/assistant/session"
	"grant-assistant/internal/assistant/storage"
	"grant-assistant/internal/assistant/validator"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

func newTestParser(t *testing.T) (*Parser, *session.Manager) {
	t.Helper()
	bl, err := validator.DefaultBlacklist()
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	store := storage.NewMemoryStore()
	require.NoError(t, store.Initialize(context.Background()))

	sm := session.NewManager(store, validator.New(bl, log), log, session.Options{})
	return New(sm, log), sm
}

func existing(t *testing.T, values map[models.FieldName]interface{}) models.ApplicationContext {
	t.Helper()
	var c models.ApplicationContext
	for f, v := range values {
		require.NoError(t, c.Set(f, v))
	}
	return c
}

// ==========================
// Explicit rules
// ==========================

func TestParseUserInput_OrganisationPrefix(t *testing.T) {
	p, sm := newTestParser(t)

	res, err := p.ParseUserInput(context.Background(), "Organisation: Test NGO", ParsingContext{})
	require.NoError(t, err)
	assert.Equal(t, "Test NGO", res.Updates[models.FieldOrganizationName])
	assert.Equal(t, []models.FieldName{models.FieldOrganizationName}, res.ValidatedFields)

	s, ok := sm.Current()
	require.True(t, ok)
	assert.Equal(t, "Test NGO", *s.Context.OrganizationName)
}

func TestParseUserInput_ManyFields(t *testing.T) {
	p, _ := newTestParser(t)

	text := "Project title: Climate-resilient cities; acronym: GREENCITY; call HORIZON-CL5-2024-D1-01; " +
		"budget €3 million; 70% funding; TRL 4-6; duration 36 months"
	res, err := p.ParseUserInput(context.Background(), text, ParsingContext{})
	require.NoError(t, err)

	assert.Equal(t, map[models.FieldName]interface{}{
		models.FieldProjectTitle: "Climate-resilient cities",
		models.FieldAcronym:      "GREENCITY",
		models.FieldCall:         "HORIZON-CL5-2024-D1-01",
		models.FieldBudget:       3000000.0,
		models.FieldFundingRate:  70.0,
		models.FieldTRLStart:     4,
		models.FieldTRLEnd:       6,
		models.FieldDuration:     36,
		models.FieldProgramType:  "horizon_europe",
	}, res.Updates)
	assert.Equal(t, models.FieldProgramType, res.ValidatedFields[len(res.ValidatedFields)-1])
	assert.Equal(t, TierDerived, res.Extractions[len(res.Extractions)-1].Tier)
	assert.Empty(t, res.Rejected)
}

func TestParseUserInput_Extractions(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		field models.FieldName
		want  interface{}
	}{
		{"country", "We are based in Germany", models.FieldCountry, "Germany"},
		{"country alias", "country: Deutschland", models.FieldCountry, "Germany"},
		{"organization type", "We are an NGO working on air quality", models.FieldOrganizationType, "ngo"},
		{"organization type label", "Organisation type: research institute", models.FieldOrganizationType, "research_organisation"},
		{"programme name", "We target Erasmus+ this year", models.FieldProgramType, "erasmus_plus"},
		{"duration in years", "The project runs for 3 years", models.FieldDuration, 36},
		{"total budget", "Total budget: 4.5M EUR", models.FieldTotalBudget, 4500000.0},
		{"funding rate label", "funding rate is 100%", models.FieldFundingRate, 100.0},
		{"target trl", "target TRL 7", models.FieldTRLEnd, 7},
		{"keywords", "Keywords: urban heat, nature-based solutions", models.FieldKeywords, []string{"urban heat", "nature-based solutions"}},
		{"template", "template: horizon-europe-ria", models.FieldSelectedTemplate, "horizon-europe-ria"},
		{"call with label", "Call ID: ERASMUS-EDU-2025-PCOOP-ENGO", models.FieldCall, "ERASMUS-EDU-2025-PCOOP-ENGO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser(t)
			res, err := p.ParseUserInput(context.Background(), tt.text, ParsingContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Updates[tt.field])
		})
	}
}

func TestParseUserInput_TotalBudgetIsNotRequestedBudget(t *testing.T) {
	p, _ := newTestParser(t)
	res, err := p.ParseUserInput(context.Background(), "Total budget: 4.5M EUR", ParsingContext{})
	require.NoError(t, err)
	assert.NotContains(t, res.Updates, models.FieldBudget)
}

func TestParseUserInput_Consortium(t *testing.T) {
	want := []models.Partner{
		{Name: "Green Org", Country: "Germany", Role: models.RoleCoordinator},
		{Name: "Lab Nova", Country: "France"},
	}
	tests := []struct {
		name string
		text string
	}{
		{"comma separated", "Partners: Green Org (Germany, coordinator), Lab Nova (France)"},
		{"semicolon separated", "Partners: Green Org (Germany, coordinator); Lab Nova (France)"},
		{"followed by another field", "Partners: Green Org (Germany, coordinator); Lab Nova (France). Duration: 36 months"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser(t)
			res, err := p.ParseUserInput(context.Background(), tt.text, ParsingContext{})
			require.NoError(t, err)
			assert.Equal(t, want, res.Updates[models.FieldConsortium])
		})
	}
}

func TestParseUserInput_FreeTextKeepsSentences(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		field models.FieldName
		want  interface{}
	}{
		{
			name:  "multi-sentence description",
			text:  "Description: We restore peat wetlands in three regions. Local farmers co-design every measure.",
			field: models.FieldDescription,
			want:  "We restore peat wetlands in three regions. Local farmers co-design every measure.",
		},
		{
			name:  "description with semicolon",
			text:  "Description: We pilot cooling corridors in five cities; residents monitor the results",
			field: models.FieldDescription,
			want:  "We pilot cooling corridors in five cities; residents monitor the results",
		},
		{
			name:  "abbreviated name",
			text:  "Organisation: Dr. Hauschka Stiftung",
			field: models.FieldOrganizationName,
			want:  "Dr. Hauschka Stiftung",
		},
		{
			name:  "stops at the next label",
			text:  "Organisation: Green Org; organisation type: NGO",
			field: models.FieldOrganizationName,
			want:  "Green Org",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser(t)
			res, err := p.ParseUserInput(context.Background(), tt.text, ParsingContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Updates[tt.field])
		})
	}
}

func TestParseUserInput_NeverOverwritesExisting(t *testing.T) {
	p, _ := newTestParser(t)
	pc := ParsingContext{Existing: existing(t, map[models.FieldName]interface{}{
		models.FieldOrganizationName: "Green Org",
		models.FieldProgramType:      "life",
	})}

	res, err := p.ParseUserInput(context.Background(),
		"Organisation: Other Org\ncall HORIZON-CL5-2024-D1-01", pc)
	require.NoError(t, err)
	assert.NotContains(t, res.Updates, models.FieldOrganizationName)
	assert.NotContains(t, res.Updates, models.FieldProgramType, "derived value must not replace an existing one")
	assert.Equal(t, "HORIZON-CL5-2024-D1-01", res.Updates[models.FieldCall])
}

func TestParseUserInput_FirstExtractionWins(t *testing.T) {
	p, _ := newTestParser(t)
	res, err := p.ParseUserInput(context.Background(), "acronym: ABC1\nacronym: XYZ2", ParsingContext{})
	require.NoError(t, err)
	assert.Equal(t, "ABC1", res.Updates[models.FieldAcronym])
}

func TestParseUserInput_RejectedCandidateIsReported(t *testing.T) {
	p, sm := newTestParser(t)
	res, err := p.ParseUserInput(context.Background(), "Project title: test", ParsingContext{})
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.Contains(t, res.Rejected[models.FieldProjectTitle], "generic phrase")

	_, ok := sm.Current()
	assert.False(t, ok, "probing must not touch the session")
}

// ==========================
// Contextual inference
// ==========================

func TestParseUserInput_Contextual(t *testing.T) {
	tests := []struct {
		name     string
		question string
		reply    string
		field    models.FieldName
		want     interface{}
	}{
		{"organization name", "What is the name of your organisation?", "Deutsche Umwelthilfe e.V.", models.FieldOrganizationName, "Deutsche Umwelthilfe e.V."},
		{"organization type", "What type of organisation are you?", "university", models.FieldOrganizationType, "university"},
		{"country", "Which country is your organisation based in?", "france", models.FieldCountry, "France"},
		{"duration", "How long will the project run?", "36", models.FieldDuration, 36},
		{"budget", "How much funding do you need?", "€2.5M", models.FieldBudget, 2500000.0},
		{"acronym", "Do you have an acronym for the project?", "CLIM-ADAPT", models.FieldAcronym, "CLIM-ADAPT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser(t)
			res, err := p.ParseUserInput(context.Background(), tt.reply, ParsingContext{LastAssistantMessage: tt.question})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Updates[tt.field])
			require.Len(t, res.Extractions, 1)
			assert.Equal(t, TierContextual, res.Extractions[0].Tier)
		})
	}
}

func TestParseUserInput_ContextualFillerIsNotApplied(t *testing.T) {
	p, sm := newTestParser(t)
	res, err := p.ParseUserInput(context.Background(), "ok", ParsingContext{
		LastAssistantMessage: "What is the name of your organisation?",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.Contains(t, res.Rejected, models.FieldOrganizationName)

	_, ok := sm.Current()
	assert.False(t, ok)
}

func TestParseUserInput_NoQuestionNoInference(t *testing.T) {
	p, _ := newTestParser(t)
	res, err := p.ParseUserInput(context.Background(), "Deutsche Umwelthilfe e.V.", ParsingContext{})
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.Empty(t, res.Rejected)
}

func TestParseUserInput_CancelledContext(t *testing.T) {
	p, _ := newTestParser(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ParseUserInput(ctx, "Organisation: Test NGO", ParsingContext{})
	assert.ErrorIs(t, err, context.Canceled)
}

// ==========================
// Helpers
// ==========================

func TestProgramFromCall(t *testing.T) {
	tests := []struct {
		call string
		want models.ProgramType
		ok   bool
	}{
		{"HORIZON-CL5-2024-D1-01", models.ProgramHorizonEurope, true},
		{"erasmus-edu-2025-pcoop-engo", models.ProgramErasmusPlus, true},
		{"CREA-CULT-2025-COOP", models.ProgramCreativeEurope, true},
		{"LIFE-2024-SAP-CLIMA", models.ProgramLIFE, true},
		{"XYZ-2024-01", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			got, ok := ProgramFromCall(tt.call)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
		ok   bool
	}{
		{"36", 36, true},
		{"24 months", 24, true},
		{"2 years", 24, true},
		{"a while", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDuration(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
