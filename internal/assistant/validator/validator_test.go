package validator

import (
	"testing"

	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	bl, err := DefaultBlacklist()
	require.NoError(t, err)
	return New(bl, logger.NewTestLogger(t))
}

// ==========================
// Sanitize
// ==========================

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims and collapses", "  Deutsche   Umwelthilfe\te.V.  ", "Deutsche Umwelthilfe e.V."},
		{"strips tags", "<b>Green</b> <script>alert(1)</script>Cities", "Green Cities"},
		{"strips braces and backticks", "{{title}} `rm` Project", "title rm Project"},
		{"keeps ampersand", "Research & Innovation", "Research & Innovation"},
		{"unwraps escaped markup", "&lt;i&gt;Hello&lt;/i&gt;", "iHello/i"},
		{"drops control characters", "Alpha\x00Beta\x07", "AlphaBeta"},
		{"keeps unicode", "Université de Genève", "Université de Genève"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"  spaced   out  ",
		"<p>para</p><p>two</p>",
		"&amp;lt;script&amp;gt;x",
		"a &amp; b",
		"&&&;;;",
		"quote \" and ' apostrophe",
		"<<>>{}``",
		"&lt;&lt;b&gt;&gt;bold",
		"tab\tnew\nline\r\n",
		"emoji 🌍 and ü",
		"&#60;img src=x&#62;",
		"5 < 6 > 4",
		" non breaking ",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

// ==========================
// Generic phrases
// ==========================

func TestIsGenericPhrase(t *testing.T) {
	v := newTestValidator(t)

	generic := []string{
		"ok", "OK", "  Okay ", "next", "skip", "test", "lorem ipsum", "n/a",
		"weiter", "keine ahnung", "d'accord", "suivant",
		"x", "asdfgh", "qwertz", "bcdfgh", "[Your organisation]", "{{name}}", "<project title>",
		"https://example.org", "www.example.org", "...", "?!", "🎉", "👍🏽", "aaaa", "hahaha", "abcabcabc",
	}
	for _, text := range generic {
		assert.True(t, v.IsGenericPhrase(text), "expected generic: %q", text)
	}

	specific := []string{
		"Deutsche Umwelthilfe e.V.", "Green Cities for Europe", "HORIZON-CL5-2024-D1-01",
		"Ukraine", "Technical University of Munich", "climate adaptation", "(EU) funded project (2024)", "",
	}
	for _, text := range specific {
		assert.False(t, v.IsGenericPhrase(text), "expected specific: %q", text)
	}
}

func TestParseBlacklist_InvalidPattern(t *testing.T) {
	_, err := ParseBlacklist([]byte("patterns:\n  - name: broken\n    regex: '(['\n"))
	assert.Error(t, err)
}

func TestBlacklist_CustomTables(t *testing.T) {
	bl, err := ParseBlacklist([]byte("languages:\n  it:\n    affirmations: [va bene, si]\n"))
	require.NoError(t, err)

	assert.True(t, bl.IsGenericPhrase("Va Bene"))
	assert.False(t, bl.IsGenericPhrase("ok"))
	assert.Equal(t, []string{"it"}, bl.Languages())
	assert.Equal(t, 2, bl.Size())
}

// ==========================
// Field validation
// ==========================

func TestValidate_Scenarios(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(models.FieldProjectTitle, "ok")
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Reason, "generic phrase")
	assert.Nil(t, res.SanitizedValue)
	assert.NotEmpty(t, res.Suggestions)

	res = v.Validate(models.FieldOrganizationName, "Deutsche Umwelthilfe e.V.")
	assert.True(t, res.IsValid)
	assert.Equal(t, "Deutsche Umwelthilfe e.V.", res.SanitizedValue)
}

func TestValidate_Fields(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name  string
		field models.FieldName
		value interface{}
		valid bool
		want  interface{}
	}{
		{"org name too short", models.FieldOrganizationName, "AB", false, nil},
		{"org name digits only", models.FieldOrganizationName, "12345", false, nil},
		{"org name trimmed", models.FieldOrganizationName, "  Green Org  ", true, "Green Org"},
		{"call without digit or dash", models.FieldCall, "HORIZON", false, nil},
		{"call with dash", models.FieldCall, "HORIZON-CL5-2024-D1-01", true, "HORIZON-CL5-2024-D1-01"},
		{"org type alias", models.FieldOrganizationType, "Non-Profit", true, "ngo"},
		{"org type unknown", models.FieldOrganizationType, "spaceship", false, nil},
		{"program alias", models.FieldProgramType, "Erasmus+", true, "erasmus_plus"},
		{"duration from text", models.FieldDuration, "36", true, 36},
		{"duration float whole", models.FieldDuration, 24.0, true, 24},
		{"duration fraction", models.FieldDuration, 24.5, false, nil},
		{"duration too long", models.FieldDuration, 240, false, nil},
		{"budget with separators", models.FieldBudget, "€3,000,000", true, 3000000.0},
		{"budget millions", models.FieldBudget, "2.5M", true, 2500000.0},
		{"budget negative", models.FieldBudget, -5, false, nil},
		{"funding rate percent", models.FieldFundingRate, "70%", true, 70.0},
		{"number inside prose", models.FieldDuration, "version 2 of 36", false, nil},
		{"budget with trailing words", models.FieldBudget, "3 million or so", false, nil},
		{"budget in euros", models.FieldBudget, "2.5 million euros", true, 2500000.0},
		{"trl out of range", models.FieldTRLStart, 10, false, nil},
		{"acronym with space", models.FieldAcronym, "GREEN CITY", false, nil},
		{"acronym ok", models.FieldAcronym, "GREENCITY", true, "GREENCITY"},
		{"country", models.FieldCountry, "Ukraine", true, "Ukraine"},
		{"country with digits", models.FieldCountry, "Country 42", false, nil},
		{"keywords from text", models.FieldKeywords, "climate, urban heat; climate", true, []string{"climate", "urban heat"}},
		{"keywords with filler", models.FieldKeywords, []interface{}{"climate", "test"}, false, nil},
		{"text field with number", models.FieldProjectTitle, 42, false, nil},
		{"nil value", models.FieldProjectTitle, nil, false, nil},
		{"unknown field", models.FieldName("favouriteColour"), "blue", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.field, tt.value)
			assert.Equal(t, tt.valid, res.IsValid, res.Reason)
			if tt.valid {
				assert.Equal(t, tt.want, res.SanitizedValue)
			} else {
				assert.NotEmpty(t, res.Reason)
				assert.Nil(t, res.SanitizedValue)
			}
		})
	}
}

func TestValidate_Consortium(t *testing.T) {
	v := newTestValidator(t)
	budget := 250000.0

	res := v.Validate(models.FieldConsortium, []interface{}{
		map[string]interface{}{"name": " Kyiv Polytechnic ", "country": "Ukraine", "role": "lead", "type": "university"},
		map[string]interface{}{"name": "Green Org", "country": "Germany", "role": "partner"},
	})
	require.True(t, res.IsValid, res.Reason)
	partners := res.SanitizedValue.([]models.Partner)
	require.Len(t, partners, 2)
	assert.Equal(t, "Kyiv Polytechnic", partners[0].Name)
	assert.Equal(t, models.RoleCoordinator, partners[0].Role)
	assert.Equal(t, models.OrgUniversity, partners[0].Type)

	res = v.Validate(models.FieldConsortium, []models.Partner{{Name: "ok"}})
	assert.False(t, res.IsValid)

	res = v.Validate(models.FieldConsortium, []models.Partner{
		{Name: "Alpha Institute", Role: models.RoleCoordinator},
		{Name: "Beta Institute", Role: models.RoleCoordinator, Budget: &budget},
	})
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Reason, "only one coordinator")

	res = v.Validate(models.FieldConsortium, []models.Partner{})
	assert.False(t, res.IsValid)
}

func TestValidate_RevalidationIsStable(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(models.FieldDescription, "  We pilot <b>nature-based</b> cooling in five cities.  ")
	require.True(t, res.IsValid)

	again := v.Validate(models.FieldDescription, res.SanitizedValue)
	require.True(t, again.IsValid)
	assert.Equal(t, res.SanitizedValue, again.SanitizedValue)
}

func TestParseFigure(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"€3,000,000", 3_000_000, true},
		{" EUR 450k ", 450_000, true},
		{"1,2 Mio", 1_200_000, true},
		{"2.5 million euros", 2_500_000, true},
		{"3 000 000", 3_000_000, true},
		{"version 2 of 36", 0, false},
		{"500 members", 0, false},
		{"about 3M", 0, false},
		{"-5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFigure(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"3,000,000", 3_000_000, true},
		{"€3.000.000", 3_000_000, true},
		{"EUR 450k", 450_000, true},
		{"1,2 Mio", 1_200_000, true},
		{"2.5 million euros", 2_500_000, true},
		{"1.000,50", 1000.5, true},
		{"3 000 000", 3_000_000, true},
		{"500 members", 500, true},
		{"none", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}
