package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationContext_SetAndValues(t *testing.T) {
	ctx := &ApplicationContext{}

	require.NoError(t, ctx.Set(FieldOrganizationName, "Deutsche Umwelthilfe e.V."))
	require.NoError(t, ctx.Set(FieldOrganizationType, "ngo"))
	require.NoError(t, ctx.Set(FieldDuration, 36))
	require.NoError(t, ctx.Set(FieldBudget, 3000000.0))
	require.NoError(t, ctx.Set(FieldKeywords, []string{"climate", "cities"}))

	values := ctx.Values()
	assert.Equal(t, "Deutsche Umwelthilfe e.V.", values[FieldOrganizationName])
	assert.Equal(t, "ngo", values[FieldOrganizationType])
	assert.Equal(t, 36, values[FieldDuration])
	assert.Equal(t, 3000000.0, values[FieldBudget])
	assert.Equal(t, []FieldName{FieldOrganizationName, FieldOrganizationType, FieldKeywords, FieldDuration, FieldBudget},
		ctx.PresentFields())
}

func TestApplicationContext_SetRejectsWrongType(t *testing.T) {
	ctx := &ApplicationContext{}

	assert.Error(t, ctx.Set(FieldDuration, "36"))
	assert.Error(t, ctx.Set(FieldBudget, 3))
	assert.Error(t, ctx.Set(FieldName("nope"), "x"))
	assert.Empty(t, ctx.Values())
}

func TestApplicationContext_CloneIsDeep(t *testing.T) {
	budget := 1000.0
	now := time.Now()
	ctx := &ApplicationContext{
		Consortium: []Partner{{Name: "Alpha", Role: RoleCoordinator, Budget: &budget}},
		Sections: map[string]*SectionProgress{
			"summary": {Status: StatusInProgress, CompletionPercent: 40, UpdatedAt: now},
		},
	}

	clone := ctx.Clone()
	*clone.Consortium[0].Budget = 5
	clone.Sections["summary"].CompletionPercent = 90

	assert.Equal(t, 1000.0, *ctx.Consortium[0].Budget)
	assert.Equal(t, 40, ctx.Sections["summary"].CompletionPercent)

	coordinator, ok := clone.Coordinator()
	require.True(t, ok)
	assert.Equal(t, "Alpha", coordinator.Name)
}

func TestApplicationContext_HasPartnerFrom(t *testing.T) {
	c := &ApplicationContext{Consortium: []Partner{
		{Name: "Green Org", Country: "Germany"},
		{Name: "Lab Nova", Country: "ukraine "},
	}}

	tests := []struct {
		country string
		want    bool
	}{
		{"Ukraine", true},
		{"UKRAINE", true},
		{" germany", true},
		{"France", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			assert.Equal(t, tt.want, c.HasPartnerFrom(tt.country))
		})
	}

	var empty *ApplicationContext
	assert.False(t, empty.HasPartnerFrom("Ukraine"))
}

func TestSectionProgress_ApplyMerges(t *testing.T) {
	p := &SectionProgress{Status: StatusInProgress, RequiredFields: []string{"a", "b"}}
	pct := 150
	p.Apply(SectionProgressUpdate{CompletionPercent: &pct}, time.Unix(10, 0))

	assert.Equal(t, StatusInProgress, p.Status)
	assert.Equal(t, 100, p.CompletionPercent)
	assert.Equal(t, []string{"a", "b"}, p.RequiredFields)
	assert.Equal(t, time.Unix(10, 0), p.UpdatedAt)
}
