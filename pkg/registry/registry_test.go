package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedRegistry(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	ids := make([]string, 0, len(reg.Templates))
	for _, tpl := range reg.Templates {
		ids = append(ids, tpl.ID)
		assert.Positive(t, tpl.SubsectionCount(), tpl.ID)
	}
	assert.Equal(t, []string{"horizon-europe-ria", "horizon-europe-csa-ukraine", "erasmus-plus-ka220", "life-sap"}, ids)

	csa, ok := reg.Find("horizon-europe-csa-ukraine")
	require.True(t, ok)
	assert.True(t, csa.CountryTailored)
	assert.Equal(t, "Ukraine", csa.PriorityCountry)

	_, sub, ok := csa.Subsection("consortium")
	require.True(t, ok)
	assert.Equal(t, 500, sub.WordLimit)
}

func TestValidate_ReportsProblems(t *testing.T) {
	reg := &TemplateRegistry{Templates: []GrantTemplate{
		{
			ID:          "a",
			ProgramType: "life",
			BudgetRange: "lots",
			TRLRange:    &TRLRange{Min: 5, Max: 3},
			Sections: []Section{{ID: "s", Subsections: []Subsection{
				{ID: "x", WordLimit: 0, Template: "[MYSTERY] text"},
			}}},
		},
		{ID: "a", ProgramType: "life", CountryTailored: true},
	}}

	problems := Validate(reg)

	assert.Contains(t, problems, `a: unreadable budgetRange "lots"`)
	assert.Contains(t, problems, "a: trlRange 5-3 outside 1-9")
	assert.Contains(t, problems, "a/s/x: wordLimit must be positive")
	assert.Contains(t, problems, "a/s/x: unknown placeholder [MYSTERY]")
	assert.Contains(t, problems, "a: duplicate id")
	assert.Contains(t, problems, "a: countryTailored without priorityCountry")
	assert.Contains(t, problems, "a: no sections")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	body := `
templates:
  - id: tiny
    programType: cerv
    budgetRange: "up to €60,000"
    sections:
      - id: main
        subsections:
          - id: body
            wordLimit: 100
            template: "[PROJECT_TITLE] by [ORGANIZATION_NAME]"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, reg.Templates, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBudgetBounds(t *testing.T) {
	tests := []struct {
		in       string
		min, max float64
		ok       bool
	}{
		{"€2-5 million", 2_000_000, 5_000_000, true},
		{"€120,000 - €400,000", 120_000, 400_000, true},
		{"up to €60,000", 0, 60_000, true},
		{"€2.5M - €4M", 2_500_000, 4_000_000, true},
		{"€500k-1.5 million", 500_000, 1_500_000, true},
		{"€500,000 - €2 million", 500_000, 2_000_000, true},
		{"€1-4 million", 1_000_000, 4_000_000, true},
		{"€250,000.50 - €1,500,000.50", 250_000.5, 1_500_000.5, true},
		{"€1.500.000,50", 0, 1_500_000.5, true},
		{"negotiable", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			min, max, ok := BudgetBounds(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.min, min, 0.001)
			assert.InDelta(t, tt.max, max, 0.001)
		})
	}
}
