package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionSchema(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"complete", `{"id":"01J","version":1,"context":{},"metadata":{"invalidAttempts":0}}`, true},
		{"missing id", `{"version":1,"context":{}}`, false},
		{"context not object", `{"id":"x","version":1,"context":"oops"}`, false},
		{"version zero", `{"id":"x","version":0,"context":{}}`, false},
		{"not json", `{{{`, false},
		{"array root", `[]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SessionSchema.Validate([]byte(tt.doc))
			assert.Equal(t, tt.valid, res.Valid, res.Summary())
			if !tt.valid {
				assert.NotEmpty(t, res.Errors)
			}
		})
	}
}

func TestDraftSchema(t *testing.T) {
	ok := `{"name":"a","version":2,"context":{},"chatHistory":[{"role":"user","content":"hi"}]}`
	bad := `{"name":"a","version":2,"context":{},"chatHistory":[{"role":"robot","content":"hi"}]}`

	assert.True(t, DraftSchema.Validate([]byte(ok)).Valid)
	assert.False(t, DraftSchema.Validate([]byte(bad)).Valid)
}
