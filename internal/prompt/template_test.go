package prompt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressroom/backend/internal/apperr"
)

func TestRender_FillsSlots(t *testing.T) {
	tmpl := MustNew("greet", "Company: {{.company}}\nTone: {{.tone}}", "company")

	out, err := tmpl.Render(map[string]string{"company": "Acme", "tone": "calm"})
	require.NoError(t, err)
	assert.Equal(t, "Company: Acme\nTone: calm", out)
}

func TestRender_MissingSlotFails(t *testing.T) {
	tmpl := MustNew("greet", "Company: {{.company}} {{.story}}")

	_, err := tmpl.Render(map[string]string{"company": "Acme"})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "story", verr.Violations[0].Field)
}

func TestRender_BlankRequiredFails(t *testing.T) {
	tmpl := MustNew("greet", "{{.company}} {{.story}}", "company", "story")

	_, err := tmpl.Render(map[string]string{"company": "  ", "story": ""})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 2)
	assert.Equal(t, "company", verr.Violations[0].Field)
	assert.Equal(t, "story", verr.Violations[1].Field)
}

func TestRender_OptionalMayBeEmpty(t *testing.T) {
	tmpl := MustNew("greet", "[{{.quote}}]", "company")

	out, err := tmpl.Render(map[string]string{"company": "Acme", "quote": ""})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
