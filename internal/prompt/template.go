package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pressroom/backend/internal/apperr"
)

// Template is a named prompt with {{.slot}} placeholders. Rendering fails
// when a referenced slot is absent, or when a Required slot is blank.
type Template struct {
	name     string
	tmpl     *template.Template
	required []string
}

func New(name, text string, required ...string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	return &Template{name: name, tmpl: tmpl, required: required}, nil
}

func MustNew(name, text string, required ...string) *Template {
	t, err := New(name, text, required...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string { return t.name }

func (t *Template) Render(vars map[string]string) (string, error) {
	var violations []apperr.Violation
	for _, key := range t.required {
		if strings.TrimSpace(vars[key]) == "" {
			violations = append(violations, apperr.Violation{Field: key, Reason: "required variable is missing or empty"})
		}
	}
	if len(violations) > 0 {
		return "", apperr.NewValidationError(t.name, violations...)
	}

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, vars); err != nil {
		return "", apperr.NewValidationError(t.name, apperr.Violation{Field: missingKey(err), Reason: err.Error()})
	}
	return sb.String(), nil
}

// missingKey pulls the slot name out of text/template's
// `map has no entry for key "x"` error.
func missingKey(err error) string {
	msg := err.Error()
	const marker = `no entry for key "`
	i := strings.Index(msg, marker)
	if i < 0 {
		return "(template)"
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		return rest[:j]
	}
	return "(template)"
}
