// Package tui provides interactive terminal prompts.
package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// SelectOption represents an option in a select prompt.
type SelectOption struct {
	Value string
	Label string
}

// FormField represents a field in a form. A field with Options renders as a
// select; Secret hides the typed value.
type FormField struct {
	Key         string
	Title       string
	Placeholder string
	Required    bool
	Secret      bool
	Default     string
	Options     []SelectOption
}

// Missing returns the fields whose key has no value in values, keeping order.
func Missing(fields []FormField, values map[string]string) []FormField {
	var out []FormField
	for _, f := range fields {
		if strings.TrimSpace(values[f.Key]) == "" {
			out = append(out, f)
		}
	}
	return out
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}

// Form shows a multi-field form and returns a map of key -> value.
func Form(title string, fields []FormField) (map[string]string, error) {
	results := make(map[string]string, len(fields))
	if len(fields) == 0 {
		return results, nil
	}
	values := make([]*string, len(fields))

	huhFields := make([]huh.Field, len(fields))
	for i, f := range fields {
		value := f.Default
		values[i] = &value

		if len(f.Options) > 0 {
			opts := make([]huh.Option[string], len(f.Options))
			for j, o := range f.Options {
				opts[j] = huh.NewOption(o.Label, o.Value)
			}
			huhFields[i] = huh.NewSelect[string]().
				Title(f.Title).
				Options(opts...).
				Value(values[i])
			continue
		}

		input := huh.NewInput().
			Title(f.Title).
			Placeholder(f.Placeholder).
			Value(values[i])
		if f.Secret {
			input = input.EchoMode(huh.EchoModePassword)
		}
		if f.Required {
			input = input.Validate(required)
		}
		huhFields[i] = input
	}

	form := huh.NewForm(
		huh.NewGroup(huhFields...).Title(title),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	for i, f := range fields {
		results[f.Key] = *values[i]
	}
	return results, nil
}

// ConfirmDangerous shows a confirmation prompt for destructive actions.
func ConfirmDangerous(message string) (bool, error) {
	var result bool
	err := huh.NewConfirm().
		Title(message).
		Description("This action cannot be undone.").
		Affirmative("Yes, I'm sure").
		Negative("Cancel").
		Value(&result).
		Run()
	if err != nil {
		return false, err
	}
	return result, nil
}
