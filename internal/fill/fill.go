// Package fill runs a form interactively in the terminal. Conditional
// fields appear and disappear as the answers they depend on change.
package fill

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/models"
)

// State holds the huh form for one fill session and the values bound to it.
type State struct {
	Form    *models.Form
	HuhForm *huh.Form

	text   map[string]*string // every non-checkbox field
	checks map[string]*bool
}

// New builds the interactive form for form. Each field gets its own group
// so that huh can hide it on its own.
func New(form *models.Form) *State {
	s := &State{
		Form:   form,
		text:   make(map[string]*string),
		checks: make(map[string]*bool),
	}

	groups := make([]*huh.Group, 0, len(form.Fields)+1)
	intro := huh.NewNote().Title(form.Title)
	if form.Description != "" {
		intro = intro.Description(form.Description)
	}
	groups = append(groups, huh.NewGroup(intro))

	for _, f := range form.Fields {
		field := f
		groups = append(groups, huh.NewGroup(s.buildField(field)).
			WithHideFunc(func() bool { return s.hidden(field) }))
	}

	s.HuhForm = huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	return s
}

// Run shows the form and blocks until it is submitted or aborted.
func (s *State) Run() error {
	if err := s.HuhForm.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

// ErrAborted is returned by Run when the user quits the form.
var ErrAborted = errors.New("form aborted")

func (s *State) buildField(f models.Field) huh.Field {
	title := f.Label
	if f.Required {
		title += " *"
	}

	switch f.Type {
	case models.FieldCheckbox:
		v := new(bool)
		s.checks[f.ID] = v
		return huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(v).
			Validate(func(b bool) error {
				if f.Required && !b {
					return fmt.Errorf("%s is required", f.Label)
				}
				return nil
			})

	case models.FieldSelect:
		v := new(string)
		s.text[f.ID] = v
		opts := make([]huh.Option[string], 0, len(f.Options)+1)
		if !f.Required {
			opts = append(opts, huh.NewOption("(no answer)", ""))
		}
		for _, o := range f.Options {
			opts = append(opts, huh.NewOption(o, o))
		}
		return huh.NewSelect[string]().
			Title(title).
			Options(opts...).
			Value(v)

	case models.FieldTextarea:
		v := new(string)
		s.text[f.ID] = v
		return huh.NewText().
			Title(title).
			Lines(4).
			Value(v).
			Validate(func(in string) error { return validateText(f, in) })

	default:
		v := new(string)
		s.text[f.ID] = v
		in := huh.NewInput().
			Title(title).
			Value(v).
			Validate(func(in string) error { return validateText(f, in) })
		switch f.Type {
		case models.FieldEmail:
			in = in.Placeholder("name@example.com")
		case models.FieldNumber:
			in = in.Placeholder("0")
		}
		return in
	}
}

// validateText applies the checks a text-like field gets on submit, so
// the user sees them before leaving the field.
func validateText(f models.Field, in string) error {
	in = strings.TrimSpace(in)
	if in == "" {
		if f.Required {
			return fmt.Errorf("%s is required", f.Label)
		}
		return nil
	}
	switch f.Type {
	case models.FieldEmail:
		if !conditional.ValidEmail(in) {
			return errors.New(conditional.MsgInvalidEmail)
		}
	case models.FieldNumber:
		if _, ok := parseNumber(in); !ok {
			return errors.New("Please enter a number")
		}
	}
	return nil
}

// hidden re-runs the visibility check against the answers entered so far.
func (s *State) hidden(f models.Field) bool {
	return !conditional.IsVisible(f, s.current())
}

// current snapshots the bound values. Blank text answers are left out,
// matching a field the user never touched. Other text is kept as typed.
func (s *State) current() models.FormValues {
	values := make(models.FormValues, len(s.text)+len(s.checks))
	for _, f := range s.Form.Fields {
		if b, ok := s.checks[f.ID]; ok {
			values[f.ID] = *b
			continue
		}
		p, ok := s.text[f.ID]
		if !ok {
			continue
		}
		if strings.TrimSpace(*p) == "" {
			continue
		}
		if f.Type == models.FieldNumber {
			if n, ok := parseNumber(*p); ok {
				values[f.ID] = n
				continue
			}
		}
		values[f.ID] = *p
	}
	return values
}

// Values returns the answers of the visible fields only.
func (s *State) Values() models.FormValues {
	return conditional.VisibleValues(s.Form.Fields, s.current())
}
