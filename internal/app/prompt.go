package app

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
	gomail "github.com/emersion/go-message/mail"

	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
)

// Prompter collects interactive input.
type Prompter interface {
	Credentials(email string) (string, string, error)
	Registration(email, name string) (authsdk.RegisterRequest, error)
	Confirm(title string) (bool, error)
}

// formPrompter renders huh forms on the terminal.
type formPrompter struct{}

func (formPrompter) Credentials(email string) (string, string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(validateRequired("Password")),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

func (formPrompter) Registration(email, name string) (authsdk.RegisterRequest, error) {
	var password, confirm string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("Optional display name").
				Value(&name),
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(validateRequired("Password")),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != password {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return authsdk.RegisterRequest{}, err
	}

	return authsdk.RegisterRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
		Name:     strings.TrimSpace(name),
	}, nil
}

func (formPrompter) Confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func validateEmail(s string) error {
	if _, err := gomail.ParseAddress(strings.TrimSpace(s)); err != nil {
		return errors.New("enter a valid email address")
	}
	return nil
}
