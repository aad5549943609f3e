package cli

import (
	"errors"

	"github.com/charmbracelet/huh"
)

func confirmPrompt(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func secretPrompt(title string) (string, error) {
	var secret string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Validate(huh.ValidateNotEmpty()).
		Value(&secret).
		Run()
	return secret, err
}
