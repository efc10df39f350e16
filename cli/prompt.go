package cli

import (
	"errors"
	"os"

	"github.com/manifoldco/promptui"
)

var (
	ErrEmptyInput     = errors.New("you must enter something")
	ErrUnexpectedSize = errors.New("unexpected terminal size output")
)

func PromptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func PromptString(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: nonEmpty,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
	}

	return prompt.Run()
}

func nonEmpty(s string) error {
	if s == "" {
		return ErrEmptyInput
	}

	return nil
}
