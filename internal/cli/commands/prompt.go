package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// errNonInteractive is returned when input is needed but stdin is not a terminal
var errNonInteractive = errors.New("not running in a terminal")

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassword prompts for a secret without echo
func readPassword(out io.Writer, label string) (string, error) {
	if !isInteractive() {
		return "", errNonInteractive
	}

	fmt.Fprintf(out, "%s: ", label)
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}

// promptValue asks for a value interactively when it was not given as a flag
func promptValue(label string, required bool) (string, error) {
	if !isInteractive() {
		return "", errNonInteractive
	}

	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if required && input == "" {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		},
	}

	value, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return value, nil
}

// fill prompts for *value when it is empty
func fill(value *string, label, flag string, required bool) error {
	if *value != "" {
		return nil
	}

	v, err := promptValue(label, required)
	if errors.Is(err, errNonInteractive) {
		if required {
			return fmt.Errorf("%s is required (use --%s)", label, flag)
		}
		return nil
	}
	if err != nil {
		return err
	}
	*value = v
	return nil
}
