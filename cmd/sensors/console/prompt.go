package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// Confirm asks a yes/no question. Anything but an explicit yes declines.
func Confirm(question string) (bool, error) {
	answer, err := Prompt(question, No, Yes)
	if err != nil {
		return false, err
	}
	return answer == Yes, nil
}

// Prompt reads one line. With choices, the first one is the default and is
// shown in upper case.
func Prompt(question string, choices ...string) (string, error) {
	rl, err := readline.New(promptLine(question, choices))
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return choose(response, choices), nil
}

func promptLine(question string, choices []string) string {
	if len(choices) == 0 {
		return question
	}
	shown := append([]string{strings.ToUpper(choices[0])}, choices[1:]...)
	return question + " [" + strings.Join(shown, "/") + "]:"
}

// choose maps a response to one of choices, falling back to the default.
// Without choices the response is returned unchanged.
func choose(response string, choices []string) string {
	if len(choices) == 0 {
		return response
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range choices {
		if normalized == c {
			return c
		}
	}
	return choices[0]
}
