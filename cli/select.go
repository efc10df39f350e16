package cli

import (
	"slices"
	"strings"

	"facette.io/natsort"
	"github.com/manifoldco/promptui"
)

const doneChoice = "[Done]"

// Select asks for one of choices, listed in natural order.
func Select(label string, choices ...string) (string, error) {
	items := sortedChoices(choices, nil)
	if len(items) == 0 {
		return "", nil
	}

	sel := &promptui.Select{
		Label:    label,
		Items:    items,
		Searcher: prefixSearcher(items, false),
	}

	_, value, err := sel.Run()

	return value, err
}

// MultiSelect asks repeatedly until [Done] is picked or nothing is left, and
// returns the picked choices in their original order.
func MultiSelect(label string, choices ...string) ([]string, error) {
	selected := make(map[string]bool)

	for {
		remaining := sortedChoices(choices, selected)
		if len(remaining) == 0 {
			break
		}

		items := append([]string{doneChoice}, remaining...)

		sel := &promptui.Select{
			Label:    label,
			Items:    items,
			Searcher: prefixSearcher(items, true),
		}

		idx, value, err := sel.Run()
		if err != nil {
			return nil, err
		}

		if idx == 0 {
			break
		}

		selected[value] = true
	}

	return picked(choices, selected), nil
}

// sortedChoices returns the distinct choices not yet selected, in natural order.
func sortedChoices(choices []string, selected map[string]bool) []string {
	var out []string

	for _, c := range choices {
		if !selected[c] && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}

	natsort.Sort(out)

	return out
}

func picked(choices []string, selected map[string]bool) []string {
	var out []string

	for _, c := range choices {
		if selected[c] && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}

	return out
}

func prefixSearcher(items []string, skipFirst bool) func(string, int) bool {
	return func(input string, index int) bool {
		if input == "" || (skipFirst && index == 0) {
			return false
		}

		return strings.HasPrefix(items[index], input)
	}
}
