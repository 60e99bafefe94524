package main

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

var (
	// Output flags
	outputFormat string
	templateStr  string

	// history
	historyLimit int

	// tail
	tailKinds string
)

// newFormatter returns the formatter selected by --output and --template.
// A template without --output implies the template format.
func newFormatter() (output.Formatter, error) {
	if templateStr != "" && (outputFormat == "" || outputFormat == "pretty" || outputFormat == "template") {
		return output.NewTemplateFormatter(templateStr), nil
	}
	name := outputFormat
	if name == "" {
		name = "pretty"
	}
	f, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(output.Available(), ", "))
	}
	return f, nil
}

// parseKinds parses a comma-separated list of event kinds.
// An empty list selects every kind.
func parseKinds(s string) ([]types.EventKind, error) {
	var kinds []types.EventKind
	for _, name := range parseCommaSeparated(s) {
		k, err := types.ParseEventKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// parseCommaSeparated splits a comma-separated string and trims whitespace.
func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
