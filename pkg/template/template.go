// Package template substitutes {{field}} placeholders from event data into
// action payloads.
package template

import (
	"fmt"
	"strings"
)

// Apply replaces every occurrence of {{key}} for every key present in data
// with the key's stringified value. Keys absent from data are left as
// literal {{key}} in the output.
func Apply(template string, data map[string]any) string {
	result := template

	for key, value := range data {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(result, placeholder) {
			continue
		}

		result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", value))
	}

	return result
}
