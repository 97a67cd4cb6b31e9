package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		data     map[string]any
		expected string
	}{
		{
			name:     "single_placeholder",
			template: "New mail: {{subject}}",
			data:     map[string]any{"subject": "hello"},
			expected: "New mail: hello",
		},
		{
			name:     "repeated_placeholder",
			template: "{{name}} and {{name}} again",
			data:     map[string]any{"name": "bob"},
			expected: "bob and bob again",
		},
		{
			name:     "multiple_keys",
			template: "{{subject}} from {{from}}",
			data:     map[string]any{"subject": "hi", "from": "a@b.c"},
			expected: "hi from a@b.c",
		},
		{
			name:     "missing_key_left_literal",
			template: "{{subject}} / {{missing}}",
			data:     map[string]any{"subject": "hi"},
			expected: "hi / {{missing}}",
		},
		{
			name:     "non_string_value",
			template: "count={{count}}",
			data:     map[string]any{"count": 3},
			expected: "count=3",
		},
		{
			name:     "empty_data",
			template: "{{anything}}",
			data:     map[string]any{},
			expected: "{{anything}}",
		},
		{
			name:     "no_placeholders",
			template: "plain text",
			data:     map[string]any{"subject": "hi"},
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Apply(tt.template, tt.data))
		})
	}
}
