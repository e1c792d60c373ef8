package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "object with surrounding prose",
			input: `Here is the result: {"a": 1} hope that helps!`,
			want:  `{"a": 1}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "fence with leading prose",
			input: "Sure!\n```json\n{\"a\": 1}\n```\nAnything else?",
			want:  `{"a": 1}`,
		},
		{
			name:  "nested objects",
			input: `{"a": {"b": [1, 2, {"c": 3}]}}`,
			want:  `{"a": {"b": [1, 2, {"c": 3}]}}`,
		},
		{
			name:  "braces inside strings",
			input: `{"text": "use { and } carefully"}`,
			want:  `{"text": "use { and } carefully"}`,
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"text": "she said \"hi\" {"}`,
			want:  `{"text": "she said \"hi\" {"}`,
		},
		{
			name:  "top-level array",
			input: `[{"a": 1}, {"a": 2}]`,
			want:  `[{"a": 1}, {"a": 2}]`,
		},
		{
			name:    "no json",
			input:   "I could not produce any output.",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			input:   `{"a": {"b": 1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONDocument(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateAgainstSchema(t *testing.T) {
	type payload struct {
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}

	schema, err := SchemaFor("payload", &payload{})
	require.NoError(t, err)

	assert.NoError(t, ValidateAgainstSchema(schema, `{"count": 2, "tags": ["a", "b"]}`))
	assert.Error(t, ValidateAgainstSchema(schema, `{"count": "two", "tags": []}`), "wrong type must fail")
	assert.Error(t, ValidateAgainstSchema(schema, `{"tags": []}`), "missing required field must fail")
	assert.Error(t, ValidateAgainstSchema(schema, `not json`))
}
