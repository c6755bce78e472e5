package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysisResult(t *testing.T) {
	raw := "```json\n{\n  \"subjects\": [\n    {\"label\": \"person\", \"confidence\": 0.92, \"box\": {\"x\": 0.1, \"y\": 0.2, \"w\": 0.3, \"h\": 0.4}},\n    // the dog\n    {\"label\": \"dog\", \"confidence\": 1.7, \"box\": {\"x\": 0.8, \"y\": 0.5, \"w\": 0.5, \"h\": 0.2}},\n  ],\n  \"description\": \"two subjects\",\n  \"tags\": [\"Person\", \"dog\", \"person\"],\n}\n```"

	result, err := ParseAnalysisResult(raw)
	require.NoError(t, err)
	require.Len(t, result.Subjects, 2)

	assert.Equal(t, "person", result.Subjects[0].Label)
	assert.InDelta(t, 0.92, result.Subjects[0].Confidence, 1e-9)

	dog := result.Subjects[1]
	assert.Equal(t, 1.0, dog.Confidence)
	assert.InDelta(t, 0.2, dog.Box.W, 1e-9, "width must be trimmed at the right edge")
	assert.Equal(t, []string{"person", "dog"}, result.Tags)
}

func TestParseAnalysisResultDropsNone(t *testing.T) {
	raw := `{"subjects":[{"label":"none","confidence":0,"box":{"x":0.25,"y":0.25,"w":0.5,"h":0.5}}],"description":"empty scene","tags":[]}`

	result, err := ParseAnalysisResult(raw)
	require.NoError(t, err)
	assert.Empty(t, result.Subjects)
}

func TestParseAnalysisResultNonJSON(t *testing.T) {
	result, err := ParseAnalysisResult("I see a cat on a sofa.")
	require.NoError(t, err)
	assert.Empty(t, result.Subjects)
	assert.Equal(t, []string{"non-json"}, result.Tags)
}

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{`prefix {"a": [1, 2,]} suffix`, `{"a": [1, 2]}`},
		{"{\"a\": 1 /* note */}", `{"a": 1 }`},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, SanitizeModelJSON(test.input))
	}
}
