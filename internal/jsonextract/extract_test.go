package jsonextract

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validObject = `{"scenarios": [{"persona_name": "Ava", "pain_point_detail": "spends hours every week reconciling hive inspection notes by hand"}]}`

func TestExtractPlainJSON(t *testing.T) {
	obj, err := Extract(validObject, "scenarios", "")
	require.NoError(t, err)
	assert.Contains(t, obj, "scenarios")
}

func TestExtractFencedJSON(t *testing.T) {
	cases := map[string]string{
		"labeled fence":     "```json\n" + validObject + "\n```",
		"bare fence":        "```\n" + validObject + "\n```",
		"fence no newlines": "```json" + validObject + "```",
		"padded whitespace": "   \n```json\n" + validObject + "\n```  \n",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			obj, err := Extract(raw, "scenarios", "")
			require.NoError(t, err)
			assert.Contains(t, obj, "scenarios")
		})
	}
}

func TestExtractConcatenatedObjects(t *testing.T) {
	separators := []string{"}\n{", "}\r\n{", "} {", "}\n\n{"}

	first := `{"scenarios": [1, 2, 3]`
	second := `"scenarios": [4, 5, 6]}`

	for _, sep := range separators {
		raw := first + sep + second
		obj, err := Extract(raw, "scenarios", "")
		require.NoError(t, err, "separator %q", sep)

		arr, ok := obj["scenarios"].([]interface{})
		require.True(t, ok)
		assert.Len(t, arr, 3, "should keep the first document for separator %q", sep)
	}
}

func TestExtractSurroundingProse(t *testing.T) {
	raw := "Here are the scenarios you asked for:\n\n" + validObject + "\n\nLet me know if you need more."
	obj, err := Extract(raw, "scenarios", "")
	require.NoError(t, err)
	assert.Contains(t, obj, "scenarios")
}

func TestExtractBracesInsideStrings(t *testing.T) {
	raw := `noise {"scenarios": [{"goal_focus": "use {curly} notation and \"escapes\" safely"}]} trailing`
	obj, err := Extract(raw, "scenarios", "")
	require.NoError(t, err)

	arr := obj["scenarios"].([]interface{})
	entry := arr[0].(map[string]interface{})
	assert.Equal(t, `use {curly} notation and "escapes" safely`, entry["goal_focus"])
}

func TestExtractPicksCandidateWithRequiredKey(t *testing.T) {
	// A decoy object precedes the real one; the fallback must skip it.
	raw := `{"note": "ignore me"} and then ` + "```" + `{"scenarios": [{"x": 1}]}` + "```"
	obj, err := Extract(raw, "scenarios", "")
	require.NoError(t, err)
	assert.Contains(t, obj, "scenarios")
}

func TestExtractTerminalFailureWritesArtifact(t *testing.T) {
	debugDir := t.TempDir()

	_, err := Extract("``` not json at all ```", "scenarios", debugDir)
	require.Error(t, err)

	var unparseable *UnparseableError
	require.True(t, errors.As(err, &unparseable))
	assert.NotEmpty(t, unparseable.Preview)
	require.NotEmpty(t, unparseable.ArtifactPath)

	data, readErr := os.ReadFile(unparseable.ArtifactPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "not json at all")

	entries, readErr := os.ReadDir(debugDir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(debugDir, entries[0].Name()), unparseable.ArtifactPath)
}

func TestExtractNoArtifactWithoutDebugDir(t *testing.T) {
	_, err := Extract("plain prose, nothing structured", "scenarios", "")
	require.Error(t, err)

	var unparseable *UnparseableError
	require.True(t, errors.As(err, &unparseable))
	assert.Empty(t, unparseable.ArtifactPath)
}

func TestExtractRoundTrip(t *testing.T) {
	obj, err := Extract("```json\n"+validObject+"\n```", "scenarios", "")
	require.NoError(t, err)

	serialized, err := json.Marshal(obj)
	require.NoError(t, err)

	again, err := Extract(string(serialized), "scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, obj, again)
}

func TestPreviewTruncatesLongInput(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	p := preview(string(long))
	assert.Less(t, len(p), 1200)
}
