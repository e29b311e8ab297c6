package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []Entry{
	{Kind: Added, Path: "b", Value: json.RawMessage(`2`)},
	{Kind: Removed, Path: "c", Value: json.RawMessage(`"x"`)},
	{Kind: Changed, Path: "d.e", From: json.RawMessage(`true`), To: json.RawMessage(`false`)},
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatGit, ParseFormat("git"))
	assert.Equal(t, FormatSummary, ParseFormat("SUMMARY"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
	assert.Equal(t, FormatJSON, ParseFormat("yaml"))
}

func TestRenderGit(t *testing.T) {
	out, err := Render(sample, FormatGit)
	require.NoError(t, err)
	assert.Equal(t, "--- old\n+++ new\n+ b: 2\n- c: \"x\"\n- d.e: true\n+ d.e: false\n", out)
}

func TestRenderPlain(t *testing.T) {
	out, err := Render(sample, FormatPlain)
	require.NoError(t, err)
	assert.Equal(t, "Added b: 2\nRemoved c: \"x\"\nChanged d.e: true -> false\n", out)

	out, err = Render(nil, FormatPlain)
	require.NoError(t, err)
	assert.Equal(t, "No differences\n", out)
}

func TestRenderCompact(t *testing.T) {
	out, err := Render(sample, FormatCompact)
	require.NoError(t, err)
	assert.Equal(t, `+b=2 -c="x" ~d.e=true->false`, out)
}

func TestRenderSummary(t *testing.T) {
	out, err := Render(sample[:2], FormatSummary)
	require.NoError(t, err)
	assert.Equal(t, "Added: 1, Removed: 1, Changed: 0", out)

	out, err = Render(nil, FormatSummary)
	require.NoError(t, err)
	assert.Equal(t, "Added: 0, Removed: 0, Changed: 0", out)
}

func TestRenderJSON(t *testing.T) {
	out, err := Render(sample, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"added","path":"b","value":2},
		{"type":"removed","path":"c","value":"x"},
		{"type":"changed","path":"d.e","from":true,"to":false}
	]`, out)

	out, err = Render(nil, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
