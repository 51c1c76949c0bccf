package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellEscapeLeavesSafeStringsAlone(t *testing.T) {
	assert.Equal(t, "my-file_1.txt", shellEscape("my-file_1.txt"))
}

func TestShellEscapeQuotesUnsafeStrings(t *testing.T) {
	assert.Equal(t, "'hello world'", shellEscape("hello world"))
}

func TestShellEscapeEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, `'it'"'"'s'`, shellEscape("it's"))
}

func TestRenderCommandSubstitutesAndEscapes(t *testing.T) {
	args := Args{"name": json.RawMessage(`"world peace"`)}
	out, err := renderCommand("echo hello {name}", args)
	require.NoError(t, err)
	assert.Equal(t, "echo hello 'world peace'", out)
}

func TestRenderCommandNumericAndBoolCanonicalForm(t *testing.T) {
	args := Args{
		"pid":   json.RawMessage(`1234`),
		"force": json.RawMessage(`true`),
	}
	out, err := renderCommand("kill -9 {pid} --force={force}", args)
	require.NoError(t, err)
	assert.Equal(t, "kill -9 1234 --force=true", out)
}

func TestRenderCommandMissingPlaceholderFails(t *testing.T) {
	_, err := renderCommand("echo {missing}", Args{})
	assert.Error(t, err)
}

func TestRenderCommandLeavesLiteralTextVerbatim(t *testing.T) {
	out, err := renderCommand("ls -la /var/log", Args{})
	require.NoError(t, err)
	assert.Equal(t, "ls -la /var/log", out)
}
