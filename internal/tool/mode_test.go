package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrefixRecognisesAllModes(t *testing.T) {
	cases := map[string]Mode{
		"!@ ps aux":        ModeValidated,
		"!# kill -9 1":     ModeDangerous,
		"!$ kill -9 1":     ModePrivileged,
		"!& sleep 10":      ModeBackground,
		"!~ whoami":        ModeSandboxed,
	}
	for input, want := range cases {
		mode, rest, err := ParsePrefix(input)
		require.NoError(t, err)
		assert.Equal(t, want, mode)
		assert.NotContains(t, rest, "!@")
	}
}

func TestParsePrefixDefaultsToValidated(t *testing.T) {
	mode, rest, err := ParsePrefix("df -h")
	require.NoError(t, err)
	assert.Equal(t, ModeValidated, mode)
	assert.Equal(t, "df -h", rest)
}

func TestParsePrefixRejectsUnknownPunctPrefix(t *testing.T) {
	_, _, err := ParsePrefix("!% df -h")
	assert.Error(t, err)
}
