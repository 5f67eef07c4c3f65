package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordCommandDeclaresExpectedFlags(t *testing.T) {
	cmd := NewRecordCommand()

	for _, name := range []string{
		"fps", "res", "audio", "auto-record", "output", "no-auth",
		"quality", "ring-capacity", "frame-buffers", "write-buffer-mb",
		"mirror-webm", "preview-addr", "verbose", "log-format", "stats",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected --%s to be defined", name)
	}
}

func TestNewRecordCommandDefaultsMatchConfigDefaults(t *testing.T) {
	cmd := NewRecordCommand()

	fpsFlag := cmd.Flags().Lookup("fps")
	require.NotNil(t, fpsFlag)
	assert.Equal(t, "30", fpsFlag.DefValue)

	resFlag := cmd.Flags().Lookup("res")
	require.NotNil(t, resFlag)
	assert.Equal(t, "720p", resFlag.DefValue)
}

func TestRootCommandRegistersRecordSubcommand(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Use == "record" {
			found = true
		}
	}
	assert.True(t, found, "expected rootCmd to register the record subcommand")
}
