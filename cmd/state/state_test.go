package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEnvMap(t *testing.T) {
	t.Parallel()

	env := BuildEnvMap([]string{"A=1", "B=x=y", "EMPTY=", "BARE"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": "", "BARE": ""}, env)
}

func TestConsolidateGlobalFlags(t *testing.T) {
	t.Parallel()

	defaults := GetDefaultGlobalOptions("/home/u/.config")
	assert.Equal(t, "/home/u/.config/portalshell/config.json", defaults.ConfigFilePath)
	assert.Equal(t, "stderr", defaults.LogOutput)

	flags := consolidateGlobalFlags(defaults, map[string]string{
		"PORTALSHELL_CONFIG":      "/etc/portalshell.json",
		"PORTALSHELL_LOG_OUTPUT":  "none",
		"PORTALSHELL_LOG_FORMAT":  "json",
		"PORTALSHELL_COMMAND_LOG": "^ws:",
	})
	assert.Equal(t, "/etc/portalshell.json", flags.ConfigFilePath)
	assert.Equal(t, "none", flags.LogOutput)
	assert.Equal(t, "json", flags.LogFormat)
	assert.Equal(t, "^ws:", flags.CommandLog)
	assert.False(t, flags.NoColor)

	assert.True(t, consolidateGlobalFlags(defaults, map[string]string{"NO_COLOR": ""}).NoColor)
	assert.False(t, consolidateGlobalFlags(defaults, map[string]string{"PORTALSHELL_NO_COLOR": ""}).NoColor)
}
