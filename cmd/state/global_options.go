package state

import "path/filepath"

const defaultConfigFileName = "config.json"

// GlobalOptions contains global config values that apply for all portalshell sub-commands.
type GlobalOptions struct {
	ConfigFilePath string
	NoColor        bool
	LogOutput      string
	LogFormat      string
	// CommandLog is a regexp selecting the traffic categories ("ws:recv",
	// "shell:send", ...) traced at debug level. Empty traces all of them.
	CommandLog string
	Verbose    bool
}

// GetDefaultGlobalOptions returns the default global flags.
func GetDefaultGlobalOptions(confDir string) GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: filepath.Join(confDir, "portalshell", defaultConfigFileName),
		LogOutput:      "stderr",
	}
}

func consolidateGlobalFlags(defaultFlags GlobalOptions, env map[string]string) GlobalOptions {
	result := defaultFlags

	if val, ok := env["PORTALSHELL_CONFIG"]; ok {
		result.ConfigFilePath = val
	}
	if val, ok := env["PORTALSHELL_LOG_OUTPUT"]; ok {
		result.LogOutput = val
	}
	if val, ok := env["PORTALSHELL_LOG_FORMAT"]; ok {
		result.LogFormat = val
	}
	if val, ok := env["PORTALSHELL_COMMAND_LOG"]; ok {
		result.CommandLog = val
	}
	if env["PORTALSHELL_NO_COLOR"] != "" {
		result.NoColor = true
	}
	// Support https://no-color.org/, even an empty value should disable the
	// color output.
	if _, ok := env["NO_COLOR"]; ok {
		result.NoColor = true
	}
	return result
}
