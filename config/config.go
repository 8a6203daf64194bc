// Package config holds the service configuration. Values are consolidated
// from defaults, a JSON file, PORTALSHELL_* environment variables and CLI
// flags, each layer only overriding what it explicitly sets.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/portalshell/errext"
	"github.com/liuxd6825/portalshell/errext/exitcodes"
	"github.com/liuxd6825/portalshell/lib/types"
)

// Config is the configuration of the portal shell service.
//
//nolint:lll
type Config struct {
	Address   null.String `json:"address" envconfig:"PORTALSHELL_ADDRESS"`
	ShellPath null.String `json:"shellPath" envconfig:"PORTALSHELL_SHELL_PATH"`
	FramePath null.String `json:"framePath" envconfig:"PORTALSHELL_FRAME_PATH"`
	DebugPath null.String `json:"debugPath" envconfig:"PORTALSHELL_DEBUG_PATH"`

	// FrameCap is the maximum number of frames one shell keeps loaded.
	FrameCap          null.Int           `json:"frameCap" envconfig:"PORTALSHELL_FRAME_CAP"`
	PollInterval      types.NullDuration `json:"pollInterval" envconfig:"PORTALSHELL_POLL_INTERVAL"`
	RenderTimeout     types.NullDuration `json:"renderTimeout" envconfig:"PORTALSHELL_RENDER_TIMEOUT"`
	ActivationTimeout types.NullDuration `json:"activationTimeout" envconfig:"PORTALSHELL_ACTIVATION_TIMEOUT"`

	MessagePrefix null.String `json:"messagePrefix" envconfig:"PORTALSHELL_MESSAGE_PREFIX"`
	DefaultWorld  null.String `json:"defaultWorld" envconfig:"PORTALSHELL_DEFAULT_WORLD"`
	IndexDocument null.String `json:"indexDocument" envconfig:"PORTALSHELL_INDEX_DOCUMENT"`

	// MessageRate limits the messages per second accepted from one frame.
	MessageRate  null.Float `json:"messageRate" envconfig:"PORTALSHELL_MESSAGE_RATE"`
	MessageBurst null.Int   `json:"messageBurst" envconfig:"PORTALSHELL_MESSAGE_BURST"`

	// AllowedOrigins are the page origins allowed to open websockets. Empty
	// means same origin only.
	AllowedOrigins []string `json:"allowedOrigins" envconfig:"PORTALSHELL_ALLOWED_ORIGINS"`

	TracesOutput null.String `json:"tracesOutput" envconfig:"PORTALSHELL_TRACES_OUTPUT"`
}

// NewConfig returns a Config with every default set but marked as not
// explicitly configured.
func NewConfig() Config {
	return Config{
		Address:           null.NewString("localhost:6060", false),
		ShellPath:         null.NewString("/shell", false),
		FramePath:         null.NewString("/frame", false),
		DebugPath:         null.NewString("/debug/shells", false),
		FrameCap:          null.NewInt(4, false),
		PollInterval:      types.NewNullDuration(200*time.Millisecond, false),
		RenderTimeout:     types.NewNullDuration(200*time.Millisecond, false),
		ActivationTimeout: types.NewNullDuration(2*time.Second, false),
		MessagePrefix:     null.NewString("croquet:microverse:", false),
		DefaultWorld:      null.NewString("default", false),
		IndexDocument:     null.NewString("index.html", false),
		MessageRate:       null.NewFloat(100, false),
		MessageBurst:      null.NewInt(200, false),
		TracesOutput:      null.NewString("none", false),
	}
}

// Apply overrides c with every value that is set in cfg.
func (c Config) Apply(cfg Config) Config {
	if cfg.Address.Valid {
		c.Address = cfg.Address
	}
	if cfg.ShellPath.Valid {
		c.ShellPath = cfg.ShellPath
	}
	if cfg.FramePath.Valid {
		c.FramePath = cfg.FramePath
	}
	if cfg.DebugPath.Valid {
		c.DebugPath = cfg.DebugPath
	}
	if cfg.FrameCap.Valid {
		c.FrameCap = cfg.FrameCap
	}
	if cfg.PollInterval.Valid {
		c.PollInterval = cfg.PollInterval
	}
	if cfg.RenderTimeout.Valid {
		c.RenderTimeout = cfg.RenderTimeout
	}
	if cfg.ActivationTimeout.Valid {
		c.ActivationTimeout = cfg.ActivationTimeout
	}
	if cfg.MessagePrefix.Valid {
		c.MessagePrefix = cfg.MessagePrefix
	}
	if cfg.DefaultWorld.Valid {
		c.DefaultWorld = cfg.DefaultWorld
	}
	if cfg.IndexDocument.Valid {
		c.IndexDocument = cfg.IndexDocument
	}
	if cfg.MessageRate.Valid {
		c.MessageRate = cfg.MessageRate
	}
	if cfg.MessageBurst.Valid {
		c.MessageBurst = cfg.MessageBurst
	}
	if len(cfg.AllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.AllowedOrigins
	}
	if cfg.TracesOutput.Valid {
		c.TracesOutput = cfg.TracesOutput
	}
	return c
}

// Validate checks the consolidated configuration. All problems are reported
// at once.
func (c Config) Validate() error {
	var errs []error
	if c.FrameCap.Int64 < 2 {
		errs = append(errs, fmt.Errorf("frameCap must be at least 2, a portal needs two frames, got %d", c.FrameCap.Int64))
	}
	for name, d := range map[string]types.NullDuration{
		"pollInterval":      c.PollInterval,
		"renderTimeout":     c.RenderTimeout,
		"activationTimeout": c.ActivationTimeout,
	} {
		if d.TimeDuration() <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d.Duration))
		}
	}
	if c.MessageRate.Float64 <= 0 {
		errs = append(errs, fmt.Errorf("messageRate must be positive, got %g", c.MessageRate.Float64))
	}
	if c.MessageBurst.Int64 < 1 {
		errs = append(errs, fmt.Errorf("messageBurst must be at least 1, got %d", c.MessageBurst.Int64))
	}
	for name, p := range map[string]null.String{
		"shellPath": c.ShellPath,
		"framePath": c.FramePath,
		"debugPath": c.DebugPath,
	} {
		if !strings.HasPrefix(p.String, "/") {
			errs = append(errs, fmt.Errorf("%s must start with '/', got %q", name, p.String))
		}
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.Contains(o, "://") {
			continue
		}
		if err := types.ValidateHostnamePattern(strings.ToLower(o)); err != nil {
			errs = append(errs, fmt.Errorf("allowedOrigins: %w", err))
		}
	}
	if c.MessagePrefix.String == "" {
		errs = append(errs, errors.New("messagePrefix must not be empty"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errext.WithHint(
		errext.WithExitCodeIfNone(fmt.Errorf("invalid configuration: %w", errors.Join(errs...)), exitcodes.InvalidConfig),
		"check the config file, the PORTALSHELL_* environment variables and the flags",
	)
}

// ReadFile reads a JSON config file. A missing file yields an empty Config
// unless required is set.
func ReadFile(fsys afero.Fs, path string, required bool) (Config, error) {
	var conf Config
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return conf, nil
	}
	if err != nil {
		return conf, errext.WithExitCodeIfNone(fmt.Errorf("reading config file: %w", err), exitcodes.InvalidConfig)
	}
	if err := json.Unmarshal(data, &conf); err != nil {
		return conf, errext.WithExitCodeIfNone(
			fmt.Errorf("parsing config file %s: %w", path, err), exitcodes.InvalidConfig)
	}
	return conf, nil
}

// FromEnv reads the PORTALSHELL_* variables from env.
func FromEnv(env map[string]string) (Config, error) {
	var conf Config
	err := envconfig.Process("", &conf, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		return conf, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return conf, nil
}

// GetConsolidatedConfig combines {default config values + JSON config file +
// environment vars + CLI flags} and validates the result.
func GetConsolidatedConfig(
	fsys afero.Fs, path string, pathRequired bool, env map[string]string, flags Config,
) (Config, error) {
	result := NewConfig()

	fileConf, err := ReadFile(fsys, path, pathRequired)
	if err != nil {
		return result, err
	}
	result = result.Apply(fileConf)

	envConf, err := FromEnv(env)
	if err != nil {
		return result, err
	}
	result = result.Apply(envConf).Apply(flags)

	return result, result.Validate()
}
