package cmd

import (
	"context"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liuxd6825/portalshell/cmd/state"
	"github.com/liuxd6825/portalshell/config"
	"github.com/liuxd6825/portalshell/errext"
	"github.com/liuxd6825/portalshell/errext/exitcodes"
	"github.com/liuxd6825/portalshell/internal/trace"
	"github.com/liuxd6825/portalshell/log"
	"github.com/liuxd6825/portalshell/server"
)

// cmdServe handles the `portalshell serve` sub-command
type cmdServe struct {
	gs *state.GlobalState
}

func (c *cmdServe) run(cmd *cobra.Command, _ []string) (err error) {
	gs := c.gs
	conf, err := config.GetConsolidatedConfig(
		gs.FS, gs.Flags.ConfigFilePath, gs.Flags.ConfigFilePath != gs.DefaultFlags.ConfigFilePath,
		gs.Env, getServeConfig(cmd.Flags()),
	)
	if err != nil {
		return err
	}

	var filter *regexp.Regexp
	if gs.Flags.CommandLog != "" {
		if filter, err = regexp.Compile(gs.Flags.CommandLog); err != nil {
			return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
		}
	}

	tp, err := trace.TracerProviderFromConfigLine(gs.Ctx, conf.TracesOutput.String)
	if err != nil {
		return errext.WithHint(
			errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig),
			"traces output should look like otel=127.0.0.1:4317,proto=grpc",
		)
	}
	defer func() {
		if serr := tp.Shutdown(context.Background()); serr != nil {
			gs.Logger.WithError(serr).Error("Failed to shut down the tracer provider")
		}
	}()

	ctx, cancel := context.WithCancel(gs.Ctx)
	defer cancel()
	stopSignalHandling := handleAbortSignals(gs, func(sig os.Signal) {
		gs.Logger.WithField("sig", sig).Debug("Stopping server in response to signal...")
		cancel()
	}, func(sig os.Signal) {
		gs.Logger.WithField("sig", sig).Error("Aborting server in response to signal, websockets may not be closed properly")
	})
	defer stopSignalHandling()

	gs.Logger.WithFields(logrus.Fields{
		"frameCap":      conf.FrameCap.Int64,
		"messagePrefix": conf.MessagePrefix.String,
	}).Debug("Starting server")

	srv := server.New(server.Options{
		Config:     conf,
		Logger:     gs.Logger,
		CommandLog: log.New(gs.Logger, filter),
		Tracer:     tp.Tracer("portalshell"),
	})
	return srv.ListenAndServe(ctx)
}

func serveFlagSet() *pflag.FlagSet {
	def := config.NewConfig()
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.StringP("address", "a", def.Address.String, "address the server listens on")
	flags.Int64("frame-cap", def.FrameCap.Int64, "maximum number of frames one shell keeps loaded")
	flags.Duration("poll-interval", def.PollInterval.TimeDuration(),
		"interval of frame-type announcements until a frame acknowledges its role")
	flags.Duration("render-timeout", def.RenderTimeout.TimeDuration(),
		"how long the primary waits for portal frames to render")
	flags.Duration("activation-timeout", def.ActivationTimeout.TimeDuration(),
		"how long the new primary stays frozen waiting for acknowledgements")
	flags.String("message-prefix", def.MessagePrefix.String, "namespace of the frame messages")
	flags.String("default-world", def.DefaultWorld.String, "world name left out of portal URLs")
	flags.String("index-document", def.IndexDocument.String, "document name stripped from portal URLs")
	flags.Float64("message-rate", def.MessageRate.Float64, "messages per second accepted from one connection")
	flags.Int64("message-burst", def.MessageBurst.Int64, "burst of messages accepted from one connection")
	flags.StringSlice("allowed-origin", nil, "page origin allowed to connect, '*' for any; same origin only by default")
	flags.String("traces-output", def.TracesOutput.String,
		"set the output for hand-off traces, possible values are none,otel[=host:port]")
	return flags
}

// getServeConfig returns the config layer of the flags set explicitly.
func getServeConfig(flags *pflag.FlagSet) config.Config {
	conf := config.Config{
		Address:           getNullString(flags, "address"),
		FrameCap:          getNullInt64(flags, "frame-cap"),
		PollInterval:      getNullDuration(flags, "poll-interval"),
		RenderTimeout:     getNullDuration(flags, "render-timeout"),
		ActivationTimeout: getNullDuration(flags, "activation-timeout"),
		MessagePrefix:     getNullString(flags, "message-prefix"),
		DefaultWorld:      getNullString(flags, "default-world"),
		IndexDocument:     getNullString(flags, "index-document"),
		MessageRate:       getNullFloat64(flags, "message-rate"),
		MessageBurst:      getNullInt64(flags, "message-burst"),
		TracesOutput:      getNullString(flags, "traces-output"),
	}
	if flags.Changed("allowed-origin") {
		origins, err := flags.GetStringSlice("allowed-origin")
		must(err)
		conf.AllowedOrigins = origins
	}
	return conf
}

func getCmdServe(gs *state.GlobalState) *cobra.Command {
	c := &cmdServe{gs: gs}

	exampleText := getExampleText(gs, `
  # Serve shells on the default address
  $ {{.}} serve

  # Listen on all interfaces and accept pages from any origin
  $ {{.}} serve -a :6060 --allowed-origin '*'

  # Export hand-off traces to a local collector
  $ {{.}} serve --traces-output otel=127.0.0.1:4317`[1:])

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal shell server",
		Long: `Start the portal shell server.

Every host page connecting to the shell endpoint gets its own shell. Content
frames connect to the frame endpoint with their portal id and are routed to
the shell that created them.`,
		Example: exampleText,
		Args:    cobra.NoArgs,
		RunE:    c.run,
	}
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().AddFlagSet(serveFlagSet())

	return serveCmd
}
