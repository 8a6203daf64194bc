package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/portalshell/cmd/state"
	"github.com/liuxd6825/portalshell/errext"
	"github.com/liuxd6825/portalshell/errext/exitcodes"
	"github.com/liuxd6825/portalshell/portalurl"
)

// cmdURL converts between portal, frame and shell URLs the way a shell
// loaded at --location would.
type cmdURL struct {
	gs            *state.GlobalState
	location      string
	defaultWorld  string
	indexDocument string
	portalID      string
}

func (c *cmdURL) codec() (*portalurl.Codec, error) {
	codec, err := portalurl.NewCodec(c.location, c.defaultWorld, c.indexDocument)
	if err != nil {
		return nil, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return codec, nil
}

// convert returns a RunE printing the result of f for the single argument.
func (c *cmdURL) convert(f func(codec *portalurl.Codec, arg string) (string, error)) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		codec, err := c.codec()
		if err != nil {
			return err
		}
		out, err := f(codec, args[0])
		if err != nil {
			return err
		}
		printToStdout(c.gs, out+"\n")
		return nil
	}
}

func (c *cmdURL) match(_ *cobra.Command, args []string) error {
	codec, err := c.codec()
	if err != nil {
		return err
	}
	printToStdout(c.gs, strconv.FormatBool(codec.Match(args[0], args[1]))+"\n")
	return nil
}

func getCmdURL(gs *state.GlobalState) *cobra.Command {
	c := &cmdURL{gs: gs}

	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Convert portal URLs",
		Long: `Convert between the URL forms a shell works with: portal URLs, frame URLs
carrying a portal id and same-origin shell URLs for cross-origin portals.`,
		Example: getExampleText(gs, `
  $ {{.}} url frame --location https://shell.example/ '?world=w1' --portal-id p1
  https://shell.example/?world=w1&portal=p1

  $ {{.}} url shell --location https://shell.example/ https://other.example/w/?world=w2
  https://shell.example/?world=w2&canonical=https%3A%2F%2Fother.example%2Fw%2F`[1:]),
	}
	flags := urlCmd.PersistentFlags()
	flags.StringVar(&c.location, "location", "http://localhost:6060/", "address of the shell page")
	flags.StringVar(&c.defaultWorld, "default-world", portalurl.DefaultWorld, "world name left out of portal URLs")
	flags.StringVar(&c.indexDocument, "index-document", portalurl.IndexDocument,
		"document name stripped from portal URLs")

	frameCmd := &cobra.Command{
		Use:   "frame <portal-url>",
		Short: "Print the frame URL loading a portal URL",
		Args:  exactArgsWithMsg(1, "arg should be a portal URL"),
		RunE: c.convert(func(codec *portalurl.Codec, arg string) (string, error) {
			return codec.FrameURL(arg, c.portalID)
		}),
	}
	frameCmd.Flags().StringVar(&c.portalID, "portal-id", "", "portal id of the frame")

	urlCmd.AddCommand(
		frameCmd,
		&cobra.Command{
			Use:   "portal <frame-url>",
			Short: "Print the portal URL shown by a frame",
			Args:  exactArgsWithMsg(1, "arg should be a frame URL"),
			RunE:  c.convert((*portalurl.Codec).PortalURL),
		},
		&cobra.Command{
			Use:   "shell <portal-url>",
			Short: "Print the address bar entry of a portal URL",
			Args:  exactArgsWithMsg(1, "arg should be a portal URL"),
			RunE:  c.convert((*portalurl.Codec).ShellURL),
		},
		&cobra.Command{
			Use:   "canonical <shell-url>",
			Short: "Print the real destination of an address bar entry",
			Args:  exactArgsWithMsg(1, "arg should be a shell URL"),
			RunE:  c.convert((*portalurl.Codec).Canonical),
		},
		&cobra.Command{
			Use:   "title <url>",
			Short: "Print the document title shown for a URL",
			Args:  exactArgsWithMsg(1, "arg should be a URL"),
			RunE: c.convert(func(codec *portalurl.Codec, arg string) (string, error) {
				return codec.Title(arg), nil
			}),
		},
		&cobra.Command{
			Use:   "match <frame-src> <portal-url>",
			Short: "Report whether a frame shows a portal URL",
			Args:  exactArgsWithMsg(2, "args should be a frame source and a portal URL"),
			RunE:  c.match,
		},
	)
	return urlCmd
}
