package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/render"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Server is the node's storage engine version (lib_version).
	Server string `json:"server,omitempty" yaml:"server,omitempty"`
}

// VersionCommand returns the version command.
// With --client-only it must not contact the node.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show client and server version information",
		Flags: append(OutputFlags(), &cli.BoolFlag{
			Name:  "client-only",
			Usage: "Skip the lib_version call",
		}),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return usageError("%v", err)
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return usageError("--tui is not supported for version command")
		}

		resp := VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Protocol: types.ProtocolName,
		}
		if c.Bool("client-only") {
			return r.Render(resp)
		}

		env, err := newRuntimeEnv(c)
		if err != nil {
			return err
		}
		defer iox.DiscardErr(env.Close)

		ctx, stop := commandContext(c)
		defer stop()

		resp.Endpoint = env.client.Endpoint()
		resp.Server, err = env.session().ServerVersion(ctx)
		if err != nil {
			return exitError(err)
		}
		return r.Render(resp)
	}
}
