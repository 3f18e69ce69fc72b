// Package cmd provides CLI commands for the erldb binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
)

// Exit codes.
const (
	exitSuccess        = 0
	exitQueryError     = 1
	exitTransportError = 2
	exitUsageError     = 3
)

// Global flags shared by every command.
var (
	// ConfigFlag points at an erldb.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./erldb.yaml if present)",
		EnvVars: []string{"ERLDB_CONFIG"},
	}

	// EndpointFlag overrides the node base URL.
	EndpointFlag = &cli.StringFlag{
		Name:    "endpoint",
		Aliases: []string{"e"},
		Usage:   "erldb node base URL (default: " + rpc.DefaultEndpoint + ")",
		EnvVars: []string{"ERLDB_ENDPOINT"},
	}

	// BucketFlag selects the storage bucket.
	BucketFlag = &cli.StringFlag{
		Name:    "bucket",
		Aliases: []string{"b"},
		Usage:   "Storage bucket holding the database file",
	}

	// TimeoutFlag bounds every remote call.
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Per-call timeout",
		Value: rpc.DefaultTimeout,
	}

	// LogLevelFlag sets the minimum log level written to stderr.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "warn",
	}
)

// Shared flags for commands that render output.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for result commands (query, cat).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Browse the result in an interactive TUI (query, cat only)",
	}

	// DBFlag names the database file within the bucket.
	DBFlag = &cli.StringFlag{
		Name:    "db",
		Aliases: []string{"d"},
		Usage:   "Database file within the bucket (required)",
	}

)

// paramFlag returns a fresh repeatable --param flag.
func paramFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "param",
		Aliases: []string{"p"},
		Usage:   "Positional parameter, repeatable: null, 42, 1.5, x'0aff', 'text' or bare text",
	}
}

// GlobalFlags returns the application-level flags.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		EndpointFlag,
		BucketFlag,
		TimeoutFlag,
		LogLevelFlag,
	}
}

// OutputFlags returns the shared flags for all rendering commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// StatementFlags returns output flags plus --db and --param.
func StatementFlags() []cli.Flag {
	return append(OutputFlags(), DBFlag, paramFlag())
}

// Commands returns every erldb command. commit is reported by version.
func Commands(commit string) []*cli.Command {
	cmds := []*cli.Command{
		QueryCommand(),
		ExecCommand(),
		ShellCommand(),
		FilesCommand(),
		VersionCommand(commit),
		DumpCommand(),
		CatCommand(),
		ExportCommand(),
	}
	for _, c := range cmds {
		setUsageHandler(c)
	}
	return cmds
}

func setUsageHandler(c *cli.Command) {
	c.OnUsageError = onUsageError
	for _, sub := range c.Subcommands {
		setUsageHandler(sub)
	}
}

// onUsageError maps flag parsing failures to the usage exit code.
func onUsageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(err.Error(), exitUsageError)
}

// durationOr returns d when positive, else def.
func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
