package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/render"
	"github.com/PuffoTrillionarioGonePublic/erldb/cli/tui"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/session"
)

// QueryCommand returns the query command.
// Runs one statement in a scoped connection and renders its rows.
func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a statement and print its result rows",
		ArgsUsage: "SQL",
		Flags:     StatementFlags(),
		Action:    queryAction,
	}
}

// ExecCommand returns the exec command.
// Runs a statement through execute, which returns no rows.
func ExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Execute a statement and print the changes count",
		ArgsUsage: "SQL",
		Flags:     StatementFlags(),
		Action:    execAction,
	}
}

// statementRequest holds the validated inputs of a statement command.
type statementRequest struct {
	file   string
	query  string
	params []any
}

func parseStatementRequest(c *cli.Context) (*statementRequest, error) {
	if c.NArg() != 1 {
		return nil, usageError("%s requires exactly one SQL argument", c.Command.Name)
	}
	file := c.String("db")
	if file == "" {
		return nil, usageError("--db is required")
	}
	params, err := ParseParams(c.StringSlice("param"))
	if err != nil {
		return nil, usageError("%v", err)
	}
	return &statementRequest{file: file, query: c.Args().First(), params: params}, nil
}

func queryAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	req, err := parseStatementRequest(c)
	if err != nil {
		return err
	}

	env, err := newRuntimeEnv(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(env.Close)

	ctx, stop := commandContext(c)
	defer stop()

	res, err := runScoped(ctx, env.session(), req, func(ctx context.Context, s *session.Session) (*session.Result, error) {
		return s.Query(ctx, req.query, req.params...)
	})
	if err != nil {
		return exitError(err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewQueryResult, res)
	}
	return r.Render(res)
}

func execAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	if c.Bool("tui") {
		return usageError("--tui is not supported for exec command")
	}
	req, err := parseStatementRequest(c)
	if err != nil {
		return err
	}

	env, err := newRuntimeEnv(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(env.Close)

	ctx, stop := commandContext(c)
	defer stop()

	res, err := runScoped(ctx, env.session(), req, func(ctx context.Context, s *session.Session) (*session.Result, error) {
		return s.Exec(ctx, req.query, req.params...)
	})
	if err != nil {
		return exitError(err)
	}
	return r.Render(res)
}

// runScoped opens req.file, runs fn and closes the connection.
// A close failure is reported even when fn succeeded.
func runScoped(ctx context.Context, s *session.Session, req *statementRequest, fn func(context.Context, *session.Session) (*session.Result, error)) (res *session.Result, err error) {
	if err := s.Use(ctx, req.file, ""); err != nil {
		return nil, err
	}
	defer func() {
		if err = iox.CloseJoin(ctx, err, s); err != nil {
			res = nil
		}
	}()
	return fn(ctx, s)
}
