package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/render"
	"github.com/PuffoTrillionarioGonePublic/erldb/cli/tui"
	"github.com/PuffoTrillionarioGonePublic/erldb/frame"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/session"
)

// DumpResponse summarizes a written dump file.
type DumpResponse struct {
	QueryID string `json:"query_id" yaml:"query_id"`
	Path    string `json:"path" yaml:"path"`
	Rows    int    `json:"rows" yaml:"rows"`
	Changes int64  `json:"changes" yaml:"changes"`
}

// DumpCommand returns the dump command.
// Runs a query and writes its result as a frame stream.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Run a query and write the result to a dump file",
		ArgsUsage: "SQL",
		Flags: append(StatementFlags(), &cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Dump file path (required)",
		}),
		Action: dumpAction,
	}
}

// CatCommand returns the cat command.
// Reads a dump file offline and renders it like a query result.
func CatCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Print the result stored in a dump file",
		ArgsUsage: "PATH",
		Flags:     OutputFlags(),
		Action:    catAction,
	}
}

func dumpAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	if c.Bool("tui") {
		return usageError("--tui is not supported for dump command")
	}
	out := c.String("out")
	if out == "" {
		return usageError("--out is required")
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

	h := frame.Header{
		QueryID:   res.QueryID,
		Endpoint:  env.client.Endpoint(),
		Bucket:    env.bucket,
		File:      req.file,
		Query:     req.query,
		Columns:   res.Columns,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := writeDumpFile(out, h, res); err != nil {
		return cli.Exit(err.Error(), exitQueryError)
	}
	env.logger.Info("dump written", map[string]any{
		"query_id": res.QueryID,
		"path":     out,
		"rows":     len(res.Rows),
	})

	return r.Render(DumpResponse{
		QueryID: res.QueryID,
		Path:    out,
		Rows:    len(res.Rows),
		Changes: res.Changes,
	})
}

// writeDumpFile writes path.tmp and renames it into place.
func writeDumpFile(path string, h frame.Header, res *session.Result) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}
	if err := frame.WriteDump(f, h, res.Rows, res.Changes); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write dump: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write dump: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write dump: %w", err)
	}
	return nil
}

func catAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	if c.NArg() != 1 {
		return usageError("cat requires exactly one PATH argument")
	}

	d, err := readDumpFile(c.Args().First(), c.App.Reader)
	if err != nil {
		return cli.Exit(err.Error(), exitQueryError)
	}

	res := &session.Result{
		QueryID: d.Header.QueryID,
		Columns: d.Header.Columns,
		Rows:    d.Rows,
		Changes: d.Trailer.Changes,
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewDumpResult, res)
	}
	return r.Render(res)
}

// readDumpFile reads path, or stdin when path is "-".
func readDumpFile(path string, stdin io.Reader) (*frame.Dump, error) {
	if path == "-" {
		return frame.ReadDump(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	defer iox.DiscardClose(f)
	return frame.ReadDump(f)
}
