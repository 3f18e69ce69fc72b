package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/config"
	"github.com/PuffoTrillionarioGonePublic/erldb/cli/render"
	"github.com/PuffoTrillionarioGonePublic/erldb/export"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/session"
)

// ExportResponse summarizes a written export.
type ExportResponse struct {
	QueryID string `json:"query_id" yaml:"query_id"`
	Dataset string `json:"dataset" yaml:"dataset"`
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
	Rows    int    `json:"rows" yaml:"rows"`
}

// exportFlags are the storage flags shared by export subcommands.
// Unset flags fall back to the config file's export section.
func exportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "dataset",
			Usage: "Lode dataset id (default: " + export.DefaultDataset + ")",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// ExportCommand returns the export command.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Store query results in a Lode dataset and read them back",
		Subcommands: []*cli.Command{
			{
				Name:      "write",
				Usage:     "Run a query and export its result",
				ArgsUsage: "SQL",
				Flags:     append(StatementFlags(), exportFlags()...),
				Action:    exportWriteAction,
			},
			{
				Name:      "read",
				Usage:     "Print an exported result by query id",
				ArgsUsage: "QUERY_ID",
				Flags:     append(OutputFlags(), exportFlags()...),
				Action:    exportReadAction,
			},
		},
	}
}

// exportTarget is the resolved storage location.
type exportTarget struct {
	dataset string
	backend string
	path    string
	s3      export.S3Config
}

func resolveExportTarget(c *cli.Context, ec config.ExportConfig) (*exportTarget, error) {
	t := &exportTarget{
		dataset: ec.Dataset,
		backend: ec.Backend,
		path:    ec.Path,
	}
	if c.IsSet("dataset") {
		t.dataset = c.String("dataset")
	}
	if c.IsSet("backend") {
		t.backend = c.String("backend")
	}
	if c.IsSet("path") {
		t.path = c.String("path")
	}
	if t.dataset == "" {
		t.dataset = export.DefaultDataset
	}
	if t.backend == "" {
		t.backend = config.BackendFS
	}
	if t.path == "" {
		return nil, errors.New("export path is required (--path or export.path)")
	}

	switch t.backend {
	case config.BackendFS:
	case config.BackendS3:
		bucket, prefix := export.ParseS3Path(t.path)
		t.s3 = export.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       ec.Region,
			Endpoint:     ec.Endpoint,
			UsePathStyle: ec.S3PathStyle,
		}
		if c.IsSet("s3-region") {
			t.s3.Region = c.String("s3-region")
		}
		if c.IsSet("s3-endpoint") {
			t.s3.Endpoint = c.String("s3-endpoint")
		}
		if c.IsSet("s3-path-style") {
			t.s3.UsePathStyle = c.Bool("s3-path-style")
		}
		if err := t.s3.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown export backend %q (must be fs or s3)", t.backend)
	}
	return t, nil
}

func (t *exportTarget) open(ctx context.Context) (*export.Client, error) {
	if t.backend == config.BackendS3 {
		return export.NewS3Client(ctx, t.dataset, t.s3)
	}
	return export.NewFSClient(t.dataset, t.path)
}

func exportWriteAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	if c.Bool("tui") {
		return usageError("--tui is not supported for export command")
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

	target, err := resolveExportTarget(c, env.cfg.Export)
	if err != nil {
		return usageError("%v", err)
	}

	ctx, stop := commandContext(c)
	defer stop()

	client, err := target.open(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitQueryError)
	}
	defer iox.DiscardErr(client.Close)

	res, err := runScoped(ctx, env.session(), req, func(ctx context.Context, s *session.Session) (*session.Result, error) {
		return s.Query(ctx, req.query, req.params...)
	})
	if err != nil {
		return exitError(err)
	}

	q := export.Query{
		QueryID:   res.QueryID,
		SessionID: env.meta.SessionID,
		Endpoint:  env.client.Endpoint(),
		Bucket:    env.bucket,
		File:      req.file,
		Query:     req.query,
		Columns:   res.Columns,
		Changes:   res.Changes,
		At:        time.Now(),
	}
	if err := client.Write(ctx, q, res.Rows); err != nil {
		return cli.Exit(err.Error(), exitQueryError)
	}
	env.logger.Info("result exported", map[string]any{
		"query_id": res.QueryID,
		"dataset":  target.dataset,
		"backend":  target.backend,
		"rows":     len(res.Rows),
	})

	return r.Render(ExportResponse{
		QueryID: res.QueryID,
		Dataset: target.dataset,
		Backend: target.backend,
		Path:    target.path,
		Rows:    len(res.Rows),
	})
}

func exportReadAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	if c.Bool("tui") {
		return usageError("--tui is not supported for export command")
	}
	if c.NArg() != 1 {
		return usageError("export read requires exactly one QUERY_ID argument")
	}

	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return usageError("%v", err)
	}
	target, err := resolveExportTarget(c, cfg.Export)
	if err != nil {
		return usageError("%v", err)
	}

	ctx, stop := commandContext(c)
	defer stop()

	client, err := target.open(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitQueryError)
	}
	defer iox.DiscardErr(client.Close)

	exp, err := client.ReadRows(ctx, c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitQueryError)
	}

	return r.Render(&session.Result{
		QueryID: exp.Query.QueryID,
		Columns: exp.Query.Columns,
		Rows:    exp.Rows,
		Changes: exp.Query.Changes,
	})
}
