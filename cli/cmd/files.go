package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/render"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
)

// FileEntry is one row of the files command output.
type FileEntry struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	File   string `json:"file" yaml:"file"`
}

// FilesCommand returns the files command.
func FilesCommand() *cli.Command {
	return &cli.Command{
		Name:   "files",
		Usage:  "List database files in a bucket",
		Flags:  OutputFlags(),
		Action: filesAction,
	}
}

func filesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	if c.Bool("tui") {
		return usageError("--tui is not supported for files command")
	}

	env, err := newRuntimeEnv(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(env.Close)

	ctx, stop := commandContext(c)
	defer stop()

	files, err := env.session().Files(ctx, env.bucket)
	if err != nil {
		return exitError(err)
	}

	entries := make([]FileEntry, len(files))
	for i, f := range files {
		entries[i] = FileEntry{Bucket: env.bucket, File: f}
	}
	return r.Render(entries)
}
