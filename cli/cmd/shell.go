package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/cli/render"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/log"
	"github.com/PuffoTrillionarioGonePublic/erldb/metrics"
	"github.com/PuffoTrillionarioGonePublic/erldb/session"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

const (
	promptPrimary      = "erldb> "
	promptContinuation = "    -> "
	// maxLineSize bounds one input line.
	maxLineSize = 1024 * 1024
)

const shellHelp = `Statements end with ';' and may span lines.
  .use FILE [BUCKET]   open FILE, closing the current database
  .files [BUCKET]      list database files
  .version             show client and server versions
  .help                show this help
  .exit, .quit, \q     leave the shell`

// ShellCommand returns the shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive SQL shell",
		Flags: []cli.Flag{
			FormatFlag,
			NoColorFlag,
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file to open on start",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :9464)",
			},
		},
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}

	env, err := newRuntimeEnv(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(env.Close)

	if addr := c.String("metrics-addr"); addr != "" {
		srv, bound, err := serveMetrics(addr, env.metrics, env.logger)
		if err != nil {
			return usageError("metrics server: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		fmt.Fprintf(c.App.ErrWriter, "metrics on http://%s/metrics\n", bound)
	}

	sh := &shell{
		sess:     env.session(),
		renderer: r,
		bucket:   env.bucket,
		out:      c.App.Writer,
		errOut:   c.App.ErrWriter,
	}

	ctx := c.Context
	if file := c.String("db"); file != "" {
		if err := sh.sess.Use(ctx, file, ""); err != nil {
			return exitError(err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	return exitError(sh.run(ctx, c.App.Reader, sigCh))
}

// shell is a line-oriented REPL over one Session.
type shell struct {
	sess     *session.Session
	renderer *render.Renderer
	bucket   string
	out      io.Writer
	errOut   io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
}

// run reads statements from in until EOF or an exit command, then closes
// the session. A signal on interrupt cancels the statement in flight.
func (s *shell) run(ctx context.Context, in io.Reader, interrupt <-chan os.Signal) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-interrupt:
				s.mu.Lock()
				if s.cancel != nil {
					s.cancel()
				}
				s.mu.Unlock()
			case <-done:
				return
			}
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, bufio.MaxScanTokenSize), maxLineSize)

	var buf strings.Builder
	fmt.Fprint(s.errOut, promptPrimary)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if buf.Len() == 0 && (strings.HasPrefix(trimmed, ".") || trimmed == `\q`) {
			if s.command(ctx, trimmed) {
				break
			}
			fmt.Fprint(s.errOut, promptPrimary)
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		stmt := strings.TrimSpace(buf.String())
		if stmt == "" {
			buf.Reset()
			fmt.Fprint(s.errOut, promptPrimary)
			continue
		}
		if !strings.HasSuffix(stmt, ";") {
			fmt.Fprint(s.errOut, promptContinuation)
			continue
		}

		s.execute(ctx, stmt)
		buf.Reset()
		fmt.Fprint(s.errOut, promptPrimary)
	}
	fmt.Fprintln(s.errOut)

	return iox.CloseJoin(ctx, scanner.Err(), s.sess)
}

// command handles a dot command. Returns true when the shell should exit.
func (s *shell) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".exit", ".quit", `\q`:
		return true
	case ".help":
		fmt.Fprintln(s.out, shellHelp)
	case ".use":
		if len(fields) < 2 || len(fields) > 3 {
			fmt.Fprintln(s.errOut, "usage: .use FILE [BUCKET]")
			return false
		}
		bucket := ""
		if len(fields) == 3 {
			bucket = fields[2]
		}
		s.withCancel(ctx, func(ctx context.Context) error {
			return s.sess.Use(ctx, fields[1], bucket)
		})
	case ".files":
		bucket := s.bucket
		if len(fields) > 1 {
			bucket = fields[1]
		}
		s.withCancel(ctx, func(ctx context.Context) error {
			files, err := s.sess.Files(ctx, bucket)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(s.out, f)
			}
			return nil
		})
	case ".version":
		s.withCancel(ctx, func(ctx context.Context) error {
			v, err := s.sess.ServerVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "client %s, server %s\n", types.Version, v)
			return nil
		})
	default:
		fmt.Fprintf(s.errOut, "unknown command %s (try .help)\n", fields[0])
	}
	return false
}

// execute runs one statement and renders its result.
func (s *shell) execute(ctx context.Context, stmt string) {
	s.withCancel(ctx, func(ctx context.Context) error {
		res, err := s.sess.Query(ctx, stmt)
		if err != nil {
			return err
		}
		return s.renderer.Render(res)
	})
}

// withCancel runs fn with a context the interrupt signal can cancel and
// prints any error.
func (s *shell) withCancel(ctx context.Context, fn func(context.Context) error) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	err := fn(ctx)

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
	cancel()

	if err != nil {
		fmt.Fprintf(s.errOut, "ERROR: %v\n", err)
	}
}

// serveMetrics exposes the collector on addr/metrics.
// Returns the server and the bound address.
func serveMetrics(addr string, collector *metrics.Collector, logger *log.Logger) (*http.Server, net.Addr, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewPrometheusCollector(collector)); err != nil {
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", map[string]any{"error": err.Error()})
		}
	}()
	return srv, ln.Addr(), nil
}
