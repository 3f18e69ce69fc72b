package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(_ *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "exit code 0 no message",
			err:      cli.Exit("", 0),
			wantCode: 0,
			wantMsg:  "",
		},
		{
			name:     "remote error",
			err:      cli.Exit("rpc: prepare({}) failed: no such table", 1),
			wantCode: 1,
			wantMsg:  "rpc: prepare({}) failed: no such table\n",
		},
		{
			name:     "transport error",
			err:      cli.Exit("connection refused", 2),
			wantCode: 2,
			wantMsg:  "connection refused\n",
		},
		{
			name:     "usage error",
			err:      cli.Exit("--db is required", 3),
			wantCode: 3,
			wantMsg:  "--db is required\n",
		},
		{
			name:     "wrapped exit coder",
			err:      errors.Join(errors.New("context"), cli.Exit("inner error", 2)),
			wantCode: 2,
			wantMsg:  "inner error\n",
		},
		{
			name:     "regular error",
			err:      errors.New("regular error"),
			wantCode: 1,
			wantMsg:  "Error: regular error\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if code := report(&buf, tt.err); code != tt.wantCode {
				t.Errorf("report() = %d, want %d", code, tt.wantCode)
			}
			if buf.String() != tt.wantMsg {
				t.Errorf("report() printed %q, want %q", buf.String(), tt.wantMsg)
			}
		})
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	want := []string{"query", "exec", "shell", "files", "version", "dump", "cat", "export"}
	for _, name := range want {
		if app.Command(name) == nil {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestNewApp_UnknownFlagIsUsageError(t *testing.T) {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}

	err := app.Run([]string{"erldb", "--no-such-flag"})
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) || exitCoder.ExitCode() != exitUsage {
		t.Errorf("Run() error = %v, want exit code %d", err, exitUsage)
	}
}
