package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/driver"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/types"
)

// runApp runs the worker CLI without exiting the test process and
// returns its exit code.
func runApp(stdin string, args ...string) int {
	app := newApp(strings.NewReader(stdin))
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"mobius-worker"}, args...))
	if err == nil {
		return 0
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}
	return session.ExitCodeStartup
}

// stdinDriver launches the CLI in process, handing it the port on stdin.
func stdinDriver(t *testing.T, args ...string) *driver.Driver {
	t.Helper()
	d, err := driver.New(&driver.Config{
		Logger: log.Nop(),
		Factory: driver.InProcess(func(_ context.Context, port int) int {
			return runApp(strconv.Itoa(port)+"\n", args...)
		}),
	})
	if err != nil {
		t.Fatalf("driver.New() error = %v", err)
	}
	return d
}

func TestRunOnce_PortFromStdin(t *testing.T) {
	d := stdinDriver(t)
	res, err := d.Run(t.Context(), &driver.Task{
		Command:   command.New(types.ModeString, types.ModeString, command.Stage{Kind: command.KindMap, Func: "to_upper"}),
		Records:   []any{"x", "y"},
		KeepAlive: true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome.Status != types.OutcomeCompleted || res.ExitCode != session.ExitCodeOK {
		t.Fatalf("outcome = %+v exit %d", res.Outcome, res.ExitCode)
	}
	if len(res.Records) != 2 || res.Records[0] != "X" {
		t.Errorf("records = %v", res.Records)
	}
}

func TestRunOnce_FaultExitCode(t *testing.T) {
	d := stdinDriver(t)
	res, err := d.Run(t.Context(), &driver.Task{
		Command: command.New(types.ModeString, types.ModeString, command.Stage{Kind: command.KindMap, Func: "no_such_function"}),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != session.ExitCodeFault || res.Outcome.Status != types.OutcomeFault {
		t.Errorf("outcome = %+v exit %d", res.Outcome, res.ExitCode)
	}
}

func TestRunOnce_CheckpointsFromConfig(t *testing.T) {
	store := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "worker.yaml")
	yaml := "checkpoint:\n  backend: fs\n  path: " + store + "\npolicy:\n  name: strict\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	d := stdinDriver(t, "--config", cfgPath)
	st := command.Stage{Kind: command.KindMapWithState, Func: "running_sum", Args: command.Args{
		"batch_time": int64(1000),
		"stream":     "totals",
	}}
	res, err := d.Run(t.Context(), &driver.Task{
		Header:  session.Header{Partition: 2},
		Command: command.New(types.ModePair, types.ModeByte, st, command.Stage{Kind: command.KindMappedOutput}),
		Records: []any{[]any{"a", int64(1)}, []any{"a", int64(2)}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome.Status != types.OutcomeCompleted {
		t.Fatalf("outcome = %+v, stderr %s", res.Outcome, res.Stderr)
	}

	ds, err := checkpoint.OpenDataset(t.Context(), checkpoint.Options{Backend: checkpoint.BackendFS, Path: store})
	if err != nil {
		t.Fatalf("OpenDataset() error = %v", err)
	}
	cps, err := checkpoint.QueryLatest(t.Context(), ds, "totals")
	if err != nil {
		t.Fatalf("QueryLatest() error = %v", err)
	}
	if len(cps) != 1 || cps[0].Partition != 2 || len(cps[0].Entries) != 1 {
		t.Errorf("checkpoints = %+v", cps)
	}
}

func TestRunOnce_StartupFailures(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"bad port", "70000\n", nil},
		{"missing config", "5000\n", []string{"--config", "/no/such/worker.yaml"}},
		{"bad transport", "5000\n", []string{"--transport", "pigeon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runApp(tt.stdin, tt.args...); got != session.ExitCodeStartup {
				t.Errorf("exit code = %d, want %d", got, session.ExitCodeStartup)
			}
		})
	}
}

func TestDaemon_RejectsNegativeMaxSessions(t *testing.T) {
	if got := runApp("", "daemon", "--max-sessions", "-1"); got != session.ExitCodeStartup {
		t.Errorf("exit code = %d, want %d", got, session.ExitCodeStartup)
	}
}
