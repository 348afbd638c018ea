package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"completed", cli.Exit("", 0), 0, ""},
		{"fault", cli.Exit("read_command: unknown function", 1), 1, "read_command: unknown function"},
		{"crash", cli.Exit("worker crashed", 2), 2, "worker crashed"},
		{"truncated", cli.Exit("", 3), 3, ""},
		{"wrapped", fmt.Errorf("submit: %w", cli.Exit("inner", 42)), 42, "submit: inner"},
		{"joined", errors.Join(errors.New("context"), cli.Exit("", 2)), 2, "context"},
		{"plain error", errors.New("boom"), 1, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode || msg != tt.wantMsg {
				t.Errorf("exitStatus() = %d, %q, want %d, %q", code, msg, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestExitErrHandler_NilError(_ *testing.T) {
	exitErrHandler(nil, nil)
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"submit", "inspect", "stats", "list", "debug", "version"} {
		if app.Command(name) == nil {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestNewApp_RunsVersion(t *testing.T) {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	if err := app.Run([]string{"mobius", "version", "--format", "json"}); err != nil {
		t.Errorf("version error = %v", err)
	}
}
