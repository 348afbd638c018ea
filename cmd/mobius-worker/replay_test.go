package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/session"
)

// runReplay runs the worker CLI with stdin and returns its exit code and
// stdout.
func runReplay(t *testing.T, stdin string, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(strings.NewReader(stdin))
	app.Writer = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"mobius-worker"}, args...))
	if err == nil {
		return 0, out.String()
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode(), out.String()
	}
	return session.ExitCodeStartup, out.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestReplay_ResumeFromStore(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "worker.yaml")
	cfg := "checkpoint:\n  backend: fs\n  path: " + filepath.Join(dir, "store") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	logPath := filepath.Join(dir, "clicks.jsonl")
	first := `{"batch_time": 1000, "pairs": [["home", 1], ["cart", 2], ["home", 3]]}
{"batch_time": 2000, "pairs": [["cart", 1], ["faq", 4]]}
`
	if err := os.WriteFile(logPath, []byte(first), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	code, out := runReplay(t, "", "--config", cfgPath, "replay", "--stream", "clicks", "--partitions", "3", logPath)
	if code != 0 {
		t.Fatalf("first replay exit = %d, output:\n%s", code, out)
	}
	if got := strings.Count(out, "\n"); got != 3 {
		t.Errorf("first replay printed %d lines, want 2 batches and the final state:\n%s", got, out)
	}

	second := `{"batch_time": 3000, "pairs": [["home", 0.5]]}`
	code, out = runReplay(t, second, "--config", cfgPath, "replay",
		"--stream", "clicks", "--partitioning", "range", "--partitions", "2", "--resume", "-")
	if code != 0 {
		t.Fatalf("resumed replay exit = %d, output:\n%s", code, out)
	}
	if !strings.HasPrefix(out, `{"batch":3,`) {
		t.Errorf("resumed replay should continue at batch 3:\n%s", out)
	}
	want := `"state":[["cart",3],["faq",4],["home",4.5]]`
	if !strings.Contains(lastLine(out), want) {
		t.Errorf("final line = %s, want %s", lastLine(out), want)
	}
}

func TestReplay_Failures(t *testing.T) {
	batch := `{"batch_time": 1, "pairs": [["a", 1]]}`
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  int
	}{
		{"no log", batch, []string{"replay", "--stream", "s"}, session.ExitCodeStartup},
		{"bad log", "not json", []string{"replay", "--stream", "s", "-"}, session.ExitCodeStartup},
		{"resume without store", batch, []string{"replay", "--stream", "s", "--resume", "-"}, session.ExitCodeStartup},
		{"unknown function", batch, []string{"replay", "--stream", "s", "--func", "nope", "-"}, session.ExitCodeFault},
		{"unknown partitioning", batch, []string{"replay", "--stream", "s", "--partitioning", "zig", "-"}, session.ExitCodeFault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, out := runReplay(t, tt.stdin, tt.args...); code != tt.want {
				t.Errorf("exit = %d, want %d; output:\n%s", code, tt.want, out)
			}
		})
	}
}
