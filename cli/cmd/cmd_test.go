package cmd

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/reader"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestCheckpointFlags_IncludeConfig(t *testing.T) {
	names := map[string]bool{}
	for _, f := range CheckpointFlags() {
		names[f.Names()[0]] = true
	}
	for _, want := range []string{"config", "checkpoint-backend", "checkpoint-path", "checkpoint-dataset"} {
		if !names[want] {
			t.Errorf("CheckpointFlags missing --%s", want)
		}
	}
}

func TestSortStreams(t *testing.T) {
	items := func() []reader.StreamItem {
		return []reader.StreamItem{
			{Stream: "views", Keys: 2, LatestBatch: 9},
			{Stream: "clicks", Keys: 5, LatestBatch: 3},
			{Stream: "carts", Keys: 5, LatestBatch: 9},
		}
	}
	tests := []struct {
		by   string
		want []string
	}{
		{"", []string{"carts", "clicks", "views"}},
		{"name", []string{"carts", "clicks", "views"}},
		{"keys", []string{"carts", "clicks", "views"}},
		{"batch", []string{"carts", "views", "clicks"}},
	}
	for _, tt := range tests {
		t.Run(tt.by, func(t *testing.T) {
			got := items()
			if err := sortStreams(got, tt.by); err != nil {
				t.Fatalf("sortStreams(%q) error = %v", tt.by, err)
			}
			var names []string
			for _, s := range got {
				names = append(names, s.Stream)
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if err := sortStreams(items(), "size"); err == nil {
		t.Error("sortStreams(size) error = nil, want invalid order")
	}
}

// newTestApp wires the mobius commands with ExitErrHandler suppressed so
// errors are returned instead of calling os.Exit.
func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{
		SubmitCommand(),
		InspectCommand(),
		StatsCommand(),
		ListCommand(),
		DebugCommand(),
		VersionCommand("test"),
	}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

// exitCode returns the cli.ExitCoder code of err, or -1.
func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}

// args joins command words, flags and positionals; flags must precede
// positionals.
func args(cmd, flags []string, positional ...string) []string {
	out := append(append([]string{}, cmd...), flags...)
	return append(out, positional...)
}

func TestStateCommands(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir)
	store := []string{"--checkpoint-backend", "fs", "--checkpoint-path", dir, "--format", "json"}

	tests := []struct {
		name string
		args []string
	}{
		{"inspect", args([]string{"mobius", "inspect", "state"}, store, "clicks")},
		{"inspect partition", args([]string{"mobius", "inspect", "state", "--partition", "1"}, store, "clicks")},
		{"stats", args([]string{"mobius", "stats", "state"}, store, "clicks")},
		{"list", args([]string{"mobius", "list", "streams", "--limit", "1"}, store)},
		{"list sorted by prefix", args([]string{"mobius", "list", "streams", "--prefix", "cl", "--sort", "keys"}, store)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := newTestApp().Run(tt.args); err != nil {
				t.Errorf("Run(%v) error = %v", tt.args, err)
			}
		})
	}
}

func TestStateCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing stream", []string{"mobius", "inspect", "state"}, "stream required"},
		{"missing backend", []string{"mobius", "stats", "state", "clicks"}, "--checkpoint-backend is required"},
		{"unknown stream", []string{"mobius", "inspect", "state", "--checkpoint-backend", "fs", "--checkpoint-path", dir, "views"}, "no checkpoint"},
		{"list tui", []string{"mobius", "list", "streams", "--tui", "--checkpoint-backend", "fs", "--checkpoint-path", dir}, "--tui is not supported"},
		{"missing config", []string{"mobius", "list", "streams", "--config", "/no/such/mobius.yaml"}, "config file not found"},
		{"bad sort", []string{"mobius", "list", "streams", "--sort", "size", "--checkpoint-backend", "fs", "--checkpoint-path", dir}, "invalid --sort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestApp().Run(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Run(%v) error = %v, want containing %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestFilterPartitions(t *testing.T) {
	view := &reader.StateView{Stream: "s", Partitions: []reader.PartitionState{
		{Partition: 0}, {Partition: 1}, {Partition: 2},
	}}
	got := filterPartitions(view, []int{2, 0})
	if len(got.Partitions) != 2 || got.Partitions[0].Partition != 0 || got.Partitions[1].Partition != 2 {
		t.Errorf("filterPartitions() = %+v", got.Partitions)
	}
}

func TestVersionCommand(t *testing.T) {
	if err := newTestApp().Run([]string{"mobius", "version", "--format", "json"}); err != nil {
		t.Errorf("version error = %v", err)
	}
	err := newTestApp().Run([]string{"mobius", "version", "--tui"})
	if err == nil || !strings.Contains(err.Error(), "--tui is not supported") {
		t.Errorf("version --tui error = %v", err)
	}
}
