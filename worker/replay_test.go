package worker_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/state"
	"github.com/cite-sa/MobiusCore/worker"
)

const clickLog = `{"batch_time": 1000, "pairs": [["home", 1], ["cart", 2], ["home", 3]]}

{"batch_time": 2000, "pairs": [["cart", 1], ["faq", 4]]}
{"batch_time": 3000, "pairs": [["home", 0.5]]}
`

func readLog(t *testing.T, text string) []worker.ReplayBatch {
	t.Helper()
	batches, err := worker.ReadBatchLog(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadBatchLog() error = %v", err)
	}
	return batches
}

func TestReadBatchLog(t *testing.T) {
	batches := readLog(t, clickLog)
	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}
	if batches[1].BatchTime != 2000 {
		t.Errorf("BatchTime = %d, want 2000", batches[1].BatchTime)
	}
	want := [][]any{{"home", int64(1)}, {"cart", int64(2)}, {"home", int64(3)}}
	if diff := gocmp.Diff(want, batches[0].Pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	if v := batches[2].Pairs[0][1]; v != 0.5 {
		t.Errorf("value = %v (%T), want float64 0.5", v, v)
	}

	for name, text := range map[string]string{
		"bad json":   `{"batch_time": 1`,
		"short pair": `{"batch_time": 1, "pairs": [["only-key"]]}`,
	} {
		if _, err := worker.ReadBatchLog(strings.NewReader(text)); err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Errorf("%s: error = %v, want line 1 error", name, err)
		}
	}
}

func finalState(res *worker.ReplayResult) map[any]any {
	out := make(map[any]any, len(res.State))
	for _, s := range res.State {
		out[s.Key] = s.Value
	}
	return out
}

func TestReplay_RunningSum(t *testing.T) {
	sink := policy.NewStubSink()
	var emitted []int64
	res, err := worker.Replay(t.Context(), readLog(t, clickLog), worker.ReplayConfig{
		Stream:        "clicks",
		Func:          "running_sum",
		NumPartitions: 2,
		Checkpoints:   policy.NewStrictPolicy(sink),
	}, func(br *state.BatchResult[any]) error {
		emitted = append(emitted, br.Batch)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	want := map[any]any{"cart": int64(3), "faq": int64(4), "home": 4.5}
	if diff := gocmp.Diff(want, finalState(res)); diff != "" {
		t.Errorf("final state mismatch (-want +got):\n%s", diff)
	}
	if diff := gocmp.Diff([]int64{1, 2, 3}, emitted); diff != "" {
		t.Errorf("emitted batches mismatch (-want +got):\n%s", diff)
	}
	if got := res.Batches[0].MappedOutput; len(got) != 2 {
		t.Errorf("first batch output = %v, want one pair per key", got)
	}
	if len(sink.Written) != 6 {
		t.Errorf("checkpoints written = %d, want 2 partitions x 3 batches", len(sink.Written))
	}
}

func TestReplay_RangeMatchesHash(t *testing.T) {
	batches := readLog(t, clickLog)
	results := map[string]map[any]any{}
	for _, scheme := range []string{worker.PartitionHash, worker.PartitionRange} {
		res, err := worker.Replay(t.Context(), batches, worker.ReplayConfig{
			Stream:        "clicks",
			Func:          "running_sum",
			NumPartitions: 3,
			Partitioning:  scheme,
		}, nil)
		if err != nil {
			t.Fatalf("Replay(%s) error = %v", scheme, err)
		}
		results[scheme] = finalState(res)
	}
	if diff := gocmp.Diff(results[worker.PartitionHash], results[worker.PartitionRange]); diff != "" {
		t.Errorf("range and hash state differ (-hash +range):\n%s", diff)
	}
}

func TestReplay_Timeout(t *testing.T) {
	sessions := `{"batch_time": 1000, "pairs": [["idle", 1], ["busy", 1]]}
{"batch_time": 5000, "pairs": [["busy", 1]]}
`
	res, err := worker.Replay(t.Context(), readLog(t, sessions), worker.ReplayConfig{
		Stream:  "sessions",
		Func:    "running_sum",
		Timeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	last := res.Batches[1]
	if last.TimedOut != 1 {
		t.Errorf("TimedOut = %d, want 1", last.TimedOut)
	}
	want := []any{ipc.Pair{Key: "busy", Value: int64(2)}, ipc.Pair{Key: "idle", Value: int64(1)}}
	if diff := gocmp.Diff(want, last.MappedOutput); diff != "" {
		t.Errorf("MappedOutput mismatch (-want +got):\n%s", diff)
	}
	if diff := gocmp.Diff(map[any]any{"busy": int64(2)}, finalState(res)); diff != "" {
		t.Errorf("final state mismatch (-want +got):\n%s", diff)
	}
}

func TestReplay_ResumesFromCheckpoints(t *testing.T) {
	client, err := checkpoint.NewClientWithFactory(checkpoint.Config{}, checkpoint.SharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("NewClientWithFactory() error = %v", err)
	}
	t.Cleanup(iox.CloseFunc(client))

	batches := readLog(t, clickLog)
	if _, err := worker.Replay(t.Context(), batches[:2], worker.ReplayConfig{
		Stream:        "clicks",
		Func:          "running_sum",
		NumPartitions: 4,
		Checkpoints:   policy.NewStrictPolicy(client),
	}, nil); err != nil {
		t.Fatalf("Replay(first half) error = %v", err)
	}

	latest, err := checkpoint.QueryLatest(t.Context(), client.Dataset(), "clicks")
	if err != nil {
		t.Fatalf("QueryLatest() error = %v", err)
	}
	res, err := worker.Replay(t.Context(), batches[2:], worker.ReplayConfig{
		Stream:        "clicks",
		Func:          "running_sum",
		NumPartitions: 2,
		Partitioning:  worker.PartitionRange,
		Restore:       latest,
	}, nil)
	if err != nil {
		t.Fatalf("Replay(resumed) error = %v", err)
	}

	if got := res.Batches[0].Batch; got != 3 {
		t.Errorf("resumed batch number = %d, want 3", got)
	}
	want := map[any]any{"cart": int64(3), "faq": int64(4), "home": 4.5}
	if diff := gocmp.Diff(want, finalState(res)); diff != "" {
		t.Errorf("resumed state mismatch (-want +got):\n%s", diff)
	}
}

func TestReplay_Errors(t *testing.T) {
	batches := readLog(t, clickLog)
	tests := []struct {
		name string
		cfg  worker.ReplayConfig
		want string
	}{
		{"no stream", worker.ReplayConfig{Func: "running_sum"}, "stream name"},
		{"unknown func", worker.ReplayConfig{Stream: "s", Func: "nope"}, "unknown function"},
		{"bad partitioning", worker.ReplayConfig{Stream: "s", Func: "running_sum", Partitioning: "round-robin"}, "unknown partitioning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := worker.Replay(t.Context(), batches, tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Replay() error = %v, want %q", err, tt.want)
			}
		})
	}

	_, err := worker.Replay(t.Context(), batches, worker.ReplayConfig{Stream: "s", Func: "identity"}, nil)
	if !errors.Is(err, command.ErrMalformedCommand) {
		t.Errorf("Replay(identity) error = %v, want ErrMalformedCommand", err)
	}
}
