package driver

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/cite-sa/MobiusCore/types"
)

func TestDetermineOutcome(t *testing.T) {
	tests := []struct {
		name      string
		result    TaskResult
		want      types.OutcomeStatus
		wantPhase string
	}{
		{name: "completed", result: TaskResult{ExitCode: 0}, want: types.OutcomeCompleted},
		{name: "truncated", result: TaskResult{ExitCode: 0, ReadErr: fmt.Errorf("read frame: %w", io.EOF)}, want: types.OutcomeTruncated},
		{name: "clean exit with garbage", result: TaskResult{ExitCode: 0, ReadErr: errors.New("bad marker")}, want: types.OutcomeCrash},
		{
			name:      "fault",
			result:    TaskResult{ExitCode: 1, Exception: "stream_records: function \"f\" (stage 0): boom"},
			want:      types.OutcomeFault,
			wantPhase: "stream_records",
		},
		{name: "fault without phase", result: TaskResult{ExitCode: 1, Exception: "boom"}, want: types.OutcomeFault},
		{name: "exit 1 without exception", result: TaskResult{ExitCode: 1}, want: types.OutcomeCrash},
		{name: "startup", result: TaskResult{ExitCode: 2}, want: types.OutcomeCrash},
		{name: "signal", result: TaskResult{ExitCode: -1}, want: types.OutcomeCrash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineOutcome(&tt.result)
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q (%s)", got.Status, tt.want, got.Message)
			}
			if got.Phase != tt.wantPhase {
				t.Errorf("Phase = %q, want %q", got.Phase, tt.wantPhase)
			}
		})
	}
}

func TestDeduplicateEnv(t *testing.T) {
	got := deduplicateEnv([]string{"A=1", "B=2", "A=3"})
	want := []string{"B=2", "A=3"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("deduplicateEnv() = %v, want %v", got, want)
	}
}
