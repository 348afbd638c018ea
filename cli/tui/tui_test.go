package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cite-sa/MobiusCore/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"inspect_state", true},
		{"stats_state", true},

		// Not supported: list, debug, submit
		{"list_streams", false},
		{"debug_decode", false},
		{"submit", false},
		{"version", false},

		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 2 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 2", len(views))
	}
	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("list_streams", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRun_WrongDataType(t *testing.T) {
	if err := Run(ViewInspectState, "not a view"); err == nil {
		t.Error("Expected error for inspect data of the wrong type")
	}
	if err := Run(ViewStatsState, 42); err == nil {
		t.Error("Expected error for stats data of the wrong type")
	}
}

func sampleView() *reader.StateView {
	ts := time.UnixMilli(2000).UTC()
	return &reader.StateView{
		Stream: "clicks",
		Partitions: []reader.PartitionState{{
			Partition:   0,
			Batch:       3,
			LogicalTime: ts,
			Entries: []reader.StateEntry{
				{Key: "alpha", Value: int64(7), LastUpdated: ts},
				{Key: "beta", Value: int64(2), LastUpdated: time.UnixMilli(1000).UTC()},
			},
		}},
	}
}

func TestRenderInspectStatic(t *testing.T) {
	out := RenderInspectStatic(sampleView())
	for _, want := range []string{"State: clicks", "alpha", "beta", "Selected:"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderInspectStatic_Empty(t *testing.T) {
	out := RenderInspectStatic(&reader.StateView{Stream: "views"})
	if !strings.Contains(out, "(no keys)") {
		t.Errorf("expected empty marker, got:\n%s", out)
	}
}

func TestInspectModel_Quit(t *testing.T) {
	m := NewInspectModel(sampleView())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if got := next.View(); got != "" {
		t.Errorf("View() after quit = %q, want empty", got)
	}
}

func TestRenderStatsStatic(t *testing.T) {
	ts := time.UnixMilli(5000).UTC()
	out := RenderStatsStatic(&reader.StreamStats{
		Stream:     "clicks",
		Partitions: 2,
		Keys:       9,
		MinBatch:   4,
		MaxBatch:   6,
		LatestTime: &ts,
	})
	for _, want := range []string{"State Statistics: clicks", "Partitions", "Batch Lag", "1970-01-01 00:00:05.000"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}
