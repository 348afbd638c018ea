package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("tcp", "daemon", "w-1")

	c.IncSessionStarted()
	c.IncSessionStarted()
	c.IncSessionStarted()
	c.IncSessionCompleted()
	c.IncSessionFailed()
	c.IncSessionTruncated()
	c.AddRecordsIn(10)
	c.AddRecordsOut(7)
	c.AddBytes(1024, 512)
	c.IncFrameDecodeErrors()
	c.IncBroadcastAdded()
	c.IncBroadcastAdded()
	c.IncBroadcastRemoved()
	c.AddAccumulatorUpdates(100)
	c.AddStateKeysTimedOut(3)
	c.IncCheckpointWriteSuccess()
	c.IncCheckpointWriteFailure()

	s := c.Snapshot()

	checks := []struct {
		name      string
		got, want int64
	}{
		{"SessionsStarted", s.SessionsStarted, 3},
		{"SessionsCompleted", s.SessionsCompleted, 1},
		{"SessionsFailed", s.SessionsFailed, 1},
		{"SessionsTruncated", s.SessionsTruncated, 1},
		{"RecordsIn", s.RecordsIn, 10},
		{"RecordsOut", s.RecordsOut, 7},
		{"BytesIn", s.BytesIn, 1024},
		{"BytesOut", s.BytesOut, 512},
		{"FrameDecodeErrors", s.FrameDecodeErrors, 1},
		{"BroadcastsAdded", s.BroadcastsAdded, 2},
		{"BroadcastsRemoved", s.BroadcastsRemoved, 1},
		{"AccumulatorUpdates", s.AccumulatorUpdates, 100},
		{"StateKeysTimedOut", s.StateKeysTimedOut, 3},
		{"CheckpointWriteSuccess", s.CheckpointWriteSuccess, 1},
		{"CheckpointWriteFailure", s.CheckpointWriteFailure, 1},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Errorf("%s = %d, want %d", chk.name, chk.got, chk.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("vsock", "single", "w-7").Snapshot()

	if s.Transport != "vsock" {
		t.Errorf("Transport = %q, want %q", s.Transport, "vsock")
	}
	if s.Mode != "single" {
		t.Errorf("Mode = %q, want %q", s.Mode, "single")
	}
	if s.WorkerID != "w-7" {
		t.Errorf("WorkerID = %q, want %q", s.WorkerID, "w-7")
	}
}

func TestCollector_AbsorbPolicyStats(t *testing.T) {
	c := NewCollector("tcp", "daemon", "")
	c.AbsorbPolicyStats(12, 9, 3)
	c.AbsorbPolicyStats(20, 15, 5)

	s := c.Snapshot()
	if s.CheckpointsIngested != 20 {
		t.Errorf("CheckpointsIngested = %d, want 20 (latest absorb wins)", s.CheckpointsIngested)
	}
	if s.CheckpointsPersisted != 15 {
		t.Errorf("CheckpointsPersisted = %d, want 15", s.CheckpointsPersisted)
	}
	if s.CheckpointsSuperseded != 5 {
		t.Errorf("CheckpointsSuperseded = %d, want 5", s.CheckpointsSuperseded)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("tcp", "single", "")
	c.IncSessionStarted()

	s1 := c.Snapshot()
	c.IncSessionStarted()
	c.IncSessionCompleted()

	if s1.SessionsStarted != 1 || s1.SessionsCompleted != 0 {
		t.Errorf("s1 = %+v, want frozen at 1 started", s1)
	}
	if s2 := c.Snapshot(); s2.SessionsStarted != 2 || s2.SessionsCompleted != 1 {
		t.Errorf("s2 = %+v, want 2 started 1 completed", s2)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.IncSessionStarted()
	c.AddRecordsIn(5)
	c.AddBytes(1, 1)
	c.AbsorbPolicyStats(1, 1, 0)

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil Snapshot() = %+v, want zero", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("tcp", "daemon", "")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncSessionStarted()
			c.AddRecordsIn(2)
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.SessionsStarted != 50 {
		t.Errorf("SessionsStarted = %d, want 50", s.SessionsStarted)
	}
	if s.RecordsIn != 100 {
		t.Errorf("RecordsIn = %d, want 100", s.RecordsIn)
	}
}
