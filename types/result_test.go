package types //nolint:revive // types is a valid package name

import (
	"errors"
	"testing"
)

func TestNewBatchResult_SortsBySeq(t *testing.T) {
	outcomes := []TaskOutcome{
		{Seq: 3, Path: "c", State: TaskSucceeded},
		{Seq: 1, Path: "a", State: TaskFailed, Err: errors.New("bad")},
		{Seq: 2, Path: "b", State: TaskSucceeded},
	}

	r := NewBatchResult(&BatchMeta{BatchID: "b"}, outcomes)

	for i, o := range r.Outcomes {
		if o.Seq != int64(i+1) {
			t.Fatalf("Outcomes[%d].Seq = %d, want %d", i, o.Seq, i+1)
		}
	}
	if outcomes[0].Seq != 3 {
		t.Error("input slice must not be reordered")
	}
}

func TestBatchResult_Counts(t *testing.T) {
	r := NewBatchResult(nil, []TaskOutcome{
		{Seq: 1, Path: "a", State: TaskSucceeded},
		{Seq: 2, Path: "b", State: TaskFailed, Err: errors.New("corrupt")},
		{Seq: 3, Path: "c", State: TaskSucceeded},
	})

	if r.Total() != 3 || r.Succeeded() != 2 || r.Failed() != 1 {
		t.Errorf("total=%d succeeded=%d failed=%d", r.Total(), r.Succeeded(), r.Failed())
	}

	failures := r.Failures()
	if len(failures) != 1 || failures[0].Path != "b" || failures[0].Err == nil {
		t.Errorf("Failures() = %+v", failures)
	}
}

func TestBatchResult_Empty(t *testing.T) {
	r := NewBatchResult(nil, nil)
	if r.Total() != 0 || r.Failed() != 0 || len(r.Failures()) != 0 {
		t.Errorf("empty result should have zero counts")
	}
}
