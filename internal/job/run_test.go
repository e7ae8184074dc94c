package job

import (
	"strings"
	"testing"
)

func TestNewRun(t *testing.T) {
	run := NewRun()

	if !strings.HasPrefix(run.ID, "run-") {
		t.Errorf("expected generated run ID, got %s", run.ID)
	}
	if run.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, run.Status)
	}
	if run.CreatedAt.IsZero() || run.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestRun_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"QUEUED to RUNNING", StatusQueued, StatusRunning, false},
		{"QUEUED to FAILED", StatusQueued, StatusFailed, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"QUEUED to COMPLETED", StatusQueued, StatusCompleted, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRunWithID("test")
			run.Status = tt.from

			err := run.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestRun_CompleteAndFail(t *testing.T) {
	run := NewRunWithID("test")
	if err := run.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	res := &Result{OutputDir: "/out"}
	if err := run.Complete(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Result != res || !run.IsTerminal() || run.CompletedAt.IsZero() {
		t.Errorf("expected completed run with result, got %+v", run)
	}

	// Terminal runs reject further changes and keep their result.
	if err := run.Fail("TimedOut", "late"); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if run.Error != "" {
		t.Errorf("expected error to stay empty, got %q", run.Error)
	}
}

func TestRun_Clone(t *testing.T) {
	run := NewRunWithID("test")
	_ = run.Start()
	_ = run.Complete(&Result{Frames: []FrameResult{{Ordinal: 1, Confidence: 0.9}}})

	clone := run.Clone()
	clone.Result.Frames[0].Confidence = 0

	if run.Result.Frames[0].Confidence != 0.9 {
		t.Error("expected clone to deep-copy frames")
	}
	if clone.GetStatus() != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, clone.GetStatus())
	}
}
