package job

import (
	"testing"

	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/media"
)

func TestNew(t *testing.T) {
	job := New()

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.Status != StatusProcessing {
		t.Errorf("expected status %s, got %s", StatusProcessing, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
	if job.Candidates == nil {
		t.Error("expected Candidates to be initialized")
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id)

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusProcessing {
		t.Errorf("expected status %s, got %s", StatusProcessing, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		// Valid transitions from PROCESSING
		{"PROCESSING to READY", StatusProcessing, StatusReady, false},
		{"PROCESSING to NEEDS_MANUAL", StatusProcessing, StatusNeedsManual, false},
		{"PROCESSING to FAILED", StatusProcessing, StatusFailed, false},
		{"PROCESSING to DISCARDED", StatusProcessing, StatusDiscarded, false},
		// Valid transitions once extraction finished
		{"READY to SELECTED", StatusReady, StatusSelected, false},
		{"READY to DISCARDED", StatusReady, StatusDiscarded, false},
		{"NEEDS_MANUAL to SELECTED", StatusNeedsManual, StatusSelected, false},
		{"NEEDS_MANUAL to DISCARDED", StatusNeedsManual, StatusDiscarded, false},
		// Invalid transitions
		{"PROCESSING to SELECTED", StatusProcessing, StatusSelected, true},
		{"READY to PROCESSING", StatusReady, StatusProcessing, true},
		{"READY to FAILED", StatusReady, StatusFailed, true},
		{"FAILED to DISCARDED", StatusFailed, StatusDiscarded, true},
		{"SELECTED to DISCARDED", StatusSelected, StatusDiscarded, true},
		{"DISCARDED to READY", StatusDiscarded, StatusReady, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.from

			job.mu.Lock()
			err := job.transitionLocked(tt.to)
			job.mu.Unlock()

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Finish(t *testing.T) {
	job := New()
	candidates := []extract.Result{
		{Path: "/tmp/a.jpg", Label: "start", Timestamp: 3},
		{Path: "/tmp/b.jpg", Label: "middle", Timestamp: 60, Index: 1},
	}

	if err := job.Finish(candidates); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusReady {
		t.Errorf("expected status %s, got %s", StatusReady, job.Status)
	}
	if len(job.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(job.Candidates))
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}

	// The job keeps its own copy.
	candidates[0].Path = "changed"
	if job.Candidates[0].Path != "/tmp/a.jpg" {
		t.Error("expected candidates to be copied")
	}
}

func TestJob_FinishWithoutCandidatesNeedsManual(t *testing.T) {
	job := New()

	if err := job.Finish(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusNeedsManual {
		t.Errorf("expected status %s, got %s", StatusNeedsManual, job.Status)
	}
}

func TestJob_Fail(t *testing.T) {
	job := New()

	errMsg := "decoder unavailable"
	if err := job.Fail(errMsg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != errMsg {
		t.Errorf("expected error %q, got %q", errMsg, job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set on failure")
	}
}

func TestJob_FailAfterFinishKeepsState(t *testing.T) {
	job := New()
	_ = job.Finish([]extract.Result{{Path: "/tmp/a.jpg"}})

	if err := job.Fail("late"); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "" {
		t.Errorf("expected error message to stay empty, got %q", job.Error)
	}
}

func TestJob_Select(t *testing.T) {
	job := New()
	_ = job.Finish([]extract.Result{{Path: "/tmp/a.jpg"}, {Path: "/tmp/b.jpg", Index: 1}})

	err := job.Select(Selection{Path: "/tmp/b.jpg", Index: 1, Source: SourceCandidate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusSelected {
		t.Errorf("expected status %s, got %s", StatusSelected, job.Status)
	}
	if job.Selected == nil || job.Selected.Path != "/tmp/b.jpg" {
		t.Errorf("unexpected selection: %+v", job.Selected)
	}
	if len(job.Candidates) != 0 {
		t.Errorf("expected candidates to be cleared, got %d", len(job.Candidates))
	}

	job.SetPublishedURL("https://cdn.example.com/b.jpg")
	if job.Selected.URL != "https://cdn.example.com/b.jpg" {
		t.Errorf("unexpected URL %q", job.Selected.URL)
	}
}

func TestJob_SelectWhileProcessing(t *testing.T) {
	job := New()

	if err := job.Select(Selection{Path: "/tmp/a.jpg"}); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Selected != nil {
		t.Error("expected no selection")
	}
}

func TestJob_Discard(t *testing.T) {
	job := New()
	_ = job.Finish([]extract.Result{{Path: "/tmp/a.jpg"}})

	if err := job.Discard(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusDiscarded {
		t.Errorf("expected status %s, got %s", StatusDiscarded, job.Status)
	}
	if len(job.CandidatePaths()) != 0 {
		t.Error("expected candidates to be cleared")
	}
}

func TestJob_Candidate(t *testing.T) {
	job := New()
	_ = job.Finish([]extract.Result{{Path: "/tmp/a.jpg"}})

	if c, ok := job.Candidate(0); !ok || c.Path != "/tmp/a.jpg" {
		t.Errorf("unexpected candidate %+v, %v", c, ok)
	}
	if _, ok := job.Candidate(1); ok {
		t.Error("expected index 1 to be out of range")
	}
	if _, ok := job.Candidate(-1); ok {
		t.Error("expected index -1 to be out of range")
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusProcessing, false},
		{StatusReady, false},
		{StatusNeedsManual, false},
		{StatusFailed, true},
		{StatusSelected, true},
		{StatusDiscarded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.status

			if job.IsTerminal() != tt.terminal {
				t.Errorf("expected IsTerminal() = %v for status %s", tt.terminal, tt.status)
			}
		})
	}
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Locator = "https://example.com/v.mp4"
	job.Hint = &media.Metadata{Duration: 12, Width: 1280, Height: 720}
	_ = job.Finish([]extract.Result{{Path: "/tmp/a.jpg"}})
	_ = job.Select(Selection{Path: "/tmp/a.jpg", Source: SourceCandidate})

	clone := job.Clone()

	if clone.ID != job.ID || clone.Status != job.Status || clone.Locator != job.Locator {
		t.Error("expected clone to match original")
	}

	clone.Hint.Duration = 99
	clone.Selected.Path = "other"
	if job.Hint.Duration != 12 {
		t.Error("expected Hint to be deep-copied")
	}
	if job.Selected.Path != "/tmp/a.jpg" {
		t.Error("expected Selected to be deep-copied")
	}
}
