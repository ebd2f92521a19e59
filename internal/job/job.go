// Package job provides the Job aggregate that tracks one thumbnail request
// from extraction to the user's choice, plus repositories to persist it.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/job/id"
	"github.com/maauso/thumbnailer/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusProcessing indicates extraction is queued or running.
	StatusProcessing Status = "PROCESSING"
	// StatusReady indicates candidates are waiting for a choice.
	StatusReady Status = "READY"
	// StatusNeedsManual indicates nothing could be extracted and the user
	// has to supply a thumbnail.
	StatusNeedsManual Status = "NEEDS_MANUAL"
	// StatusFailed indicates the pipeline could not run at all.
	StatusFailed Status = "FAILED"
	// StatusSelected indicates one thumbnail was retained.
	StatusSelected Status = "SELECTED"
	// StatusDiscarded indicates the request was abandoned and its files removed.
	StatusDiscarded Status = "DISCARDED"
)

// Selection sources.
const (
	SourceCandidate = "candidate"
	SourceManual    = "manual"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusProcessing:  {StatusReady, StatusNeedsManual, StatusFailed, StatusDiscarded},
	StatusReady:       {StatusSelected, StatusDiscarded},
	StatusNeedsManual: {StatusSelected, StatusDiscarded},
	StatusFailed:      {},
	StatusSelected:    {},
	StatusDiscarded:   {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Selection is the thumbnail the user kept.
type Selection struct {
	Path string `json:"path" bson:"path"`
	// Index is the candidate index, or -1 for a manual upload.
	Index  int    `json:"index" bson:"index"`
	Source string `json:"source" bson:"source"`
	// URL is set when the thumbnail was published.
	URL string `json:"url,omitempty" bson:"url,omitempty"`
}

// Job is one thumbnail request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Locator is the media URL or path handed to the decoder.
	Locator string
	// DisplayName is shown on the placeholder image.
	DisplayName string
	// PreviewURL is the platform's own thumbnail, if any.
	PreviewURL string
	// Hint is the caller's metadata. Nil means probe.
	Hint *media.Metadata
	// SizeBytes is the caller's media size hint.
	SizeBytes int64
	// Candidates are the extracted thumbnails in order.
	Candidates []extract.Result
	// Selected is set once the job reaches SELECTED.
	Selected *Selection
	// Error contains the failure message for FAILED jobs.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// CompletedAt is when extraction finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial PROCESSING status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial PROCESSING status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:         jobID,
		Status:     StatusProcessing,
		Candidates: make([]extract.Result, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// transitionLocked changes the status. The caller holds j.mu.
func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusReady, StatusNeedsManual, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Finish records the extraction results: READY when there is at least one
// candidate, NEEDS_MANUAL otherwise.
func (j *Job) Finish(candidates []extract.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	next := StatusReady
	if len(candidates) == 0 {
		next = StatusNeedsManual
	}
	if err := j.transitionLocked(next); err != nil {
		return err
	}
	j.Candidates = append(make([]extract.Result, 0, len(candidates)), candidates...)
	return nil
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Select retains sel and transitions to SELECTED. Candidates are cleared;
// their files are the caller's to delete.
func (j *Job) Select(sel Selection) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusSelected); err != nil {
		return err
	}
	j.Selected = &sel
	j.Candidates = make([]extract.Result, 0)
	return nil
}

// Discard transitions the job to DISCARDED and clears its candidates.
func (j *Job) Discard() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusDiscarded); err != nil {
		return err
	}
	j.Candidates = make([]extract.Result, 0)
	return nil
}

// SetPublishedURL records where the selected thumbnail was published.
func (j *Job) SetPublishedURL(u string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Selected != nil {
		j.Selected.URL = u
		j.UpdatedAt = time.Now()
	}
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Candidate returns the candidate at index.
func (j *Job) Candidate(index int) (extract.Result, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if index < 0 || index >= len(j.Candidates) {
		return extract.Result{}, false
	}
	return j.Candidates[index], true
}

// CandidatePaths returns the paths of every candidate.
func (j *Job) CandidatePaths() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return extract.Paths(j.Candidates)
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	candidates := make([]extract.Result, len(j.Candidates))
	copy(candidates, j.Candidates)

	c := &Job{
		ID:          j.ID,
		Status:      j.Status,
		Locator:     j.Locator,
		DisplayName: j.DisplayName,
		PreviewURL:  j.PreviewURL,
		SizeBytes:   j.SizeBytes,
		Candidates:  candidates,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Hint != nil {
		hint := *j.Hint
		c.Hint = &hint
	}
	if j.Selected != nil {
		sel := *j.Selected
		c.Selected = &sel
	}
	return c
}
