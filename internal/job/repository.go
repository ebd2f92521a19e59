package job

import (
	"context"
	"errors"
	"fmt"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// ErrUnknownStatus is returned when a filter names a status that does not exist.
var ErrUnknownStatus = errors.New("unknown job status")

// ListFilter narrows List. The zero value matches every job.
type ListFilter struct {
	// Status keeps only jobs in this status when set.
	Status Status
	// Limit caps the number of jobs returned when positive.
	Limit int
}

// Validate rejects statuses the state machine does not know.
func (f ListFilter) Validate() error {
	if f.Status == "" {
		return nil
	}
	if _, ok := validTransitions[f.Status]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, f.Status)
	}
	return nil
}

func (f ListFilter) matches(j *Job) bool {
	return f.Status == "" || j.Status == f.Status
}

// Repository stores thumbnail jobs. Implementations return copies, so a
// caller mutating a job must Save it again.
type Repository interface {
	// Save inserts or replaces the job with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the jobs matching filter, oldest first.
	List(ctx context.Context, filter ListFilter) ([]*Job, error)

	// Delete returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
