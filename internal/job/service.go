package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/janitor"
	"github.com/maauso/thumbnailer/internal/media"
	"github.com/maauso/thumbnailer/internal/storage"
)

// DefaultMaxMediaBytes is the largest media the service accepts (1 GiB).
const DefaultMaxMediaBytes int64 = 1 << 30

// DefaultMaxConcurrent bounds how many extractions run at once.
const DefaultMaxConcurrent = 4

// Static errors for the service.
var (
	ErrLocatorRequired     = errors.New("media locator is required")
	ErrMediaTooLarge       = errors.New("media exceeds the maximum accepted size")
	ErrCandidateOutOfRange = errors.New("candidate index out of range")
	ErrManualSourceMissing = errors.New("file reference or url is required")
	ErrManualInvalid       = errors.New("downloaded thumbnail is not a valid image")
	ErrDownloadUnavailable = errors.New("manual download is not configured")
)

// Generator produces thumbnail candidates.
type Generator interface {
	Generate(ctx context.Context, req extract.Request) ([]extract.Result, error)
}

// Downloader fetches a user-supplied thumbnail.
type Downloader interface {
	ResolveFileURL(ref string, creds fetch.Credentials) (string, error)
	SaveTo(ctx context.Context, rawURL string, creds fetch.Credentials, dst string) error
}

// Validator checks a downloaded thumbnail.
type Validator interface {
	Validate(ctx context.Context, path string) bool
}

// Observer is told how each job ended.
type Observer interface {
	JobFinished(status string)
}

// CreateInput contains the parameters of a thumbnail request.
type CreateInput struct {
	Locator     string
	DisplayName string
	PreviewURL  string
	// Duration, Width and Height are optional hints; zero means unknown.
	Duration float64
	Width    int
	Height   int
	// SizeBytes is the media size hint used for the size limit.
	SizeBytes   int64
	Credentials fetch.Credentials
}

func (in CreateInput) hint() *media.Metadata {
	if in.Duration <= 0 && in.Width <= 0 && in.Height <= 0 {
		return nil
	}
	return &media.Metadata{Duration: in.Duration, Width: in.Width, Height: in.Height}
}

// ManualInput identifies a thumbnail the user uploaded instead.
type ManualInput struct {
	// FileRef is a platform file path resolved with the bot token.
	FileRef string
	// URL is used as is when FileRef is empty.
	URL         string
	Credentials fetch.Credentials
}

// ThumbnailService runs extraction jobs and applies the user's choice.
type ThumbnailService struct {
	repo      Repository
	generator Generator
	alloc     janitor.PathAllocator
	logger    *slog.Logger

	publisher  storage.Publisher
	downloader Downloader
	validator  Validator
	observer   Observer
	creds      fetch.Credentials

	sem           *semaphore.Weighted
	maxConcurrent int64
	maxMediaBytes int64
	wg            sync.WaitGroup

	// locks guards every read-modify-write of a stored job.
	locks jobLocks
}

// ServiceOption configures a ThumbnailService.
type ServiceOption func(*ThumbnailService)

// WithPublisher publishes selected thumbnails.
func WithPublisher(p storage.Publisher) ServiceOption {
	return func(s *ThumbnailService) {
		s.publisher = p
	}
}

// WithDownloader enables manual thumbnails.
func WithDownloader(d Downloader) ServiceOption {
	return func(s *ThumbnailService) {
		s.downloader = d
	}
}

// WithValidator checks downloaded manual thumbnails.
func WithValidator(v Validator) ServiceOption {
	return func(s *ThumbnailService) {
		s.validator = v
	}
}

// WithObserver reports finished jobs to o.
func WithObserver(o Observer) ServiceOption {
	return func(s *ThumbnailService) {
		s.observer = o
	}
}

// WithCredentials sets the credentials used when a request carries none.
func WithCredentials(c fetch.Credentials) ServiceOption {
	return func(s *ThumbnailService) {
		s.creds = c
	}
}

// WithMaxConcurrent bounds concurrent extractions.
func WithMaxConcurrent(n int) ServiceOption {
	return func(s *ThumbnailService) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithMaxMediaBytes sets the media size limit. Zero or less disables it.
func WithMaxMediaBytes(n int64) ServiceOption {
	return func(s *ThumbnailService) {
		s.maxMediaBytes = n
	}
}

// NewThumbnailService creates a new ThumbnailService.
func NewThumbnailService(repo Repository, gen Generator, alloc janitor.PathAllocator, logger *slog.Logger, opts ...ServiceOption) *ThumbnailService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ThumbnailService{
		repo:          repo,
		generator:     gen,
		alloc:         alloc,
		logger:        logger,
		publisher:     storage.NoopPublisher{},
		maxConcurrent: DefaultMaxConcurrent,
		maxMediaBytes: DefaultMaxMediaBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.maxConcurrent)
	return s
}

// CreateJob validates the request and persists a PROCESSING job.
func (s *ThumbnailService) CreateJob(ctx context.Context, in CreateInput) (*Job, error) {
	if in.Locator == "" {
		return nil, ErrLocatorRequired
	}
	if s.maxMediaBytes > 0 && in.SizeBytes > s.maxMediaBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrMediaTooLarge, in.SizeBytes, s.maxMediaBytes)
	}

	job := New()
	job.Locator = in.Locator
	job.DisplayName = in.DisplayName
	job.PreviewURL = in.PreviewURL
	job.Hint = in.hint()
	job.SizeBytes = in.SizeBytes

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("display_name", in.DisplayName),
		slog.Float64("duration_hint", in.Duration),
		slog.Int64("size_bytes", in.SizeBytes),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return job, nil
}

// Submit creates a job and runs its extraction in the background. The
// returned job is still PROCESSING.
func (s *ThumbnailService) Submit(ctx context.Context, in CreateInput) (*Job, error) {
	job, err := s.CreateJob(ctx, in)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	creds := in.Credentials
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Process(bg, job.ID, creds); err != nil {
			s.logger.Error("job processing failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return job.Clone(), nil
}

// Wait blocks until every submitted job finished processing.
func (s *ThumbnailService) Wait() {
	s.wg.Wait()
}

// Process runs extraction for a PROCESSING job. At most the configured
// number of extractions run concurrently; the rest wait for a slot. The job
// lock is taken only once extraction returned.
func (s *ThumbnailService) Process(ctx context.Context, jobID string, creds fetch.Credentials) (*Job, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for extraction slot: %w", err)
	}
	defer s.sem.Release(1)

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.GetStatus() != StatusProcessing {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.GetStatus(), ErrInvalidTransition)
	}

	results, genErr := s.generator.Generate(ctx, extract.Request{
		Locator:     job.Locator,
		Metadata:    job.Hint,
		DisplayName: job.DisplayName,
		PreviewURL:  job.PreviewURL,
		Credentials: s.credentials(creds),
	})

	unlock := s.locks.lock(jobID)
	defer unlock()

	// The job may have been discarded while extraction ran.
	current, err := s.repo.FindByID(ctx, jobID)
	if err != nil || current.GetStatus() != StatusProcessing {
		s.removeFiles(extract.Paths(results))
		if err != nil {
			return nil, err
		}
		return current, nil
	}

	if genErr != nil {
		if err := current.Fail(genErr.Error()); err != nil {
			return nil, errors.Join(genErr, err)
		}
	} else if err := current.Finish(results); err != nil {
		s.removeFiles(extract.Paths(results))
		return nil, err
	}

	if err := s.repo.Save(ctx, current); err != nil {
		s.removeFiles(extract.Paths(results))
		return nil, err
	}
	s.finished(current)
	return current, genErr
}

// GetJob retrieves a job by ID.
func (s *ThumbnailService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns the jobs matching filter, oldest first.
func (s *ThumbnailService) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	return s.repo.List(ctx, filter)
}

// Select retains the candidate at index, deletes the others and, when
// publish is set, publishes the retained file.
func (s *ThumbnailService) Select(ctx context.Context, jobID string, index int, publish bool) (*Job, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.GetStatus() != StatusReady {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.GetStatus(), ErrInvalidTransition)
	}
	chosen, ok := job.Candidate(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCandidateOutOfRange, index)
	}

	rest := make([]string, 0, len(job.Candidates))
	for _, p := range job.CandidatePaths() {
		if p != chosen.Path {
			rest = append(rest, p)
		}
	}

	if err := job.Select(Selection{Path: chosen.Path, Index: index, Source: SourceCandidate}); err != nil {
		return nil, err
	}
	s.publish(ctx, job, publish)
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.removeFiles(rest)
	s.finished(job)

	s.logger.Info("thumbnail selected",
		slog.String("job_id", job.ID),
		slog.Int("index", index),
		slog.String("path", chosen.Path),
	)
	return job, nil
}

// AttachManual downloads a user-supplied thumbnail, selects it and deletes
// every extracted candidate.
func (s *ThumbnailService) AttachManual(ctx context.Context, jobID string, in ManualInput, publish bool) (*Job, error) {
	if s.downloader == nil {
		return nil, ErrDownloadUnavailable
	}
	unlock := s.locks.lock(jobID)
	defer unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if st := job.GetStatus(); st != StatusReady && st != StatusNeedsManual {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, st, ErrInvalidTransition)
	}

	creds := s.credentials(in.Credentials)
	source := in.URL
	if in.FileRef != "" {
		if source, err = s.downloader.ResolveFileURL(in.FileRef, creds); err != nil {
			return nil, err
		}
	}
	if source == "" {
		return nil, ErrManualSourceMissing
	}

	dst := s.alloc.NewPath(SourceManual, storage.DefaultExt)
	if err := s.downloader.SaveTo(ctx, source, creds, dst); err != nil {
		s.removeFiles([]string{dst})
		return nil, fmt.Errorf("download manual thumbnail: %w", err)
	}
	if s.validator != nil && !s.validator.Validate(ctx, dst) {
		s.removeFiles([]string{dst})
		return nil, ErrManualInvalid
	}

	candidates := job.CandidatePaths()
	if err := job.Select(Selection{Path: dst, Index: -1, Source: SourceManual}); err != nil {
		s.removeFiles([]string{dst})
		return nil, err
	}
	s.publish(ctx, job, publish)
	if err := s.repo.Save(ctx, job); err != nil {
		s.removeFiles([]string{dst})
		return nil, err
	}
	s.removeFiles(candidates)
	s.finished(job)

	s.logger.Info("manual thumbnail attached",
		slog.String("job_id", job.ID),
		slog.String("path", dst),
	)
	return job, nil
}

// Discard abandons a job and deletes its candidates.
func (s *ThumbnailService) Discard(ctx context.Context, jobID string) (*Job, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.GetStatus(), ErrInvalidTransition)
	}
	candidates := job.CandidatePaths()
	if err := job.Discard(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.removeFiles(candidates)
	s.finished(job)
	return job, nil
}

// Cleanup deletes paths, ignoring files that are already gone. It returns
// how many deletions failed.
func (s *ThumbnailService) Cleanup(paths []string) int {
	return janitor.Remove(s.logger, paths)
}

func (s *ThumbnailService) publish(ctx context.Context, job *Job, publish bool) {
	if !publish || job.Selected == nil {
		return
	}
	key := job.ID + "/" + filepath.Base(job.Selected.Path)
	u, err := s.publisher.Publish(ctx, key, job.Selected.Path)
	if err != nil {
		s.logger.Warn("failed to publish thumbnail",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	job.SetPublishedURL(u)
}

func (s *ThumbnailService) credentials(c fetch.Credentials) fetch.Credentials {
	if c.BotToken == "" && c.Bearer == "" {
		return s.creds
	}
	return c
}

func (s *ThumbnailService) removeFiles(paths []string) {
	if len(paths) > 0 {
		janitor.Remove(s.logger, paths)
	}
}

func (s *ThumbnailService) finished(job *Job) {
	if s.observer != nil {
		s.observer.JobFinished(string(job.GetStatus()))
	}
}
