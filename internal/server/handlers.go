package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/job"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Service is the job use-case layer the handlers call.
type Service interface {
	CreateJob(ctx context.Context, in job.CreateInput) (*job.Job, error)
	Submit(ctx context.Context, in job.CreateInput) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context, filter job.ListFilter) ([]*job.Job, error)
	Select(ctx context.Context, id string, index int, publish bool) (*job.Job, error)
	AttachManual(ctx context.Context, id string, in job.ManualInput, publish bool) (*job.Job, error)
	Discard(ctx context.Context, id string) (*job.Job, error)
	Cleanup(paths []string) int
}

// TempFiles gives read access to files under the temp directory.
type TempFiles interface {
	Contains(path string) bool
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            Service
	files              TempFiles
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting extraction.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service Service, files TempFiles, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		files:              files,
		validator:          validator.New(validator.WithRequiredStructEnabled()),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := job.CreateInput{
		Locator:     req.Locator,
		DisplayName: req.DisplayName,
		PreviewURL:  req.PreviewURL,
		Duration:    req.Duration,
		Width:       req.Width,
		Height:      req.Height,
		SizeBytes:   req.SizeBytes,
	}

	create := h.service.Submit
	if !h.enableAsyncProcess {
		create = h.service.CreateJob
	}
	createdJob, err := create(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Float64("duration_hint", req.Duration),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// ListJobs handles GET /jobs requests, optionally filtered with
// ?status= and capped with ?limit=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := job.ListFilter{Status: job.Status(strings.ToUpper(r.URL.Query().Get("status")))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "VALIDATION_ERROR")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, jobID)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// GetCandidate handles GET /jobs/{id}/candidates/{index} requests and
// returns the image bytes.
func (h *Handlers) GetCandidate(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "candidate index must be a non-negative integer", "INVALID_INDEX")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, jobID)
		return
	}
	candidate, ok := foundJob.Candidate(index)
	if !ok {
		writeError(w, http.StatusNotFound, "candidate not found", "CANDIDATE_NOT_FOUND")
		return
	}
	h.serveImage(w, r, jobID, candidate.Path)
}

// GetThumbnail handles GET /jobs/{id}/thumbnail requests and returns the
// selected image bytes.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, jobID)
		return
	}
	if foundJob.Selected == nil {
		writeError(w, http.StatusNotFound, "no thumbnail selected", "NOT_SELECTED")
		return
	}
	h.serveImage(w, r, jobID, foundJob.Selected.Path)
}

// SelectCandidate handles POST /jobs/{id}/select requests.
func (h *Handlers) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if !h.decode(w, r, &req) {
		return
	}

	selected, err := h.service.Select(r.Context(), jobID, *req.Index, req.Publish)
	if err != nil {
		h.writeServiceError(w, err, jobID)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(selected))
}

// AttachManual handles POST /jobs/{id}/manual requests.
func (h *Handlers) AttachManual(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req ManualRequest
	if !h.decode(w, r, &req) {
		return
	}

	selected, err := h.service.AttachManual(r.Context(), jobID, job.ManualInput{
		FileRef: req.FileRef,
		URL:     req.URL,
	}, req.Publish)
	if err != nil {
		h.writeServiceError(w, err, jobID)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(selected))
}

// DiscardJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DiscardJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	discarded, err := h.service.Discard(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, jobID)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(discarded))
}

// Cleanup handles POST /cleanup requests. Only files inside the temp
// directory are deleted.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if !h.decode(w, r, &req) {
		return
	}

	var accepted, rejected []string
	for _, p := range req.Paths {
		if h.files.Contains(p) {
			accepted = append(accepted, p)
		} else {
			rejected = append(rejected, p)
		}
	}
	if len(rejected) > 0 {
		h.logger.Warn("cleanup rejected paths outside the temp directory",
			slog.Int("count", len(rejected)),
		)
	}

	failed := 0
	if len(accepted) > 0 {
		failed = h.service.Cleanup(accepted)
	}
	writeJSON(w, http.StatusOK, CleanupResponse{
		Requested: len(accepted),
		Failed:    failed,
		Rejected:  rejected,
	})
}

func (h *Handlers) serveImage(w http.ResponseWriter, r *http.Request, jobID, path string) {
	f, err := h.files.LoadTemp(r.Context(), path)
	if err != nil {
		h.logger.Error("failed to open thumbnail",
			slog.String("job_id", jobID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusNotFound, "thumbnail file not available", "FILE_NOT_FOUND")
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to stream thumbnail",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// decode reads and validates a JSON body into dst. It writes the error
// response and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps service errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, jobID string) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, job.ErrLocatorRequired),
		errors.Is(err, job.ErrUnknownStatus),
		errors.Is(err, job.ErrManualSourceMissing),
		errors.Is(err, fetch.ErrTokenRequired),
		errors.Is(err, fetch.ErrEmptyFileRef):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, job.ErrCandidateOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error(), "CANDIDATE_OUT_OF_RANGE")
	case errors.Is(err, job.ErrMediaTooLarge), errors.Is(err, fetch.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "TOO_LARGE")
	case errors.Is(err, job.ErrManualInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_IMAGE")
	case errors.Is(err, job.ErrDownloadUnavailable):
		writeError(w, http.StatusNotImplemented, err.Error(), "NOT_CONFIGURED")
	case errors.Is(err, fetch.ErrRequestFailed),
		errors.Is(err, fetch.ErrServerError),
		errors.Is(err, fetch.ErrRateLimited):
		writeError(w, http.StatusBadGateway, "download failed", "DOWNLOAD_FAILED")
	default:
		h.logger.Error("request failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

func pathJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	return jobID, true
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:         j.ID,
		Status:     string(j.Status),
		Error:      j.Error,
		Candidates: make([]CandidateResponse, 0, len(j.Candidates)),
		CreatedAt:  j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	for i, c := range j.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateResponse{
			Index:     i,
			Label:     c.Label,
			Timestamp: c.Timestamp,
			Strategy:  c.Strategy,
			ImageURL:  fmt.Sprintf("/jobs/%s/candidates/%d", j.ID, i),
		})
	}
	if j.Selected != nil {
		resp.Selected = &SelectionResponse{
			Path:     j.Selected.Path,
			Index:    j.Selected.Index,
			Source:   j.Selected.Source,
			URL:      j.Selected.URL,
			ImageURL: fmt.Sprintf("/jobs/%s/thumbnail", j.ID),
		}
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
