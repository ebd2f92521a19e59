// Package server provides the HTTP server for the thumbnail service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// Locator is the media URL or path handed to the decoder.
	Locator string `json:"locator" validate:"required"`
	// DisplayName is rendered on the placeholder image.
	DisplayName string `json:"display_name" validate:"max=256"`
	// PreviewURL is the platform's own thumbnail, tried first by the fallback chain.
	PreviewURL string `json:"preview_url" validate:"omitempty,url"`
	// Duration is the media duration hint in seconds; 0 means probe.
	Duration float64 `json:"duration" validate:"gte=0"`
	// Width is the media width hint.
	Width int `json:"width" validate:"gte=0,max=16384"`
	// Height is the media height hint.
	Height int `json:"height" validate:"gte=0,max=16384"`
	// SizeBytes is the media size hint checked against the size limit.
	SizeBytes int64 `json:"size_bytes" validate:"gte=0"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// CandidateResponse describes one extracted thumbnail.
type CandidateResponse struct {
	Index     int     `json:"index"`
	Label     string  `json:"label"`
	Timestamp float64 `json:"timestamp"`
	Strategy  string  `json:"strategy"`
	// ImageURL is the path serving the image bytes.
	ImageURL string `json:"image_url"`
}

// SelectionResponse describes the retained thumbnail.
type SelectionResponse struct {
	Path   string `json:"path"`
	Index  int    `json:"index"`
	Source string `json:"source"`
	// URL is the published location, if any.
	URL string `json:"url,omitempty"`
	// ImageURL is the path serving the image bytes.
	ImageURL string `json:"image_url"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Candidates are the thumbnails waiting for a choice.
	Candidates []CandidateResponse `json:"candidates"`
	// Selected is set once a thumbnail was retained.
	Selected    *SelectionResponse `json:"selected,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// SelectRequest chooses one candidate.
type SelectRequest struct {
	// Index is the 0-based candidate index.
	Index *int `json:"index" validate:"required,min=0"`
	// Publish uploads the retained thumbnail to the configured backend.
	Publish bool `json:"publish"`
}

// ManualRequest supplies a thumbnail instead of the extracted candidates.
type ManualRequest struct {
	// FileRef is a messaging-platform file path, resolved with the bot token.
	FileRef string `json:"file_ref" validate:"required_without=URL"`
	// URL is downloaded as is when FileRef is empty.
	URL string `json:"url" validate:"omitempty,url"`
	// Publish uploads the retained thumbnail to the configured backend.
	Publish bool `json:"publish"`
}

// CleanupRequest lists temp files to delete.
type CleanupRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

// CleanupResponse reports what Cleanup did.
type CleanupResponse struct {
	// Requested is the number of accepted paths.
	Requested int `json:"requested"`
	// Failed is the number of paths that could not be deleted.
	Failed int `json:"failed"`
	// Rejected lists paths outside the temp directory; they are left alone.
	Rejected []string `json:"rejected,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
