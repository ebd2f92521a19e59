package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/thumbnailer/internal/extract"
	"github.com/maauso/thumbnailer/internal/fetch"
	"github.com/maauso/thumbnailer/internal/job"
	"github.com/maauso/thumbnailer/internal/process/processtest"
	"github.com/maauso/thumbnailer/internal/storage"
)

// fileGenerator writes count JPEG candidates into the temp directory.
type fileGenerator struct {
	local *storage.Local
	count int
}

func (g *fileGenerator) Generate(_ context.Context, _ extract.Request) ([]extract.Result, error) {
	results := make([]extract.Result, 0, g.count)
	for i := 0; i < g.count; i++ {
		path := g.local.NewPath("middle", "jpg")
		if err := os.WriteFile(path, processtest.JPEG(160, 120), 0o600); err != nil {
			return nil, err
		}
		results = append(results, extract.Result{Path: path, Label: "middle", Timestamp: float64(10 * i), Index: i, Strategy: "positional"})
	}
	return results, nil
}

type testEnv struct {
	handlers *Handlers
	service  *job.ThumbnailService
	local    *storage.Local
	logger   *slog.Logger
}

func newTestEnv(t *testing.T, candidates int, opts ...job.ServiceOption) *testEnv {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	svc := job.NewThumbnailService(job.NewMemoryRepository(), &fileGenerator{local: local, count: candidates}, local, logger, opts...)

	// Disable async processing so tests drive extraction explicitly
	handlers := NewHandlers(svc, local, logger, WithAsyncProcessing(false))
	return &testEnv{handlers: handlers, service: svc, local: local, logger: logger}
}

func (e *testEnv) router() http.Handler {
	return NewRouter(e.handlers, e.logger, Config{AllowedOrigins: []string{"*"}})
}

// readyJob creates and processes a job through the service.
func (e *testEnv) readyJob(t *testing.T) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := e.service.CreateJob(ctx, job.CreateInput{Locator: "video.mp4", Duration: 120})
	require.NoError(t, err)
	j, err = e.service.Process(ctx, j.ID, fetch.Credentials{})
	require.NoError(t, err)
	return j
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	env.handlers.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob_Success(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := do(t, env.router(), http.MethodPost, "/jobs", CreateJobRequest{
		Locator:     "https://example.com/v.mp4",
		DisplayName: "clip",
		Duration:    42,
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "PROCESSING", resp.Status)
}

func TestCreateJob_Async(t *testing.T) {
	env := newTestEnv(t, 2)
	h := NewHandlers(env.service, env.local, env.logger)
	router := NewRouter(h, env.logger, DefaultConfig())

	rec := do(t, router, http.MethodPost, "/jobs", CreateJobRequest{Locator: "video.mp4"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	env.service.Wait()

	rec = do(t, router, http.MethodGet, "/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "READY", resp.Status)
	assert.Len(t, resp.Candidates, 2)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handlers.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body CreateJobRequest
	}{
		{"missing locator", CreateJobRequest{}},
		{"negative duration", CreateJobRequest{Locator: "v.mp4", Duration: -1}},
		{"bad preview url", CreateJobRequest{Locator: "v.mp4", PreviewURL: "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1)
			rec := do(t, env.router(), http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
		})
	}
}

func TestCreateJob_MediaTooLarge(t *testing.T) {
	env := newTestEnv(t, 1, job.WithMaxMediaBytes(1000))

	rec := do(t, env.router(), http.MethodPost, "/jobs", CreateJobRequest{Locator: "v.mp4", SizeBytes: 1001})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "TOO_LARGE", decodeError(t, rec).Code)
}

func TestGetJob_Success(t *testing.T) {
	env := newTestEnv(t, 3)
	j := env.readyJob(t)

	rec := do(t, env.router(), http.MethodGet, "/jobs/"+j.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, j.ID, resp.ID)
	assert.Equal(t, "READY", resp.Status)
	require.Len(t, resp.Candidates, 3)
	assert.Equal(t, "/jobs/"+j.ID+"/candidates/1", resp.Candidates[1].ImageURL)
	assert.Equal(t, 10.0, resp.Candidates[1].Timestamp)
	assert.NotNil(t, resp.CompletedAt)
	assert.Nil(t, resp.Selected)
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := do(t, env.router(), http.MethodGet, "/jobs/job-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetJob_MissingID(t *testing.T) {
	env := newTestEnv(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	rec := httptest.NewRecorder()
	env.handlers.GetJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_JOB_ID", decodeError(t, rec).Code)
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t, 1)
	router := env.router()
	first := env.readyJob(t)
	env.readyJob(t)
	_, err := env.service.CreateJob(context.Background(), job.CreateInput{Locator: "pending.mp4"})
	require.NoError(t, err)

	list := func(query string) []JobResponse {
		t.Helper()
		rec := do(t, router, http.MethodGet, "/jobs"+query, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp []JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	assert.Len(t, list(""), 3)
	assert.Len(t, list("?status=ready"), 2)
	assert.Len(t, list("?status=PROCESSING"), 1)

	limited := list("?status=READY&limit=1")
	require.Len(t, limited, 1)
	assert.Equal(t, first.ID, limited[0].ID)
}

func TestListJobs_BadQuery(t *testing.T) {
	env := newTestEnv(t, 1)
	router := env.router()

	rec := do(t, router, http.MethodGet, "/jobs?status=PENDING", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodGet, "/jobs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCandidate(t *testing.T) {
	env := newTestEnv(t, 2)
	j := env.readyJob(t)
	router := env.router()

	rec := do(t, router, http.MethodGet, "/jobs/"+j.ID+"/candidates/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	want, err := os.ReadFile(j.Candidates[1].Path)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.Bytes())

	rec = do(t, router, http.MethodGet, "/jobs/"+j.ID+"/candidates/5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CANDIDATE_NOT_FOUND", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodGet, "/jobs/"+j.ID+"/candidates/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INDEX", decodeError(t, rec).Code)
}

func TestGetCandidate_FileGone(t *testing.T) {
	env := newTestEnv(t, 1)
	j := env.readyJob(t)
	require.NoError(t, os.Remove(j.Candidates[0].Path))

	rec := do(t, env.router(), http.MethodGet, "/jobs/"+j.ID+"/candidates/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE_NOT_FOUND", decodeError(t, rec).Code)
}

func TestSelectCandidate(t *testing.T) {
	env := newTestEnv(t, 3)
	j := env.readyJob(t)
	router := env.router()
	index := 2

	rec := do(t, router, http.MethodPost, "/jobs/"+j.ID+"/select", SelectRequest{Index: &index})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SELECTED", resp.Status)
	require.NotNil(t, resp.Selected)
	assert.Equal(t, j.Candidates[2].Path, resp.Selected.Path)
	assert.Equal(t, "candidate", resp.Selected.Source)
	assert.Empty(t, resp.Candidates)

	entries, err := os.ReadDir(env.local.TempDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(j.Candidates[2].Path), entries[0].Name())

	rec = do(t, router, http.MethodGet, "/jobs/"+j.ID+"/thumbnail", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	// Selecting again conflicts.
	rec = do(t, router, http.MethodPost, "/jobs/"+j.ID+"/select", SelectRequest{Index: &index})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decodeError(t, rec).Code)
}

func TestSelectCandidate_Errors(t *testing.T) {
	env := newTestEnv(t, 1)
	j := env.readyJob(t)
	router := env.router()

	rec := do(t, router, http.MethodPost, "/jobs/"+j.ID+"/select", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)

	index := 7
	rec = do(t, router, http.MethodPost, "/jobs/"+j.ID+"/select", SelectRequest{Index: &index})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CANDIDATE_OUT_OF_RANGE", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodGet, "/jobs/"+j.ID+"/thumbnail", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_SELECTED", decodeError(t, rec).Code)
}

func TestAttachManual(t *testing.T) {
	image := processtest.JPEG(320, 240)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(image)
	}))
	defer upstream.Close()

	env := newTestEnv(t, 0, job.WithDownloader(fetch.NewDownloader(fetch.WithRateLimit(0, 0))))
	j := env.readyJob(t)
	require.Equal(t, job.StatusNeedsManual, j.Status)

	rec := do(t, env.router(), http.MethodPost, "/jobs/"+j.ID+"/manual", ManualRequest{URL: upstream.URL + "/cover.jpg"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SELECTED", resp.Status)
	require.NotNil(t, resp.Selected)
	assert.Equal(t, "manual", resp.Selected.Source)
	assert.Equal(t, -1, resp.Selected.Index)
}

func TestAttachManual_Errors(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		env := newTestEnv(t, 0, job.WithDownloader(fetch.NewDownloader()))
		j := env.readyJob(t)
		rec := do(t, env.router(), http.MethodPost, "/jobs/"+j.ID+"/manual", ManualRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, 0)
		j := env.readyJob(t)
		rec := do(t, env.router(), http.MethodPost, "/jobs/"+j.ID+"/manual", ManualRequest{URL: "https://example.com/a.jpg"})
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
		assert.Equal(t, "NOT_CONFIGURED", decodeError(t, rec).Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer upstream.Close()

		env := newTestEnv(t, 0, job.WithDownloader(fetch.NewDownloader(fetch.WithRateLimit(0, 0))))
		j := env.readyJob(t)
		rec := do(t, env.router(), http.MethodPost, "/jobs/"+j.ID+"/manual", ManualRequest{URL: upstream.URL})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "DOWNLOAD_FAILED", decodeError(t, rec).Code)
	})
}

func TestDiscardJob(t *testing.T) {
	env := newTestEnv(t, 2)
	j := env.readyJob(t)
	router := env.router()

	rec := do(t, router, http.MethodDelete, "/jobs/"+j.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "DISCARDED", resp.Status)

	entries, err := os.ReadDir(env.local.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec = do(t, router, http.MethodDelete, "/jobs/job-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanup(t *testing.T) {
	env := newTestEnv(t, 2)
	j := env.readyJob(t)

	outside := filepath.Join(t.TempDir(), "keep.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	paths := append(j.CandidatePaths(), outside, filepath.Join(env.local.TempDir(), "already-gone.jpg"))
	rec := do(t, env.router(), http.MethodPost, "/cleanup", CleanupRequest{Paths: paths})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CleanupResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Requested)
	assert.Zero(t, resp.Failed)
	assert.Equal(t, []string{outside}, resp.Rejected)

	assert.FileExists(t, outside)
	for _, p := range j.CandidatePaths() {
		assert.NoFileExists(t, p)
	}
}

func TestCleanup_EmptyPaths(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := do(t, env.router(), http.MethodPost, "/cleanup", CleanupRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t, 1)
	router := NewRouter(env.handlers, env.logger, DefaultConfig())

	rec := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `thumbnailer_http_requests_total{method="GET",path="GET /health",status="200"}`)
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t, 1)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(env.handlers, env.logger, cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Test with a different origin
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(logger)(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}
