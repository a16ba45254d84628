package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/bobarin/reelrender/internal/db"
	"github.com/bobarin/reelrender/internal/filtergraph"
	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxRequestBytes   = 1 << 20
	downloadURLExpiry = 3600
)

// JobStore persists render jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, error)
	CountJobs(ctx context.Context, status string) (int, error)
}

// JobQueue hands jobs to workers and relays their progress.
type JobQueue interface {
	EnqueueRender(ctx context.Context, jobID uuid.UUID) error
	SubscribeProgress(ctx context.Context, jobID uuid.UUID) (<-chan models.ProgressEvent, error)
}

// ArtifactStore resolves stored artifacts to URLs.
type ArtifactStore interface {
	GetPublicURL(objectPath string) string
	GetSignedURL(ctx context.Context, objectPath string, expiresIn int) (string, error)
}

// SyncRenderer renders a request inline.
type SyncRenderer interface {
	Render(ctx context.Context, jobID uuid.UUID, req *models.RenderRequest, progress worker.ProgressFunc) (*models.RenderResult, error)
}

type Handler struct {
	jobs     JobStore
	queue    JobQueue
	storage  ArtifactStore
	renderer SyncRenderer
	syncSem  chan struct{}
}

// NewHandler wires the API. renderer may be nil, which disables /renders/sync.
func NewHandler(jobs JobStore, q JobQueue, stor ArtifactStore, renderer SyncRenderer, maxSyncRenders int) *Handler {
	if maxSyncRenders <= 0 {
		maxSyncRenders = 1
	}
	return &Handler{
		jobs:     jobs,
		queue:    q,
		storage:  stor,
		renderer: renderer,
		syncSem:  make(chan struct{}, maxSyncRenders),
	}
}

func decodeRenderRequest(w http.ResponseWriter, r *http.Request) (*models.RenderRequest, bool) {
	var req models.RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		respondRenderError(w, err)
		return nil, false
	}
	return &req, true
}

// CreateRender handles POST /v1/renders
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRenderRequest(w, r)
	if !ok {
		return
	}

	payload, err := models.ToJSONB(req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to encode request")
		return
	}

	job := &models.Job{
		ID:       uuid.New(),
		Status:   models.JobStatusQueued,
		Stage:    models.StageInit,
		Progress: 0,
		Request:  payload,
	}

	if err := h.jobs.CreateJob(r.Context(), job); err != nil {
		log.Printf("[API] Failed to create job: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueRender(r.Context(), job.ID); err != nil {
		log.Printf("[API] Failed to enqueue job %s: %v", job.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	log.Printf("[API] Queued render %s (%d segments)", job.ID, len(req.Segments))
	respondJSON(w, http.StatusAccepted, models.CreateRenderResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// ListRenders handles GET /v1/renders
// Query params:
//   - status: filter by job status (queued, running, completed, failed)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.JobStatus(statusFilter) {
		case models.JobStatusQueued, models.JobStatusRunning,
			models.JobStatusCompleted, models.JobStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: queued, running, completed, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.jobs.CountJobs(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count renders")
		return
	}

	jobs, err := h.jobs.ListJobs(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list renders")
		return
	}

	renders := make([]models.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		job.Request = nil // keep list responses small
		renders = append(renders, h.jobResponse(job))
	}

	respondJSON(w, http.StatusOK, models.ListRendersResponse{
		Renders: renders,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetRender handles GET /v1/renders/{id}
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.jobResponse(*job))
}

// GetRenderDownload handles GET /v1/renders/{id}/download
func (h *Handler) GetRenderDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	if job.Status != models.JobStatusCompleted || job.ArtifactPath == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	// Signed URL valid for 1 hour
	signedURL, err := h.storage.GetSignedURL(r.Context(), *job.ArtifactPath, downloadURLExpiry)
	if err != nil {
		log.Printf("[API] Failed to sign %s: %v", *job.ArtifactPath, err)
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// GetRenderEvents handles GET /v1/renders/{id}/events as a server-sent event
// stream that ends at complete or failed.
func (h *Handler) GetRenderEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, models.ProgressEvent{JobID: job.ID, Stage: job.Stage, Progress: job.Progress})
	flusher.Flush()
	if finished(job) {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, err := h.queue.SubscribeProgress(ctx, job.ID)
	if err != nil {
		log.Printf("[API] Failed to subscribe to %s: %v", job.ID, err)
		return
	}

	// Progress is not replayed, so a job that finished before the
	// subscription was live would never send its final event.
	latest, err := h.jobs.GetJob(ctx, job.ID)
	if err != nil {
		log.Printf("[API] Failed to reload %s: %v", job.ID, err)
		return
	}
	if finished(latest) {
		writeEvent(w, finalEvent(latest))
		flusher.Flush()
		return
	}

	for event := range events {
		writeEvent(w, event)
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event models.ProgressEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
}

// RenderSync handles POST /v1/renders/sync: renders inline and responds
// with the MP4 body.
func (h *Handler) RenderSync(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		respondError(w, http.StatusServiceUnavailable, "Inline rendering is disabled")
		return
	}

	req, ok := decodeRenderRequest(w, r)
	if !ok {
		return
	}

	select {
	case h.syncSem <- struct{}{}:
	case <-r.Context().Done():
		return
	}
	defer func() { <-h.syncSem }()

	jobID := uuid.New()
	result, err := h.renderer.Render(r.Context(), jobID, req, nil)
	if err != nil {
		log.Printf("[API] Inline render %s failed: %v", jobID, err)
		respondRenderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Video)))
	w.Header().Set("X-Duration-Seconds", filtergraph.Num(result.DurationSeconds))
	w.Header().Set("X-Render-Id", jobID.String())
	w.WriteHeader(http.StatusOK)
	w.Write(result.Video)
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render ID")
		return nil, false
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Render not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get render")
		return nil, false
	}
	return job, true
}

func finished(job *models.Job) bool {
	return job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed
}

func finalEvent(job *models.Job) models.ProgressEvent {
	stage := models.StageComplete
	if job.Status == models.JobStatusFailed {
		stage = models.StageFailed
	}
	return models.ProgressEvent{JobID: job.ID, Stage: stage, Progress: 100}
}

func (h *Handler) jobResponse(job models.Job) models.JobResponse {
	response := models.JobResponse{Job: job}
	if job.Status == models.JobStatusCompleted && job.ArtifactPath != nil {
		url := h.storage.GetPublicURL(*job.ArtifactPath)
		response.DownloadURL = &url
	}
	return response
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondRenderError maps the render error taxonomy onto HTTP: bad input is
// the caller's fault, everything else is ours.
func respondRenderError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if models.IsInputError(err) {
		status = http.StatusBadRequest
	}

	resp := models.ErrorResponse{Error: err.Error()}
	var re *models.RenderError
	if errors.As(err, &re) {
		resp.Kind = re.Kind
		resp.Stage = re.Stage
		if re.Err != nil {
			resp.Error = re.Err.Error()
		}
	}
	respondJSON(w, status, resp)
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
