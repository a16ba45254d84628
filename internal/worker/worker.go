package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/reelrender/internal/models"
	"github.com/bobarin/reelrender/internal/queue"
	"github.com/google/uuid"
)

const (
	dequeueTimeout     = 5 * time.Second
	dequeueErrorPause  = time.Second
	maxParallelUploads = 2
	artifactName       = "final.mp4"
)

// JobStore is the part of the database the worker writes to.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, stage models.Stage, progress int) error
	UpdateJobError(ctx context.Context, id uuid.UUID, kind models.ErrorKind, errorMessage string) error
	CompleteJob(ctx context.Context, id uuid.UUID, artifactPath string, durationSeconds float64) error
}

// JobQueue delivers jobs and carries progress to subscribers.
type JobQueue interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	PublishProgress(ctx context.Context, event models.ProgressEvent) error
}

// ArtifactStore keeps finished renders.
type ArtifactStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	GenerateStoragePath(jobID uuid.UUID, filename string) string
}

// JobRenderer runs one render.
type JobRenderer interface {
	Render(ctx context.Context, jobID uuid.UUID, req *models.RenderRequest, progress ProgressFunc) (*models.RenderResult, error)
}

type Worker struct {
	db        JobStore
	queue     JobQueue
	storage   ArtifactStore
	renderer  JobRenderer
	uploadSem chan struct{} // Limits concurrent Supabase uploads to prevent congestion
}

func New(database JobStore, q JobQueue, stor ArtifactStore, renderer JobRenderer) *Worker {
	return &Worker{
		db:        database,
		queue:     q,
		storage:   stor,
		renderer:  renderer,
		uploadSem: make(chan struct{}, maxParallelUploads),
	}
}

// uploadWithLimit wraps an upload call with a semaphore to prevent Supabase congestion.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	log.Printf("[Upload] %s waiting for upload slot...", label)
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start runs concurrency consumers of the render queue until ctx is done.
// Each consumer renders one job at a time.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRender)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorPause):
			}
			continue
		}

		if job == nil {
			continue // No job available, retry
		}

		w.processJob(ctx, job)
	}
}

// processJob runs one dequeued job and records its outcome.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	log.Printf("[Worker] Processing job %s (type: %s)", job.ID, job.Type)

	if err := w.handleRender(ctx, job); err != nil {
		log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		if dbErr := w.db.UpdateJobError(ctx, job.ID, models.KindOf(err), err.Error()); dbErr != nil {
			log.Printf("[Worker] Failed to record error for job %s: %v", job.ID, dbErr)
		}
		w.publish(ctx, models.ProgressEvent{JobID: job.ID, Stage: models.StageFailed, Progress: 100})
		return
	}
	log.Printf("[Worker] Job %s completed successfully", job.ID)
}

func (w *Worker) handleRender(ctx context.Context, job *queue.Job) error {
	record, err := w.db.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if record.Status == models.JobStatusCompleted || record.Status == models.JobStatusFailed {
		// Redelivered after it finished
		log.Printf("[Worker] Skipping job %s: already %s", job.ID, record.Status)
		return nil
	}

	var req models.RenderRequest
	if err := models.FromJSONB(record.Request, &req); err != nil {
		return models.NewRenderError(models.ErrInputValidation, models.StageInit, fmt.Errorf("failed to decode stored request: %w", err))
	}

	if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		log.Printf("[Worker] Failed to update job status: %v", err)
	}

	result, err := w.renderer.Render(ctx, job.ID, &req, w.progressFunc(ctx, job.ID))
	if err != nil {
		return err
	}

	objectPath := w.storage.GenerateStoragePath(job.ID, artifactName)
	if err := w.uploadWithLimit(ctx, "render_"+job.ID.String()[:8], func() error {
		return w.storage.Upload(ctx, objectPath, result.Video, "video/mp4")
	}); err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}

	if err := w.db.CompleteJob(ctx, job.ID, objectPath, result.DurationSeconds); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	w.publish(ctx, models.ProgressEvent{JobID: job.ID, Stage: models.StageComplete, Progress: 100})
	return nil
}

// progressFunc persists and broadcasts render progress. The renderer's
// terminal events are held back: processJob publishes the outcome once it is
// recorded.
func (w *Worker) progressFunc(ctx context.Context, jobID uuid.UUID) ProgressFunc {
	return func(stage models.Stage, percent int) {
		if stage.Terminal() {
			return
		}
		if err := w.db.UpdateJobProgress(ctx, jobID, stage, percent); err != nil {
			log.Printf("[Worker] Failed to store progress for %s: %v", jobID, err)
		}
		w.publish(ctx, models.ProgressEvent{JobID: jobID, Stage: stage, Progress: percent})
	}
}

func (w *Worker) publish(ctx context.Context, event models.ProgressEvent) {
	if err := w.queue.PublishProgress(ctx, event); err != nil {
		log.Printf("[Worker] Failed to publish progress for %s: %v", event.JobID, err)
	}
}
