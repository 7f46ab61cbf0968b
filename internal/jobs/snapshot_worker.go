package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of attempts for a snapshot job
	MaxRetries = 3
)

// SnapshotJobRepository claims and updates snapshot jobs.
type SnapshotJobRepository interface {
	// GetPendingJobs retrieves and claims pending snapshot jobs
	GetPendingJobs(ctx context.Context) ([]*domain.SnapshotJob, error)

	// UpdateJobStatus updates the status of a snapshot job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.SnapshotJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// SnapshotService writes and removes document artifacts.
type SnapshotService interface {
	SaveDocument(ctx context.Context, documentID string) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// SnapshotWorker persists document indices in the background.
type SnapshotWorker struct {
	repo    SnapshotJobRepository
	service SnapshotService
	logger  *slog.Logger
}

// NewSnapshotWorker creates a new SnapshotWorker instance
func NewSnapshotWorker(repo SnapshotJobRepository, service SnapshotService, logger *slog.Logger) *SnapshotWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWorker{
		repo:    repo,
		service: service,
		logger:  logger,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *SnapshotWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Debug("processing snapshot jobs", slog.Int("count", len(jobs)))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("snapshot job failed",
				slog.String("job_id", job.ID),
				slog.String("document_id", job.DocumentID),
				slog.Any("error", err))
		}
	}

	return nil
}

func (w *SnapshotWorker) processJob(ctx context.Context, job *domain.SnapshotJob) error {
	ctx, span := telemetry.Start(ctx, telemetry.OpSnapshot, telemetry.Attrs{DocumentID: job.DocumentID})
	defer span.End()

	var err error
	switch job.Op {
	case domain.SnapshotOpSave:
		err = w.service.SaveDocument(ctx, job.DocumentID)
	case domain.SnapshotOpDelete:
		err = w.service.DeleteDocument(ctx, job.DocumentID)
	default:
		msg := fmt.Sprintf("unknown operation %q", job.Op)
		if updErr := w.repo.UpdateJobStatus(ctx, job.ID, domain.SnapshotJobStatusFailed, msg); updErr != nil {
			return fmt.Errorf("failed to update job status to failed: %w", updErr)
		}
		return fmt.Errorf("job %s: %s", job.ID, msg)
	}

	if err != nil {
		span.Fail(err)
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.SnapshotJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	w.logger.Debug("snapshot job completed",
		slog.String("job_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.String("op", string(job.Op)))
	return nil
}

// handleJobFailure requeues the job until it has failed MaxRetries times.
func (w *SnapshotWorker) handleJobFailure(ctx context.Context, job *domain.SnapshotJob, jobErr error) error {
	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		w.logger.Warn("snapshot job exceeded max retries",
			slog.String("job_id", job.ID),
			slog.String("document_id", job.DocumentID),
			slog.Int("max_retries", MaxRetries),
			slog.Any("error", jobErr))
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.SnapshotJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	w.logger.Info("snapshot job will be retried",
		slog.String("job_id", job.ID),
		slog.Int("attempt", int(job.Retries)+1),
		slog.Int("max_retries", MaxRetries))
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.SnapshotJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
