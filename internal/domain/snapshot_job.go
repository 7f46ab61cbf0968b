package domain

import (
	"fmt"
	"time"
)

// SnapshotJobStatus represents the status of a snapshot job
type SnapshotJobStatus string

const (
	SnapshotJobStatusPending    SnapshotJobStatus = "pending"
	SnapshotJobStatusProcessing SnapshotJobStatus = "processing"
	SnapshotJobStatusCompleted  SnapshotJobStatus = "completed"
	SnapshotJobStatusFailed     SnapshotJobStatus = "failed"
)

// SnapshotOp is the artifact operation a snapshot job performs.
type SnapshotOp string

const (
	SnapshotOpSave   SnapshotOp = "save"
	SnapshotOpDelete SnapshotOp = "delete"
)

// SnapshotJob asks the background worker to write or remove the on-disk
// artifacts of one document.
type SnapshotJob struct {
	ID          string
	DocumentID  string
	Op          SnapshotOp
	Status      SnapshotJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewSnapshotJob creates a pending SnapshotJob
func NewSnapshotJob(id, documentID string, op SnapshotOp, createdAt time.Time) *SnapshotJob {
	return &SnapshotJob{
		ID:         id,
		DocumentID: documentID,
		Op:         op,
		Status:     SnapshotJobStatusPending,
		CreatedAt:  createdAt,
	}
}

// ValidateSnapshotJob validates a SnapshotJob instance
func ValidateSnapshotJob(j *SnapshotJob) error {
	if j == nil {
		return fmt.Errorf("snapshot job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("snapshot job ID is required")
	}

	if j.DocumentID == "" {
		return fmt.Errorf("snapshot job DocumentID is required")
	}

	if j.Op != SnapshotOpSave && j.Op != SnapshotOpDelete {
		return Wrap(ErrInvalidSnapshotOp, fmt.Errorf("got %q", j.Op))
	}

	if !isValidSnapshotJobStatus(j.Status) {
		return Wrap(ErrInvalidSnapshotJobStatus, fmt.Errorf("got %q", j.Status))
	}

	if j.Retries < 0 {
		return fmt.Errorf("snapshot job Retries cannot be negative")
	}

	return nil
}

func isValidSnapshotJobStatus(s SnapshotJobStatus) bool {
	switch s {
	case SnapshotJobStatusPending, SnapshotJobStatusProcessing,
		SnapshotJobStatusCompleted, SnapshotJobStatusFailed:
		return true
	}
	return false
}
