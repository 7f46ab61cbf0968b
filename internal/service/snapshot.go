package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// IndexKeyPrefix is the artifact key prefix for document snapshots.
const IndexKeyPrefix = "indices/"

// ArtifactBase returns the artifact base key for documentID.
func ArtifactBase(documentID string) string {
	return IndexKeyPrefix + documentID
}

// SnapshotQueue is an in-process queue of snapshot jobs. A newly enqueued
// job replaces any job for the same document that has not been claimed yet.
type SnapshotQueue struct {
	uuidGen UUIDGenerator
	now     func() time.Time

	mu        sync.Mutex
	jobs      map[string]*domain.SnapshotJob
	order     []string
	onEnqueue func()
}

// NewSnapshotQueue returns an empty queue.
func NewSnapshotQueue(uuidGen UUIDGenerator) *SnapshotQueue {
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &SnapshotQueue{
		uuidGen: uuidGen,
		now:     func() time.Time { return time.Now().UTC() },
		jobs:    make(map[string]*domain.SnapshotJob),
	}
}

// OnEnqueue registers fn to run after every successful Enqueue. fn must not
// block.
func (q *SnapshotQueue) OnEnqueue(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onEnqueue = fn
}

// Enqueue adds a pending job for documentID.
func (q *SnapshotQueue) Enqueue(ctx context.Context, documentID string, op domain.SnapshotOp) (*domain.SnapshotJob, error) {
	job := domain.NewSnapshotJob(q.uuidGen.NewString(), documentID, op, q.now())
	if err := domain.ValidateSnapshotJob(job); err != nil {
		return nil, err
	}

	q.mu.Lock()
	for id, existing := range q.jobs {
		if existing.DocumentID == documentID && existing.Status == domain.SnapshotJobStatusPending {
			q.removeLocked(id)
		}
	}
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	copied := *job
	notify := q.onEnqueue
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
	return &copied, nil
}

// GetPendingJobs claims every pending job in enqueue order.
func (q *SnapshotQueue) GetPendingJobs(ctx context.Context) ([]*domain.SnapshotJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []*domain.SnapshotJob
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status != domain.SnapshotJobStatusPending {
			continue
		}
		job.Status = domain.SnapshotJobStatusProcessing
		copied := *job
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

// UpdateJobStatus records the outcome of a job. Completed and failed jobs
// leave the queue.
func (q *SnapshotQueue) UpdateJobStatus(ctx context.Context, jobID string, status domain.SnapshotJobStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("snapshot job %s not found", jobID)
	}

	switch status {
	case domain.SnapshotJobStatusCompleted, domain.SnapshotJobStatusFailed:
		q.removeLocked(jobID)
	case domain.SnapshotJobStatusPending, domain.SnapshotJobStatusProcessing:
		job.Status = status
		job.Error = errMsg
	default:
		return domain.ErrInvalidSnapshotJobStatus
	}
	return nil
}

// IncrementRetries increments the retry count for a job.
func (q *SnapshotQueue) IncrementRetries(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("snapshot job %s not found", jobID)
	}
	job.Retries++
	return nil
}

// Len returns the number of queued or in-flight jobs.
func (q *SnapshotQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *SnapshotQueue) removeLocked(jobID string) {
	delete(q.jobs, jobID)
	for i, id := range q.order {
		if id == jobID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Snapshotter persists collection documents to an ArtifactStore and loads
// them back.
type Snapshotter struct {
	collection *Collection
	store      ArtifactStore
	logger     *slog.Logger
}

// NewSnapshotter returns a Snapshotter writing to store.
func NewSnapshotter(collection *Collection, store ArtifactStore, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{collection: collection, store: store, logger: logger}
}

// SaveDocument writes the artifacts of documentID. A document removed since
// the job was queued is skipped.
func (s *Snapshotter) SaveDocument(ctx context.Context, documentID string) error {
	idx, ok := s.collection.Get(documentID)
	if !ok {
		s.logger.Debug("snapshot skipped, document no longer present", slog.String("document_id", documentID))
		return nil
	}
	return idx.Save(ctx, s.store, ArtifactBase(documentID))
}

// DeleteDocument removes the artifacts of documentID. Missing artifacts are
// not an error.
func (s *Snapshotter) DeleteDocument(ctx context.Context, documentID string) error {
	base := ArtifactBase(documentID)
	for _, suffix := range []string{IndexSuffix, ChunksSuffix, MetaSuffix} {
		err := s.store.Delete(ctx, base+suffix)
		if err != nil && !errors.Is(err, domain.ErrArtifactNotFound) {
			return fmt.Errorf("failed to delete %s: %w", base+suffix, err)
		}
	}
	return nil
}

// SaveAll writes every document synchronously.
func (s *Snapshotter) SaveAll(ctx context.Context) error {
	for _, doc := range s.collection.Documents() {
		if err := s.SaveDocument(ctx, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll restores every snapshot found in the store into the collection.
// Unreadable snapshots are logged and skipped.
func (s *Snapshotter) LoadAll(ctx context.Context) (int, error) {
	keys, err := s.store.List(ctx, IndexKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var indices []*DocumentIndex
	for _, key := range keys {
		if !strings.HasSuffix(key, IndexSuffix) {
			continue
		}
		documentID := strings.TrimSuffix(strings.TrimPrefix(key, IndexKeyPrefix), IndexSuffix)
		if documentID == "" || strings.Contains(documentID, "/") {
			continue
		}

		embedder := s.collection.Embedder()
		idx := NewDocumentIndex(documentID, embedder)
		if err := idx.Load(ctx, s.store, ArtifactBase(documentID)); err != nil {
			s.logger.Warn("skipping unreadable snapshot",
				slog.String("document_id", documentID),
				slog.Any("error", err))
			continue
		}
		if err := compatible(idx, embedder); err != nil {
			s.logger.Warn("skipping incompatible snapshot",
				slog.String("document_id", documentID),
				slog.Any("error", err))
			continue
		}
		indices = append(indices, idx)
	}

	return s.collection.Restore(indices...)
}

// compatible checks a loaded index against the embedder that will embed
// queries for it. An embedder without a dimension (none configured) cannot
// query anything, so every snapshot is accepted for listing.
func compatible(idx *DocumentIndex, embedder Embedder) error {
	dim := embedder.Dimensions()
	if dim == 0 {
		return nil
	}
	if idx.Model() != embedder.Model() {
		return fmt.Errorf("embedded with %q, current model is %q", idx.Model(), embedder.Model())
	}
	if idx.Dimension() != dim {
		return fmt.Errorf("vectors have %d dimensions, current model has %d", idx.Dimension(), dim)
	}
	return nil
}
