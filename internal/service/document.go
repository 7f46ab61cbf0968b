package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// DocumentCatalog records ingested documents and their embeddings so the
// collection can be rebuilt without re-embedding.
type DocumentCatalog interface {
	SaveDocument(ctx context.Context, doc *domain.StoredDocument) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context) ([]*domain.StoredDocument, error)
}

// SnapshotEnqueuer schedules artifact writes for the background worker.
type SnapshotEnqueuer interface {
	Enqueue(ctx context.Context, documentID string, op domain.SnapshotOp) (*domain.SnapshotJob, error)
}

// SnapshotLoader restores snapshots into the collection.
type SnapshotLoader interface {
	LoadAll(ctx context.Context) (int, error)
}

// DocumentServiceDeps are the optional collaborators of DocumentService.
type DocumentServiceDeps struct {
	Catalog   DocumentCatalog
	Snapshots SnapshotEnqueuer
	Loader    SnapshotLoader
	Logger    *slog.Logger
}

// IngestInput is a document to add to the collection.
type IngestInput struct {
	Name string
	Text string
	Size int64
}

// DocumentService handles the document lifecycle on top of a Collection.
type DocumentService struct {
	collection *Collection
	chunkCfg   ChunkConfig
	uuidGen    UUIDGenerator
	catalog    DocumentCatalog
	snapshots  SnapshotEnqueuer
	loader     SnapshotLoader
	logger     *slog.Logger
}

// NewDocumentService creates a DocumentService. The chunk configuration is
// validated here so a bad configuration fails at startup.
func NewDocumentService(collection *Collection, chunkCfg ChunkConfig, uuidGen UUIDGenerator, deps DocumentServiceDeps) (*DocumentService, error) {
	if err := chunkCfg.Validate(); err != nil {
		return nil, err
	}
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		collection: collection,
		chunkCfg:   chunkCfg,
		uuidGen:    uuidGen,
		catalog:    deps.Catalog,
		snapshots:  deps.Snapshots,
		loader:     deps.Loader,
		logger:     logger,
	}, nil
}

// Ingest cleans, chunks and indexes a document.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*domain.DocumentSummary, error) {
	ctx, span := telemetry.Start(ctx, telemetry.OpIngest, telemetry.Attrs{})
	defer span.End()

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.Wrap(domain.ErrMissingRequiredField, errors.New("name is required"))
	}

	clean := CleanText(input.Text)
	chunks, err := ChunkText(clean, s.chunkCfg)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	size := input.Size
	if size <= 0 {
		size = int64(len(input.Text))
	}
	documentID := s.uuidGen.NewString()
	meta := domain.DocumentMetadata{Name: name, Size: size, CreatedAt: time.Now().UTC()}

	if err := s.collection.AddDocument(ctx, documentID, chunks, meta); err != nil {
		span.Fail(err)
		return nil, err
	}

	idx, ok := s.collection.Get(documentID)
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	span.SetChunks(idx.Len())
	telemetry.DocumentBreadcrumb(ctx, documentID, fmt.Sprintf("indexed %d chunks", idx.Len()))

	s.recordInCatalog(ctx, idx)
	s.enqueue(ctx, documentID, domain.SnapshotOpSave)

	summary := idx.Summary()
	return &summary, nil
}

// Get returns the summary of one document.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.DocumentSummary, error) {
	idx, ok := s.collection.Get(documentID)
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	summary := idx.Summary()
	return &summary, nil
}

// List describes the whole collection.
func (s *DocumentService) List(ctx context.Context) domain.CollectionSummary {
	return s.collection.Summary()
}

// Similar ranks other documents by similarity to documentID.
func (s *DocumentService) Similar(ctx context.Context, documentID string, k int) ([]domain.DocumentSimilarity, error) {
	return s.collection.DocumentSimilarity(documentID, k)
}

// Remove deletes a document from the collection, the catalog and the
// snapshot store.
func (s *DocumentService) Remove(ctx context.Context, documentID string) error {
	if !s.collection.RemoveDocument(documentID) {
		return domain.ErrDocumentNotFound
	}

	if s.catalog != nil {
		if err := s.catalog.DeleteDocument(ctx, documentID); err != nil {
			s.logger.Warn("catalog delete failed", slog.String("document_id", documentID), slog.Any("error", err))
			telemetry.CaptureError(ctx, err)
		}
	}
	s.enqueue(ctx, documentID, domain.SnapshotOpDelete)
	return nil
}

// Clear removes every document and returns how many were removed.
func (s *DocumentService) Clear(ctx context.Context) int {
	docs := s.collection.Documents()
	for _, doc := range docs {
		if err := s.Remove(ctx, doc.ID); err != nil {
			s.logger.Warn("remove during clear failed", slog.String("document_id", doc.ID), slog.Any("error", err))
		}
	}
	return len(docs)
}

// Rehydrate rebuilds the collection at startup, from the catalog when one is
// configured and has documents, otherwise from snapshots.
func (s *DocumentService) Rehydrate(ctx context.Context) (int, error) {
	if s.catalog != nil {
		n, err := s.rehydrateFromCatalog(ctx)
		if err != nil {
			s.logger.Warn("catalog rehydration failed, trying snapshots", slog.Any("error", err))
		} else if n > 0 {
			return n, nil
		}
	}
	if s.loader != nil {
		return s.loader.LoadAll(ctx)
	}
	return 0, nil
}

func (s *DocumentService) rehydrateFromCatalog(ctx context.Context) (int, error) {
	stored, err := s.catalog.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}

	model := s.collection.Embedder().Model()
	indices := make([]*DocumentIndex, 0, len(stored))
	for _, doc := range stored {
		if doc.EmbeddingModel != "" && doc.EmbeddingModel != model {
			s.logger.Warn("skipping document embedded with a different model",
				slog.String("document_id", doc.ID),
				slog.String("stored_model", doc.EmbeddingModel),
				slog.String("current_model", model))
			continue
		}
		idx := NewDocumentIndex(doc.ID, s.collection.Embedder())
		meta := domain.DocumentMetadata{Name: doc.Name, Size: doc.Size, CreatedAt: doc.CreatedAt}
		if err := idx.BuildFromVectors(doc.Chunks, doc.Embeddings, meta); err != nil {
			s.logger.Warn("skipping unreadable catalog document", slog.String("document_id", doc.ID), slog.Any("error", err))
			continue
		}
		indices = append(indices, idx)
	}

	return s.collection.Restore(indices...)
}

func (s *DocumentService) recordInCatalog(ctx context.Context, idx *DocumentIndex) {
	if s.catalog == nil {
		return
	}
	meta := idx.Metadata()
	doc := &domain.StoredDocument{
		ID:             idx.ID(),
		Name:           meta.Name,
		Size:           meta.Size,
		CreatedAt:      meta.CreatedAt,
		EmbeddingModel: s.collection.Embedder().Model(),
		Chunks:         domain.ChunkTexts(idx.Chunks()),
		Embeddings:     idx.Vectors(),
	}
	if err := s.catalog.SaveDocument(ctx, doc); err != nil {
		s.logger.Warn("catalog save failed", slog.String("document_id", doc.ID), slog.Any("error", err))
		telemetry.CaptureError(ctx, err)
	}
}

func (s *DocumentService) enqueue(ctx context.Context, documentID string, op domain.SnapshotOp) {
	if s.snapshots == nil {
		return
	}
	if _, err := s.snapshots.Enqueue(ctx, documentID, op); err != nil {
		s.logger.Warn("snapshot enqueue failed",
			slog.String("document_id", documentID),
			slog.String("op", string(op)),
			slog.Any("error", err))
	}
}
