package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocumentCatalog stores documents with their chunk texts and embeddings so
// the in-memory collection can be rebuilt without calling the provider.
type DocumentCatalog struct {
	db txStarter
}

func NewDocumentCatalog(pool *pgxpool.Pool) *DocumentCatalog {
	return &DocumentCatalog{db: pool}
}

// SaveDocument replaces the document and all of its chunks in one
// transaction.
func (r *DocumentCatalog) SaveDocument(ctx context.Context, doc *domain.StoredDocument) error {
	if len(doc.Chunks) != len(doc.Embeddings) {
		return fmt.Errorf("document %s has %d chunks but %d embeddings", doc.ID, len(doc.Chunks), len(doc.Embeddings))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, doc.ID); err != nil {
		return err
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, name, size, embedding_model, chunk_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Name, doc.Size, doc.EmbeddingModel, len(doc.Chunks), createdAt,
	)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, content := range doc.Chunks {
		batch.Queue(
			`INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4)`,
			doc.ID, i, content, pgvector.NewVector(doc.Embeddings[i]),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteDocument removes a document and its chunks. Deleting an unknown id is
// not an error.
func (r *DocumentCatalog) DeleteDocument(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// ListDocuments returns every document with its chunks in chunk order,
// documents ordered by id.
func (r *DocumentCatalog) ListDocuments(ctx context.Context) ([]*domain.StoredDocument, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, size, embedding_model, created_at
		 FROM documents
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}

	var docs []*domain.StoredDocument
	byID := make(map[string]*domain.StoredDocument)
	for rows.Next() {
		var doc domain.StoredDocument
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Size, &doc.EmbeddingModel, &doc.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		docs = append(docs, &doc)
		byID[doc.ID] = &doc
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunkRows, err := r.db.Query(ctx,
		`SELECT document_id, content, embedding
		 FROM document_chunks
		 ORDER BY document_id, chunk_index`,
	)
	if err != nil {
		return nil, err
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var documentID, content string
		var embedding pgvector.Vector
		if err := chunkRows.Scan(&documentID, &content, &embedding); err != nil {
			return nil, err
		}
		doc, ok := byID[documentID]
		if !ok {
			continue
		}
		doc.Chunks = append(doc.Chunks, content)
		doc.Embeddings = append(doc.Embeddings, embedding.Slice())
	}
	if err := chunkRows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}
