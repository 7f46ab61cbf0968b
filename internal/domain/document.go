package domain

import "time"

// Chunk is one addressable unit of a document. LocalIndex is its position in
// document order.
type Chunk struct {
	DocumentID string
	LocalIndex int
	Text       string
}

// DocumentMetadata is the descriptive information carried alongside an index.
type DocumentMetadata struct {
	Name      string
	Size      int64
	CreatedAt time.Time
}

// DocumentSummary describes one indexed document.
type DocumentSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// CollectionSummary describes the whole document collection.
type CollectionSummary struct {
	TotalDocuments int               `json:"total_documents"`
	TotalChunks    int               `json:"total_chunks"`
	Documents      []DocumentSummary `json:"documents"`
}

// StoredDocument is the catalog representation of a document: its chunk
// texts and the embeddings computed for them.
type StoredDocument struct {
	ID             string
	Name           string
	Size           int64
	CreatedAt      time.Time
	EmbeddingModel string
	Chunks         []string
	Embeddings     [][]float32
}

// NewChunks turns ordered chunk texts into Chunk values for documentID.
func NewChunks(documentID string, texts []string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{DocumentID: documentID, LocalIndex: i, Text: text}
	}
	return chunks
}

// ChunkTexts returns the texts of chunks in order.
func ChunkTexts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
