package domain

// ScoredChunk is a single-document search hit.
type ScoredChunk struct {
	Chunk
	Score float32
}

// SearchResult is a cross-document search hit attributed to its source.
type SearchResult struct {
	ChunkText    string  `json:"chunk_text"`
	Score        float32 `json:"score"`
	DocumentID   string  `json:"document_id"`
	LocalIndex   int     `json:"local_index"`
	DocumentName string  `json:"document_name"`
}

// DocumentSimilarity is the centroid cosine similarity between two documents.
type DocumentSimilarity struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Score        float32 `json:"similarity_score"`
	ChunkCount   int     `json:"chunk_count"`
}

// Source is a retrieved chunk as presented next to an answer.
type Source struct {
	DocumentID     string  `json:"document_id,omitempty"`
	DocumentName   string  `json:"document_name,omitempty"`
	LocalIndex     int     `json:"chunk_index"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
	Preview        string  `json:"preview"`
}
