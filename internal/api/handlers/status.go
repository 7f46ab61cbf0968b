package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
)

type CollectionReporter interface {
	List(ctx context.Context) domain.CollectionSummary
}

type ProviderReporter interface {
	Status(ctx context.Context) domain.ProviderStatus
}

type StatusHandler struct {
	docs           CollectionReporter
	provider       ProviderReporter
	embeddingModel string
}

func NewStatusHandler(docs CollectionReporter, provider ProviderReporter, embeddingModel string) *StatusHandler {
	return &StatusHandler{docs: docs, provider: provider, embeddingModel: embeddingModel}
}

type HealthResponse struct {
	Status         string `json:"status"`
	DocumentsCount int    `json:"documents_count"`
}

type StatusResponse struct {
	Status         string                `json:"status"`
	DocumentsCount int                   `json:"documents_count"`
	ChunksCount    int                   `json:"chunks_count"`
	EmbeddingModel string                `json:"embedding_model"`
	LLM            domain.ProviderStatus `json:"llm"`
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	summary := h.docs.List(r.Context())
	api.Success(w, http.StatusOK, HealthResponse{Status: "ok", DocumentsCount: summary.TotalDocuments})
}

// Status reports collection size and probes the synthesis provider.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	summary := h.docs.List(r.Context())
	api.Success(w, http.StatusOK, StatusResponse{
		Status:         "ok",
		DocumentsCount: summary.TotalDocuments,
		ChunksCount:    summary.TotalChunks,
		EmbeddingModel: h.embeddingModel,
		LLM:            h.provider.Status(r.Context()),
	})
}
