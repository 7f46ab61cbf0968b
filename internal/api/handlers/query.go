package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxQueryK = 50

type QueryService interface {
	Ask(ctx context.Context, input service.AskInput) (*service.AskResult, error)
	AskAcross(ctx context.Context, input service.AskAcrossInput) (*service.AskAcrossResult, error)
	Search(ctx context.Context, input service.SearchInput) ([]domain.SearchResult, error)
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// QueryRequest is the body of every query route. DocumentIDs is ignored by
// the single-document route.
type QueryRequest struct {
	Query       string   `json:"query"`
	K           int      `json:"k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type QueryResponse struct {
	*service.AskResult
	ProcessingTimeMS int64 `json:"processing_time_ms"`
}

type CrossQueryResponse struct {
	*service.AskAcrossResult
	ProcessingTimeMS int64 `json:"processing_time_ms"`
}

type SearchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	if req.K < 0 {
		api.Error(w, http.StatusBadRequest, "k must not be negative")
		return req, false
	}
	req.K = min(req.K, maxQueryK)
	return req, true
}

// Ask answers a question about the document in the path.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Ask(r.Context(), service.AskInput{Query: req.Query, DocumentID: id, K: req.K})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, QueryResponse{
		AskResult:        result,
		ProcessingTimeMS: result.ProcessingTime.Milliseconds(),
	})
}

// AskAcross answers a question from several documents, or all of them when
// document_ids is empty.
func (h *QueryHandler) AskAcross(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.svc.AskAcross(r.Context(), service.AskAcrossInput{
		Query:       req.Query,
		DocumentIDs: req.DocumentIDs,
		KTotal:      req.K,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, CrossQueryResponse{
		AskAcrossResult:  result,
		ProcessingTimeMS: result.ProcessingTime.Milliseconds(),
	})
}

// Search returns fused results without an answer.
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	results, err := h.svc.Search(r.Context(), service.SearchInput{
		Query:       req.Query,
		DocumentIDs: req.DocumentIDs,
		K:           req.K,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	api.Success(w, http.StatusOK, SearchResponse{Query: strings.TrimSpace(req.Query), Results: results})
}
