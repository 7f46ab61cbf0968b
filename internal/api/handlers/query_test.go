package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Ask(ctx context.Context, input service.AskInput) (*service.AskResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskResult), args.Error(1)
}

func (m *MockQueryService) AskAcross(ctx context.Context, input service.AskAcrossInput) (*service.AskAcrossResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskAcrossResult), args.Error(1)
}

func (m *MockQueryService) Search(ctx context.Context, input service.SearchInput) ([]domain.SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func TestQueryHandler_Ask_Success(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Ask", mock.Anything, service.AskInput{Query: "What is the leave policy?", DocumentID: "doc-123", K: 3}).
		Return(&service.AskResult{
			Query:           "What is the leave policy?",
			Answer:          "Employees accrue two days per month.",
			Sources:         []domain.Source{{LocalIndex: 0, Text: "Employees accrue two days per month.", RelevanceScore: 0.82}},
			QueryType:       domain.QueryTypeGeneral,
			ChunksRetrieved: 1,
			LLMUsed:         true,
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			Status:          domain.RetrievalOK,
			ProcessingTime:  1500 * time.Millisecond,
		}, nil)

	body := `{"query":"What is the leave policy?","k":3}`
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/documents/doc-123/query", strings.NewReader(body)), "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "Employees accrue two days per month.", data["answer"])
	assert.Equal(t, "general", data["query_type"])
	assert.Equal(t, true, data["llm_used"])
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, float64(1500), data["processing_time_ms"])
	assert.Len(t, data["sources"], 1)
	mockSvc.AssertExpectations(t)
}

func TestQueryHandler_Ask_NotBuiltIsReportedInBody(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Ask", mock.Anything, mock.Anything).Return(&service.AskResult{
		Query:   "anything",
		Answer:  "not indexed yet",
		Sources: []domain.Source{},
		Status:  domain.RetrievalNotBuilt,
	}, nil)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/documents/doc-1/query", strings.NewReader(`{"query":"anything"}`)), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_built", decodeData(t, w)["status"])
}

func TestQueryHandler_Ask_DocumentNotFound(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Ask", mock.Anything, mock.Anything).Return(nil, domain.ErrDocumentNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/documents/missing/query", strings.NewReader(`{"query":"hello"}`)), "id", "missing")
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryHandler_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{nope`, "invalid request body"},
		{"empty query", `{"query":"  "}`, "query is required"},
		{"negative k", `{"query":"hi","k":-1}`, "k must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockQueryService)
			handler := NewQueryHandler(mockSvc)

			w := httptest.NewRecorder()
			handler.AskAcross(w, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			mockSvc.AssertNotCalled(t, "AskAcross", mock.Anything, mock.Anything)
		})
	}
}

func TestQueryHandler_AskAcross(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("AskAcross", mock.Anything, service.AskAcrossInput{
		Query:       "compare the policies",
		DocumentIDs: []string{"a", "b"},
		KTotal:      maxQueryK,
	}).Return(&service.AskAcrossResult{
		Query:             "compare the policies",
		Answer:            "Policy A is stricter.",
		Sources:           []domain.Source{},
		QueryType:         domain.QueryTypeComparison,
		DocumentsSearched: 2,
		DocumentNames:     []string{"a.txt", "b.txt"},
		Status:            domain.RetrievalOK,
	}, nil)

	body := `{"query":"compare the policies","document_ids":["a","b"],"k":500}`
	w := httptest.NewRecorder()
	handler.AskAcross(w, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "comparison", data["query_type"])
	assert.Equal(t, float64(2), data["documents_searched"])
	assert.Equal(t, []interface{}{"a.txt", "b.txt"}, data["document_names"])
	mockSvc.AssertExpectations(t)
}

func TestQueryHandler_Search(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Search", mock.Anything, service.SearchInput{Query: " revenue ", K: 2}).Return([]domain.SearchResult{
		{ChunkText: "Revenue grew.", Score: 0.9, DocumentID: "a", LocalIndex: 0, DocumentName: "a.txt"},
		{ChunkText: "Costs fell.", Score: 0.4, DocumentID: "b", LocalIndex: 3, DocumentName: "b.txt"},
	}, nil)

	w := httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":" revenue ","k":2}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "revenue", data["query"])
	results := data["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "a.txt", results[0].(map[string]interface{})["document_name"])
	assert.Equal(t, float64(3), results[1].(map[string]interface{})["local_index"])
	mockSvc.AssertExpectations(t)
}

func TestQueryHandler_Search_EmbeddingUnavailable(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Search", mock.Anything, mock.Anything).Return(nil, domain.ErrEmbeddingUnavailable)

	w := httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"revenue"}`)))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueryHandler_Search_EmptyResults(t *testing.T) {
	mockSvc := new(MockQueryService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Search", mock.Anything, mock.Anything).Return(nil, nil)

	w := httptest.NewRecorder()
	handler.Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"revenue"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":[]`)
}
