package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, input service.IngestInput) (*domain.DocumentSummary, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentSummary), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, documentID string) (*domain.DocumentSummary, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentSummary), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context) domain.CollectionSummary {
	args := m.Called(ctx)
	return args.Get(0).(domain.CollectionSummary)
}

func (m *MockDocumentService) Similar(ctx context.Context, documentID string, k int) ([]domain.DocumentSimilarity, error) {
	args := m.Called(ctx, documentID, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentSimilarity), args.Error(1)
}

func (m *MockDocumentService) Remove(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockDocumentService) Clear(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}

func newTestSummary() *domain.DocumentSummary {
	return &domain.DocumentSummary{
		ID:         "doc-123",
		Name:       "handbook.txt",
		Size:       2048,
		ChunkCount: 3,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func multipartRequest(t *testing.T, filename string, content []byte, name string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	if name != "" {
		require.NoError(t, writer.WriteField("name", name))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func TestDocumentHandler_Create_JSON(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, service.IngestInput{
		Name: "handbook.txt",
		Text: "Employees accrue leave monthly.",
		Size: 31,
	}).Return(newTestSummary(), nil)

	body := `{"name":"handbook.txt","text":"Employees accrue leave monthly."}`
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "doc-123", data["id"])
	assert.Equal(t, float64(3), data["chunk_count"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Create_InvalidJSON(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{invalid`))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Create_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing name", `{"text":"some text"}`, "name is required"},
		{"blank text", `{"name":"a.txt","text":"   "}`, "text is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockDocumentService)
			handler := NewDocumentHandler(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.Create(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestDocumentHandler_Create_EmptyDocument(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, mock.Anything).Return(nil, domain.ErrEmptyDocument)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"name":"a.txt","text":"tiny"}`))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeEmptyInput)
}

func TestDocumentHandler_Create_EmbeddingUnavailable(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, mock.Anything).Return(nil, domain.ErrEmbeddingUnavailable)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"name":"a.txt","text":"some text"}`))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDocumentHandler_Create_Multipart(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	content := []byte("Quarterly revenue grew by twelve percent.")
	mockSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.IngestInput) bool {
		return input.Name == "report.txt" && input.Text == string(content) && input.Size == int64(len(content))
	})).Return(newTestSummary(), nil)

	w := httptest.NewRecorder()
	handler.Create(w, multipartRequest(t, "report.txt", content, ""))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Create_MultipartNameOverride(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.IngestInput) bool {
		return input.Name == "Q3 report"
	})).Return(newTestSummary(), nil)

	w := httptest.NewRecorder()
	handler.Create(w, multipartRequest(t, "report.txt", []byte("plain text body"), "Q3 report"))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Create_RejectsPDF(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Create(w, multipartRequest(t, "report.pdf", []byte("%PDF-1.7\n..."), ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported content type")
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Create_RejectsBinary(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Create(w, multipartRequest(t, "blob.txt", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00}, ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported content type")
}

func TestDocumentHandler_Create_MultipartMissingFile(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("name", "nothing"))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file is required")
}

func TestDocumentHandler_List(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("List", mock.Anything).Return(domain.CollectionSummary{
		TotalDocuments: 1,
		TotalChunks:    3,
		Documents:      []domain.DocumentSummary{*newTestSummary()},
	})

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["total_documents"])
	assert.Equal(t, float64(3), data["total_chunks"])
	assert.Len(t, data["documents"], 1)
	assert.Equal(t, false, data["has_more"])
}

func TestDocumentHandler_List_Paged(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []domain.DocumentSummary{
		{ID: "doc-1", Name: "a.txt", ChunkCount: 1, CreatedAt: base},
		{ID: "doc-2", Name: "b.txt", ChunkCount: 1, CreatedAt: base.Add(time.Second)},
		{ID: "doc-3", Name: "c.txt", ChunkCount: 1, CreatedAt: base.Add(2 * time.Second)},
	}
	mockSvc.On("List", mock.Anything).Return(domain.CollectionSummary{
		TotalDocuments: 3,
		TotalChunks:    3,
		Documents:      docs,
	})

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/documents?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(3), data["total_documents"])
	assert.Len(t, data["documents"], 2)
	assert.Equal(t, true, data["has_more"])
	cursor := data["cursor"].(string)
	require.NotEmpty(t, cursor)

	w = httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/documents?limit=2&cursor="+url.QueryEscape(cursor), nil))
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	page := data["documents"].([]interface{})
	require.Len(t, page, 1)
	assert.Equal(t, "doc-3", page[0].(map[string]interface{})["id"])
	assert.Equal(t, false, data["has_more"])
}

func TestDocumentHandler_List_InvalidParams(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("List", mock.Anything).Return(domain.CollectionSummary{})

	for _, target := range []string{"/documents?limit=0", "/documents?limit=abc", "/documents?cursor=not%20a%20cursor"} {
		w := httptest.NewRecorder()
		handler.List(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestDocumentHandler_Get_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Get", mock.Anything, "doc-123").Return(newTestSummary(), nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/documents/doc-123", nil), "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "handbook.txt", decodeData(t, w)["name"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/documents/missing", nil), "id", "missing")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Remove", mock.Anything, "doc-123").Return(nil)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/documents/doc-123", nil), "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "doc-123", data["id"])
	assert.Equal(t, true, data["deleted"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Delete_NotFound(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Remove", mock.Anything, "missing").Return(domain.ErrDocumentNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/documents/missing", nil), "id", "missing")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_Clear(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("Clear", mock.Anything).Return(3)

	w := httptest.NewRecorder()
	handler.Clear(w, httptest.NewRequest(http.MethodDelete, "/documents?confirm=true", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decodeData(t, w)["removed"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Clear_RequiresConfirm(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Clear(w, httptest.NewRequest(http.MethodDelete, "/documents", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Clear", mock.Anything)
}

func TestDocumentHandler_Similar(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Similar", mock.Anything, "doc-123", 2).Return([]domain.DocumentSimilarity{
		{DocumentID: "doc-456", DocumentName: "policy.txt", Score: 0.91, ChunkCount: 4},
	}, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/documents/doc-123/similar?k=2", nil), "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Similar(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "doc-123", data["document_id"])
	similar := data["similar_documents"].([]interface{})
	require.Len(t, similar, 1)
	assert.Equal(t, "doc-456", similar[0].(map[string]interface{})["document_id"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Similar_DefaultAndCappedK(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Similar", mock.Anything, "doc-123", defaultSimilarK).Return(nil, nil).Once()
	mockSvc.On("Similar", mock.Anything, "doc-123", maxSimilarK).Return(nil, nil).Once()

	w := httptest.NewRecorder()
	handler.Similar(w, withURLParam(httptest.NewRequest(http.MethodGet, "/documents/doc-123/similar", nil), "id", "doc-123"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeData(t, w)["similar_documents"])

	w = httptest.NewRecorder()
	handler.Similar(w, withURLParam(httptest.NewRequest(http.MethodGet, "/documents/doc-123/similar?k=1000", nil), "id", "doc-123"))
	assert.Equal(t, http.StatusOK, w.Code)

	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Similar_InvalidK(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/documents/doc-123/similar?k=abc", nil), "id", "doc-123")
	w := httptest.NewRecorder()

	handler.Similar(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Similar", mock.Anything, mock.Anything, mock.Anything)
}
