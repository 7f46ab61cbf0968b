package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSimilarK = 5
	maxSimilarK     = 50
	maxListLimit    = 100
	multipartMemory = 1 << 20
)

type DocumentService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*domain.DocumentSummary, error)
	Get(ctx context.Context, documentID string) (*domain.DocumentSummary, error)
	List(ctx context.Context) domain.CollectionSummary
	Similar(ctx context.Context, documentID string, k int) ([]domain.DocumentSimilarity, error)
	Remove(ctx context.Context, documentID string) error
	Clear(ctx context.Context) int
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type CreateDocumentRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// ListDocumentsResponse carries the collection totals and one page of
// documents. Without a limit the page is the whole collection.
type ListDocumentsResponse struct {
	domain.CollectionSummary
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

type DeleteDocumentResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type ClearDocumentsResponse struct {
	Removed int `json:"removed"`
}

type SimilarDocumentsResponse struct {
	DocumentID string                      `json:"document_id"`
	Similar    []domain.DocumentSimilarity `json:"similar_documents"`
}

// Create ingests a document given either as JSON or as a multipart "file"
// upload of plain text.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var input service.IngestInput
	var err error
	if mediaType == "multipart/form-data" {
		input, err = readUpload(r)
	} else {
		input, err = readJSONDocument(r)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	summary, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, summary)
}

func readJSONDocument(r *http.Request) (service.IngestInput, error) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return service.IngestInput{}, err
		}
		return service.IngestInput{}, domain.NewDomainError(domain.ErrCodeValidation, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return service.IngestInput{}, domain.NewDomainError(domain.ErrCodeValidation, "name is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return service.IngestInput{}, domain.NewDomainError(domain.ErrCodeValidation, "text is required")
	}
	return service.IngestInput{Name: req.Name, Text: req.Text, Size: int64(len(req.Text))}, nil
}

func readUpload(r *http.Request) (service.IngestInput, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return service.IngestInput{}, err
		}
		return service.IngestInput{}, domain.NewDomainError(domain.ErrCodeValidation, "invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return service.IngestInput{}, domain.NewDomainError(domain.ErrCodeValidation, "file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.IngestInput{}, fmt.Errorf("read upload: %w", err)
	}
	if err := checkTextContent(header.Filename, data); err != nil {
		return service.IngestInput{}, err
	}

	name := r.FormValue("name")
	if strings.TrimSpace(name) == "" {
		name = header.Filename
	}
	return service.IngestInput{Name: name, Text: string(data), Size: int64(len(data))}, nil
}

// checkTextContent accepts UTF-8 text only. Binary formats such as PDF have
// no extractor here.
func checkTextContent(filename string, data []byte) error {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return domain.Wrap(domain.ErrUnsupportedContentType, errors.New("pdf extraction is not supported, upload plain text"))
	}
	detected := http.DetectContentType(data)
	if !strings.HasPrefix(detected, "text/") || !utf8.Valid(data) {
		return domain.Wrap(domain.ErrUnsupportedContentType, fmt.Errorf("detected %s", detected))
	}
	return nil
}

// List supports ?limit= and ?cursor= for paging through large collections.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			api.HandleError(w, domain.NewDomainError(domain.ErrCodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	summary := h.svc.List(r.Context())
	page, err := pagination.Page(summary.Documents, r.URL.Query().Get("cursor"), limit,
		func(d domain.DocumentSummary) string { return d.ID },
		func(d domain.DocumentSummary) time.Time { return d.CreatedAt },
	)
	if err != nil {
		api.HandleError(w, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err))
		return
	}

	summary.Documents = page.Items
	api.Success(w, http.StatusOK, ListDocumentsResponse{
		CollectionSummary: summary,
		Cursor:            page.Cursor,
		HasMore:           page.HasMore,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	summary, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, summary)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Remove(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DeleteDocumentResponse{ID: id, Deleted: true})
}

// Clear removes every document. It requires ?confirm=true so a stray
// DELETE /documents cannot wipe the collection.
func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		api.HandleError(w, domain.Wrap(domain.ErrMissingRequiredField, errors.New("confirm=true is required to clear the collection")))
		return
	}
	api.Success(w, http.StatusOK, ClearDocumentsResponse{Removed: h.svc.Clear(r.Context())})
}

func (h *DocumentHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	k := defaultSimilarK
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = min(parsed, maxSimilarK)
	}

	similar, err := h.svc.Similar(r.Context(), id, k)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if similar == nil {
		similar = []domain.DocumentSimilarity{}
	}

	api.Success(w, http.StatusOK, SimilarDocumentsResponse{DocumentID: id, Similar: similar})
}
