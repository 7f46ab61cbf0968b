package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

const (
	// DefaultTopK is the single-document retrieval size before adjustment.
	DefaultTopK = 5
	// DefaultCrossDocumentTopK is the cross-document retrieval size.
	DefaultCrossDocumentTopK = 8

	previewLength = 200

	noResultsText       = "I couldn't find any relevant information in the document to answer your question. Please try rephrasing your question or asking about different topics covered in the document."
	noResultsAcrossText = "I couldn't find relevant information across the available documents to answer your question."
	notBuiltText        = "This document has not been indexed yet. Please try again once processing has finished."
	retrievalDownText   = "I couldn't search the documents right now because the embedding provider is unavailable. Please try again later."
)

// QueryConfig holds retrieval sizes.
type QueryConfig struct {
	DefaultTopK       int
	CrossDocumentTopK int
}

// AskInput is a question about one document.
type AskInput struct {
	Query      string
	DocumentID string
	K          int
}

// AskResult is the answer to a single-document question.
type AskResult struct {
	Query           string                 `json:"query"`
	Answer          string                 `json:"answer"`
	Sources         []domain.Source        `json:"sources"`
	QueryType       domain.QueryType       `json:"query_type"`
	ChunksRetrieved int                    `json:"chunks_retrieved"`
	LLMUsed         bool                   `json:"llm_used"`
	Provider        string                 `json:"llm_provider,omitempty"`
	Model           string                 `json:"llm_model,omitempty"`
	Status          domain.RetrievalStatus `json:"status"`
	ProcessingTime  time.Duration          `json:"-"`
}

// AskAcrossInput is a question about several documents. An empty
// DocumentIDs searches the whole collection.
type AskAcrossInput struct {
	Query       string
	DocumentIDs []string
	KTotal      int
}

// AskAcrossResult is the answer to a cross-document question.
type AskAcrossResult struct {
	Query             string                 `json:"query"`
	Answer            string                 `json:"answer"`
	Sources           []domain.Source        `json:"sources"`
	QueryType         domain.QueryType       `json:"query_type"`
	DocumentsSearched int                    `json:"documents_searched"`
	DocumentNames     []string               `json:"document_names"`
	LLMUsed           bool                   `json:"llm_used"`
	Provider          string                 `json:"llm_provider,omitempty"`
	Model             string                 `json:"llm_model,omitempty"`
	Status            domain.RetrievalStatus `json:"status"`
	ProcessingTime    time.Duration          `json:"-"`
}

// SearchInput is a raw cross-document search.
type SearchInput struct {
	Query       string
	DocumentIDs []string
	K           int
}

// QueryService answers questions over the collection.
type QueryService struct {
	collection *Collection
	fusion     *FusionEngine
	answers    *AnswerService
	cfg        QueryConfig
	logger     *slog.Logger
}

// NewQueryService creates a QueryService. Zero sizes in cfg take defaults.
func NewQueryService(collection *Collection, fusion *FusionEngine, answers *AnswerService, cfg QueryConfig, logger *slog.Logger) *QueryService {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.CrossDocumentTopK <= 0 {
		cfg.CrossDocumentTopK = DefaultCrossDocumentTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		collection: collection,
		fusion:     fusion,
		answers:    answers,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ask answers a question about one document. Retrieval problems are
// reported through Status and an explanatory answer, not as errors.
func (s *QueryService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	start := time.Now()
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	idx, ok := s.collection.Get(input.DocumentID)
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}

	k := input.K
	if k <= 0 {
		k = s.cfg.DefaultTopK
	}
	qc := NewQueryContext(query, k)

	ctx, span := telemetry.Start(ctx, telemetry.OpAsk, telemetry.Attrs{
		DocumentID: input.DocumentID,
		QueryType:  string(qc.QueryType),
	})
	defer span.End()

	s.logger.Debug("query classified",
		slog.String("document_id", input.DocumentID),
		slog.String("query_type", string(qc.QueryType)),
		slog.Int("k", qc.RequestedK))

	result := &AskResult{Query: query, QueryType: qc.QueryType, Sources: []domain.Source{}}

	matches, err := idx.Search(ctx, query, qc.RequestedK)
	if err != nil {
		result.Status, result.Answer = s.retrievalFailure(ctx, input.DocumentID, err)
		result.ProcessingTime = time.Since(start)
		return result, nil
	}
	if len(matches) == 0 {
		result.Status = domain.RetrievalEmpty
		result.Answer = noResultsText
		result.ProcessingTime = time.Since(start)
		return result, nil
	}

	answer := s.answers.Answer(ctx, query, matches, idx.Metadata().Name)

	result.Status = domain.RetrievalOK
	result.Answer = answer.Text
	span.SetResult(answer.Provider)
	result.ChunksRetrieved = len(matches)
	result.LLMUsed = answer.Provider != FallbackProvider
	result.Provider = answer.Provider
	result.Model = answer.Model
	result.Sources = scoredChunkSources(matches)
	result.ProcessingTime = time.Since(start)
	return result, nil
}

// AskAcross answers a question from chunks of several documents. The query
// type is reported but does not change the retrieval size.
func (s *QueryService) AskAcross(ctx context.Context, input AskAcrossInput) (*AskAcrossResult, error) {
	start := time.Now()
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	kTotal := input.KTotal
	if kTotal <= 0 {
		kTotal = s.cfg.CrossDocumentTopK
	}
	queryType := ClassifyQuery(query)

	ctx, span := telemetry.Start(ctx, telemetry.OpAskAcross, telemetry.Attrs{
		QueryType: string(queryType),
	})
	defer span.End()

	result := &AskAcrossResult{
		Query:         query,
		QueryType:     queryType,
		Sources:       []domain.Source{},
		DocumentNames: []string{},
	}

	results, err := s.fusion.SearchAcross(ctx, query, kTotal, input.DocumentIDs)
	if err != nil {
		result.Status, result.Answer = s.retrievalFailure(ctx, "", err)
		result.ProcessingTime = time.Since(start)
		return result, nil
	}
	if len(results) == 0 {
		result.Status = domain.RetrievalEmpty
		result.Answer = noResultsAcrossText
		result.ProcessingTime = time.Since(start)
		return result, nil
	}

	answer := s.answers.AnswerAcross(ctx, query, results)
	names := documentNames(results)

	result.Status = domain.RetrievalOK
	result.Answer = answer.Text
	span.SetResult(answer.Provider)
	result.DocumentsSearched = len(names)
	result.DocumentNames = names
	result.LLMUsed = answer.Provider != FallbackProvider
	result.Provider = answer.Provider
	result.Model = answer.Model
	result.Sources = searchResultSources(results)
	result.ProcessingTime = time.Since(start)
	return result, nil
}

// Search returns fused cross-document results without synthesis.
func (s *QueryService) Search(ctx context.Context, input SearchInput) ([]domain.SearchResult, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	k := input.K
	if k <= 0 {
		k = s.cfg.CrossDocumentTopK
	}
	return s.fusion.SearchAcross(ctx, query, k, input.DocumentIDs)
}

// Status reports the synthesis provider status.
func (s *QueryService) Status(ctx context.Context) domain.ProviderStatus {
	return s.answers.Status(ctx)
}

func (s *QueryService) retrievalFailure(ctx context.Context, documentID string, err error) (domain.RetrievalStatus, string) {
	if errors.Is(err, domain.ErrIndexNotBuilt) {
		return domain.RetrievalNotBuilt, notBuiltText
	}
	s.logger.Error("retrieval failed",
		slog.String("document_id", documentID),
		slog.String("operation", "search"),
		slog.Any("error", err))
	telemetry.CaptureError(ctx, err)
	return domain.RetrievalUnavailable, retrievalDownText
}

func scoredChunkSources(matches []domain.ScoredChunk) []domain.Source {
	out := make([]domain.Source, len(matches))
	for i, m := range matches {
		out[i] = newSource(m.Text, m.Score)
		out[i].LocalIndex = m.LocalIndex
	}
	return out
}

func searchResultSources(results []domain.SearchResult) []domain.Source {
	out := make([]domain.Source, len(results))
	for i, r := range results {
		out[i] = newSource(r.ChunkText, r.Score)
		out[i].LocalIndex = r.LocalIndex
		out[i].DocumentID = r.DocumentID
		out[i].DocumentName = r.DocumentName
	}
	return out
}

func newSource(text string, score float32) domain.Source {
	return domain.Source{
		Text:           text,
		RelevanceScore: math.Round(float64(score)*1000) / 1000,
		Preview:        Preview(text),
	}
}

// Preview returns the first 200 characters of text, with an ellipsis when
// truncated.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
