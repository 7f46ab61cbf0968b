package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

const (
	// FallbackProvider names answers assembled without a synthesizer.
	FallbackProvider = "fallback"
	fallbackModel    = "none"

	contextChunks         = 5
	fallbackSections      = 3
	chunksPerDocument     = 3
	noContextText         = "No relevant context found."
	noRelevantInformation = "I couldn't find relevant information in the document to answer your question. Please try rephrasing your question or ask about different topics covered in the document."
	statusProbePrompt     = "Hello, please respond with just 'OK' to confirm you're working."
)

// Synthesizer generates text from a prompt.
type Synthesizer interface {
	Generate(ctx context.Context, prompt string, opts domain.GenerationOptions) (string, error)
	Provider() string
	Model() string
}

// AnswerService turns retrieved chunks into an answer. When the synthesizer
// is missing, fails, returns nothing or panics, the answer falls back to the
// retrieved chunks themselves; callers always get an Answer.
type AnswerService struct {
	synth  Synthesizer
	logger *slog.Logger
}

// NewAnswerService returns an AnswerService. synth may be nil.
func NewAnswerService(synth Synthesizer, logger *slog.Logger) *AnswerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerService{synth: synth, logger: logger}
}

// Answer synthesizes an answer to query from single-document matches.
func (s *AnswerService) Answer(ctx context.Context, query string, matches []domain.ScoredChunk, documentName string) domain.Answer {
	passages := make([]passage, len(matches))
	for i, m := range matches {
		passages[i] = passage{text: m.Text, score: m.Score}
	}
	prompt := BuildPrompt(query, BuildContext(matches), documentName)
	return s.generate(ctx, query, prompt, passages)
}

// AnswerAcross synthesizes an answer to query from cross-document results.
func (s *AnswerService) AnswerAcross(ctx context.Context, query string, results []domain.SearchResult) domain.Answer {
	passages := make([]passage, len(results))
	for i, r := range results {
		passages[i] = passage{text: r.ChunkText, score: r.Score}
	}
	documentName := "Multiple documents: " + strings.Join(documentNames(results), ", ")
	prompt := BuildPrompt(query, BuildCrossDocumentContext(results), documentName)
	return s.generate(ctx, query, prompt, passages)
}

// Status probes the synthesis provider.
func (s *AnswerService) Status(ctx context.Context) domain.ProviderStatus {
	if s.synth == nil {
		return domain.ProviderStatus{
			Status:   "unavailable",
			Provider: FallbackProvider,
			Model:    fallbackModel,
			Message:  "no synthesis provider configured, answers use retrieved sections",
		}
	}

	status := domain.ProviderStatus{Provider: s.synth.Provider(), Model: s.synth.Model()}
	opts := domain.DefaultGenerationOptions()
	opts.MaxTokens = 10
	text, err := s.safeGenerate(ctx, statusProbePrompt, opts)
	switch {
	case err != nil:
		status.Status = "unavailable"
		status.Message = err.Error()
	case strings.Contains(strings.ToUpper(text), "OK"):
		status.Status = "available"
		status.Message = "synthesis provider is ready"
	default:
		status.Status = "available"
		status.Message = "provider responded but the probe reply was unexpected"
	}
	return status
}

type passage struct {
	text  string
	score float32
}

func (s *AnswerService) generate(ctx context.Context, query, prompt string, passages []passage) domain.Answer {
	if s.synth == nil {
		return fallbackAnswer(query, passages)
	}

	ctx, span := telemetry.Start(ctx, telemetry.OpSynthesize, telemetry.Attrs{})
	defer span.End()
	span.SetChunks(len(passages))

	text, err := s.safeGenerate(ctx, prompt, domain.DefaultGenerationOptions())
	if err != nil {
		s.logger.Warn("synthesis failed, using fallback answer",
			slog.String("provider", s.synth.Provider()),
			slog.Any("error", err))
		span.Fail(err)
		return fallbackAnswer(query, passages)
	}

	return domain.Answer{
		Text:        text,
		Provider:    s.synth.Provider(),
		Model:       s.synth.Model(),
		ContextUsed: len(passages),
	}
}

// safeGenerate converts panics and empty output into errors.
func (s *AnswerService) safeGenerate(ctx context.Context, prompt string, opts domain.GenerationOptions) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.Wrap(domain.ErrSynthesisUnavailable, fmt.Errorf("synthesizer panicked: %v", r))
		}
	}()

	text, err = s.synth.Generate(ctx, prompt, opts)
	if err != nil {
		if errors.Is(err, domain.ErrSynthesisUnavailable) {
			return "", err
		}
		return "", domain.Wrap(domain.ErrSynthesisUnavailable, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.Wrap(domain.ErrSynthesisUnavailable, errors.New("empty response generated"))
	}
	return text, nil
}

// fallbackAnswer lists the top passages verbatim. It is deterministic in
// its inputs.
func fallbackAnswer(query string, passages []passage) domain.Answer {
	var b strings.Builder
	if len(passages) == 0 {
		b.WriteString(noRelevantInformation)
	} else {
		fmt.Fprintf(&b, "I encountered an issue generating a response, but here are the most relevant sections from the document for your question '%s':\n\n", query)
		for i, p := range passages {
			if i == fallbackSections {
				break
			}
			fmt.Fprintf(&b, "**Section %d** (Relevance: %.1f%%)\n%s\n\n", i+1, p.score*100, p.text)
		}
	}
	return domain.Answer{
		Text:        b.String(),
		Provider:    FallbackProvider,
		Model:       fallbackModel,
		ContextUsed: len(passages),
	}
}

// BuildContext formats the top single-document matches for a prompt.
func BuildContext(matches []domain.ScoredChunk) string {
	if len(matches) == 0 {
		return noContextText
	}
	parts := make([]string, 0, contextChunks)
	for i, m := range matches {
		if i == contextChunks {
			break
		}
		parts = append(parts, fmt.Sprintf("Context %d (Relevance: %.2f):\n%s", i+1, m.Score, strings.TrimSpace(m.Text)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildCrossDocumentContext groups results by document in first-seen order,
// keeping at most three chunks per document.
func BuildCrossDocumentContext(results []domain.SearchResult) string {
	if len(results) == 0 {
		return noContextText
	}

	var order []string
	grouped := make(map[string][]domain.SearchResult)
	names := make(map[string]string)
	for _, r := range results {
		if _, seen := grouped[r.DocumentID]; !seen {
			order = append(order, r.DocumentID)
			names[r.DocumentID] = r.DocumentName
		}
		grouped[r.DocumentID] = append(grouped[r.DocumentID], r)
	}

	var parts []string
	for _, id := range order {
		parts = append(parts, fmt.Sprintf("\n--- From: %s ---", names[id]))
		for i, r := range grouped[id] {
			if i == chunksPerDocument {
				break
			}
			parts = append(parts, fmt.Sprintf("[Relevance: %.2f] %s", r.Score, r.ChunkText))
		}
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt renders the grounded-answer instruction template.
func BuildPrompt(query, context, documentName string) string {
	if documentName == "" {
		documentName = "User's document"
	}
	return fmt.Sprintf(promptTemplate, documentName, context, query)
}

const promptTemplate = `You are an intelligent document assistant. Answer the user's question based ONLY on the provided context from the document.

Document: %s

Context from the document:
%s

User Question: %s

Instructions:
1. Answer the question directly and comprehensively using ONLY the provided context
2. If the context doesn't contain enough information, clearly state what's missing
3. Be specific and cite relevant details from the context
4. Use a helpful, professional tone
5. If asked for a summary, provide a well-structured overview
6. If multiple context sections are relevant, synthesize them coherently
7. Don't make up information not present in the context
8. Keep your response concise but complete
9. Format your response in a clear, readable way

Answer:`

// documentNames returns distinct document names in first-seen order.
func documentNames(results []domain.SearchResult) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range results {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		names = append(names, r.DocumentName)
	}
	return names
}
