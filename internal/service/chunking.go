package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// ChunkConfig controls word-window chunking.
type ChunkConfig struct {
	// ChunkSize is the number of words per window.
	ChunkSize int
	// Overlap is the number of words shared by consecutive windows.
	Overlap int
	// MinChars drops windows whose length in characters is at or below it.
	MinChars int
}

// DefaultChunkConfig returns 500-word windows with a 50-word overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize: 500,
		Overlap:   50,
		MinChars:  50,
	}
}

// Validate rejects configurations that cannot make progress.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return domain.Wrap(domain.ErrInvalidChunkConfig, fmt.Errorf("chunk size %d must be positive", c.ChunkSize))
	}
	if c.Overlap < 0 {
		return domain.Wrap(domain.ErrInvalidChunkConfig, fmt.Errorf("overlap %d cannot be negative", c.Overlap))
	}
	if c.Overlap >= c.ChunkSize {
		return domain.Wrap(domain.ErrInvalidChunkConfig, fmt.Errorf("overlap %d >= chunk size %d", c.Overlap, c.ChunkSize))
	}
	return nil
}

// ChunkText splits text into overlapping word windows. A text no longer than
// one window comes back whole.
func ChunkText(text string, cfg ChunkConfig) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) <= cfg.ChunkSize {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	step := cfg.ChunkSize - cfg.Overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + cfg.ChunkSize
		if end > len(words) {
			end = len(words)
		}

		window := strings.Join(words[start:end], " ")
		if utf8.RuneCountInString(window) > cfg.MinChars {
			chunks = append(chunks, window)
		}

		if end >= len(words) {
			break
		}
	}

	return chunks, nil
}

// EstimateChunks approximates how many windows a text will produce.
func EstimateChunks(text string, cfg ChunkConfig) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	if cfg.ChunkSize <= 0 || words <= cfg.ChunkSize {
		return 1
	}
	return words / cfg.ChunkSize
}

var (
	pageMarkerPattern = regexp.MustCompile(`---\s*Page\s+\d+\s*---`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	caseBoundary      = regexp.MustCompile(`([a-z])([A-Z])`)
	sentenceBoundary  = regexp.MustCompile(`([.!?])([A-Z])`)
)

// CleanText normalizes extracted text before chunking: page markers are
// removed, whitespace runs collapse to one space, and words glued across a
// case or sentence boundary are split.
func CleanText(text string) string {
	text = pageMarkerPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = caseBoundary.ReplaceAllString(text, "$1 $2")
	text = sentenceBoundary.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}
