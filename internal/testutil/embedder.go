package testutil

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// FakeEmbedder is a deterministic bag-of-words embedder for tests. Texts
// sharing words get similar vectors.
type FakeEmbedder struct {
	Dim int
	// Vectors overrides the embedding of exact texts.
	Vectors map[string][]float32

	mu    sync.Mutex
	err   error
	calls int
}

// NewFakeEmbedder returns a 64-dimension FakeEmbedder.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dim: 64, Vectors: map[string][]float32{}}
}

// Fail makes every subsequent Embed call return err. Pass nil to recover.
func (f *FakeEmbedder) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns the number of Embed calls.
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.Vectors[text]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		out[i] = f.hashText(text)
	}
	return out, nil
}

func (f *FakeEmbedder) Model() string   { return "fake-embedding" }
func (f *FakeEmbedder) Dimensions() int { return f.Dim }

func (f *FakeEmbedder) hashText(text string) []float32 {
	v := make([]float32, f.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(f.Dim)]++
	}
	return v
}

// Words returns n space-separated words w0 w1 ... for chunking tests.
func Words(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(prefix)
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}
