package service

import (
	"strconv"
	"sync"

	"github.com/cloo-solutions/docqa/internal/testutil"
)

// vectorEmbedder returns a FakeEmbedder that maps each text to a fixed vector.
func vectorEmbedder(vectors map[string][]float32) *testutil.FakeEmbedder {
	e := testutil.NewFakeEmbedder()
	for text, v := range vectors {
		e.Vectors[text] = v
	}
	return e
}

// sequenceGenerator issues id-1, id-2, ...
type sequenceGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceGenerator) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "id-" + strconv.Itoa(g.n)
}
