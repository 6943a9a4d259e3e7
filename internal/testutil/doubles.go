package testutil

import (
	"context"
	"sync"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/embed"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/synth"
)

// StubEmbedder returns a fixed vector for every input, or a fixed error.
type StubEmbedder struct {
	Vec []float32
	Err error
}

func (s StubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Vec != nil {
		return s.Vec, nil
	}
	return make([]float32, embed.Dimension), nil
}

// StubSynthesizer returns a canned response, or a fixed error.
type StubSynthesizer struct {
	Resp synth.Response
	Err  error
}

func (s StubSynthesizer) Generate(context.Context, synth.Request) (synth.Response, error) {
	if s.Err != nil {
		return synth.Response{Confidence: synth.ConfidenceError}, s.Err
	}
	return s.Resp, nil
}

// MemoryIndex is an in-memory stand-in for the vector index in handler
// tests. Neighbors are returned in insertion order with synthetic
// distances; real similarity ranking is exercised against PostgreSQL.
type MemoryIndex struct {
	mu   sync.Mutex
	docs []index.Document
}

// Add registers a document.
func (m *MemoryIndex) Add(doc index.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
}

func (m *MemoryIndex) NearestNeighbors(_ context.Context, _ []float32, limit int) ([]index.Neighbor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []index.Neighbor
	for i, d := range m.docs {
		if i >= limit {
			break
		}
		preview := index.TruncateOnRune(d.Content, index.ContentPreviewLen)
		out = append(out, index.Neighbor{
			DocID:          d.ID,
			Title:          d.Title,
			ContentPreview: preview,
			Tier:           d.Tier,
			Distance:       float32(i) * 0.1,
		})
	}
	return out, nil
}

func (m *MemoryIndex) ResolveDocuments(_ context.Context, ids []int64) ([]index.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []index.Document
	for _, id := range ids {
		for _, d := range m.docs {
			if d.ID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}
