package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/log"
)

// stubProvider implements Provider for testing Resilient.
type stubProvider struct {
	vec       []float32
	err       error
	callCount int
}

func (s *stubProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	s.callCount++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func TestFallbackDeterministic(t *testing.T) {
	f := NewFallback()
	ctx := context.Background()

	a1, err := f.Embed(ctx, "how to fix pump")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, err := f.Embed(ctx, "how to fix pump")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := f.Embed(ctx, "pump vibration")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a1) != Dimension {
		t.Fatalf("vector length = %d, want %d", len(a1), Dimension)
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("same text produced different vectors at index %d", i)
		}
	}

	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestFallbackRange(t *testing.T) {
	f := NewFallback()
	vec, err := f.Embed(context.Background(), "bearing noise")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vec {
		if v < 0 || v > 1 {
			t.Errorf("component %d = %f out of [0,1]", i, v)
		}
	}
	// The tail beyond the digest must be zero-padded.
	for i := 16; i < Dimension; i++ {
		if vec[i] != 0 {
			t.Errorf("component %d = %f, want zero padding", i, vec[i])
		}
	}
}

func TestResilientPrefersPrimary(t *testing.T) {
	primary := &stubProvider{vec: make([]float32, Dimension)}
	primary.vec[0] = 0.42

	r := NewResilient(primary, log.NewNop())
	vec, err := r.Embed(context.Background(), "query")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 0.42 {
		t.Error("resilient provider did not return primary embedding")
	}
	if primary.callCount != 1 {
		t.Errorf("primary called %d times, want 1", primary.callCount)
	}
}

func TestResilientFallsBack(t *testing.T) {
	primary := &stubProvider{err: errors.New("model unavailable")}
	r := NewResilient(primary, log.NewNop())

	vec, err := r.Embed(context.Background(), "query")
	if err != nil {
		t.Fatalf("Embed should not propagate primary failure: %v", err)
	}
	if len(vec) != Dimension {
		t.Fatalf("fallback vector length = %d, want %d", len(vec), Dimension)
	}

	// Fallback must be deterministic across calls.
	vec2, _ := r.Embed(context.Background(), "query")
	for i := range vec {
		if vec[i] != vec2[i] {
			t.Fatal("fallback not deterministic")
		}
	}
}

func TestResilientNilPrimary(t *testing.T) {
	r := NewResilient(nil, log.NewNop())
	vec, err := r.Embed(context.Background(), "offline")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != Dimension {
		t.Fatalf("vector length = %d, want %d", len(vec), Dimension)
	}
}
