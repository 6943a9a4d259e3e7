package index_test

import (
	"context"
	"testing"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/embed"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/index"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/log"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/testutil"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testutil.SkipWithoutDocker(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := index.New(db.Pool, log.NewNop())
	embedder := embed.NewFallback()

	docs := []index.Document{
		{ID: 1, Title: "Pump manual", Content: "impeller clearance and seal replacement", Tier: tier.Customer, Category: "mechanical"},
		{ID: 2, Title: "Valve guide", Content: "solenoid valve diagnostics", Tier: tier.Engineer, Category: "hydraulic"},
		{ID: 3, Title: "Admin runbook", Content: "site access and escalation", Tier: tier.Master, Category: "operations"},
	}
	for _, doc := range docs {
		vec, err := embedder.Embed(ctx, doc.Content)
		if err != nil {
			t.Fatalf("embedding %q: %v", doc.Title, err)
		}
		if err := store.Upsert(ctx, doc, vec); err != nil {
			t.Fatalf("Upsert(%d): %v", doc.ID, err)
		}
	}

	// Searching with document 1's own vector must rank it first.
	queryVec, err := embedder.Embed(ctx, docs[0].Content)
	if err != nil {
		t.Fatalf("embedding query: %v", err)
	}
	neighbors, err := store.NearestNeighbors(ctx, queryVec, 3)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(neighbors) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(neighbors))
	}
	if neighbors[0].DocID != 1 {
		t.Errorf("nearest neighbor = doc %d, want doc 1", neighbors[0].DocID)
	}
	if neighbors[0].Distance > neighbors[1].Distance {
		t.Errorf("neighbors not ordered by distance: %v then %v",
			neighbors[0].Distance, neighbors[1].Distance)
	}

	// Upsert with new content replaces the row.
	updated := docs[0]
	updated.Content = "completely different content about filters"
	vec, err := embedder.Embed(ctx, updated.Content)
	if err != nil {
		t.Fatalf("embedding updated content: %v", err)
	}
	if err := store.Upsert(ctx, updated, vec); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	resolved, err := store.ResolveDocuments(ctx, []int64{1, 99})
	if err != nil {
		t.Fatalf("ResolveDocuments: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("resolved %d documents, want 1 (missing ids absent)", len(resolved))
	}
	if resolved[0].Content != updated.Content {
		t.Errorf("resolved content = %q, want updated content", resolved[0].Content)
	}

	count, err := store.Count(ctx, tier.Engineer)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count(engineer) = %d, want 2", count)
	}
}
